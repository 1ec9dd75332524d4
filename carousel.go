package tssi

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/asticode/go-astikit"
)

type CarouselObjectKind string

// BIOP object kinds
// Chapter: 11.3 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
const (
	CarouselObjectKindDirectory      CarouselObjectKind = "dir"
	CarouselObjectKindFile           CarouselObjectKind = "fil"
	CarouselObjectKindServiceGateway CarouselObjectKind = "srg"
	CarouselObjectKindStream         CarouselObjectKind = "str"
	CarouselObjectKindStreamEvent    CarouselObjectKind = "ste"
)

// Binding types
const (
	BindingTypeObject  = 0x1
	BindingTypeContext = 0x2
)

const (
	biopMagic                = "BIOP"
	biopProfileTagBIOP       = 0x49534f06
	biopComponentTagLocation = 0x49534f50
	compressionMethodZlib    = 0x8
)

// ObjectCarousel represents the objects of a complete DSM-CC object carousel
type ObjectCarousel struct {
	Objects        []*CarouselObject // In module order
	ServiceGateway *CarouselObject   // Root of the file system, nil if none was found
}

// CarouselObject represents a BIOP object
type CarouselObject struct {
	Bindings  []CarouselBinding // Directories and service gateway only
	Content   []byte            // Files only
	Kind      CarouselObjectKind
	ModuleID  uint16
	ObjectKey []byte
	Path      string          // Resolved from the service gateway, empty when unreachable
	Stream    *CarouselStream // Streams and stream events only
}

// CarouselBinding represents a named link from a directory to an object
type CarouselBinding struct {
	BindingType uint8
	Kind        string
	ModuleID    uint16
	Name        string
	ObjectKey   []byte
}

// CarouselStream represents the information carried by stream and stream event objects
type CarouselStream struct {
	Audio       uint8
	Data        uint8
	Description []byte
	DurationMs  uint64
	EventIDs    []uint16
	EventNames  []string
	Video       uint8
}

// ObjectByPath returns the object reachable at the given path, "/" being the service gateway
func (c *ObjectCarousel) ObjectByPath(p string) (*CarouselObject, error) {
	p = path.Clean("/" + p)
	for _, o := range c.Objects {
		if o.Path == p {
			return o, nil
		}
	}
	return nil, fmt.Errorf("tssi: carousel path %s: %w", p, ErrNotFound)
}

// Files returns the content of every reachable file indexed by path
func (c *ObjectCarousel) Files() map[string][]byte {
	fs := make(map[string][]byte)
	for _, o := range c.Objects {
		if o.Kind == CarouselObjectKindFile && o.Path != "" {
			fs[o.Path] = o.Content
		}
	}
	return fs
}

type biopObjectLocation struct {
	moduleID  uint16
	objectKey string
}

// biopIOR represents an interoperable object reference, only its object location is kept
type biopIOR struct {
	location *biopObjectLocation
	typeID   string
}

func newObjectCarousel(modules []*DSMCCModule, serviceGateway *biopIOR) (c *ObjectCarousel, err error) {
	c = &ObjectCarousel{}
	for _, m := range modules {
		// Inflate
		bs := m.data()
		if bs, err = inflateModule(m, bs); err != nil {
			err = fmt.Errorf("tssi: inflating module %d failed: %w", m.ModuleID, err)
			return
		}

		// Parse messages
		i := astikit.NewBytesIterator(bs)
		for i.HasBytesLeft() {
			var o *CarouselObject
			if o, err = parseBIOPMessage(i); err != nil {
				err = fmt.Errorf("tssi: parsing BIOP message of module %d failed: %w", m.ModuleID, err)
				return
			}
			o.ModuleID = m.ModuleID
			c.Objects = append(c.Objects, o)
		}
	}

	// Find the service gateway
	for _, o := range c.Objects {
		if serviceGateway != nil && serviceGateway.location != nil {
			if o.ModuleID != serviceGateway.location.moduleID || string(o.ObjectKey) != serviceGateway.location.objectKey {
				continue
			}
		} else if o.Kind != CarouselObjectKindServiceGateway {
			continue
		}
		c.ServiceGateway = o
		break
	}
	c.resolvePaths()
	return
}

// inflateModule inflates modules announced as compressed
func inflateModule(m *DSMCCModule, bs []byte) ([]byte, error) {
	d, err := m.Descriptors.DescriptorByTag(DescriptorTagCompressedModule)
	if err != nil || d.CompressedModule == nil {
		return bs, nil
	}
	if d.CompressedModule.CompressionMethod&0xf != compressionMethodZlib {
		return nil, fmt.Errorf("tssi: unsupported compression method 0x%x", d.CompressedModule.CompressionMethod)
	}

	r, err := zlib.NewReader(bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("tssi: creating zlib reader failed: %w", err)
	}
	defer r.Close()

	// One byte more than announced is enough to detect an oversized module
	buf := &bytes.Buffer{}
	if _, err = io.Copy(buf, io.LimitReader(r, int64(d.CompressedModule.OriginalSize)+1)); err != nil {
		return nil, fmt.Errorf("tssi: inflating failed: %w", err)
	}
	if uint32(buf.Len()) != d.CompressedModule.OriginalSize {
		return nil, fmt.Errorf("tssi: inflated %d bytes instead of %d", buf.Len(), d.CompressedModule.OriginalSize)
	}
	return buf.Bytes(), nil
}

// resolvePaths walks the bindings from the service gateway
func (c *ObjectCarousel) resolvePaths() {
	if c.ServiceGateway == nil {
		return
	}
	byLocation := make(map[biopObjectLocation]*CarouselObject, len(c.Objects))
	for _, o := range c.Objects {
		byLocation[biopObjectLocation{moduleID: o.ModuleID, objectKey: string(o.ObjectKey)}] = o
	}

	c.ServiceGateway.Path = "/"
	queue := []*CarouselObject{c.ServiceGateway}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		for _, b := range dir.Bindings {
			o, ok := byLocation[biopObjectLocation{moduleID: b.ModuleID, objectKey: string(b.ObjectKey)}]
			if !ok || o.Path != "" {
				continue
			}
			o.Path = path.Join(dir.Path, b.Name)
			if o.Kind == CarouselObjectKindDirectory {
				queue = append(queue, o)
			}
		}
	}
}

// biopString trims the terminating null character
func biopString(bs []byte) string {
	return strings.TrimRight(string(bs), "\x00")
}

// parseBIOPMessage parses a BIOP message
// Chapter: 11.3 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
func parseBIOPMessage(i *astikit.BytesIterator) (o *CarouselObject, err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(12); err != nil || len(bs) < 12 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	if string(bs[:4]) != biopMagic {
		err = fmt.Errorf("tssi: invalid BIOP magic %q", bs[:4])
		return
	}
	offsetEnd := i.Offset() + int(binary.BigEndian.Uint32(bs[8:]))
	o = &CarouselObject{}

	// Object key
	if o.ObjectKey, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching object key failed: %w", err)
		return
	}

	// Object kind
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	var kind []byte
	if kind, err = i.NextBytesNoCopy(int(binary.BigEndian.Uint32(bs))); err != nil {
		err = fmt.Errorf("tssi: fetching object kind failed: %w", err)
		return
	}
	o.Kind = CarouselObjectKind(biopString(kind))

	// Object info
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	var objectInfo []byte
	if objectInfo, err = i.NextBytesNoCopy(int(binary.BigEndian.Uint16(bs))); err != nil {
		err = fmt.Errorf("tssi: fetching object info failed: %w", err)
		return
	}

	// Service contexts
	var count byte
	if count, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	for idx := 0; idx < int(count); idx++ {
		if bs, err = i.NextBytesNoCopy(6); err != nil || len(bs) < 6 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		i.Skip(int(binary.BigEndian.Uint16(bs[4:])))
	}

	// Message body
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	var body []byte
	if body, err = i.NextBytesNoCopy(int(binary.BigEndian.Uint32(bs))); err != nil {
		err = fmt.Errorf("tssi: fetching message body failed: %w", err)
		return
	}

	// Switch on kind
	bi := astikit.NewBytesIterator(body)
	switch o.Kind {
	case CarouselObjectKindFile:
		if bs, err = bi.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		if o.Content, err = nextBytes(bi, int(binary.BigEndian.Uint32(bs))); err != nil {
			err = fmt.Errorf("tssi: fetching file content failed: %w", err)
			return
		}
	case CarouselObjectKindDirectory, CarouselObjectKindServiceGateway:
		if o.Bindings, err = parseBIOPBindings(bi); err != nil {
			err = fmt.Errorf("tssi: parsing bindings failed: %w", err)
			return
		}
	case CarouselObjectKindStream, CarouselObjectKindStreamEvent:
		if o.Stream, err = parseBIOPStream(objectInfo, bi, o.Kind == CarouselObjectKindStreamEvent); err != nil {
			err = fmt.Errorf("tssi: parsing stream failed: %w", err)
			return
		}
	}

	// Copy the key since the module buffer is not kept
	o.ObjectKey = append([]byte(nil), o.ObjectKey...)
	i.Seek(offsetEnd)
	return
}

// parseBIOPBindings parses the bindings of a directory message body
func parseBIOPBindings(i *astikit.BytesIterator) (bs []CarouselBinding, err error) {
	// Get next bytes
	var b []byte
	if b, err = i.NextBytesNoCopy(2); err != nil || len(b) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	bs = make([]CarouselBinding, binary.BigEndian.Uint16(b))
	for idx := range bs {
		// Name components, only the last one matters for a single level name
		var count byte
		if count, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		var names []string
		for n := 0; n < int(count); n++ {
			var id, kind []byte
			if id, err = nextLengthPrefixedBytes(i); err != nil {
				err = fmt.Errorf("tssi: fetching name id failed: %w", err)
				return
			}
			if kind, err = nextLengthPrefixedBytes(i); err != nil {
				err = fmt.Errorf("tssi: fetching name kind failed: %w", err)
				return
			}
			names = append(names, biopString(id))
			bs[idx].Kind = biopString(kind)
		}
		bs[idx].Name = path.Join(names...)

		// Binding type
		if bs[idx].BindingType, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}

		// IOR
		var ior *biopIOR
		if ior, err = parseBIOPIOR(i); err != nil {
			err = fmt.Errorf("tssi: parsing IOR failed: %w", err)
			return
		}
		if ior.location != nil {
			bs[idx].ModuleID = ior.location.moduleID
			bs[idx].ObjectKey = []byte(ior.location.objectKey)
		}

		// Object info
		if b, err = i.NextBytesNoCopy(2); err != nil || len(b) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		i.Skip(int(binary.BigEndian.Uint16(b)))
	}
	return
}

// parseBIOPIOR parses an interoperable object reference
// Chapter: 11.3.3 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
func parseBIOPIOR(i *astikit.BytesIterator) (ior *biopIOR, err error) {
	ior = &biopIOR{}

	// Type id
	var bs []byte
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	var typeID []byte
	if typeID, err = i.NextBytesNoCopy(int(binary.BigEndian.Uint32(bs))); err != nil {
		err = fmt.Errorf("tssi: fetching type id failed: %w", err)
		return
	}
	ior.typeID = biopString(typeID)

	// Tagged profiles
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	count := binary.BigEndian.Uint32(bs)
	for idx := uint32(0); idx < count; idx++ {
		if bs, err = i.NextBytesNoCopy(8); err != nil || len(bs) < 8 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		tag := binary.BigEndian.Uint32(bs)
		var profile []byte
		if profile, err = i.NextBytesNoCopy(int(binary.BigEndian.Uint32(bs[4:]))); err != nil {
			err = fmt.Errorf("tssi: fetching profile data failed: %w", err)
			return
		}
		if tag != biopProfileTagBIOP || ior.location != nil {
			continue
		}
		if ior.location, err = parseBIOPProfile(profile); err != nil {
			err = fmt.Errorf("tssi: parsing BIOP profile failed: %w", err)
			return
		}
	}
	return
}

// parseBIOPProfile returns the object location of a BIOP profile body
func parseBIOPProfile(profile []byte) (l *biopObjectLocation, err error) {
	i := astikit.NewBytesIterator(profile)

	// Byte order and lite components count
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	for idx := 0; idx < int(bs[1]); idx++ {
		var h []byte
		if h, err = i.NextBytesNoCopy(5); err != nil || len(h) < 5 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		var data []byte
		if data, err = i.NextBytesNoCopy(int(h[4])); err != nil {
			err = fmt.Errorf("tssi: fetching component data failed: %w", err)
			return
		}
		if binary.BigEndian.Uint32(h) != biopComponentTagLocation {
			continue
		}

		// Carousel id, module id, version and object key
		if len(data) < 9 || len(data) < 9+int(data[8]) {
			err = fmt.Errorf("tssi: object location is too short: %w", ErrShortBuffer)
			return
		}
		l = &biopObjectLocation{
			moduleID:  binary.BigEndian.Uint16(data[4:]),
			objectKey: string(data[9 : 9+int(data[8])]),
		}
	}
	return
}

// parseBIOPStream parses the info of a stream or stream event object
// Chapter: 11.3.5 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
func parseBIOPStream(objectInfo []byte, body *astikit.BytesIterator, event bool) (s *CarouselStream, err error) {
	s = &CarouselStream{}
	i := astikit.NewBytesIterator(objectInfo)

	// Description
	if s.Description, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching description failed: %w", err)
		return
	}

	// Duration and content flags
	var bs []byte
	if bs, err = i.NextBytesNoCopy(11); err != nil || len(bs) < 11 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	s.DurationMs = uint64(binary.BigEndian.Uint32(bs))*1000 + uint64(binary.BigEndian.Uint32(bs[4:]))/1000
	s.Audio = bs[8]
	s.Video = bs[9]
	s.Data = bs[10]

	// Event names
	if event {
		if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		for idx := 0; idx < int(binary.BigEndian.Uint16(bs)); idx++ {
			var name []byte
			if name, err = nextLengthPrefixedBytes(i); err != nil {
				err = fmt.Errorf("tssi: fetching event name failed: %w", err)
				return
			}
			s.EventNames = append(s.EventNames, biopString(name))
		}
	}

	// Taps
	var count byte
	if count, err = body.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	for idx := 0; idx < int(count); idx++ {
		if bs, err = body.NextBytesNoCopy(7); err != nil || len(bs) < 7 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		body.Skip(int(bs[6]))
	}

	// Event ids
	if event {
		if count, err = body.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		for idx := 0; idx < int(count); idx++ {
			if bs, err = body.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
				err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
				return
			}
			s.EventIDs = append(s.EventIDs, binary.BigEndian.Uint16(bs))
		}
	}
	return
}
