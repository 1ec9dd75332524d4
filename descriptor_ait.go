package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// Transport protocol ids
// Chapter: 5.3.6 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
const (
	TransportProtocolIDObjectCarousel = 0x1
	TransportProtocolIDHTTP           = 0x3
)

// Visibility states of an application
const (
	ApplicationVisibilityNotVisibleAll   = 0x0
	ApplicationVisibilityNotVisibleUsers = 0x1
	ApplicationVisibilityVisibleAll      = 0x3
)

// DescriptorApplication represents an application descriptor
// Chapter: 5.3.5.3 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
type DescriptorApplication struct {
	ApplicationPriority     uint8
	Profiles                []DescriptorApplicationProfile
	ServiceBound            bool
	TransportProtocolLabels []byte
	Visibility              uint8
}

// DescriptorApplicationProfile represents a profile an application may run on
type DescriptorApplicationProfile struct {
	ApplicationProfile uint16
	VersionMajor       uint8
	VersionMicro       uint8
	VersionMinor       uint8
}

func newDescriptorApplication(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Profiles
	var profiles []byte
	if profiles, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching application profiles failed: %w", err)
		return
	}
	d := &DescriptorApplication{Profiles: make([]DescriptorApplicationProfile, len(profiles)/5)}
	for idx := range d.Profiles {
		bs := profiles[idx*5:]
		d.Profiles[idx] = DescriptorApplicationProfile{
			ApplicationProfile: binary.BigEndian.Uint16(bs),
			VersionMajor:       bs[2],
			VersionMinor:       bs[3],
			VersionMicro:       bs[4],
		}
	}

	// Flags and priority
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	d.ServiceBound = bs[0]&0x80 > 0
	d.Visibility = bs[0] >> 5 & 0x3
	d.ApplicationPriority = bs[1]

	// Transport protocol labels
	if i.Offset() < offsetEnd {
		if d.TransportProtocolLabels, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.Application = d
	return
}

// DescriptorApplicationName represents an application name descriptor
// Chapter: 5.3.5.6.1 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
type DescriptorApplicationName struct {
	Items []DescriptorApplicationNameItem
}

// DescriptorApplicationNameItem represents an application name in one language
type DescriptorApplicationNameItem struct {
	Language [3]byte
	Name     []byte
}

// String returns the name as UTF-8
func (i DescriptorApplicationNameItem) String() string {
	return decodeDVBText(i.Name)
}

func newDescriptorApplicationName(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorApplicationName{}
	for i.Offset() < offsetEnd {
		var item DescriptorApplicationNameItem
		if item.Language, err = nextLanguage(i); err != nil {
			return
		}
		if item.Name, err = nextLengthPrefixedBytes(i); err != nil {
			err = fmt.Errorf("tssi: fetching application name failed: %w", err)
			return
		}
		d.Items = append(d.Items, item)
	}
	dd.ApplicationName = d
	return
}

// DescriptorTransportProtocol represents a transport protocol descriptor
// Chapter: 5.3.6 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
type DescriptorTransportProtocol struct {
	HTTP           *DescriptorTransportProtocolHTTP
	Label          uint8
	ObjectCarousel *DescriptorTransportProtocolObjectCarousel
	ProtocolID     uint16
	Selector       []byte // Only set for unknown protocol ids
}

// DescriptorTransportProtocolObjectCarousel represents the selector bytes of an object carousel transport
type DescriptorTransportProtocolObjectCarousel struct {
	ComponentTag      uint8
	OriginalNetworkID uint16
	RemoteConnection  bool
	ServiceID         uint16
	TransportStreamID uint16
}

// DescriptorTransportProtocolHTTP represents the selector bytes of an interaction channel transport
type DescriptorTransportProtocolHTTP struct {
	URLBase       []byte
	URLExtensions [][]byte
}

func newDescriptorTransportProtocol(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	d := &DescriptorTransportProtocol{
		ProtocolID: binary.BigEndian.Uint16(bs),
		Label:      bs[2],
	}

	// Selector
	switch d.ProtocolID {
	case TransportProtocolIDObjectCarousel:
		oc := &DescriptorTransportProtocolObjectCarousel{}
		var b byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		oc.RemoteConnection = b&0x80 > 0
		if oc.RemoteConnection {
			if bs, err = i.NextBytesNoCopy(6); err != nil || len(bs) < 6 {
				err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
				return
			}
			oc.OriginalNetworkID = binary.BigEndian.Uint16(bs)
			oc.TransportStreamID = binary.BigEndian.Uint16(bs[2:])
			oc.ServiceID = binary.BigEndian.Uint16(bs[4:])
		}
		if oc.ComponentTag, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		d.ObjectCarousel = oc
	case TransportProtocolIDHTTP:
		h := &DescriptorTransportProtocolHTTP{}
		if h.URLBase, err = nextLengthPrefixedBytes(i); err != nil {
			err = fmt.Errorf("tssi: fetching url base failed: %w", err)
			return
		}
		var count byte
		if count, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		for idx := 0; idx < int(count); idx++ {
			var ext []byte
			if ext, err = nextLengthPrefixedBytes(i); err != nil {
				err = fmt.Errorf("tssi: fetching url extension failed: %w", err)
				return
			}
			h.URLExtensions = append(h.URLExtensions, ext)
		}
		d.HTTP = h
	default:
		if d.Selector, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.TransportProtocol = d
	return
}

// DescriptorDVBJApplication represents a DVB-J application descriptor
// Chapter: 10.9.1 | Link: https://www.etsi.org/deliver/etsi_ts/101800_101899/101812/01.03.01_60/ts_101812v010301p.pdf
type DescriptorDVBJApplication struct {
	Parameters [][]byte
}

func newDescriptorDVBJApplication(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorDVBJApplication{}
	for i.Offset() < offsetEnd {
		var p []byte
		if p, err = nextLengthPrefixedBytes(i); err != nil {
			err = fmt.Errorf("tssi: fetching parameter failed: %w", err)
			return
		}
		d.Parameters = append(d.Parameters, p)
	}
	dd.DVBJApplication = d
	return
}

// DescriptorDVBJApplicationLocation represents a DVB-J application location descriptor
// Chapter: 10.9.2 | Link: https://www.etsi.org/deliver/etsi_ts/101800_101899/101812/01.03.01_60/ts_101812v010301p.pdf
type DescriptorDVBJApplicationLocation struct {
	BaseDirectory      []byte
	ClasspathExtension []byte
	InitialClass       []byte
}

func newDescriptorDVBJApplicationLocation(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorDVBJApplicationLocation{}
	if d.BaseDirectory, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching base directory failed: %w", err)
		return
	}
	if d.ClasspathExtension, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching classpath extension failed: %w", err)
		return
	}
	if d.InitialClass, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
		return
	}
	dd.DVBJApplicationLocation = d
	return
}

// DescriptorCompressedModule represents a compressed module descriptor found in the module info of a DII
// Chapter: 11.4.2 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
type DescriptorCompressedModule struct {
	CompressionMethod uint8 // 0x08 is zlib
	OriginalSize      uint32
}

func newDescriptorCompressedModule(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(5); err != nil || len(bs) < 5 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	dd.CompressedModule = &DescriptorCompressedModule{
		CompressionMethod: bs[0],
		OriginalSize:      binary.BigEndian.Uint32(bs[1:]),
	}
	return
}
