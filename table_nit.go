package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// NITData represents a NIT data
// Page: 29 | Chapter: 5.2.1 | Link: https://dvb.org/wp-content/uploads/2019/12/a038_tm1217r37_en300468v1_17_1_-_rev-134_-_si_specification.pdf
type NITData struct {
	NetworkDescriptors *DescriptorList
	NetworkID          uint16
	TransportStreams   []NITDataTransportStream
	VersionNumber      uint8
}

// NITDataTransportStream represents a NIT data transport stream
type NITDataTransportStream struct {
	OriginalNetworkID    uint16
	TransportDescriptors *DescriptorList
	TransportStreamID    uint16
}

// TableNIT decodes the network information table of the actual network
type TableNIT struct {
	processCallback
	data     *NITData
	versions versionTracker[uint16, *NITData]
}

// Reset drops the decoded table
func (t *TableNIT) Reset() {
	t.data = nil
	t.versions.reset()
}

// Data returns the last decoded table or nil
func (t *TableNIT) Data() *NITData {
	return t.data
}

// NetworkID returns the network id of the last decoded table
func (t *TableNIT) NetworkID() (uint16, error) {
	if t.data == nil {
		return 0, fmt.Errorf("tssi: no NIT: %w", ErrNotFound)
	}
	return t.data.NetworkID, nil
}

// CommonDescriptors returns the network descriptors of the last decoded table
func (t *TableNIT) CommonDescriptors() (*DescriptorList, error) {
	if t.data == nil {
		return nil, fmt.Errorf("tssi: no NIT: %w", ErrNotFound)
	}
	return t.data.NetworkDescriptors, nil
}

// NetworkListLength returns the number of transport streams
func (t *TableNIT) NetworkListLength() int {
	if t.data == nil {
		return 0
	}
	return len(t.data.TransportStreams)
}

// TransportStream returns the transport stream at index idx
func (t *TableNIT) TransportStream(idx int) (NITDataTransportStream, error) {
	if idx < 0 || idx >= t.NetworkListLength() {
		return NITDataTransportStream{}, fmt.Errorf("tssi: NIT transport stream index %d: %w", idx, ErrNotFound)
	}
	return t.data.TransportStreams[idx], nil
}

// decode decodes a NIT section. Only the actual network is kept.
func (t *TableNIT) decode(s *Section) (published bool, err error) {
	switch {
	case s.Header.TableID == PSITableIDNITVariant2:
		return
	case s.Header.TableID != PSITableIDNITVariant1 || s.Syntax == nil:
		err = fmt.Errorf("tssi: table id 0x%x on NIT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	case !s.Syntax.CurrentNextIndicator:
		return
	}

	// Already committed. A new network id replaces the previous sub-table.
	key, v := s.Syntax.TableIDExtension, s.sectionVersion()
	t.versions.retain(key)
	if t.versions.isCommitted(key, v) {
		return
	}

	// Parse
	var d *NITData
	if d, err = parseNITSection(astikit.NewBytesIterator(s.Body()), s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing NIT section failed: %w", err)
		return
	}

	// Merge sections, network descriptors are taken from the first section carrying some
	sections := t.versions.commit(key, v, d)
	data := &NITData{
		NetworkID:     key,
		VersionNumber: v.version,
	}
	for _, sd := range sections {
		if data.NetworkDescriptors.Length() == 0 {
			data.NetworkDescriptors = sd.NetworkDescriptors
		}
		data.TransportStreams = append(data.TransportStreams, sd.TransportStreams...)
	}
	if data.NetworkDescriptors == nil {
		data.NetworkDescriptors = &DescriptorList{}
	}

	// Publish
	t.data = data
	t.notify()
	published = true
	return
}

// parseNITSection parses a NIT section
func parseNITSection(i *astikit.BytesIterator, h *PSISectionSyntaxHeader) (d *NITData, err error) {
	// Create data
	d = &NITData{
		NetworkID:     h.TableIDExtension,
		VersionNumber: h.VersionNumber,
	}

	// Network descriptors
	if d.NetworkDescriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
		err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
		return
	}

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Transport stream loop length
	transportStreamLoopLength := int(binary.BigEndian.Uint16(bs) & 0xfff)

	// Transport stream loop
	offsetEnd := i.Offset() + transportStreamLoopLength
	for i.Offset() < offsetEnd {
		// Get next bytes
		if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		ts := NITDataTransportStream{
			OriginalNetworkID: binary.BigEndian.Uint16(bs[2:]),
			TransportStreamID: binary.BigEndian.Uint16(bs),
		}

		// Transport descriptors
		if ts.TransportDescriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
			err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
			return
		}
		d.TransportStreams = append(d.TransportStreams, ts)
	}
	return
}
