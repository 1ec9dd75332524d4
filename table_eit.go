package tssi

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
)

// EITData represents an EIT data
// Page: 36 | Chapter: 5.2.4 | Link: https://dvb.org/wp-content/uploads/2019/12/a038_tm1217r37_en300468v1_17_1_-_rev-134_-_si_specification.pdf
type EITData struct {
	Events                   []EITDataEvent
	LastTableID              uint8
	OriginalNetworkID        uint16
	SectionNumber            uint8
	SegmentLastSectionNumber uint8
	ServiceID                uint16
	TableID                  PSITableID
	TransportStreamID        uint16
	VersionNumber            uint8
}

// EITDataEvent represents an EIT data event
type EITDataEvent struct {
	Descriptors       *DescriptorList
	Duration          time.Duration
	EventID           uint16
	HasFreeCSAMode    bool // When true indicates that access to one or more streams may be controlled by a CA system.
	OriginalNetworkID uint16
	RunningStatus     uint8
	ServiceID         uint16
	StartTime         time.Time // Zero when undefined
	TransportStreamID uint16
}

type eitSubTableKey struct {
	originalNetworkID uint16
	serviceID         uint16
	tableID           PSITableID
	transportStreamID uint16
}

// TableEIT decodes event information tables. Only the events of the last decoded section are kept.
type TableEIT struct {
	processCallback
	data     *EITData
	versions versionTracker[eitSubTableKey, struct{}]
}

// Reset drops the decoded events
func (t *TableEIT) Reset() {
	t.data = nil
	t.versions.reset()
}

// Data returns the last decoded section or nil
func (t *TableEIT) Data() *EITData {
	return t.data
}

// EventListLength returns the number of events of the last decoded section
func (t *TableEIT) EventListLength() int {
	if t.data == nil {
		return 0
	}
	return len(t.data.Events)
}

// Event returns the event at index idx
func (t *TableEIT) Event(idx int) (EITDataEvent, error) {
	if idx < 0 || idx >= t.EventListLength() {
		return EITDataEvent{}, fmt.Errorf("tssi: EIT event index %d: %w", idx, ErrNotFound)
	}
	return t.data.Events[idx], nil
}

// decode decodes an EIT section
func (t *TableEIT) decode(s *Section) (published bool, err error) {
	switch {
	case !s.Header.TableID.isEIT() || s.Syntax == nil:
		err = fmt.Errorf("tssi: table id 0x%x on EIT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	case !s.Syntax.CurrentNextIndicator:
		return
	}

	// Parse
	var d *EITData
	if d, err = parseEITSection(astikit.NewBytesIterator(s.Body()), s.Header.TableID, s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing EIT section failed: %w", err)
		return
	}

	// Already committed
	key := eitSubTableKey{
		originalNetworkID: d.OriginalNetworkID,
		serviceID:         d.ServiceID,
		tableID:           d.TableID,
		transportStreamID: d.TransportStreamID,
	}
	v := s.sectionVersion()
	if t.versions.isCommitted(key, v) {
		return
	}
	t.versions.commit(key, v, struct{}{})

	// Publish
	t.data = d
	t.notify()
	published = true
	return
}

// parseEITSection parses an EIT section
func parseEITSection(i *astikit.BytesIterator, tableID PSITableID, h *PSISectionSyntaxHeader) (d *EITData, err error) {
	// Create data
	d = &EITData{
		SectionNumber: h.SectionNumber,
		ServiceID:     h.TableIDExtension,
		TableID:       tableID,
		VersionNumber: h.VersionNumber,
	}

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(6); err != nil || len(bs) < 6 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	d.TransportStreamID = binary.BigEndian.Uint16(bs)
	d.OriginalNetworkID = binary.BigEndian.Uint16(bs[2:])
	d.SegmentLastSectionNumber = bs[4]
	d.LastTableID = bs[5]

	// Loop until end of section data is reached
	for i.HasBytesLeft() {
		// Get next 2 bytes
		if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}

		// Event ID
		e := EITDataEvent{
			EventID:           binary.BigEndian.Uint16(bs),
			OriginalNetworkID: d.OriginalNetworkID,
			ServiceID:         d.ServiceID,
			TransportStreamID: d.TransportStreamID,
		}

		// Start time
		if e.StartTime, err = parseDVBTime(i); err != nil {
			err = fmt.Errorf("tssi: parsing DVB time failed: %w", err)
			return
		}

		// Duration
		if e.Duration, err = parseDVBDurationSeconds(i); err != nil {
			err = fmt.Errorf("tssi: parsing DVB duration seconds failed: %w", err)
			return
		}

		// Get next byte
		var b byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}

		// Running status
		e.RunningStatus = b >> 5

		// Free CA mode
		e.HasFreeCSAMode = b&0x10 > 0

		// We need to rewind since the current byte is used by the descriptor as well
		i.Skip(-1)

		// Descriptors
		if e.Descriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
			err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
			return
		}

		// Add event
		d.Events = append(d.Events, e)
	}
	return
}
