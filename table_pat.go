package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// PIDs
const (
	PIDPAT  uint16 = 0x0    // Program Association Table (PAT) contains a directory listing of all Program Map Tables.
	PIDCAT  uint16 = 0x1    // Conditional Access Table (CAT) contains a directory listing of all ITU-T Rec. H.222 entitlement management message streams used by Program Map Tables.
	PIDNIT  uint16 = 0x10   // Network Information Table
	PIDSDT  uint16 = 0x11   // Service Description Table, also carries the BAT
	PIDEIT  uint16 = 0x12   // Event Information Table
	PIDRST  uint16 = 0x13   // Running Status Table
	PIDTDT  uint16 = 0x14   // Time and Date Table, also carries the TOT
	PIDNull uint16 = 0x1fff // Null Packet (used for fixed bandwidth padding)
	PIDNone uint16 = 0xffff // Unbinds a role
)

// PATData represents a PAT data
// https://en.wikipedia.org/wiki/Program-specific_information
type PATData struct {
	HasNetworkPID     bool
	NetworkPID        uint16 // Announced by program number 0
	Programs          []PATProgram
	TransportStreamID uint16
	VersionNumber     uint8
}

// PATProgram represents a PAT program
type PATProgram struct {
	ProgramMapID  uint16 // The packet identifier that contains the associated PMT
	ProgramNumber uint16 // Relates to the Table ID extension in the associated PMT. A value of 0 is reserved for a NIT packet identifier.
}

// TablePAT decodes the program association table
type TablePAT struct {
	processCallback
	data     *PATData
	versions versionTracker[uint16, *PATData]
}

// Reset drops the decoded table
func (t *TablePAT) Reset() {
	t.data = nil
	t.versions.reset()
}

// Data returns the last decoded table or nil. The returned data is never modified afterwards.
func (t *TablePAT) Data() *PATData {
	return t.data
}

// TransportStreamID returns the transport stream id of the last decoded table
func (t *TablePAT) TransportStreamID() (uint16, error) {
	if t.data == nil {
		return 0, fmt.Errorf("tssi: no PAT: %w", ErrNotFound)
	}
	return t.data.TransportStreamID, nil
}

// NetworkPID returns the PID of the NIT as announced by the last decoded table
func (t *TablePAT) NetworkPID() (uint16, error) {
	if t.data == nil || !t.data.HasNetworkPID {
		return 0, fmt.Errorf("tssi: no network pid: %w", ErrNotFound)
	}
	return t.data.NetworkPID, nil
}

// ProgramListLength returns the number of programs, program 0 excluded
func (t *TablePAT) ProgramListLength() int {
	if t.data == nil {
		return 0
	}
	return len(t.data.Programs)
}

// Program returns the program at index idx
func (t *TablePAT) Program(idx int) (PATProgram, error) {
	if idx < 0 || idx >= t.ProgramListLength() {
		return PATProgram{}, fmt.Errorf("tssi: PAT program index %d: %w", idx, ErrNotFound)
	}
	return t.data.Programs[idx], nil
}

// decode decodes a PAT section and returns whether a new table has been published
func (t *TablePAT) decode(s *Section) (published bool, err error) {
	if s.Header.TableID != PSITableIDPAT || s.Syntax == nil {
		err = fmt.Errorf("tssi: table id 0x%x on PAT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	}
	if !s.Syntax.CurrentNextIndicator {
		return
	}

	// Already committed. A new transport stream id replaces the previous sub-table.
	key, v := s.Syntax.TableIDExtension, s.sectionVersion()
	t.versions.retain(key)
	if t.versions.isCommitted(key, v) {
		return
	}

	// Parse
	var d *PATData
	if d, err = parsePATSection(astikit.NewBytesIterator(s.Body()), s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing PAT section failed: %w", err)
		return
	}

	// Merge sections
	sections := t.versions.commit(key, v, d)
	data := &PATData{
		TransportStreamID: key,
		VersionNumber:     v.version,
	}
	for _, sd := range sections {
		if sd.HasNetworkPID {
			data.HasNetworkPID = true
			data.NetworkPID = sd.NetworkPID
		}
		data.Programs = append(data.Programs, sd.Programs...)
	}

	// Publish
	t.data = data
	t.notify()
	published = true
	return
}

// parsePATSection parses a PAT section
func parsePATSection(i *astikit.BytesIterator, h *PSISectionSyntaxHeader) (d *PATData, err error) {
	// Create data
	d = &PATData{
		TransportStreamID: h.TableIDExtension,
		VersionNumber:     h.VersionNumber,
	}

	// Loop until end of section data is reached
	for i.HasBytesLeft() {
		// Get next bytes
		var bs []byte
		if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}

		// Program 0 announces the network PID
		p := PATProgram{
			ProgramMapID:  binary.BigEndian.Uint16(bs[2:]) & 0x1fff,
			ProgramNumber: binary.BigEndian.Uint16(bs),
		}
		if p.ProgramNumber == 0 {
			d.HasNetworkPID = true
			d.NetworkPID = p.ProgramMapID
			continue
		}
		d.Programs = append(d.Programs, p)
	}
	return
}
