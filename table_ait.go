package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// Application control codes
// Chapter: 5.3.2.2 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
const (
	ApplicationControlCodeAutostart = 0x1
	ApplicationControlCodePresent   = 0x2
	ApplicationControlCodeDestroy   = 0x3
	ApplicationControlCodeKill      = 0x4
	ApplicationControlCodePrefetch  = 0x5
	ApplicationControlCodeRemote    = 0x6
	ApplicationControlCodeDisabled  = 0x7
)

// AITData represents an AIT data
// Chapter: 5.3.4 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
type AITData struct {
	Applications        []AITDataApplication
	ApplicationType     uint16
	CommonDescriptors   *DescriptorList
	TestApplicationFlag bool
	VersionNumber       uint8
}

// AITDataApplication represents an application announced by an AIT
type AITDataApplication struct {
	ApplicationControlCode uint8
	ApplicationID          uint16
	Descriptors            *DescriptorList
	OrganisationID         uint32
}

// TableAIT decodes the application information table
type TableAIT struct {
	processCallback
	data     *AITData
	versions versionTracker[uint16, *AITData]
}

// Reset drops the decoded table
func (t *TableAIT) Reset() {
	t.data = nil
	t.versions.reset()
}

// Data returns the last decoded table or nil
func (t *TableAIT) Data() *AITData {
	return t.data
}

// ApplicationListLength returns the number of applications
func (t *TableAIT) ApplicationListLength() int {
	if t.data == nil {
		return 0
	}
	return len(t.data.Applications)
}

// Application returns the application at index idx
func (t *TableAIT) Application(idx int) (AITDataApplication, error) {
	if idx < 0 || idx >= t.ApplicationListLength() {
		return AITDataApplication{}, fmt.Errorf("tssi: AIT application index %d: %w", idx, ErrNotFound)
	}
	return t.data.Applications[idx], nil
}

// decode decodes an AIT section
func (t *TableAIT) decode(s *Section) (published bool, err error) {
	switch {
	case s.Header.TableID != PSITableIDAIT || s.Syntax == nil:
		err = fmt.Errorf("tssi: table id 0x%x on AIT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	case !s.Syntax.CurrentNextIndicator:
		return
	}

	// Already committed
	key, v := s.Syntax.TableIDExtension, s.sectionVersion()
	if t.versions.isCommitted(key, v) {
		return
	}

	// Parse
	var d *AITData
	if d, err = parseAITSection(astikit.NewBytesIterator(s.Body()), s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing AIT section failed: %w", err)
		return
	}

	// Merge sections
	sections := t.versions.commit(key, v, d)
	data := &AITData{
		ApplicationType:     d.ApplicationType,
		TestApplicationFlag: d.TestApplicationFlag,
		VersionNumber:       v.version,
	}
	for _, sd := range sections {
		if data.CommonDescriptors.Length() == 0 {
			data.CommonDescriptors = sd.CommonDescriptors
		}
		data.Applications = append(data.Applications, sd.Applications...)
	}
	if data.CommonDescriptors == nil {
		data.CommonDescriptors = &DescriptorList{}
	}

	// Publish
	t.data = data
	t.notify()
	published = true
	return
}

// parseAITSection parses an AIT section
func parseAITSection(i *astikit.BytesIterator, h *PSISectionSyntaxHeader) (d *AITData, err error) {
	// Create data
	d = &AITData{
		ApplicationType:     h.TableIDExtension & 0x7fff,
		TestApplicationFlag: h.TableIDExtension&0x8000 > 0,
		VersionNumber:       h.VersionNumber,
	}

	// Common descriptors
	if d.CommonDescriptors, err = parseDescriptors(i, descriptorScopeAIT); err != nil {
		err = fmt.Errorf("tssi: parsing common descriptors failed: %w", err)
		return
	}

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Application loop
	offsetEnd := i.Offset() + int(binary.BigEndian.Uint16(bs)&0xfff)
	for i.Offset() < offsetEnd {
		// Get next bytes
		if bs, err = i.NextBytesNoCopy(7); err != nil || len(bs) < 7 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		a := AITDataApplication{
			ApplicationControlCode: bs[6],
			ApplicationID:          binary.BigEndian.Uint16(bs[4:]),
			OrganisationID:         binary.BigEndian.Uint32(bs),
		}

		// Application descriptors
		if a.Descriptors, err = parseDescriptors(i, descriptorScopeAIT); err != nil {
			err = fmt.Errorf("tssi: parsing application descriptors failed: %w", err)
			return
		}
		d.Applications = append(d.Applications, a)
	}
	return
}
