package tssi

import (
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
)

// TDTData represents a TDT or TOT data
// Page: 39 | Chapter: 5.2.5 and 5.2.6 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type TDTData struct {
	Descriptors  *DescriptorList // Only filled by a TOT, mostly local time offsets
	SnapshotTime time.Time       // Wall clock time when the table has been decoded
	TableID      PSITableID
	UTCTime      time.Time
}

// TableTDT decodes the time and date table and the time offset table. Every table is published, even when the time
// hasn't changed.
type TableTDT struct {
	processCallback
	data *TDTData
	now  func() time.Time
}

func newTableTDT(now func() time.Time) *TableTDT {
	return &TableTDT{now: now}
}

// Reset drops the decoded time
func (t *TableTDT) Reset() {
	t.data = nil
}

// Data returns the last decoded table or nil
func (t *TableTDT) Data() *TDTData {
	return t.data
}

// Time returns the UTC time carried by the last decoded table
func (t *TableTDT) Time() (time.Time, error) {
	if t.data == nil {
		return time.Time{}, fmt.Errorf("tssi: no TDT: %w", ErrNotFound)
	}
	return t.data.UTCTime, nil
}

// SnapshotTime returns the wall clock time at which the last table has been decoded
func (t *TableTDT) SnapshotTime() (time.Time, error) {
	if t.data == nil {
		return time.Time{}, fmt.Errorf("tssi: no TDT: %w", ErrNotFound)
	}
	return t.data.SnapshotTime, nil
}

// decode decodes a TDT or TOT section
func (t *TableTDT) decode(s *Section) (published bool, err error) {
	if s.Header.TableID != PSITableIDTDT && s.Header.TableID != PSITableIDTOT {
		err = fmt.Errorf("tssi: table id 0x%x on TDT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	}

	// Parse
	d := &TDTData{
		SnapshotTime: t.now(),
		TableID:      s.Header.TableID,
	}
	i := astikit.NewBytesIterator(s.Body())
	if d.UTCTime, err = parseDVBTime(i); err != nil {
		err = fmt.Errorf("tssi: parsing DVB time failed: %w", err)
		return
	}
	if d.TableID == PSITableIDTOT {
		if d.Descriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
			err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
			return
		}
	}

	// Publish
	t.data = d
	t.notify()
	published = true
	return
}
