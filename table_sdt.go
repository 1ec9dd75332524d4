package tssi

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"maps"
	"slices"

	"github.com/asticode/go-astikit"
)

// Running statuses
const (
	RunningStatusNotRunning          = 1
	RunningStatusPausing             = 3
	RunningStatusRunning             = 4
	RunningStatusServiceOffAir       = 5
	RunningStatusStartsInAFewSeconds = 2
	RunningStatusUndefined           = 0
)

// SDTData represents an SDT data
// Page: 33 | Chapter: 5.2.3 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type SDTData struct {
	Services []SDTDataService
}

// SDTDataService represents an SDT data service
type SDTDataService struct {
	Actual                 bool // Described by the SDT of the actual transport stream
	Descriptors            *DescriptorList
	HasEITPresentFollowing bool // When true indicates that EIT present/following information for the service is present in the current TS.
	HasEITSchedule         bool // When true indicates that EIT schedule information for the service is present in the current TS.
	HasFreeCSAMode         bool // When true indicates that access to one or more streams may be controlled by a CA system.
	OriginalNetworkID      uint16
	RunningStatus          uint8
	ServiceID              uint16
	TransportStreamID      uint16
}

type sdtSubTableKey struct {
	tableID           PSITableID
	transportStreamID uint16
}

// TableSDT decodes the service description tables of the actual and other transport streams
type TableSDT struct {
	processCallback
	data      *SDTData
	subTables map[sdtSubTableKey][]SDTDataService
	versions  versionTracker[sdtSubTableKey, []SDTDataService]
}

// Reset drops the decoded services
func (t *TableSDT) Reset() {
	t.data = nil
	t.subTables = nil
	t.versions.reset()
}

// Data returns the last decoded services or nil
func (t *TableSDT) Data() *SDTData {
	return t.data
}

// ServiceListLength returns the number of services
func (t *TableSDT) ServiceListLength() int {
	if t.data == nil {
		return 0
	}
	return len(t.data.Services)
}

// Service returns the service at index idx. Services of the actual transport stream come first.
func (t *TableSDT) Service(idx int) (SDTDataService, error) {
	if idx < 0 || idx >= t.ServiceListLength() {
		return SDTDataService{}, fmt.Errorf("tssi: SDT service index %d: %w", idx, ErrNotFound)
	}
	return t.data.Services[idx], nil
}

// ServiceByID returns the first service with the given service id
func (t *TableSDT) ServiceByID(serviceID uint16) (SDTDataService, error) {
	if t.data != nil {
		for _, s := range t.data.Services {
			if s.ServiceID == serviceID {
				return s, nil
			}
		}
	}
	return SDTDataService{}, fmt.Errorf("tssi: SDT service id %d: %w", serviceID, ErrNotFound)
}

// decode decodes an SDT section. BAT sections share the PID and are skipped.
func (t *TableSDT) decode(s *Section) (published bool, err error) {
	switch {
	case s.Header.TableID == PSITableIDBAT:
		return
	case s.Header.TableID != PSITableIDSDTVariant1 && s.Header.TableID != PSITableIDSDTVariant2, s.Syntax == nil:
		err = fmt.Errorf("tssi: table id 0x%x on SDT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	case !s.Syntax.CurrentNextIndicator:
		return
	}

	// Already committed
	key := sdtSubTableKey{
		tableID:           s.Header.TableID,
		transportStreamID: s.Syntax.TableIDExtension,
	}
	v := s.sectionVersion()
	if t.versions.isCommitted(key, v) {
		return
	}

	// Parse
	var services []SDTDataService
	if services, err = parseSDTSection(astikit.NewBytesIterator(s.Body()), s.Header.TableID, s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing SDT section failed: %w", err)
		return
	}

	// Replace the sub-table
	subTables := maps.Clone(t.subTables)
	if subTables == nil {
		subTables = make(map[sdtSubTableKey][]SDTDataService)
	}
	subTables[key] = slices.Concat(t.versions.commit(key, v, services)...)
	t.subTables = subTables

	// Actual first, then by transport stream id
	keys := slices.Collect(maps.Keys(subTables))
	slices.SortFunc(keys, func(a, b sdtSubTableKey) int {
		if c := cmp.Compare(a.tableID, b.tableID); c != 0 {
			return c
		}
		return cmp.Compare(a.transportStreamID, b.transportStreamID)
	})
	data := &SDTData{}
	for _, k := range keys {
		data.Services = append(data.Services, subTables[k]...)
	}

	// Publish
	t.data = data
	t.notify()
	published = true
	return
}

// parseSDTSection parses an SDT section
func parseSDTSection(i *astikit.BytesIterator, tableID PSITableID, h *PSISectionSyntaxHeader) (services []SDTDataService, err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Original network ID, followed by a reserved byte
	originalNetworkID := binary.BigEndian.Uint16(bs)

	// Loop until end of section data is reached
	for i.HasBytesLeft() {
		// Get next bytes
		if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		s := SDTDataService{
			Actual:                 tableID == PSITableIDSDTVariant1,
			HasEITPresentFollowing: bs[2]&0x1 > 0,
			HasEITSchedule:         bs[2]&0x2 > 0,
			OriginalNetworkID:      originalNetworkID,
			ServiceID:              binary.BigEndian.Uint16(bs),
			TransportStreamID:      h.TableIDExtension,
		}

		// Running status and free CA mode share their byte with the descriptors loop length
		var b byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		s.RunningStatus = b >> 5
		s.HasFreeCSAMode = b&0x10 > 0
		i.Skip(-1)

		// Descriptors
		if s.Descriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
			err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
			return
		}
		services = append(services, s)
	}
	return
}
