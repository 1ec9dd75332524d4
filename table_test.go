package tssi

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdtBody(originalNetworkID uint16, services ...[]byte) []byte {
	bs := binary.BigEndian.AppendUint16(nil, originalNetworkID)
	bs = append(bs, 0xff)
	for _, s := range services {
		bs = append(bs, s...)
	}
	return bs
}

// sdtService builds a service entry: running status 4, EIT present/following only
func sdtService(serviceID uint16, freeCA bool, ds ...[]byte) []byte {
	bs := binary.BigEndian.AppendUint16(nil, serviceID)
	bs = append(bs, 0xfd)
	loop := descriptorLoop(ds...)
	loop[0] = 4<<5 | loop[0]&0xf
	if freeCA {
		loop[0] |= 0x10
	}
	return append(bs, loop...)
}

func TestTableSDT(t *testing.T) {
	tb := &TableSDT{}
	var count int
	tb.SetProcessCallback(func() { count++ })

	// Multi section actual sub-table
	s0 := longSection(PSITableIDSDTVariant1, 0x10, 2, 0, 1, sdtBody(0x1, sdtService(1, false, serviceDescriptor(1, "Provider", "One"))))
	s1 := longSection(PSITableIDSDTVariant1, 0x10, 2, 1, 1, sdtBody(0x1, sdtService(2, true), sdtService(3, false)))
	published, err := tb.decode(mustParseSection(t, s1))
	require.NoError(t, err)
	assert.True(t, published)
	published, err = tb.decode(mustParseSection(t, s0))
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 2, count)

	// Sections are ordered by section number
	require.Equal(t, 3, tb.ServiceListLength())
	for idx, id := range []uint16{1, 2, 3} {
		s, err := tb.Service(idx)
		require.NoError(t, err)
		assert.Equal(t, id, s.ServiceID)
		assert.True(t, s.Actual)
		assert.Equal(t, uint16(0x10), s.TransportStreamID)
		assert.Equal(t, uint16(0x1), s.OriginalNetworkID)
		assert.Equal(t, uint8(4), s.RunningStatus)
		assert.True(t, s.HasEITPresentFollowing)
		assert.False(t, s.HasEITSchedule)
	}
	s, err := tb.ServiceByID(2)
	require.NoError(t, err)
	assert.True(t, s.HasFreeCSAMode)
	s, err = tb.ServiceByID(1)
	require.NoError(t, err)
	d, err := s.Descriptors.DescriptorByTag(DescriptorTagService)
	require.NoError(t, err)
	require.NotNil(t, d.Service)
	assert.Equal(t, "Provider", d.Service.ProviderName())
	assert.Equal(t, "One", d.Service.ServiceName())
	_, err = tb.ServiceByID(4)
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate
	published, err = tb.decode(mustParseSection(t, s0))
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, 2, count)

	// Other sub-table, listed after the actual one
	other := longSection(PSITableIDSDTVariant2, 0x05, 0, 0, 0, sdtBody(0x2, sdtService(9, false)))
	published, err = tb.decode(mustParseSection(t, other))
	require.NoError(t, err)
	assert.True(t, published)
	require.Equal(t, 4, tb.ServiceListLength())
	s, err = tb.Service(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), s.ServiceID)
	assert.False(t, s.Actual)

	// New version drops the previous sections of the sub-table
	published, err = tb.decode(mustParseSection(t, longSection(PSITableIDSDTVariant1, 0x10, 3, 0, 0, sdtBody(0x1, sdtService(7, false)))))
	require.NoError(t, err)
	assert.True(t, published)
	var ids []uint16
	for _, s := range tb.Data().Services {
		ids = append(ids, s.ServiceID)
	}
	assert.Equal(t, []uint16{7, 9}, ids)

	// BAT is skipped
	published, err = tb.decode(mustParseSection(t, longSection(PSITableIDBAT, 0x1, 0, 0, 0, []byte{0xf0, 0x00, 0xf0, 0x00})))
	require.NoError(t, err)
	assert.False(t, published)

	tb.Reset()
	assert.Nil(t, tb.Data())
	assert.Zero(t, tb.ServiceListLength())
}

func eitEvent(id uint16, start time.Time, duration []byte, ds ...[]byte) []byte {
	bs := binary.BigEndian.AppendUint16(nil, id)
	bs = append(bs, dvbTime(start)...)
	bs = append(bs, duration...)
	loop := descriptorLoop(ds...)
	loop[0] = 1<<5 | loop[0]&0xf
	return append(bs, loop...)
}

func TestTableEIT(t *testing.T) {
	tb := &TableEIT{}
	var count int
	tb.SetProcessCallback(func() { count++ })
	start := time.Date(2024, 3, 10, 20, 15, 0, 0, time.UTC)

	header := []byte{0x00, 0x10, 0x00, 0x01, 0x01, 0x4e}
	shortEvent := descriptor(DescriptorTagShortEvent, 'e', 'n', 'g', 4, 'N', 'e', 'w', 's', 3, 'T', 'o', 'p')
	body := append(append([]byte{}, header...), eitEvent(1, start, []byte{0x01, 0x30, 0x00}, shortEvent)...)
	body = append(body, eitEvent(2, start.Add(90*time.Minute), []byte{0x00, 0x45, 0x00})...)
	s := longSection(PSITableIDEITStart, 0x0a, 5, 0, 1, body)

	published, err := tb.decode(mustParseSection(t, s))
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 1, count)

	d := tb.Data()
	require.NotNil(t, d)
	assert.Equal(t, uint16(0x0a), d.ServiceID)
	assert.Equal(t, uint16(0x10), d.TransportStreamID)
	assert.Equal(t, uint16(0x01), d.OriginalNetworkID)
	assert.Equal(t, uint8(1), d.SegmentLastSectionNumber)
	assert.Equal(t, uint8(0x4e), d.LastTableID)
	assert.Equal(t, uint8(5), d.VersionNumber)
	require.Equal(t, 2, tb.EventListLength())

	e, err := tb.Event(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), e.EventID)
	assert.Equal(t, start, e.StartTime)
	assert.Equal(t, 90*time.Minute, e.Duration)
	assert.Equal(t, uint8(1), e.RunningStatus)
	dd, err := e.Descriptors.DescriptorByTag(DescriptorTagShortEvent)
	require.NoError(t, err)
	require.NotNil(t, dd.ShortEvent)
	assert.Equal(t, "News", dd.ShortEvent.Name())
	assert.Equal(t, [3]byte{'e', 'n', 'g'}, dd.ShortEvent.Language)

	e, err = tb.Event(1)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, e.Duration)
	_, err = tb.Event(2)
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate
	published, err = tb.decode(mustParseSection(t, s))
	require.NoError(t, err)
	assert.False(t, published)

	// Only the latest section is kept
	body = append(append([]byte{}, header...), eitEvent(3, start, []byte{0x00, 0x01, 0x00})...)
	published, err = tb.decode(mustParseSection(t, longSection(PSITableIDEITStart, 0x0a, 5, 1, 1, body)))
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 1, tb.EventListLength())
	assert.Equal(t, uint8(1), tb.Data().SectionNumber)

	// Undefined start time
	body = append(append([]byte{}, header...), 0x00, 0x04, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x10, 0xf0, 0x00)
	_, err = tb.decode(mustParseSection(t, longSection(PSITableIDEITStart+1, 0x0a, 0, 0, 0, body)))
	require.NoError(t, err)
	e, err = tb.Event(0)
	require.NoError(t, err)
	assert.True(t, e.StartTime.IsZero())
	assert.Equal(t, 10*time.Second, e.Duration)

	// Truncated event
	_, err = tb.decode(mustParseSection(t, longSection(PSITableIDEITStart, 0x0b, 0, 0, 0, append(header, 0x00, 0x01, 0x02))))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestTableNIT(t *testing.T) {
	tb := &TableNIT{}
	_, err := tb.NetworkID()
	assert.ErrorIs(t, err, ErrNotFound)

	networkName := descriptor(DescriptorTagNetworkName, 'N', 'e', 't')
	body := descriptorLoop(networkName)
	var streams []byte
	for _, ts := range []uint16{0x10, 0x11} {
		streams = binary.BigEndian.AppendUint16(streams, ts)
		streams = binary.BigEndian.AppendUint16(streams, 0x1)
		streams = append(streams, descriptorLoop()...)
	}
	body = append(body, 0xf0|uint8(len(streams)>>8), uint8(len(streams)))
	body = append(body, streams...)

	published, err := tb.decode(mustParseSection(t, longSection(PSITableIDNITVariant1, 0x3001, 1, 0, 0, body)))
	require.NoError(t, err)
	assert.True(t, published)
	id, err := tb.NetworkID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3001), id)
	ds, err := tb.CommonDescriptors()
	require.NoError(t, err)
	d, err := ds.DescriptorByTag(DescriptorTagNetworkName)
	require.NoError(t, err)
	assert.Equal(t, "Net", d.NetworkName.String())
	require.Equal(t, 2, tb.NetworkListLength())
	ts, err := tb.TransportStream(1)
	require.NoError(t, err)
	assert.Equal(t, NITDataTransportStream{
		OriginalNetworkID:    0x1,
		TransportDescriptors: &DescriptorList{},
		TransportStreamID:    0x11,
	}, ts)

	// Other networks are ignored
	published, err = tb.decode(mustParseSection(t, longSection(PSITableIDNITVariant2, 0x3002, 1, 0, 0, body)))
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, uint16(0x3001), tb.Data().NetworkID)

	// Truncated transport stream loop
	body = append(descriptorLoop(), 0xf0, 0x08, 0x00, 0x10)
	_, err = tb.decode(mustParseSection(t, longSection(PSITableIDNITVariant1, 0x3001, 2, 0, 0, body)))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, uint8(1), tb.Data().VersionNumber)

	// A network coming back with its previous version replaces the one in between
	body = append(descriptorLoop(networkName), 0xf0, 0x00)
	for _, id := range []uint16{0x3002, 0x3001} {
		published, err = tb.decode(mustParseSection(t, longSection(PSITableIDNITVariant1, id, 1, 0, 0, body)))
		require.NoError(t, err)
		assert.True(t, published)
		assert.Equal(t, id, tb.Data().NetworkID)
	}
	assert.Zero(t, tb.NetworkListLength())
}

func TestTableTDT(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := newTableTDT(func() time.Time { return now })
	var count int
	tb.SetProcessCallback(func() { count++ })
	_, err := tb.Time()
	assert.ErrorIs(t, err, ErrNotFound)

	// TDT, published each time
	utc := time.Date(1993, 10, 13, 12, 45, 0, 0, time.UTC)
	s := mustParseSection(t, shortSection(PSITableIDTDT, dvbTime(utc), false))
	for range 2 {
		published, err := tb.decode(s)
		require.NoError(t, err)
		assert.True(t, published)
	}
	assert.Equal(t, 2, count)
	v, err := tb.Time()
	require.NoError(t, err)
	assert.Equal(t, utc, v)
	v, err = tb.SnapshotTime()
	require.NoError(t, err)
	assert.Equal(t, now, v)
	assert.Nil(t, tb.Data().Descriptors)

	// TOT
	offset := []byte{'F', 'R', 'A', 0x02, 0x01, 0x00}
	offset = append(offset, dvbTime(time.Date(1994, 3, 27, 1, 0, 0, 0, time.UTC))...)
	offset = append(offset, 0x02, 0x00)
	body := append(dvbTime(utc), descriptorLoop(descriptor(DescriptorTagLocalTimeOffset, offset...))...)
	_, err = tb.decode(mustParseSection(t, shortSection(PSITableIDTOT, body, true)))
	require.NoError(t, err)
	d := tb.Data()
	assert.Equal(t, PSITableIDTOT, d.TableID)
	lto, err := d.Descriptors.DescriptorByTag(DescriptorTagLocalTimeOffset)
	require.NoError(t, err)
	if diff := cmp.Diff(&DescriptorLocalTimeOffset{Items: []DescriptorLocalTimeOffsetItem{{
		CountryCode:     [3]byte{'F', 'R', 'A'},
		LocalTimeOffset: time.Hour,
		NextTimeOffset:  2 * time.Hour,
		TimeOfChange:    time.Date(1994, 3, 27, 1, 0, 0, 0, time.UTC),
	}}}, lto.LocalTimeOffset); diff != "" {
		t.Errorf("local time offset mismatch (-want +got):\n%s", diff)
	}

	// Truncated time
	_, err = tb.decode(mustParseSection(t, shortSection(PSITableIDTDT, []byte{0xc0, 0x79}, false)))
	assert.ErrorIs(t, err, ErrShortBuffer)

	tb.Reset()
	assert.Nil(t, tb.Data())
}

func TestTableAIT(t *testing.T) {
	tb := &TableAIT{}

	name := descriptor(DescriptorTagApplicationName, 'e', 'n', 'g', 3, 'A', 'p', 'p')
	body := descriptorLoop()
	app := []byte{0x00, 0x00, 0x00, 0x0a, 0x00, 0x01, ApplicationControlCodeAutostart}
	app = append(app, descriptorLoop(name)...)
	body = append(body, 0xf0|uint8(len(app)>>8), uint8(len(app)))
	body = append(body, app...)

	published, err := tb.decode(mustParseSection(t, longSection(PSITableIDAIT, 0x8010, 1, 0, 0, body)))
	require.NoError(t, err)
	assert.True(t, published)
	d := tb.Data()
	assert.Equal(t, uint16(0x10), d.ApplicationType)
	assert.True(t, d.TestApplicationFlag)
	assert.Equal(t, 0, d.CommonDescriptors.Length())
	require.Equal(t, 1, tb.ApplicationListLength())
	a, err := tb.Application(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0a), a.OrganisationID)
	assert.Equal(t, uint16(1), a.ApplicationID)
	assert.Equal(t, uint8(ApplicationControlCodeAutostart), a.ApplicationControlCode)

	// Tag 0x01 is an application name in the AIT scope
	dd, err := a.Descriptors.DescriptorByTag(DescriptorTagApplicationName)
	require.NoError(t, err)
	require.NotNil(t, dd.ApplicationName)
	require.Len(t, dd.ApplicationName.Items, 1)
	assert.Equal(t, "App", dd.ApplicationName.Items[0].String())

	// Duplicate
	published, err = tb.decode(mustParseSection(t, longSection(PSITableIDAIT, 0x8010, 1, 0, 0, body)))
	require.NoError(t, err)
	assert.False(t, published)

	_, err = tb.Application(1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTablePMTVersions(t *testing.T) {
	tb := &TablePMT{}
	pmt := func(programNumber uint16, version uint8, pids ...uint16) *Section {
		body := append([]byte{0xe1, 0x00}, descriptorLoop()...)
		for _, pid := range pids {
			body = append(body, uint8(StreamTypeH264Video), 0xe0|uint8(pid>>8), uint8(pid))
			body = append(body, descriptorLoop()...)
		}
		return mustParseSection(t, longSection(PSITableIDPMT, programNumber, version, 0, 0, body))
	}

	_, err := tb.decode(pmt(1, 0, 0x101))
	require.NoError(t, err)
	_, err = tb.decode(pmt(2, 0, 0x201, 0x202))
	require.NoError(t, err)
	first, err := tb.Program(0)
	require.NoError(t, err)

	// A new version replaces the program in place
	_, err = tb.decode(pmt(1, 1, 0x103))
	require.NoError(t, err)
	require.Equal(t, 2, tb.ProgramListLength())
	p, err := tb.Program(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), p.ProgramNumber)
	assert.Equal(t, uint8(1), p.VersionNumber)
	assert.Equal(t, uint16(0x103), p.ElementaryStreams[0].ElementaryPID)
	assert.Equal(t, uint16(0x101), first.ElementaryStreams[0].ElementaryPID)

	// Next tables are ignored
	next := pmt(1, 2, 0x104)
	next.Syntax.CurrentNextIndicator = false
	published, err := tb.decode(next)
	require.NoError(t, err)
	assert.False(t, published)

	// Wrong table id
	_, err = tb.decode(mustParseSection(t, patSection(1, 0)))
	assert.ErrorIs(t, err, ErrUnexpectedTableID)
}

func TestVersionTracker(t *testing.T) {
	var vt versionTracker[uint16, string]
	assert.False(t, vt.isCommitted(1, sectionVersion{number: 0, version: 3}))
	assert.Equal(t, []string{"b"}, vt.commit(1, sectionVersion{number: 1, version: 3}, "b"))
	assert.Equal(t, []string{"a", "b"}, vt.commit(1, sectionVersion{number: 0, version: 3}, "a"))
	assert.True(t, vt.isCommitted(1, sectionVersion{number: 0, version: 3}))
	assert.False(t, vt.isCommitted(2, sectionVersion{number: 0, version: 3}))
	assert.False(t, vt.isCommitted(1, sectionVersion{number: 0, version: 4}))
	assert.Equal(t, []string{"c"}, vt.commit(1, sectionVersion{number: 0, version: 4}, "c"))
	assert.False(t, vt.isCommitted(1, sectionVersion{number: 1, version: 3}))
	vt.reset()
	assert.False(t, vt.isCommitted(1, sectionVersion{number: 0, version: 4}))
}
