package tssi

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserPAT(t *testing.T) {
	p := NewParser()
	var count int
	p.TablePAT().SetProcessCallback(func() { count++ })
	pz := newPacketizer()

	// Single section
	pat := patSection(0x1234, 3, 0, 0x10, 1, 0x100, 2, 0x200)
	assert.True(t, p.Process(pz.sections(PIDPAT, pat)))
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(1), p.PacketsProcessed())
	assert.Zero(t, p.ProcessingErrors())
	if diff := cmp.Diff(&PATData{
		HasNetworkPID: true,
		NetworkPID:    0x10,
		Programs: []PATProgram{
			{ProgramMapID: 0x100, ProgramNumber: 1},
			{ProgramMapID: 0x200, ProgramNumber: 2},
		},
		TransportStreamID: 0x1234,
		VersionNumber:     3,
	}, p.TablePAT().Data()); diff != "" {
		t.Errorf("PAT mismatch (-want +got):\n%s", diff)
	}
	tsid, err := p.TablePAT().TransportStreamID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), tsid)
	assert.Equal(t, 2, p.TablePAT().ProgramListLength())
	_, err = p.TablePAT().Program(2)
	assert.ErrorIs(t, err, ErrNotFound)

	// Same section again
	previous := p.TablePAT().Data()
	assert.True(t, p.Process(pz.sections(PIDPAT, pat)))
	assert.Equal(t, 1, count)
	assert.Zero(t, p.ProcessingErrors())
	assert.Same(t, previous, p.TablePAT().Data())

	// Corrupted section
	corrupted := patSection(0x1234, 4, 1, 0x300)
	corrupted[9] ^= 0x01
	assert.False(t, p.Process(pz.sections(PIDPAT, corrupted)))
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(1), p.ProcessingErrors())
	assert.Same(t, previous, p.TablePAT().Data())

	// New version
	assert.True(t, p.Process(pz.sections(PIDPAT, patSection(0x1234, 4, 1, 0x300))))
	assert.Equal(t, 2, count)
	assert.Equal(t, []PATProgram{{ProgramMapID: 0x300, ProgramNumber: 1}}, p.TablePAT().Data().Programs)
	assert.False(t, p.TablePAT().Data().HasNetworkPID)

	// Previously returned snapshot is left untouched
	assert.Len(t, previous.Programs, 2)
}

func TestParserPMT(t *testing.T) {
	p := NewParser()
	pz := newPacketizer()

	streams := []struct {
		descriptors int
		pid         uint16
		streamType  StreamType
	}{
		{descriptors: 0, pid: 0x101, streamType: StreamTypeH264Video},
		{descriptors: 2, pid: 0x102, streamType: StreamTypeMPEG1Audio},
		{descriptors: 1, pid: 0x103, streamType: StreamTypeMPEG2PacketizedData},
	}
	body := []byte{0xe1, 0x01}
	body = append(body, descriptorLoop(descriptor(DescriptorTagMaximumBitrate, 0xc0, 0x01, 0x00))...)
	for _, s := range streams {
		body = append(body, uint8(s.streamType), 0xe0|uint8(s.pid>>8), uint8(s.pid))
		var ds [][]byte
		for idx := 0; idx < s.descriptors; idx++ {
			ds = append(ds, descriptor(DescriptorTagISO639LanguageAndAudioType, 'f', 'r', 'a', 0x00))
		}
		body = append(body, descriptorLoop(ds...)...)
	}
	pmt := longSection(PSITableIDPMT, 7, 1, 0, 0, body)

	// PMT PIDs are unknown until the PAT is received
	assert.True(t, p.Process(pz.sections(0x100, pmt)))
	assert.Zero(t, p.TablePMT().ProgramListLength())

	// Learn PMT PID
	var count int
	p.TablePMT().SetProcessCallback(func() { count++ })
	assert.True(t, p.Process(pz.sections(PIDPAT, patSection(1, 0, 7, 0x100))))
	assert.True(t, p.Process(pz.sections(0x100, pmt)))
	assert.Equal(t, 1, count)
	assert.Zero(t, p.ProcessingErrors())

	// Round trip
	d, err := p.TablePMT().ProgramByNumber(7)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x101), d.PCRPID)
	assert.Equal(t, 1, d.ProgramDescriptors.Length())
	require.Len(t, d.ElementaryStreams, len(streams))
	for idx, s := range streams {
		es := d.ElementaryStreams[idx]
		assert.Equal(t, s.pid, es.ElementaryPID)
		assert.Equal(t, s.streamType, es.StreamType)
		assert.Equal(t, s.descriptors, es.ElementaryStreamDescriptors.Length())
	}
	_, err = p.TablePMT().ProgramByNumber(8)
	assert.ErrorIs(t, err, ErrNotFound)

	// PMT PID is forgotten once the PAT doesn't announce it anymore
	assert.True(t, p.Process(pz.sections(PIDPAT, patSection(1, 1, 8, 0x200))))
	assert.True(t, p.Process(pz.sections(0x100, longSection(PSITableIDPMT, 7, 2, 0, 0, body))))
	assert.Equal(t, 1, count)

	// So is the program it described
	assert.Zero(t, p.TablePMT().ProgramListLength())
	_, err = p.TablePMT().ProgramByNumber(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParserPATTransportStreamSwitch(t *testing.T) {
	p := NewParser()
	pz := newPacketizer()
	var count int
	p.TablePAT().SetProcessCallback(func() { count++ })

	// Same version for both transport streams
	patA := patSection(0xa, 0, 1, 0x100)
	assert.True(t, p.Process(pz.sections(PIDPAT, patA)))
	assert.True(t, p.Process(pz.sections(PIDPAT, patSection(0xb, 0, 2, 0x200))))
	assert.True(t, p.Process(pz.sections(PIDPAT, patA)))
	assert.Equal(t, 3, count)
	id, err := p.TablePAT().TransportStreamID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xa), id)

	// PMT PIDs are the ones of the returning transport stream
	assert.True(t, p.Process(pz.sections(0x200, longSection(PSITableIDPMT, 2, 0, 0, 0, []byte{0xe1, 0x01, 0xf0, 0x00}))))
	assert.True(t, p.Process(pz.sections(0x100, longSection(PSITableIDPMT, 1, 0, 0, 0, []byte{0xe1, 0x01, 0xf0, 0x00}))))
	require.Equal(t, 1, p.TablePMT().ProgramListLength())
	d, err := p.TablePMT().Program(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), d.ProgramNumber)
	assert.Zero(t, p.ProcessingErrors())
}

func TestParserFraming(t *testing.T) {
	pat := patSection(1, 0, 1, 0x100)

	t.Run("cross call buffering", func(t *testing.T) {
		p := NewParser()
		bs := newPacketizer().sections(PIDPAT, pat)
		assert.True(t, p.Process(bs[:100]))
		assert.Nil(t, p.TablePAT().Data())
		assert.True(t, p.Process(bs[100:150]))
		assert.True(t, p.Process(bs[150:]))
		assert.NotNil(t, p.TablePAT().Data())
		assert.Equal(t, uint64(1), p.PacketsProcessed())
		assert.Zero(t, p.ProcessingErrors())
	})

	t.Run("resync", func(t *testing.T) {
		p := NewParser()
		// The first sync byte isn't followed by another one a packet later
		garbage := make([]byte, 20)
		garbage[1] = syncByte
		bs := append(garbage, newPacketizer().sections(PIDPAT, pat)...)
		assert.False(t, p.Process(bs))
		assert.Equal(t, uint64(1), p.ProcessingErrors())
		assert.NotNil(t, p.TablePAT().Data())
	})

	t.Run("garbage only", func(t *testing.T) {
		p := NewParser()
		assert.False(t, p.Process(bytes.Repeat([]byte{0x01}, 500)))
		assert.Equal(t, uint64(1), p.ProcessingErrors())
		assert.Zero(t, p.PacketsProcessed())
	})

	t.Run("transport error indicator", func(t *testing.T) {
		p := NewParser()
		bs := newPacketizer().sections(PIDPAT, pat)
		bs[1] |= 0x80
		assert.False(t, p.Process(bs))
		assert.Equal(t, uint64(1), p.ProcessingErrors())
		assert.Nil(t, p.TablePAT().Data())
	})
}

func TestParserContinuity(t *testing.T) {
	// PAT spanning two packets
	var programs []uint16
	for idx := uint16(1); idx <= 60; idx++ {
		programs = append(programs, idx, 0x100+idx)
	}
	pat := patSection(1, 0, programs...)
	pz := newPacketizer()
	bs := pz.sections(PIDPAT, pat)
	require.Len(t, bs, 2*MpegTsPacketSize)
	first, second := bs[:MpegTsPacketSize], bs[MpegTsPacketSize:]

	t.Run("duplicate", func(t *testing.T) {
		p := NewParser()
		var count int
		p.TablePAT().SetProcessCallback(func() { count++ })
		assert.True(t, p.Process(slicesConcat(first, first, second)))
		assert.Equal(t, 1, count)
		assert.Zero(t, p.ProcessingErrors())
		assert.Equal(t, uint64(3), p.PacketsProcessed())
		assert.Len(t, p.TablePAT().Data().Programs, 60)
	})

	t.Run("jump", func(t *testing.T) {
		p := NewParser()
		lost := slicesConcat(second)
		lost[3] = lost[3]&0xf0 | (lost[3]+1)&0xf
		assert.False(t, p.Process(slicesConcat(first, lost)))
		assert.Equal(t, uint64(1), p.ProcessingErrors())
		assert.Nil(t, p.TablePAT().Data())

		// Accumulation restarts with the next payload unit start
		pz := newPacketizer()
		pz.ccs[PIDPAT] = 3
		assert.True(t, p.Process(pz.sections(PIDPAT, pat)))
		assert.Len(t, p.TablePAT().Data().Programs, 60)
		assert.Equal(t, uint64(1), p.ProcessingErrors())
	})

	t.Run("discontinuity indicator", func(t *testing.T) {
		p := NewParser()
		require.True(t, p.Process(first))
		pkt := buildPacket(PIDPAT, 9, true, append([]byte{0}, patSection(1, 1, 1, 0x100)...))
		pkt[5] |= 0x80
		assert.True(t, p.Process(pkt))
		assert.Zero(t, p.ProcessingErrors())
		assert.Equal(t, uint8(1), p.TablePAT().Data().VersionNumber)
	})
}

func slicesConcat(bss ...[]byte) (o []byte) {
	for _, bs := range bss {
		o = append(o, bs...)
	}
	return
}

func TestParserBindings(t *testing.T) {
	p := NewParser()
	assert.ErrorIs(t, p.SetPIDAIT(0x2000), ErrInvalidPID)
	assert.ErrorIs(t, p.SetPIDAIT(PIDNull), ErrInvalidPID)
	assert.ErrorIs(t, p.SetPIDAIT(PIDNIT), ErrInvalidPID)
	assert.ErrorIs(t, p.SetPIDEBU(PIDPAT), ErrInvalidPID)
	assert.NoError(t, p.SetPIDAIT(0x100))
	assert.NoError(t, p.SetPIDAIT(0x100))
	assert.ErrorIs(t, p.SetPIDDSMCC(0x100), ErrConflictingPID)
	assert.ErrorIs(t, p.SetPIDPCR(0x100), ErrConflictingPID)
	assert.NoError(t, p.SetPIDAIT(PIDNone))
	assert.NoError(t, p.SetPIDDSMCC(0x100))
	assert.NoError(t, p.SetPIDPCR(0x101))
	assert.NoError(t, p.SetPIDEBU(0x102))

	p = NewParser(ParserOptPIDs(0x100, 0x100, PIDNone, PIDNone))
	assert.Equal(t, uint16(0x100), p.pids[pidRoleAIT])
	assert.Equal(t, PIDNone, p.pids[pidRoleDSMCC])
}

func TestParserReset(t *testing.T) {
	p := NewParser(ParserOptPIDs(0x100, PIDNone, PIDNone, PIDNone))
	pz := newPacketizer()
	var count int
	p.TableAIT().SetProcessCallback(func() { count++ })
	ait := longSection(PSITableIDAIT, 0x0010, 0, 0, 0, slicesConcat(descriptorLoop(), []byte{0xf0, 0x00}))

	require.True(t, p.Process(pz.sections(PIDPAT, patSection(1, 0, 1, 0x200))))
	require.True(t, p.Process(pz.sections(0x100, ait)))
	assert.Equal(t, 1, count)
	assert.Len(t, p.PIDStats(), 2)

	p.Reset()
	assert.Zero(t, p.PacketsProcessed())
	assert.Empty(t, p.PIDStats())
	assert.Nil(t, p.TablePAT().Data())
	assert.Nil(t, p.TableAIT().Data())

	// Bindings and callbacks are kept
	require.True(t, p.Process(newPacketizer().sections(0x100, ait)))
	assert.Equal(t, 2, count)
	assert.NotNil(t, p.TableAIT().Data())
}

func TestParserTDT(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := NewParser(ParserOptNow(func() time.Time { return now }))
	utc := time.Date(2024, 4, 30, 21, 15, 42, 0, time.UTC)
	assert.True(t, p.Process(newPacketizer().sections(PIDTDT, shortSection(PSITableIDTDT, dvbTime(utc), false))))
	d := p.TableTDT().Data()
	require.NotNil(t, d)
	assert.Equal(t, utc, d.UTCTime)
	assert.Equal(t, now, d.SnapshotTime)
}

func TestParserPCR(t *testing.T) {
	p := NewParser(ParserOptPIDs(PIDNone, PIDNone, 0x101, PIDNone))
	var count int
	p.PacketPCR().SetProcessCallback(func() { count++ })
	pz := newPacketizer()

	_, ok := p.PacketPCR().PCR()
	assert.False(t, ok)

	assert.True(t, p.Process(pz.pcrPacket(0x101, 0, 0)))
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(0), p.PacketPCR().Value())
	_, ok = p.PacketPCR().PCR()
	assert.True(t, ok)

	assert.True(t, p.Process(pz.pcrPacket(0x101, 1, 0)))
	assert.Equal(t, 2, count)
	assert.Equal(t, uint64(300), p.PacketPCR().Value())

	assert.True(t, p.Process(pz.pcrPacket(0x101, 1<<32, 299)))
	assert.Equal(t, uint64(1<<32)*300+299, p.PacketPCR().Value())

	// Other PIDs are ignored
	assert.True(t, p.Process(pz.pcrPacket(0x102, 5, 0)))
	assert.Equal(t, 3, count)
}

func TestParserDispatchIgnoresOtherTables(t *testing.T) {
	p := NewParser()
	pz := newPacketizer()

	// A CAT on the PAT PID and a running status table on the TDT PID are not decoded
	assert.True(t, p.Process(pz.sections(PIDPAT, longSection(PSITableIDCAT, 0xffff, 0, 0, 0, nil))))
	assert.True(t, p.Process(pz.sections(PIDTDT, shortSection(0x71, []byte{0x00}, false))))
	assert.Nil(t, p.TablePAT().Data())
	assert.Nil(t, p.TableTDT().Data())
	assert.Zero(t, p.ProcessingErrors())

	// Several sections in one payload unit
	body := binary.BigEndian.AppendUint16(nil, 0x0001)
	body = append(body, 0xff)
	sdt := longSection(PSITableIDSDTVariant1, 1, 0, 0, 0, body)
	assert.True(t, p.Process(pz.sections(PIDPAT, patSection(1, 0, 1, 0x100), patSection(1, 1, 1, 0x200))))
	assert.Equal(t, uint8(1), p.TablePAT().Data().VersionNumber)
	assert.True(t, p.Process(pz.sections(PIDSDT, sdt)))
	assert.NotNil(t, p.TableSDT().Data())
}
