package tssi

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/require"
)

// longSection builds a section using the long syntax, CRC32 included
func longSection(tableID PSITableID, tableIDExtension uint16, version, sectionNumber, lastSectionNumber uint8, body []byte) []byte {
	buf := &bytes.Buffer{}
	w := astikit.NewBitsWriter(astikit.BitsWriterOptions{Writer: buf})
	b := astikit.NewBitsWriterBatch(w)
	b.Write(uint8(tableID))
	b.Write(true) // Section syntax indicator
	b.Write(true) // Private bit
	b.Write("11") // Reserved
	b.WriteN(uint16(5+len(body)+4), 12)
	b.Write(tableIDExtension)
	b.Write("11") // Reserved
	b.WriteN(version, 5)
	b.Write(true) // Current next indicator
	b.Write(sectionNumber)
	b.Write(lastSectionNumber)
	b.Write(body)
	bs := buf.Bytes()
	return binary.BigEndian.AppendUint32(bs, computeCRC32(bs))
}

// shortSection builds a section using the short syntax, with a CRC32 if asked to
func shortSection(tableID PSITableID, body []byte, withCRC32 bool) []byte {
	l := len(body)
	if withCRC32 {
		l += 4
	}
	bs := []byte{uint8(tableID), 0x70 | uint8(l>>8), uint8(l)}
	bs = append(bs, body...)
	if withCRC32 {
		bs = binary.BigEndian.AppendUint32(bs, computeCRC32(bs))
	}
	return bs
}

// descriptorLoop prefixes descriptors with their 12 bits loop length
func descriptorLoop(ds ...[]byte) []byte {
	var l []byte
	for _, d := range ds {
		l = append(l, d...)
	}
	return append([]byte{0xf0 | uint8(len(l)>>8), uint8(len(l))}, l...)
}

func descriptor(tag DescriptorTag, body ...byte) []byte {
	return append([]byte{uint8(tag), uint8(len(body))}, body...)
}

func serviceDescriptor(serviceType uint8, provider, name string) []byte {
	body := []byte{serviceType, uint8(len(provider))}
	body = append(body, provider...)
	body = append(body, uint8(len(name)))
	body = append(body, name...)
	return descriptor(DescriptorTagService, body...)
}

// dvbTime encodes a time as 16 bits MJD followed by 6 BCD digits
func dvbTime(t time.Time) []byte {
	mjd := uint16(t.Sub(time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)) / (24 * time.Hour))
	return []byte{uint8(mjd >> 8), uint8(mjd), bcd(t.Hour()), bcd(t.Minute()), bcd(t.Second())}
}

func bcd(v int) uint8 {
	return uint8(v/10<<4 | v%10)
}

// packetizer splits payloads into packets keeping a continuity counter per PID
type packetizer struct {
	ccs map[uint16]uint8
}

func newPacketizer() *packetizer {
	return &packetizer{ccs: make(map[uint16]uint8)}
}

// packet builds one packet, short payloads are padded with adaptation field stuffing
func (pz *packetizer) packet(pid uint16, payloadUnitStart bool, payload []byte) []byte {
	cc := pz.ccs[pid]
	pz.ccs[pid] = (cc + 1) & 0xf
	return buildPacket(pid, cc, payloadUnitStart, payload)
}

func buildPacket(pid uint16, cc uint8, payloadUnitStart bool, payload []byte) []byte {
	bs := make([]byte, 0, MpegTsPacketSize)
	b1 := uint8(pid>>8) & 0x1f
	if payloadUnitStart {
		b1 |= 0x40
	}
	bs = append(bs, syncByte, b1, uint8(pid))
	if len(payload) >= MpegTsPacketSize-mpegTsPacketHeaderSize {
		bs = append(bs, 0x10|cc&0xf)
		return append(bs, payload[:MpegTsPacketSize-mpegTsPacketHeaderSize]...)
	}

	// Adaptation field stuffing
	bs = append(bs, 0x30|cc&0xf)
	afLength := MpegTsPacketSize - mpegTsPacketHeaderSize - 1 - len(payload)
	bs = append(bs, uint8(afLength))
	if afLength > 0 {
		bs = append(bs, 0x00)
		bs = append(bs, bytes.Repeat([]byte{0xff}, afLength-1)...)
	}
	return append(bs, payload...)
}

// split splits a payload unit into packets, the first one having the payload unit start indicator set
func (pz *packetizer) split(pid uint16, unit []byte) (bs []byte) {
	const size = MpegTsPacketSize - mpegTsPacketHeaderSize
	for first := true; first || len(unit) > 0; first = false {
		n := min(size, len(unit))
		bs = append(bs, pz.packet(pid, first, unit[:n])...)
		unit = unit[n:]
	}
	return
}

// sections packetizes sections sent back to back, behind a zero pointer field
func (pz *packetizer) sections(pid uint16, sections ...[]byte) []byte {
	unit := []byte{0x00}
	for _, s := range sections {
		unit = append(unit, s...)
	}
	return pz.split(pid, unit)
}

// pcrPacket builds a packet without payload carrying a PCR
func (pz *packetizer) pcrPacket(pid uint16, base uint64, extension uint16) []byte {
	v := base<<15 | 0x3f<<9 | uint64(extension&0x1ff)
	bs := []byte{syncByte, uint8(pid>>8) & 0x1f, uint8(pid), 0x20 | pz.ccs[pid]&0xf, 183, 0x10}
	bs = append(bs, uint8(v>>40), uint8(v>>32), uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v))
	return append(bs, bytes.Repeat([]byte{0xff}, MpegTsPacketSize-len(bs))...)
}

// patSection builds a PAT announcing program number -> PMT PID pairs
func patSection(tsid uint16, version uint8, programs ...uint16) []byte {
	var body []byte
	for idx := 0; idx+1 < len(programs); idx += 2 {
		body = binary.BigEndian.AppendUint16(body, programs[idx])
		body = binary.BigEndian.AppendUint16(body, 0xe000|programs[idx+1])
	}
	return longSection(PSITableIDPAT, tsid, version, 0, 0, body)
}

func mustParseSection(t *testing.T, bs []byte) *Section {
	t.Helper()
	s, err := parseSection(bs)
	require.NoError(t, err)
	return s
}
