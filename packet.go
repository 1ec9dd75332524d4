package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// Scrambling Controls
const (
	ScramblingControlNotScrambled         = 0
	ScramblingControlReservedForFutureUse = 1
	ScramblingControlScrambledWithEvenKey = 2
	ScramblingControlScrambledWithOddKey  = 3
)

const (
	MpegTsPacketSize       = 188
	mpegTsPacketHeaderSize = 4
	pcrBytesSize           = 6
	syncByte               = '\x47'
)

// Packet represents a packet
// https://en.wikipedia.org/wiki/MPEG_transport_stream
type Packet struct {
	Header          PacketHeader
	AdaptationField *PacketAdaptationField
	Payload         []byte // This is only the payload content
}

// PacketHeader represents a packet header
type PacketHeader struct {
	ContinuityCounter          uint8 // Sequence number of payload packets (0x00 to 0x0F) within each stream (except PID 8191)
	HasAdaptationField         bool
	HasPayload                 bool
	PayloadUnitStartIndicator  bool   // Set when a PES, PSI, or DVB-MIP packet begins immediately following the header.
	PID                        uint16 // Packet Identifier, describing the payload data.
	TransportErrorIndicator    bool   // Set when a demodulator can't correct errors from FEC data; indicating the packet is corrupt.
	TransportPriority          bool   // Set when the current packet has a higher priority than other packets with the same PID.
	TransportScramblingControl uint8
}

// PacketAdaptationField represents a packet adaptation field
type PacketAdaptationField struct {
	AdaptationExtensionField          *PacketAdaptationExtensionField
	OPCR                              ClockReference // Original Program clock reference. Helps when one TS is copied into another
	PCR                               ClockReference // Program clock reference
	TransportPrivateData              []byte
	TransportPrivateDataLength        uint8
	Length                            uint8
	StuffingLength                    uint8
	SpliceCountdown                   uint8 // Indicates how many TS packets from this one a splicing point occurs (Two's complement signed; may be negative)
	DiscontinuityIndicator            bool  // Set if current TS packet is in a discontinuity state with respect to either the continuity counter or the program clock reference
	RandomAccessIndicator             bool  // Set when the stream may be decoded without errors from this point
	ElementaryStreamPriorityIndicator bool  // Set when this stream should be considered "high priority"
	HasPCR                            bool
	HasOPCR                           bool
	HasSplicingCountdown              bool
	HasTransportPrivateData           bool
	HasAdaptationExtensionField       bool
}

// PacketAdaptationExtensionField represents a packet adaptation extension field
type PacketAdaptationExtensionField struct {
	DTSNextAccessUnit      ClockReference // The PES DTS of the splice point.
	PiecewiseRate          uint32         // The rate of the stream, measured in 188-byte packets, to define the end-time of the LTW.
	LegalTimeWindowOffset  uint16         // Extra information for rebroadcasters to determine the state of buffers when packets may be missing.
	LegalTimeWindowIsValid bool
	HasLegalTimeWindow     bool
	HasPiecewiseRate       bool
	HasSeamlessSplice      bool
	Length                 uint8
	SpliceType             uint8 // Indicates the parameters of the H.262 splice.
}

// hasDiscontinuityIndicator checks whether the packet signals an expected discontinuity
func (p *Packet) hasDiscontinuityIndicator() bool {
	return p.Header.HasAdaptationField && p.AdaptationField != nil && p.AdaptationField.DiscontinuityIndicator
}

// parse parses a packet. bs must hold exactly one packet and stays referenced by the payload.
func (p *Packet) parse(bs []byte) (err error) {
	*p = Packet{}
	i := astikit.NewBytesIterator(bs)

	// Get next byte
	if b, errByte := i.NextByte(); errByte != nil || b != syncByte {
		return ErrPacketMustStartWithASyncByte
	}
	offsetStart := i.Offset()

	// Parse header
	if err = p.Header.parse(i); err != nil {
		return fmt.Errorf("tssi: parsing packet header failed: %w", err)
	}

	// Parse adaptation field
	if p.Header.HasAdaptationField {
		p.AdaptationField = &PacketAdaptationField{}
		if err = p.AdaptationField.parse(i); err != nil {
			return fmt.Errorf("tssi: parsing packet adaptation field failed: %w", err)
		}
	}

	// Build payload
	if p.Header.HasPayload {
		offset := p.payloadOffset(offsetStart)
		if offset > len(bs) {
			return fmt.Errorf("tssi: adaptation field length %d overflows packet", p.AdaptationField.Length)
		}
		i.Seek(offset)
		if p.Payload, err = i.NextBytesNoCopy(len(bs) - offset); err != nil {
			return fmt.Errorf("tssi: fetching next bytes failed: %w", err)
		}
	}
	return nil
}

// payloadOffset returns the payload offset
func (p *Packet) payloadOffset(offsetStart int) (offset int) {
	offset = offsetStart + 3
	if p.Header.HasAdaptationField {
		offset += 1 + int(p.AdaptationField.Length)
	}
	return
}

// parse parses the packet header
func (ph *PacketHeader) parse(i *astikit.BytesIterator) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	b := bs[2]
	ph.TransportScramblingControl = b >> 6 & 0x3
	ph.HasAdaptationField = b&0x20 > 0
	ph.HasPayload = b&0x10 > 0
	ph.ContinuityCounter = b & 0xf
	b = bs[0]
	ph.TransportErrorIndicator = b&0x80 > 0
	ph.PayloadUnitStartIndicator = b&0x40 > 0
	ph.TransportPriority = b&0x20 > 0
	ph.PID = binary.BigEndian.Uint16(bs[:2]) & 0x1fff
	return
}

// parse parses the packet adaptation field
func (af *PacketAdaptationField) parse(i *astikit.BytesIterator) (err error) {
	// Get next byte
	var b byte
	if af.Length, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Sanity check, there are 183 bytes left after the length
	if af.Length > MpegTsPacketSize-mpegTsPacketHeaderSize-1 {
		err = fmt.Errorf("tssi: adaptation field length %d is invalid", af.Length)
		return
	}

	afStartOffset := i.Offset()

	// Valid length
	if af.Length > 0 {
		// Get next byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}

		// Flags
		af.DiscontinuityIndicator = b&0x80 > 0
		af.RandomAccessIndicator = b&0x40 > 0
		af.ElementaryStreamPriorityIndicator = b&0x20 > 0
		af.HasPCR = b&0x10 > 0
		af.HasOPCR = b&0x08 > 0
		af.HasSplicingCountdown = b&0x04 > 0
		af.HasTransportPrivateData = b&0x02 > 0
		af.HasAdaptationExtensionField = b&0x01 > 0

		// PCR
		if af.HasPCR {
			if err = af.PCR.parsePCR(i); err != nil {
				err = fmt.Errorf("tssi: parsing PCR failed: %w", err)
				return
			}
		}

		// OPCR
		if af.HasOPCR {
			if err = af.OPCR.parsePCR(i); err != nil {
				err = fmt.Errorf("tssi: parsing OPCR failed: %w", err)
				return
			}
		}

		// Splicing countdown
		if af.HasSplicingCountdown {
			if af.SpliceCountdown, err = i.NextByte(); err != nil {
				err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
				return
			}
		}

		// Transport private data
		if af.HasTransportPrivateData {
			// Length
			if af.TransportPrivateDataLength, err = i.NextByte(); err != nil {
				err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
				return
			}

			// Data
			if af.TransportPrivateDataLength > 0 {
				if af.TransportPrivateData, err = i.NextBytesNoCopy(int(af.TransportPrivateDataLength)); err != nil {
					err = fmt.Errorf("tssi: fetching next bytes failed: %w", err)
					return
				}
			}
		}

		// Adaptation extension
		if af.HasAdaptationExtensionField {
			af.AdaptationExtensionField = &PacketAdaptationExtensionField{}
			if err = af.AdaptationExtensionField.parse(i); err != nil {
				err = fmt.Errorf("tssi: parsing extension field failed: %w", err)
				return
			}
		}
	}

	if used := i.Offset() - afStartOffset; used <= int(af.Length) {
		af.StuffingLength = af.Length - uint8(used)
	} else {
		err = fmt.Errorf("tssi: adaptation field content overflows its length %d", af.Length)
	}
	return
}

func (afe *PacketAdaptationExtensionField) parse(i *astikit.BytesIterator) (err error) {
	// Length
	if afe.Length, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	if afe.Length > 0 {
		offsetEnd := i.Offset() + int(afe.Length)

		// Get next byte
		var b byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}

		// Basic
		afe.HasLegalTimeWindow = b&0x80 > 0
		afe.HasPiecewiseRate = b&0x40 > 0
		afe.HasSeamlessSplice = b&0x20 > 0

		// Legal time window
		if afe.HasLegalTimeWindow {
			var bs []byte
			if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
				err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
				return
			}
			afe.LegalTimeWindowIsValid = bs[0]&0x80 > 0
			afe.LegalTimeWindowOffset = binary.BigEndian.Uint16(bs) & 0x7fff
		}

		// Piecewise rate
		if afe.HasPiecewiseRate {
			var bs []byte
			if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
				err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
				return
			}
			afe.PiecewiseRate = uint32(bs[0]&0x3f)<<16 | uint32(bs[1])<<8 | uint32(bs[2])
		}

		// Seamless splice
		if afe.HasSeamlessSplice {
			var bs []byte
			if bs, err = i.NextBytesNoCopy(5); err != nil || len(bs) < 5 {
				err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
				return
			}

			// Splice type
			afe.SpliceType = bs[0] & 0xf0 >> 4

			// DTS Next access unit
			afe.DTSNextAccessUnit = newClockReference(int64(bs[0])>>1&0x7<<30|
				int64(bs[1])<<22|
				int64(bs[2])>>1<<15|
				int64(bs[3])<<7|
				int64(bs[4])>>1, 0)
		}

		i.Seek(offsetEnd)
	}
	return
}

// parsePCR parses a Program Clock Reference
// Program clock reference, stored as 33 bits base, 6 bits reserved, 9 bits extension.
func (cr *ClockReference) parsePCR(i *astikit.BytesIterator) (err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(pcrBytesSize); err != nil || len(bs) < pcrBytesSize {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	pcr := uint64(binary.BigEndian.Uint32(bs[:4]))<<16 | uint64(binary.BigEndian.Uint16(bs[4:6]))
	*cr = newClockReference(int64(pcr>>15), int64(pcr&0x1ff))
	return
}
