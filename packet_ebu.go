package tssi

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"slices"

	"github.com/asticode/go-astikit"
)

// EBU data unit ids
// Chapter: 4.4 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300472/01.04.01_60/en_300472v010401p.pdf
const (
	EbuDataUnitIDNonSubtitle = 0x02
	EbuDataUnitIDSubtitle    = 0x03
	EbuDataUnitIDStuffing    = 0xff
)

const (
	ebuDataUnitLength   = 44
	ebuFramingCode      = 0x27
	ebuHeaderDataLength = 32
	ebuMaxDisplayRow    = 25
	ebuTimeFillingPage  = 0xff
	ebuTimeHeaderLength = 8
	pesHeaderLength     = 6
)

// EbuPage represents a teletext page
// Chapter: 9.3.1 | Link: https://www.etsi.org/deliver/etsi_en/300700_300799/300706/01.02.01_60/en_300706v010201p.pdf
type EbuPage struct {
	EraseFlag               bool // C4
	HeaderData              []byte
	InhibitDisplayFlag      bool  // C10
	InterruptedSequenceFlag bool  // C9
	LanguageCode            uint8 // C12 to C14
	Lines                   []*EbuLine
	Magazine                uint8 // 1 to 8
	MagazineSerialFlag      bool  // C11
	NewsflashFlag           bool  // C5
	PageNumber              uint8
	SubPageNumber           uint16
	SubtitleFlag            bool // C6
	SuppressHeaderFlag      bool // C7
	UpdateIndicatorFlag     bool // C8
}

// LineListLength returns the number of lines received for the page
func (p *EbuPage) LineListLength() int {
	return len(p.Lines)
}

// Line returns the line at the given index
func (p *EbuPage) Line(idx int) (*EbuLine, error) {
	if idx < 0 || idx >= len(p.Lines) {
		return nil, fmt.Errorf("tssi: line %d: %w", idx, ErrNotFound)
	}
	return p.Lines[idx], nil
}

// EbuLine represents one row of a teletext page
type EbuLine struct {
	Data   []byte // Parity stripped characters
	Packet uint8  // Row number, 1 to 25
}

// Text returns the characters of the line, control characters being replaced by spaces
func (l *EbuLine) Text() string {
	return ebuText(l.Data)
}

type ebuPageKey struct {
	magazine      uint8
	pageNumber    uint8
	subPageNumber uint16
}

// PacketEBU reconstructs EBU teletext pages carried in PES packets
// Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300472/01.04.01_60/en_300472v010401p.pdf
type PacketEBU struct {
	processCallback
	currentTimeHeader []byte
	keys              []ebuPageKey // First seen order
	lastCompleted     *EbuPage
	open              [8]*EbuPage // Indexed by magazine - 1
	pages             map[ebuPageKey]*EbuPage
	pes               []byte
	pesStarted        bool
}

func (p *PacketEBU) Reset() {
	p.currentTimeHeader = nil
	p.keys = nil
	p.lastCompleted = nil
	p.open = [8]*EbuPage{}
	p.pages = nil
	p.abandon()
}

// abandon drops the PES being accumulated
func (p *PacketEBU) abandon() {
	p.pes = p.pes[:0]
	p.pesStarted = false
}

// LastCompletedPage returns the page the latest callback was fired for
func (p *PacketEBU) LastCompletedPage() (*EbuPage, error) {
	if p.lastCompleted == nil {
		return nil, fmt.Errorf("tssi: last completed page: %w", ErrNotFound)
	}
	return p.lastCompleted, nil
}

// PageListLength returns the number of distinct page keys seen since the last reset
func (p *PacketEBU) PageListLength() int {
	return len(p.keys)
}

// Page returns the latest page received for the key at the given index. The page may still be accumulating lines.
func (p *PacketEBU) Page(idx int) (*EbuPage, error) {
	if idx < 0 || idx >= len(p.keys) {
		return nil, fmt.Errorf("tssi: page %d: %w", idx, ErrNotFound)
	}
	return p.pages[p.keys[idx]], nil
}

// PageByKey returns the latest page received for the given key
func (p *PacketEBU) PageByKey(magazine, pageNumber uint8, subPageNumber uint16) (*EbuPage, error) {
	pg, ok := p.pages[ebuPageKey{magazine: magazine, pageNumber: pageNumber, subPageNumber: subPageNumber}]
	if !ok {
		return nil, fmt.Errorf("tssi: page %d/%02x/%04x: %w", magazine, pageNumber, subPageNumber, ErrNotFound)
	}
	return pg, nil
}

// CurrentTimeHeader returns the last 8 characters of the latest page header, usually the time of day
func (p *PacketEBU) CurrentTimeHeader() string {
	return ebuText(p.currentTimeHeader)
}

// decode accumulates the packet payload and processes every complete PES
func (p *PacketEBU) decode(pkt *Packet) (err error) {
	if !pkt.Header.HasPayload {
		return
	}

	// A new PES completes the previous one if its length was not known
	if pkt.Header.PayloadUnitStartIndicator {
		if p.pesStarted && len(p.pes) > 0 {
			err = p.processPES(p.pes)
		}
		p.pes = append(p.pes[:0], pkt.Payload...)
		p.pesStarted = true
	} else if p.pesStarted {
		p.pes = append(p.pes, pkt.Payload...)
	} else {
		return
	}

	// PES is complete
	if len(p.pes) >= pesHeaderLength {
		if l := int(binary.BigEndian.Uint16(p.pes[4:6])); l > 0 && len(p.pes) >= pesHeaderLength+l {
			errPES := p.processPES(p.pes[:pesHeaderLength+l])
			p.abandon()
			if err == nil {
				err = errPES
			}
		}
	}
	return
}

// processPES parses the PES header and the EBU data units of its payload
// Chapter: 4.3 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300472/01.04.01_60/en_300472v010401p.pdf
func (p *PacketEBU) processPES(bs []byte) (err error) {
	if len(bs) < pesHeaderLength+3 || bs[0] != 0 || bs[1] != 0 || bs[2] != 1 {
		return fmt.Errorf("tssi: invalid PES start code")
	}

	// Skip optional header
	offset := pesHeaderLength + 3 + int(bs[8])
	if offset >= len(bs) {
		return fmt.Errorf("tssi: PES header data length %d overflows PES: %w", bs[8], ErrShortBuffer)
	}

	// Data identifier
	if id := bs[offset]; id < 0x10 || id > 0x1f {
		return fmt.Errorf("tssi: unsupported data identifier 0x%x", id)
	}
	i := astikit.NewBytesIterator(bs[offset+1:])

	// Loop through data units
	for i.HasBytesLeft() {
		var h []byte
		if h, err = i.NextBytesNoCopy(2); err != nil || len(h) < 2 {
			return fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		}
		var unit []byte
		if unit, err = i.NextBytesNoCopy(int(h[1])); err != nil {
			return fmt.Errorf("tssi: fetching data unit failed: %w", err)
		}
		if (h[0] != EbuDataUnitIDNonSubtitle && h[0] != EbuDataUnitIDSubtitle) || len(unit) != ebuDataUnitLength {
			continue
		}
		if err = p.processDataUnit(unit); err != nil {
			return fmt.Errorf("tssi: processing data unit failed: %w", err)
		}
	}
	return
}

// processDataUnit processes one teletext packet. Its bits are transmitted in reverse order.
func (p *PacketEBU) processDataUnit(unit []byte) error {
	// Reverse bits, the first byte holds the field parity and line offset
	var bs [ebuDataUnitLength - 1]byte
	for idx := range bs {
		bs[idx] = bits.Reverse8(unit[idx+1])
	}
	if bs[0] != ebuFramingCode {
		return fmt.Errorf("tssi: invalid framing code 0x%x", bs[0])
	}

	// Magazine and packet address
	a0, ok0 := unhamming84(bs[1])
	a1, ok1 := unhamming84(bs[2])
	if !ok0 || !ok1 {
		return fmt.Errorf("tssi: uncorrectable packet address")
	}
	magazine := a0 & 0x7
	if magazine == 0 {
		magazine = 8
	}
	row := a1<<1 | a0>>3
	data := bs[3:]

	switch {
	case row == 0:
		return p.processHeader(magazine, data)
	case row <= ebuMaxDisplayRow:
		pg := p.open[magazine-1]
		if pg == nil {
			return nil
		}
		pg.Lines = append(pg.Lines, &EbuLine{
			Data:   decodeOddParity(data),
			Packet: row,
		})
	}
	return nil
}

// processHeader closes the open page(s) and opens the page announced by a page header
// Chapter: 9.3.1 | Link: https://www.etsi.org/deliver/etsi_en/300700_300799/300706/01.02.01_60/en_300706v010201p.pdf
func (p *PacketEBU) processHeader(magazine uint8, data []byte) error {
	// Unhamming
	var ns [8]byte
	for idx := range ns {
		var ok bool
		if ns[idx], ok = unhamming84(data[idx]); !ok {
			return fmt.Errorf("tssi: uncorrectable page header byte %d", idx)
		}
	}

	pg := &EbuPage{
		EraseFlag:               ns[3]&0x8 > 0,
		HeaderData:              decodeOddParity(data[8:]),
		InhibitDisplayFlag:      ns[6]&0x8 > 0,
		InterruptedSequenceFlag: ns[6]&0x4 > 0,
		LanguageCode:            ns[7] >> 1 & 0x7,
		Magazine:                magazine,
		MagazineSerialFlag:      ns[7]&0x1 > 0,
		NewsflashFlag:           ns[5]&0x4 > 0,
		PageNumber:              ns[1]<<4 | ns[0],
		SubPageNumber:           uint16(ns[5]&0x3)<<12 | uint16(ns[4])<<8 | uint16(ns[3]&0x7)<<4 | uint16(ns[2]),
		SubtitleFlag:            ns[5]&0x8 > 0,
		SuppressHeaderFlag:      ns[6]&0x1 > 0,
		UpdateIndicatorFlag:     ns[6]&0x2 > 0,
	}
	p.currentTimeHeader = pg.HeaderData[ebuHeaderDataLength-ebuTimeHeaderLength:]

	// Close open pages
	if pg.MagazineSerialFlag {
		for idx := range p.open {
			p.close(idx)
		}
	} else {
		p.close(int(magazine) - 1)
	}

	// Time filling headers don't open a page
	if pg.PageNumber == ebuTimeFillingPage {
		return nil
	}

	// Replace slot
	k := ebuPageKey{magazine: magazine, pageNumber: pg.PageNumber, subPageNumber: pg.SubPageNumber}
	if p.pages == nil {
		p.pages = make(map[ebuPageKey]*EbuPage)
	}
	if _, ok := p.pages[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.pages[k] = pg
	p.open[magazine-1] = pg
	return nil
}

func (p *PacketEBU) close(idx int) {
	pg := p.open[idx]
	if pg == nil {
		return
	}
	p.open[idx] = nil
	p.lastCompleted = pg
	p.notify()
}

// decodeOddParity strips parity bits, characters with a wrong parity become spaces
func decodeOddParity(bs []byte) []byte {
	o := make([]byte, len(bs))
	for idx, b := range bs {
		c, ok := oddParity(b)
		if !ok {
			c = ' '
		}
		o[idx] = c
	}
	return o
}

func ebuText(bs []byte) string {
	o := slices.Clone(bs)
	for idx, b := range o {
		if b < 0x20 {
			o[idx] = ' '
		}
	}
	return string(o)
}
