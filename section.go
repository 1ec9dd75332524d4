package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// PSI table types
const (
	PSITableTypeAIT     = "AIT"
	PSITableTypeBAT     = "BAT"
	PSITableTypeDSMCC   = "DSMCC"
	PSITableTypeEIT     = "EIT"
	PSITableTypeNIT     = "NIT"
	PSITableTypeNull    = "Null"
	PSITableTypePAT     = "PAT"
	PSITableTypePMT     = "PMT"
	PSITableTypeSDT     = "SDT"
	PSITableTypeTDT     = "TDT"
	PSITableTypeTOT     = "TOT"
	PSITableTypeUnknown = "Unknown"
)

type PSITableID uint8

const (
	PSITableIDPAT PSITableID = 0x00
	PSITableIDCAT PSITableID = 0x01
	PSITableIDPMT PSITableID = 0x02

	PSITableIDDSMCCMessage    PSITableID = 0x3b // DSI and DII
	PSITableIDDSMCCDataBlock  PSITableID = 0x3c // DDB
	PSITableIDDSMCCDescriptor PSITableID = 0x3d

	PSITableIDNITVariant1 PSITableID = 0x40
	PSITableIDNITVariant2 PSITableID = 0x41
	PSITableIDSDTVariant1 PSITableID = 0x42
	PSITableIDSDTVariant2 PSITableID = 0x46

	PSITableIDBAT PSITableID = 0x4a

	PSITableIDEITStart PSITableID = 0x4e
	PSITableIDEITEnd   PSITableID = 0x6f

	PSITableIDTDT PSITableID = 0x70
	PSITableIDTOT PSITableID = 0x73
	PSITableIDAIT PSITableID = 0x74

	PSITableIDNull PSITableID = 0xff
)

// Maximum section length as allowed by the 12 bits field minus the two reserved values
const maxSectionLength = 4093

// Type returns the psi table type based on the table id
// Page: 28 | https://dvb.org/wp-content/uploads/2019/12/a038_tm1217r37_en300468v1_17_1_-_rev-134_-_si_specification.pdf
func (t PSITableID) Type() string {
	switch {
	case t == PSITableIDAIT:
		return PSITableTypeAIT
	case t == PSITableIDBAT:
		return PSITableTypeBAT
	case t.isDSMCC():
		return PSITableTypeDSMCC
	case t.isEIT():
		return PSITableTypeEIT
	case t == PSITableIDNITVariant1, t == PSITableIDNITVariant2:
		return PSITableTypeNIT
	case t == PSITableIDNull:
		return PSITableTypeNull
	case t == PSITableIDPAT:
		return PSITableTypePAT
	case t == PSITableIDPMT:
		return PSITableTypePMT
	case t == PSITableIDSDTVariant1, t == PSITableIDSDTVariant2:
		return PSITableTypeSDT
	case t == PSITableIDTDT:
		return PSITableTypeTDT
	case t == PSITableIDTOT:
		return PSITableTypeTOT
	default:
		return PSITableTypeUnknown
	}
}

func (t PSITableID) isEIT() bool {
	return t >= PSITableIDEITStart && t <= PSITableIDEITEnd
}

func (t PSITableID) isDSMCC() bool {
	return t >= PSITableIDDSMCCMessage && t <= PSITableIDDSMCCDescriptor
}

// Section represents a complete PSI section
// https://en.wikipedia.org/wiki/Program-specific_information
type Section struct {
	Header PSISectionHeader
	Syntax *PSISectionSyntaxHeader // Only set for sections using the long syntax
	CRC32  uint32                  // A checksum of the entire table excluding the pointer field, pointer filler bytes and the trailing CRC32.

	bs   []byte
	body []byte
}

// PSISectionHeader represents a PSI section header
type PSISectionHeader struct {
	SectionLength          uint16     // The number of bytes that follow for the syntax section (with CRC value) and/or table data. These bytes must not exceed a value of 1021.
	TableID                PSITableID // Table Identifier, that defines the structure of the syntax section and other contained data.
	SectionSyntaxIndicator bool       // A flag that indicates if the syntax section follows the section length. The PAT, PMT, and CAT all set this to 1.
	PrivateBit             bool       // The PAT, PMT, and CAT all set this to 0. Other tables set this to 1.
}

// PSISectionSyntaxHeader represents a PSI section syntax header
type PSISectionSyntaxHeader struct {
	CurrentNextIndicator bool   // Indicates if data is current in effect or is for future use. If the bit is flagged on, then the data is to be used at the present moment.
	LastSectionNumber    uint8  // This indicates which table is the last table in the sequence of tables.
	SectionNumber        uint8  // This is an index indicating which table this is in a related sequence of tables. The first table starts from 0.
	VersionNumber        uint8  // Syntax version number. Incremented when data is changed and wrapped around on overflow for values greater than 32.
	TableIDExtension     uint16 // Informational only identifier. The PAT uses this for the transport stream identifier and the PMT uses this for the Program number.
}

// Bytes returns the whole section, header and trailer included
func (s *Section) Bytes() []byte {
	return s.bs
}

// Body returns the table data, i.e. the bytes between the headers and the trailer
func (s *Section) Body() []byte {
	return s.body
}

// hasTrailer checks whether the section ends with a 4 bytes CRC32 or checksum
func (h PSISectionHeader) hasTrailer() bool {
	return h.hasCRC32() || h.TableID.isDSMCC()
}

// hasCRC32 checks whether the section carries a CRC32 that must be checked
func (h PSISectionHeader) hasCRC32() bool {
	return h.SectionSyntaxIndicator || h.TableID == PSITableIDTOT
}

// peekSectionHeader reads the 3 first bytes of a section
func peekSectionHeader(bs []byte) (h PSISectionHeader, ok bool) {
	if len(bs) < 3 {
		return
	}
	h.TableID = PSITableID(bs[0])
	val := binary.BigEndian.Uint16(bs[1:3])
	h.SectionSyntaxIndicator = val&0x8000 > 0
	h.PrivateBit = val&0x4000 > 0
	h.SectionLength = val & 0xfff
	ok = true
	return
}

// parseSection parses a complete section whose CRC32 has already been validated
func parseSection(bs []byte) (s *Section, err error) {
	// Create section
	s = &Section{bs: bs}
	i := astikit.NewBytesIterator(bs)

	// Header
	var ok bool
	if s.Header, ok = peekSectionHeader(bs); !ok {
		err = fmt.Errorf("tssi: parsing PSI section header failed: %w", ErrShortBuffer)
		return
	}
	i.Seek(3)

	// Offsets
	offsetEnd := 3 + int(s.Header.SectionLength)
	if offsetEnd > len(bs) {
		err = fmt.Errorf("tssi: section length %d overflows %d bytes: %w", s.Header.SectionLength, len(bs), ErrShortBuffer)
		return
	}
	offsetSectionsEnd := offsetEnd
	if s.Header.hasTrailer() {
		offsetSectionsEnd -= 4
	}

	// Syntax header
	if s.Header.SectionSyntaxIndicator {
		s.Syntax = &PSISectionSyntaxHeader{}
		if err = s.Syntax.parse(i); err != nil {
			err = fmt.Errorf("tssi: parsing PSI section syntax header failed: %w", err)
			return
		}
	}

	// Body
	if i.Offset() > offsetSectionsEnd {
		err = fmt.Errorf("tssi: section length %d is too small: %w", s.Header.SectionLength, ErrShortBuffer)
		return
	}
	s.body = bs[i.Offset():offsetSectionsEnd]

	// CRC32
	if s.Header.hasTrailer() {
		s.CRC32 = binary.BigEndian.Uint32(bs[offsetSectionsEnd:offsetEnd])
	}
	return
}

// parse parses a PSI section syntax header
func (h *PSISectionSyntaxHeader) parse(i *astikit.BytesIterator) (err error) {
	// Get next 5 bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(5); err != nil || len(bs) < 5 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Table ID extension
	h.TableIDExtension = binary.BigEndian.Uint16(bs)

	// Version number
	h.VersionNumber = bs[2] & 0x3f >> 1

	// Current/Next indicator
	h.CurrentNextIndicator = bs[2]&0x1 > 0

	// Section number
	h.SectionNumber = bs[3]

	// Last section number
	h.LastSectionNumber = bs[4]
	return
}

// sectionVersion returns the version and section number of a long syntax section
func (s *Section) sectionVersion() (v sectionVersion) {
	if s.Syntax != nil {
		v = sectionVersion{
			number:  s.Syntax.SectionNumber,
			version: s.Syntax.VersionNumber,
		}
	}
	return
}
