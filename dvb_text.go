package tssi

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// DVB character tables selected by the first byte of a text field
// Annex A | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
var dvbCharacterTables = map[byte]encoding.Encoding{
	0x01: charmap.ISO8859_5,
	0x02: charmap.ISO8859_6,
	0x03: charmap.ISO8859_7,
	0x04: charmap.ISO8859_8,
	0x05: charmap.ISO8859_9,
	0x06: charmap.ISO8859_10,
	0x07: charmap.Windows874, // ISO 8859-11
	0x09: charmap.ISO8859_13,
	0x0a: charmap.ISO8859_14,
	0x0b: charmap.ISO8859_15,
	0x11: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	0x12: korean.EUCKR,
	0x13: simplifiedchinese.GBK,
	0x14: traditionalchinese.Big5,
}

// Tables selected with the 0x10 prefix followed by the 16 bits ISO 8859 part number
var dvbISO8859Tables = map[uint16]encoding.Encoding{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	11: charmap.Windows874,
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
	16: charmap.ISO8859_16,
}

// There's no ISO 6937 codec available, its printable latin subset matches ISO 8859-1 closely enough
var dvbDefaultCharacterTable encoding.Encoding = charmap.ISO8859_1

// dvbCharacterTable returns the encoding selected by the text field as well as the text itself
func dvbCharacterTable(bs []byte) (encoding.Encoding, []byte) {
	if len(bs) == 0 || bs[0] >= 0x20 {
		return dvbDefaultCharacterTable, bs
	}
	switch bs[0] {
	case 0x10:
		if len(bs) < 3 {
			return dvbDefaultCharacterTable, nil
		}
		if e, ok := dvbISO8859Tables[uint16(bs[1])<<8|uint16(bs[2])]; ok {
			return e, bs[3:]
		}
		return dvbDefaultCharacterTable, bs[3:]
	case 0x15:
		return encoding.Nop, bs[1:]
	case 0x1f:
		// Encoding type id follows, no decoder known
		if len(bs) < 2 {
			return dvbDefaultCharacterTable, nil
		}
		return dvbDefaultCharacterTable, bs[2:]
	}
	if e, ok := dvbCharacterTables[bs[0]]; ok {
		return e, bs[1:]
	}
	return dvbDefaultCharacterTable, bs[1:]
}

// decodeDVBText converts a DVB text field into UTF-8. Emphasis control codes are dropped and the CR/LF control
// code becomes a new line.
func decodeDVBText(bs []byte) string {
	e, text := dvbCharacterTable(bs)
	if len(text) == 0 {
		return ""
	}

	decoded, err := e.NewDecoder().Bytes(text)
	if err != nil {
		decoded = text
	}

	var b strings.Builder
	b.Grow(len(decoded))
	for len(decoded) > 0 {
		r, size := utf8.DecodeRune(decoded)
		decoded = decoded[size:]
		switch {
		case r == 0x8a || r == 0xe08a:
			b.WriteByte('\n')
		case r >= 0x80 && r <= 0x9f, r >= 0xe080 && r <= 0xe09f:
		case r == utf8.RuneError && size <= 1:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
