package tssi

import "math/bits"

// Hamming 8/4 code words indexed by their 4 data bits, bit 0 being the first transmitted bit
// Chapter: 8.2 | Link: https://www.etsi.org/deliver/etsi_en/300700_300799/300706/01.02.01_60/en_300706v010201p.pdf
var hamming84Codes = [16]byte{
	0x15, 0x02, 0x49, 0x5e, 0x64, 0x73, 0x38, 0x2f,
	0xd0, 0xc7, 0x8c, 0x9b, 0xa1, 0xb6, 0xfd, 0xea,
}

const hamming84Invalid = 0xff

// hamming84Table maps every byte to its data nibble, single bit errors being corrected
var hamming84Table [256]byte

func init() {
	for b := range hamming84Table {
		hamming84Table[b] = hamming84Invalid
		for v, c := range hamming84Codes {
			if bits.OnesCount8(byte(b)^c) <= 1 {
				hamming84Table[b] = byte(v)
				break
			}
		}
	}
}

// unhamming84 returns the data nibble of a Hamming 8/4 protected byte, false if it can't be corrected
func unhamming84(b byte) (byte, bool) {
	v := hamming84Table[b]
	return v, v != hamming84Invalid
}

// oddParity strips the parity bit of a 7 bit character, false if the parity is wrong
func oddParity(b byte) (byte, bool) {
	return b & 0x7f, bits.OnesCount8(b)%2 == 1
}
