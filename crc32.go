package tssi

const crc32Init = uint32(0xffffffff)

var crc32Table [256]uint32

func init() {
	for i := range crc32Table {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04c11db7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// computeCRC32 computes the MPEG-2 CRC32 of bs
func computeCRC32(bs []byte) uint32 {
	return updateCRC32(crc32Init, bs)
}

func updateCRC32(crc uint32, bs []byte) uint32 {
	for _, b := range bs {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// checkCRC32 checks a whole section, CRC32 trailer included. Running the
// MPEG-2 CRC over data followed by its own CRC yields 0.
func checkCRC32(section []byte) bool {
	return len(section) >= 4 && computeCRC32(section) == 0
}
