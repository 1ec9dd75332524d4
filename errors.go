package tssi

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrConflictingPID               = errors.New("tssi: pid is already bound to another role")
	ErrCRC32Mismatch                = errors.New("tssi: crc32 mismatch")
	ErrDownloadIncomplete           = errors.New("tssi: download is not complete")
	ErrInvalidPID                   = errors.New("tssi: invalid pid")
	ErrNotFound                     = errors.New("tssi: not found")
	ErrPacketMustStartWithASyncByte = errors.New("tssi: packet must start with a sync byte")
	ErrSectionTooLong               = errors.New("tssi: section length exceeds 4093 bytes")
	ErrShortBuffer                  = errors.New("tssi: not enough bytes")
	ErrUnexpectedTableID            = errors.New("tssi: unexpected table id")
)

// errOrShort reports a short read as ErrShortBuffer whatever the iterator returned
func errOrShort(err error) error {
	if err == nil {
		return ErrShortBuffer
	}
	return fmt.Errorf("%w: %s", ErrShortBuffer, err)
}
