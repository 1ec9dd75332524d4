package tssi

import (
	"fmt"
	"slices"
)

// sectionAssembler rebuilds the sections of a PID out of packet payloads. It is idle until a payload unit start
// is received and accumulating afterwards.
type sectionAssembler struct {
	buf *sectionBuffer // nil when idle
}

func (a *sectionAssembler) accumulating() bool {
	return a.buf != nil
}

// abandon drops the bytes accumulated so far and goes back to idle
func (a *sectionAssembler) abandon() {
	if a.buf != nil {
		poolOfSectionBuffers.put(a.buf)
		a.buf = nil
	}
}

// add accumulates a packet payload and returns the sections it completes. Sections carrying a CRC32 are only
// returned once it has been validated. Each returned section is a copy.
func (a *sectionAssembler) add(payload []byte, payloadUnitStart bool) (sections [][]byte, errs []error) {
	if payloadUnitStart {
		// Pointer field
		if len(payload) == 0 || int(payload[0]) >= len(payload) {
			a.abandon()
			errs = append(errs, fmt.Errorf("tssi: pointer field overflows payload: %w", ErrShortBuffer))
			return
		}
		pointer := int(payload[0])
		payload = payload[1:]

		// Bytes before the pointer complete the section in flight
		if a.accumulating() && pointer > 0 {
			a.buf.s = append(a.buf.s, payload[:pointer]...)
			sections, errs = a.extract()
		}

		// Start a fresh accumulation
		a.abandon()
		a.buf = poolOfSectionBuffers.get()
		payload = payload[pointer:]
	} else if !a.accumulating() {
		return
	}

	a.buf.s = append(a.buf.s, payload...)
	ss, es := a.extract()
	sections = append(sections, ss...)
	errs = append(errs, es...)
	return
}

// extract pops every complete section from the buffer
func (a *sectionAssembler) extract() (sections [][]byte, errs []error) {
	for a.accumulating() && len(a.buf.s) > 0 {
		// Stuffing, the rest of the payload is dropped
		if PSITableID(a.buf.s[0]) == PSITableIDNull {
			a.abandon()
			return
		}

		// Section length
		h, ok := peekSectionHeader(a.buf.s)
		if !ok {
			return
		}
		if h.SectionLength > maxSectionLength {
			a.abandon()
			errs = append(errs, fmt.Errorf("tssi: section length %d: %w", h.SectionLength, ErrSectionTooLong))
			return
		}
		n := 3 + int(h.SectionLength)
		if len(a.buf.s) < n {
			return
		}

		// Pop section
		s := slices.Clone(a.buf.s[:n])
		a.buf.s = a.buf.s[:copy(a.buf.s, a.buf.s[n:])]

		// Check CRC32
		if h.hasCRC32() && !checkCRC32(s) {
			errs = append(errs, fmt.Errorf("tssi: table id 0x%x: %w", uint8(h.TableID), ErrCRC32Mismatch))
			continue
		}
		sections = append(sections, s)
	}
	return
}
