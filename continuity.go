package tssi

type continuityStatus int

const (
	continuityOK continuityStatus = iota
	continuityDuplicate
	continuityJump
)

// continuityChecker tracks the 4 bits continuity counter of a PID
type continuityChecker struct {
	cc wrappingCounter
}

func newContinuityChecker() *continuityChecker {
	return &continuityChecker{cc: newWrappingCounter(0xf)}
}

func (c *continuityChecker) reset() {
	c.cc.reset()
}

// check compares the packet continuity counter with the previous one and stores it.
// The counter only increments with packets carrying a payload.
func (c *continuityChecker) check(p *Packet) continuityStatus {
	cc := int(p.Header.ContinuityCounter)

	// First packet or signalled discontinuity
	if !c.cc.isSet() || p.hasDiscontinuityIndicator() {
		_ = c.cc.set(cc)
		return continuityOK
	}

	switch {
	case !p.Header.HasPayload:
		if cc == c.cc.get() {
			return continuityOK
		}
	case cc == c.cc.get():
		return continuityDuplicate
	case cc == c.cc.next():
		c.cc.inc()
		return continuityOK
	}
	_ = c.cc.set(cc)
	return continuityJump
}
