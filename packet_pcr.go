package tssi

// PacketPCR holds the latest program clock reference seen on the PCR PID
type PacketPCR struct {
	processCallback
	hasPCR bool
	pcr    ClockReference
}

func (p *PacketPCR) Reset() {
	p.hasPCR = false
	p.pcr = ClockReference{}
}

// PCR returns the latest clock reference and whether one has been received since the last reset
func (p *PacketPCR) PCR() (ClockReference, bool) {
	return p.pcr, p.hasPCR
}

// Value returns the latest clock reference on the 27 MHz scale, 0 if none has been received
func (p *PacketPCR) Value() uint64 {
	return p.pcr.Value()
}

// decode overwrites the held value with the packet's PCR, if any
func (p *PacketPCR) decode(pkt *Packet) bool {
	if !pkt.Header.HasAdaptationField || pkt.AdaptationField == nil || !pkt.AdaptationField.HasPCR {
		return false
	}
	p.pcr = pkt.AdaptationField.PCR
	p.hasPCR = true
	p.notify()
	return true
}
