package tssi

import "sync"

// poolOfSectionBuffers holds the accumulation buffers of section assemblers. Assemblers come and go with the PMT
// PIDs announced by the PAT, the pool avoids reallocating a buffer each time.
var poolOfSectionBuffers = &poolSectionBuffer{
	sp: sync.Pool{
		New: func() any {
			// A maximum length section and a packet worth of the next one fit in without calling runtime.growslice
			return &sectionBuffer{
				s: make([]byte, 0, 3+maxSectionLength+MpegTsPacketSize),
			}
		},
	},
}

// sectionBuffer is an object containing the bytes accumulated for a PID
type sectionBuffer struct {
	s []byte
}

// poolSectionBuffer is a pool for section accumulation buffers
// Don't use it anywhere else to avoid pool pollution
type poolSectionBuffer struct {
	sp sync.Pool
}

// get returns an empty buffer
func (p *poolSectionBuffer) get() (b *sectionBuffer) {
	b, _ = p.sp.Get().(*sectionBuffer)
	b.s = b.s[:0]
	return
}

// put returns the buffer back to the pool
// Don't use the buffer after a call to put
func (p *poolSectionBuffer) put(b *sectionBuffer) {
	p.sp.Put(b)
}
