package tssi

import (
	"fmt"
	"maps"
	"time"

	"github.com/asticode/go-astikit"
)

type pidRole int

// PID roles configured by the caller
const (
	pidRoleAIT pidRole = iota
	pidRoleDSMCC
	pidRoleEBU
	pidRolePCR
	pidRoleCount
)

func (r pidRole) String() string {
	switch r {
	case pidRoleAIT:
		return "AIT"
	case pidRoleDSMCC:
		return "DSM-CC"
	case pidRoleEBU:
		return "EBU"
	case pidRolePCR:
		return "PCR"
	}
	return "unknown"
}

// Parser demultiplexes a transport stream and feeds its DVB service information to the table and packet decoders
// https://en.wikipedia.org/wiki/MPEG_transport_stream
// http://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.13.01_40/en_300468v011301o.pdf
//
// A Parser is not safe for concurrent use. Callbacks are called synchronously by Process and must not call back into
// the Parser mutating methods.
type Parser struct {
	assemblers       map[uint16]*sectionAssembler
	buf              []byte // Partial packet left by the previous call
	continuity       map[uint16]*continuityChecker
	l                astikit.CompleteLogger
	packetEBU        *PacketEBU
	packetPCR        *PacketPCR
	packetsProcessed uint64
	pidStats         map[uint16]uint64
	pids             [pidRoleCount]uint16
	processingErrors uint64
	programMap       map[uint16]uint16 // PMT PID to program number, learned from the PAT
	tableAIT         *TableAIT
	tableDSMCC       *TableDSMCC
	tableEIT         *TableEIT
	tableNIT         *TableNIT
	tablePAT         *TablePAT
	tablePMT         *TablePMT
	tableSDT         *TableSDT
	tableTDT         *TableTDT
}

// NewParser creates a new parser. Every role is unbound by default.
func NewParser(opts ...func(*Parser)) (p *Parser) {
	// Init
	p = &Parser{
		assemblers: make(map[uint16]*sectionAssembler),
		continuity: make(map[uint16]*continuityChecker),
		l:          astikit.AdaptStdLogger(nil),
		packetEBU:  &PacketEBU{},
		packetPCR:  &PacketPCR{},
		pidStats:   make(map[uint16]uint64),
		programMap: make(map[uint16]uint16),
		tableAIT:   &TableAIT{},
		tableDSMCC: &TableDSMCC{},
		tableEIT:   &TableEIT{},
		tableNIT:   &TableNIT{},
		tablePAT:   &TablePAT{},
		tablePMT:   &TablePMT{},
		tableSDT:   &TableSDT{},
		tableTDT:   newTableTDT(time.Now),
	}
	for idx := range p.pids {
		p.pids[idx] = PIDNone
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}
	return
}

// Reset clears every accumulated and decoded state. PID bindings and callbacks are kept.
func (p *Parser) Reset() {
	for _, a := range p.assemblers {
		a.abandon()
	}
	clear(p.assemblers)
	clear(p.continuity)
	clear(p.pidStats)
	clear(p.programMap)
	p.buf = p.buf[:0]
	p.packetsProcessed = 0
	p.processingErrors = 0

	p.packetEBU.Reset()
	p.packetPCR.Reset()
	p.tableAIT.Reset()
	p.tableDSMCC.Reset()
	p.tableEIT.Reset()
	p.tableNIT.Reset()
	p.tablePAT.Reset()
	p.tablePMT.Reset()
	p.tableSDT.Reset()
	p.tableTDT.Reset()
}

// Process consumes a chunk of the transport stream. Chunks don't need to be aligned on packets: a trailing partial
// packet is kept and completed by the next call. It returns false if any error was counted during the call.
func (p *Parser) Process(bs []byte) bool {
	errorsBefore := p.processingErrors

	// Complete the partial packet
	if len(p.buf) > 0 {
		n := MpegTsPacketSize - len(p.buf)
		if len(bs) < n {
			p.buf = append(p.buf, bs...)
			return true
		}
		p.buf = append(p.buf, bs[:n]...)
		bs = bs[n:]
		p.processPacket(p.buf)
		p.buf = p.buf[:0]
	}

	// Loop through packets
	for len(bs) > 0 {
		// Resync
		if bs[0] != syncByte {
			p.error(fmt.Errorf("tssi: resyncing: %w", ErrPacketMustStartWithASyncByte))
			offset := resync(bs)
			if offset < 0 {
				break
			}
			bs = bs[offset:]
			continue
		}

		// Partial packet
		if len(bs) < MpegTsPacketSize {
			p.buf = append(p.buf[:0], bs...)
			break
		}

		p.processPacket(bs[:MpegTsPacketSize])
		bs = bs[MpegTsPacketSize:]
	}
	return p.processingErrors == errorsBefore
}

// resync returns the offset of the first sync byte confirmed by another one a packet later, or by the end of the
// buffer. It returns -1 if there is none.
func resync(bs []byte) int {
	for offset := 1; offset < len(bs); offset++ {
		if bs[offset] != syncByte {
			continue
		}
		if next := offset + MpegTsPacketSize; next >= len(bs) || bs[next] == syncByte {
			return offset
		}
	}
	return -1
}

func (p *Parser) error(err error) {
	p.processingErrors++
	p.l.Debugf("tssi: %s", err)
}

func (p *Parser) processPacket(bs []byte) {
	// Parse
	var pkt Packet
	if err := pkt.parse(bs); err != nil {
		p.error(fmt.Errorf("tssi: parsing packet failed: %w", err))
		return
	}
	pid := pkt.Header.PID
	p.packetsProcessed++
	p.pidStats[pid]++

	// Corrupt packet
	if pkt.Header.TransportErrorIndicator {
		p.error(fmt.Errorf("tssi: pid 0x%x: transport error indicator is set", pid))
		return
	}
	if pid == PIDNull || !p.isRouted(pid) {
		return
	}

	// Check continuity
	c, ok := p.continuity[pid]
	if !ok {
		c = newContinuityChecker()
		p.continuity[pid] = c
	}
	switch c.check(&pkt) {
	case continuityDuplicate:
		return
	case continuityJump:
		p.error(fmt.Errorf("tssi: pid 0x%x: continuity counter jumped to %d", pid, pkt.Header.ContinuityCounter))
		p.abandon(pid)
	}

	// PCR
	if pid == p.pids[pidRolePCR] {
		p.packetPCR.decode(&pkt)
	}

	// Scrambled payloads can't be read
	if !pkt.Header.HasPayload || pkt.Header.TransportScramblingControl != ScramblingControlNotScrambled {
		return
	}

	// EBU
	if pid == p.pids[pidRoleEBU] {
		if err := p.packetEBU.decode(&pkt); err != nil {
			p.error(fmt.Errorf("tssi: pid 0x%x: decoding EBU packet failed: %w", pid, err))
		}
		return
	}

	// Sections
	if p.isSectionPID(pid) {
		p.processSectionPayload(pid, &pkt)
	}
}

// isRouted checks whether packets of the PID are fed to a decoder
func (p *Parser) isRouted(pid uint16) bool {
	return pid == p.pids[pidRolePCR] || pid == p.pids[pidRoleEBU] || p.isSectionPID(pid)
}

// isSectionPID checks whether the PID carries sections of a decoded table
func (p *Parser) isSectionPID(pid uint16) bool {
	switch pid {
	case PIDPAT, PIDNIT, PIDSDT, PIDEIT, PIDTDT:
		return true
	case p.pids[pidRoleAIT], p.pids[pidRoleDSMCC]:
		return pid != PIDNone
	}
	_, ok := p.programMap[pid]
	return ok
}

// abandon drops what has been accumulated for the PID
func (p *Parser) abandon(pid uint16) {
	if a, ok := p.assemblers[pid]; ok {
		a.abandon()
	}
	if pid == p.pids[pidRoleEBU] {
		p.packetEBU.abandon()
	}
}

// forget drops every state kept for a PID that is not routed anymore
func (p *Parser) forget(pid uint16) {
	if p.isRouted(pid) {
		return
	}
	if a, ok := p.assemblers[pid]; ok {
		a.abandon()
		delete(p.assemblers, pid)
	}
	delete(p.continuity, pid)
}

func (p *Parser) processSectionPayload(pid uint16, pkt *Packet) {
	// Make sure assembler exists
	a, ok := p.assemblers[pid]
	if !ok {
		a = &sectionAssembler{}
		p.assemblers[pid] = a
	}

	// Add payload
	sections, errs := a.add(pkt.Payload, pkt.Header.PayloadUnitStartIndicator)
	for _, err := range errs {
		p.error(fmt.Errorf("tssi: pid 0x%x: %w", pid, err))
	}

	// Dispatch
	for _, bs := range sections {
		if err := p.dispatch(pid, bs); err != nil {
			p.error(fmt.Errorf("tssi: pid 0x%x: %w", pid, err))
		}
	}
}

// dispatch decodes a complete section with the decoder matching its PID and table id. Sections of other tables
// are ignored.
func (p *Parser) dispatch(pid uint16, bs []byte) (err error) {
	// Parse section
	var s *Section
	if s, err = parseSection(bs); err != nil {
		err = fmt.Errorf("tssi: parsing section failed: %w", err)
		return
	}

	// Switch on table id
	id := s.Header.TableID
	switch {
	case pid == PIDPAT && id == PSITableIDPAT:
		var published bool
		if published, err = p.tablePAT.decode(s); published {
			p.updateProgramMap()
		}
	case id == PSITableIDPMT && p.isProgramMapPID(pid):
		_, err = p.tablePMT.decode(s)
	case pid == PIDNIT && (id == PSITableIDNITVariant1 || id == PSITableIDNITVariant2):
		_, err = p.tableNIT.decode(s)
	case pid == PIDSDT && (id == PSITableIDSDTVariant1 || id == PSITableIDSDTVariant2):
		_, err = p.tableSDT.decode(s)
	case pid == PIDEIT && id.isEIT():
		_, err = p.tableEIT.decode(s)
	case pid == PIDTDT && (id == PSITableIDTDT || id == PSITableIDTOT):
		_, err = p.tableTDT.decode(s)
	case pid == p.pids[pidRoleAIT] && id == PSITableIDAIT:
		_, err = p.tableAIT.decode(s)
	case pid == p.pids[pidRoleDSMCC] && id.isDSMCC():
		var completed bool
		if completed, err = p.tableDSMCC.decode(s); completed {
			p.l.Infof("tssi: DSM-CC download on pid 0x%x is complete", pid)
		}
	default:
		return
	}

	if err != nil {
		err = fmt.Errorf("tssi: decoding %s section failed: %w", id.Type(), err)
	}
	return
}

func (p *Parser) isProgramMapPID(pid uint16) bool {
	_, ok := p.programMap[pid]
	return ok
}

// updateProgramMap replaces the PMT PIDs with the ones announced by the latest PAT
func (p *Parser) updateProgramMap() {
	previous := maps.Clone(p.programMap)
	clear(p.programMap)
	numbers := make(map[uint16]bool)
	if d := p.tablePAT.Data(); d != nil {
		for _, pgm := range d.Programs {
			p.programMap[pgm.ProgramMapID] = pgm.ProgramNumber
			numbers[pgm.ProgramNumber] = true
		}
	}
	for pid := range previous {
		p.forget(pid)
	}
	p.tablePMT.retain(func(programNumber uint16) bool { return numbers[programNumber] })
}

// setPID binds a PID to a role
func (p *Parser) setPID(r pidRole, pid uint16) error {
	// Unbind
	if pid == PIDNone {
		if previous := p.pids[r]; previous != PIDNone {
			p.pids[r] = PIDNone
			p.dropRole(r, previous)
			p.l.Infof("tssi: %s pid 0x%x unbound", r, previous)
		}
		return nil
	}

	// Validate
	if pid >= PIDNull || isReservedPID(pid) {
		return fmt.Errorf("tssi: %s pid 0x%x: %w", r, pid, ErrInvalidPID)
	}
	if p.pids[r] == pid {
		return nil
	}
	for other, v := range p.pids {
		if pidRole(other) != r && v == pid {
			return fmt.Errorf("tssi: %s pid 0x%x is bound to %s: %w", r, pid, pidRole(other), ErrConflictingPID)
		}
	}

	// Bind
	previous := p.pids[r]
	p.pids[r] = pid
	if previous != PIDNone {
		p.dropRole(r, previous)
	}
	p.l.Infof("tssi: %s pid set to 0x%x", r, pid)
	return nil
}

// dropRole drops what has been accumulated for the previous PID of a role
func (p *Parser) dropRole(r pidRole, previous uint16) {
	if r == pidRoleEBU {
		p.packetEBU.abandon()
	}
	if a, ok := p.assemblers[previous]; ok && (r == pidRoleAIT || r == pidRoleDSMCC) {
		a.abandon()
	}
	p.forget(previous)
}

// isReservedPID checks whether the PID is reserved to PSI or SI tables
func isReservedPID(pid uint16) bool {
	return pid == PIDPAT || pid == PIDCAT || (pid >= PIDNIT && pid <= PIDTDT)
}

// SetPIDAIT binds the PID carrying the AIT. Use PIDNone to unbind it.
func (p *Parser) SetPIDAIT(pid uint16) error {
	return p.setPID(pidRoleAIT, pid)
}

// SetPIDDSMCC binds the PID carrying the DSM-CC object carousel. Use PIDNone to unbind it.
func (p *Parser) SetPIDDSMCC(pid uint16) error {
	return p.setPID(pidRoleDSMCC, pid)
}

// SetPIDEBU binds the PID carrying EBU teletext. Use PIDNone to unbind it.
func (p *Parser) SetPIDEBU(pid uint16) error {
	return p.setPID(pidRoleEBU, pid)
}

// SetPIDPCR binds the PID carrying the PCR. Use PIDNone to unbind it.
func (p *Parser) SetPIDPCR(pid uint16) error {
	return p.setPID(pidRolePCR, pid)
}

// ProcessingErrors returns the number of errors counted since the last reset
func (p *Parser) ProcessingErrors() uint64 {
	return p.processingErrors
}

// PacketsProcessed returns the number of packets parsed since the last reset
func (p *Parser) PacketsProcessed() uint64 {
	return p.packetsProcessed
}

// PIDStats returns the number of packets parsed per PID since the last reset
func (p *Parser) PIDStats() map[uint16]uint64 {
	return maps.Clone(p.pidStats)
}

// PacketEBU returns the EBU teletext decoder, valid for the lifetime of the Parser
func (p *Parser) PacketEBU() *PacketEBU {
	return p.packetEBU
}

// PacketPCR returns the PCR decoder, valid for the lifetime of the Parser
func (p *Parser) PacketPCR() *PacketPCR {
	return p.packetPCR
}

// TableAIT returns the AIT decoder, valid for the lifetime of the Parser
func (p *Parser) TableAIT() *TableAIT {
	return p.tableAIT
}

// TableDSMCC returns the DSM-CC download decoder, valid for the lifetime of the Parser
func (p *Parser) TableDSMCC() *TableDSMCC {
	return p.tableDSMCC
}

// TableEIT returns the EIT decoder, valid for the lifetime of the Parser
func (p *Parser) TableEIT() *TableEIT {
	return p.tableEIT
}

// TableNIT returns the NIT decoder, valid for the lifetime of the Parser
func (p *Parser) TableNIT() *TableNIT {
	return p.tableNIT
}

// TablePAT returns the PAT decoder, valid for the lifetime of the Parser
func (p *Parser) TablePAT() *TablePAT {
	return p.tablePAT
}

// TablePMT returns the PMT decoder, valid for the lifetime of the Parser
func (p *Parser) TablePMT() *TablePMT {
	return p.tablePMT
}

// TableSDT returns the SDT decoder, valid for the lifetime of the Parser
func (p *Parser) TableSDT() *TableSDT {
	return p.tableSDT
}

// TableTDT returns the TDT/TOT decoder, valid for the lifetime of the Parser
func (p *Parser) TableTDT() *TableTDT {
	return p.tableTDT
}
