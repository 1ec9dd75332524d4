package tssi

import (
	"time"

	"github.com/asticode/go-astikit"
)

// ParserOptLogger returns the option to set the logger
func ParserOptLogger(l astikit.StdLogger) func(*Parser) {
	return func(p *Parser) {
		p.l = astikit.AdaptStdLogger(l)
	}
}

// ParserOptNow returns the option to set the clock used to timestamp TDT and TOT snapshots
func ParserOptNow(now func() time.Time) func(*Parser) {
	return func(p *Parser) {
		if now != nil {
			p.tableTDT.now = now
		}
	}
}

// ParserOptPIDs returns the option to bind the AIT, DSM-CC, PCR and EBU roles. Use PIDNone to leave a role unbound.
// Invalid bindings are logged and ignored.
func ParserOptPIDs(ait, dsmcc, pcr, ebu uint16) func(*Parser) {
	return func(p *Parser) {
		for _, b := range []struct {
			pid uint16
			r   pidRole
		}{
			{pid: ait, r: pidRoleAIT},
			{pid: dsmcc, r: pidRoleDSMCC},
			{pid: pcr, r: pidRolePCR},
			{pid: ebu, r: pidRoleEBU},
		} {
			if err := p.setPID(b.r, b.pid); err != nil {
				p.l.Errorf("tssi: binding %s pid failed: %s", b.r, err)
			}
		}
	}
}
