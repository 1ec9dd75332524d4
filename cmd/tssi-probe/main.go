package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"

	"github.com/NoordGuy/go-tssi"
	"github.com/asticode/go-astikit"
	"github.com/pkg/profile"
	"golang.org/x/sync/errgroup"
)

// Flags
var (
	ait             = flag.Uint("ait", uint(tssi.PIDNone), "the AIT pid")
	chunkSize       = flag.Int("chunk", 1<<16, "the read size")
	cpuProfiling    = flag.Bool("cp", false, "if yes, cpu profiling is enabled")
	dataTypes       = astikit.NewFlagStrings()
	dsmcc           = flag.Uint("dsmcc", uint(tssi.PIDNone), "the DSM-CC pid")
	ebu             = flag.Uint("ebu", uint(tssi.PIDNone), "the EBU teletext pid")
	inputPaths      = astikit.NewFlagStrings()
	memoryProfiling = flag.Bool("mp", false, "if yes, memory profiling is enabled")
	pcr             = flag.Uint("pcr", uint(tssi.PIDNone), "the PCR pid")
	verbose         = flag.Bool("v", false, "if yes, errors are logged")
)

// Data types
const (
	dataTypeAIT   = "ait"
	dataTypeAll   = "all"
	dataTypeDSMCC = "dsmcc"
	dataTypeEBU   = "ebu"
	dataTypeEIT   = "eit"
	dataTypeNIT   = "nit"
	dataTypePAT   = "pat"
	dataTypePCR   = "pcr"
	dataTypePMT   = "pmt"
	dataTypeSDT   = "sdt"
	dataTypeTDT   = "tdt"
)

type input struct {
	p    *tssi.Parser
	path string
}

func main() {
	// Init
	cmd := astikit.FlagCmd()
	flag.Var(inputPaths, "i", "the input paths")
	flag.Var(dataTypes, "d", "the datatypes whitelist (all, ait, dsmcc, ebu, eit, nit, pat, pcr, pmt, sdt, tdt)")
	flag.Parse()

	// Start profiling
	if *cpuProfiling {
		defer profile.Start(profile.CPUProfile).Stop()
	} else if *memoryProfiling {
		defer profile.Start(profile.MemProfile).Stop()
	}

	// Validate input
	if len(*inputPaths.Slice) == 0 {
		log.Fatal("tssi-probe: use -i to indicate an input path")
	}

	// Handle signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse inputs, one parser per input
	inputs := make([]*input, len(*inputPaths.Slice))
	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range *inputPaths.Slice {
		g.Go(func() (err error) {
			inputs[idx] = &input{
				p:    newParser(path),
				path: path,
			}
			if err = parseFile(ctx, inputs[idx]); err != nil {
				err = fmt.Errorf("tssi-probe: parsing %s failed: %w", path, err)
			}
			return
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	// Switch on command
	for _, in := range inputs {
		switch cmd {
		case "stats":
			printStats(in)
		default:
			printTables(in)
		}
	}
}

func wants(dataType string) bool {
	return len(dataTypes.Map) == 0 || dataTypes.Map[dataTypeAll] || dataTypes.Map[dataType]
}

func newParser(path string) *tssi.Parser {
	// Options
	var opts []func(*tssi.Parser)
	if *verbose {
		opts = append(opts, tssi.ParserOptLogger(log.New(log.Writer(), path+": ", log.Flags())))
	}
	opts = append(opts, tssi.ParserOptPIDs(uint16(*ait), uint16(*dsmcc), uint16(*pcr), uint16(*ebu)))
	p := tssi.NewParser(opts...)

	// Callbacks
	if wants(dataTypeTDT) {
		p.TableTDT().SetProcessCallback(func() {
			if d := p.TableTDT().Data(); d != nil {
				log.Printf("%s: %s %s", path, d.TableID.Type(), d.UTCTime)
			}
		})
	}
	if wants(dataTypeEBU) {
		p.PacketEBU().SetProcessCallback(func() {
			pg, err := p.PacketEBU().LastCompletedPage()
			if err != nil {
				return
			}
			log.Printf("%s: teletext page %d%02x/%04x with %d lines", path, pg.Magazine, pg.PageNumber, pg.SubPageNumber, pg.LineListLength())
			for _, l := range pg.Lines {
				log.Printf("%s:   %02d %s", path, l.Packet, l.Text())
			}
		})
	}
	if wants(dataTypeDSMCC) {
		p.TableDSMCC().SetProcessCallback(func() {
			c, err := p.TableDSMCC().Decode()
			if err != nil {
				log.Printf("%s: decoding object carousel failed: %s", path, err)
				return
			}
			fs := c.Files()
			for _, name := range slices.Sorted(maps.Keys(fs)) {
				log.Printf("%s: carousel file %s (%d bytes)", path, name, len(fs[name]))
			}
		})
	}
	return p
}

func parseFile(ctx context.Context, in *input) (err error) {
	// Open
	var f *os.File
	if f, err = os.Open(in.path); err != nil {
		err = fmt.Errorf("tssi-probe: opening %s failed: %w", in.path, err)
		return
	}
	defer f.Close()

	// Loop through chunks
	buf := make([]byte, *chunkSize)
	for {
		// Check context
		if err = ctx.Err(); err != nil {
			return
		}

		// Read
		var n int
		n, err = f.Read(buf)
		if n > 0 {
			in.p.Process(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return
		}
	}
}

func printStats(in *input) {
	fmt.Printf("%s: %d packets, %d errors\n", in.path, in.p.PacketsProcessed(), in.p.ProcessingErrors())
	stats := in.p.PIDStats()
	for _, pid := range slices.Sorted(maps.Keys(stats)) {
		fmt.Printf("  pid 0x%04x: %d packets\n", pid, stats[pid])
	}
}

func printTables(in *input) {
	fmt.Printf("%s:\n", in.path)
	p := in.p

	// PAT
	if d := p.TablePAT().Data(); d != nil && wants(dataTypePAT) {
		fmt.Printf("  PAT v%d tsid %d\n", d.VersionNumber, d.TransportStreamID)
		for _, pgm := range d.Programs {
			fmt.Printf("    program %d on pid 0x%x\n", pgm.ProgramNumber, pgm.ProgramMapID)
		}
	}

	// PMT
	if wants(dataTypePMT) {
		for idx := 0; idx < p.TablePMT().ProgramListLength(); idx++ {
			d, err := p.TablePMT().Program(idx)
			if err != nil {
				continue
			}
			fmt.Printf("  PMT v%d program %d, pcr pid 0x%x\n", d.VersionNumber, d.ProgramNumber, d.PCRPID)
			for _, es := range d.ElementaryStreams {
				fmt.Printf("    stream type 0x%02x on pid 0x%x, %d descriptors\n", uint8(es.StreamType), es.ElementaryPID, es.ElementaryStreamDescriptors.Length())
			}
		}
	}

	// NIT
	if d := p.TableNIT().Data(); d != nil && wants(dataTypeNIT) {
		name := ""
		if dsc, err := d.NetworkDescriptors.DescriptorByTag(tssi.DescriptorTagNetworkName); err == nil && dsc.NetworkName != nil {
			name = dsc.NetworkName.String()
		}
		fmt.Printf("  NIT v%d network %d %q, %d transport streams\n", d.VersionNumber, d.NetworkID, name, len(d.TransportStreams))
	}

	// SDT
	if d := p.TableSDT().Data(); d != nil && wants(dataTypeSDT) {
		for _, s := range d.Services {
			name := ""
			if dsc, err := s.Descriptors.DescriptorByTag(tssi.DescriptorTagService); err == nil && dsc.Service != nil {
				name = dsc.Service.ServiceName()
			}
			fmt.Printf("  SDT service %d on tsid %d: %q\n", s.ServiceID, s.TransportStreamID, name)
		}
	}

	// EIT
	if d := p.TableEIT().Data(); d != nil && wants(dataTypeEIT) {
		for _, e := range d.Events {
			name := ""
			if dsc, err := e.Descriptors.DescriptorByTag(tssi.DescriptorTagShortEvent); err == nil && dsc.ShortEvent != nil {
				name = dsc.ShortEvent.Name()
			}
			fmt.Printf("  EIT service %d event %d at %s for %s: %q\n", e.ServiceID, e.EventID, e.StartTime, e.Duration, name)
		}
	}

	// AIT
	if d := p.TableAIT().Data(); d != nil && wants(dataTypeAIT) {
		for _, a := range d.Applications {
			name := ""
			if dsc, err := a.Descriptors.DescriptorByTag(tssi.DescriptorTagApplicationName); err == nil && dsc.ApplicationName != nil && len(dsc.ApplicationName.Items) > 0 {
				name = dsc.ApplicationName.Items[0].String()
			}
			fmt.Printf("  AIT application 0x%x/0x%x control code %d: %q\n", a.OrganisationID, a.ApplicationID, a.ApplicationControlCode, name)
		}
	}

	// PCR
	if v, ok := p.PacketPCR().PCR(); ok && wants(dataTypePCR) {
		fmt.Printf("  PCR %d (%s)\n", v.Value(), v.Duration())
	}
}
