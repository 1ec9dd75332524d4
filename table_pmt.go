package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

type StreamType uint8

// Stream types
// Table 2-34 | Link: http://ecee.colorado.edu/~ecen5653/ecen5653/papers/iso13818-1.pdf
const (
	StreamTypeMPEG1Video                 StreamType = 0x01
	StreamTypeMPEG2Video                 StreamType = 0x02
	StreamTypeMPEG1Audio                 StreamType = 0x03
	StreamTypeMPEG2HalvedSampleRateAudio StreamType = 0x04
	StreamTypeMPEG2PrivateSection        StreamType = 0x05
	StreamTypeMPEG2PacketizedData        StreamType = 0x06 // Teletext, subtitles, AC-3 in DVB
	StreamTypeDSMCCTypeB                 StreamType = 0x0b // Object carousel
	StreamTypeDSMCCTypeC                 StreamType = 0x0c
	StreamTypeDSMCCTypeD                 StreamType = 0x0d
	StreamTypeADTS                       StreamType = 0x0f
	StreamTypeMPEG4Video                 StreamType = 0x10
	StreamTypeMetadata                   StreamType = 0x15
	StreamTypeH264Video                  StreamType = 0x1b
	StreamTypeH265Video                  StreamType = 0x24
	StreamTypeAC3Audio                   StreamType = 0x81
)

// PMTData represents a PMT data
// https://en.wikipedia.org/wiki/Program-specific_information
type PMTData struct {
	ElementaryStreams  []PMTElementaryStream
	PCRPID             uint16 // The packet identifier that contains the program clock reference used to improve the random access accuracy of the stream's timing that is derived from the program timestamp. If this is unused. then it is set to 0x1FFF (all bits on).
	ProgramDescriptors *DescriptorList
	ProgramNumber      uint16
	VersionNumber      uint8
}

// PMTElementaryStream represents a PMT elementary stream
type PMTElementaryStream struct {
	ElementaryPID               uint16 // The packet identifier that contains the stream type data.
	ElementaryStreamDescriptors *DescriptorList
	StreamType                  StreamType // This defines the structure of the data contained within the elementary packet identifier.
}

// TablePMT decodes the program map tables of every program
type TablePMT struct {
	processCallback
	programs []*PMTData
	versions versionTracker[uint16, *PMTData]
}

// Reset drops the decoded programs
func (t *TablePMT) Reset() {
	t.programs = nil
	t.versions.reset()
}

// ProgramListLength returns the number of programs a PMT has been received for
func (t *TablePMT) ProgramListLength() int {
	return len(t.programs)
}

// Program returns the program at index idx, in order of first reception
func (t *TablePMT) Program(idx int) (*PMTData, error) {
	if idx < 0 || idx >= len(t.programs) {
		return nil, fmt.Errorf("tssi: PMT program index %d: %w", idx, ErrNotFound)
	}
	return t.programs[idx], nil
}

// ProgramByNumber returns the program with the given program number
func (t *TablePMT) ProgramByNumber(programNumber uint16) (*PMTData, error) {
	for _, p := range t.programs {
		if p.ProgramNumber == programNumber {
			return p, nil
		}
	}
	return nil, fmt.Errorf("tssi: PMT program number %d: %w", programNumber, ErrNotFound)
}

// retain drops the programs the PAT does not announce anymore
func (t *TablePMT) retain(announced func(programNumber uint16) bool) {
	programs := make([]*PMTData, 0, len(t.programs))
	for _, p := range t.programs {
		if announced(p.ProgramNumber) {
			programs = append(programs, p)
		}
	}
	t.programs = programs
	for k := range t.versions.subTables {
		if !announced(k) {
			delete(t.versions.subTables, k)
		}
	}
}

// decode decodes a PMT section and returns whether a new program has been published
func (t *TablePMT) decode(s *Section) (published bool, err error) {
	if s.Header.TableID != PSITableIDPMT || s.Syntax == nil {
		err = fmt.Errorf("tssi: table id 0x%x on PMT pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
		return
	}
	if !s.Syntax.CurrentNextIndicator {
		return
	}

	// Already committed
	key, v := s.Syntax.TableIDExtension, s.sectionVersion()
	if t.versions.isCommitted(key, v) {
		return
	}

	// Parse
	var d *PMTData
	if d, err = parsePMTSection(astikit.NewBytesIterator(s.Body()), s.Syntax); err != nil {
		err = fmt.Errorf("tssi: parsing PMT section failed: %w", err)
		return
	}

	// A PMT is made of one section only but nothing prevents a broadcaster from splitting it
	sections := t.versions.commit(key, v, d)
	if len(sections) > 1 {
		merged := *sections[0]
		merged.ElementaryStreams = nil
		for _, sd := range sections {
			merged.ElementaryStreams = append(merged.ElementaryStreams, sd.ElementaryStreams...)
		}
		d = &merged
	}

	// Publish a new list so that previously returned ones are left untouched
	programs := make([]*PMTData, 0, len(t.programs)+1)
	var replaced bool
	for _, p := range t.programs {
		if p.ProgramNumber == d.ProgramNumber {
			p = d
			replaced = true
		}
		programs = append(programs, p)
	}
	if !replaced {
		programs = append(programs, d)
	}
	t.programs = programs
	t.notify()
	published = true
	return
}

// parsePMTSection parses a PMT section
func parsePMTSection(i *astikit.BytesIterator, h *PSISectionSyntaxHeader) (d *PMTData, err error) {
	// Create data
	d = &PMTData{
		ProgramNumber: h.TableIDExtension,
		VersionNumber: h.VersionNumber,
	}

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// PCR PID
	d.PCRPID = binary.BigEndian.Uint16(bs) & 0x1fff

	// Program descriptors
	if d.ProgramDescriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
		err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
		return
	}

	// Loop until end of section data is reached
	for i.HasBytesLeft() {
		// Get next bytes
		if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}

		// Elementary stream
		e := PMTElementaryStream{
			ElementaryPID: binary.BigEndian.Uint16(bs[1:]) & 0x1fff,
			StreamType:    StreamType(bs[0]),
		}

		// Elementary descriptors
		if e.ElementaryStreamDescriptors, err = parseDescriptors(i, descriptorScopeSI); err != nil {
			err = fmt.Errorf("tssi: parsing descriptors failed: %w", err)
			return
		}
		d.ElementaryStreams = append(d.ElementaryStreams, e)
	}
	return
}
