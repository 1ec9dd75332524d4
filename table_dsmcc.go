package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// DSM-CC message ids
// Chapter: 7.3 | ISO/IEC 13818-6
const (
	dsmccMessageIDDII = 0x1002
	dsmccMessageIDDDB = 0x1003
	dsmccMessageIDDSI = 0x1006
)

const dsmccProtocolDiscriminator = 0x11

// dsmccMessageHeader represents a DSM-CC message header or download data header
type dsmccMessageHeader struct {
	messageID     uint16
	messageLength uint16
	transactionID uint32 // Download id for a DDB
}

// DSMCCModule represents a module announced by a DII
type DSMCCModule struct {
	Descriptors *DescriptorList // User info of the module, decoded in DSM-CC scope
	ModuleID    uint16
	ModuleSize  uint32
	Version     uint8

	blocks   [][]byte
	received int
}

// IsComplete checks whether every block of the module has been received
func (m *DSMCCModule) IsComplete() bool {
	return m.received == len(m.blocks)
}

// dsmccDownload is the DII a download is bound to
type dsmccDownload struct {
	blockSize  uint16
	downloadID uint32
	modules    []*DSMCCModule
}

// TableDSMCC collects the modules of a DSM-CC object carousel. Collection starts with the first DII and ends once
// every announced module has been received. A complete download stays complete until Reset is called.
type TableDSMCC struct {
	processCallback
	carousel       *ObjectCarousel
	complete       bool
	download       *dsmccDownload
	pendingBlocks  []dsmccBlock // Received before the DII
	serviceGateway *biopIOR     // Announced by the DSI
}

type dsmccBlock struct {
	data        []byte
	downloadID  uint32
	blockNumber uint16
	moduleID    uint16
	version     uint8
}

// Only a bounded number of blocks are kept while waiting for the DII
const maxPendingDSMCCBlocks = 4096

const (
	// A DDB section carries at most 4066 bytes of block data
	maxDSMCCBlockSize = 4066
	// Block numbers are 16 bits
	maxDSMCCModuleBlocks = 1 << 16
)

// Reset drops the download
func (t *TableDSMCC) Reset() {
	t.carousel = nil
	t.complete = false
	t.download = nil
	t.pendingBlocks = nil
	t.serviceGateway = nil
}

// IsDownloadComplete checks whether every module announced by the DII has been received
func (t *TableDSMCC) IsDownloadComplete() bool {
	return t.complete
}

// DownloadListLength returns the number of modules announced by the DII
func (t *TableDSMCC) DownloadListLength() int {
	if t.download == nil {
		return 0
	}
	return len(t.download.modules)
}

// Module returns the module at index idx
func (t *TableDSMCC) Module(idx int) (*DSMCCModule, error) {
	if idx < 0 || idx >= t.DownloadListLength() {
		return nil, fmt.Errorf("tssi: DSM-CC module index %d: %w", idx, ErrNotFound)
	}
	return t.download.modules[idx], nil
}

// ProcessDownload feeds one complete DSM-CC section, CRC32 included
func (t *TableDSMCC) ProcessDownload(bs []byte) (err error) {
	h, ok := peekSectionHeader(bs)
	if !ok || len(bs) < 3+int(h.SectionLength) {
		return fmt.Errorf("tssi: DSM-CC section is truncated: %w", ErrShortBuffer)
	}
	bs = bs[:3+int(h.SectionLength)]
	if h.hasCRC32() && !checkCRC32(bs) {
		return ErrCRC32Mismatch
	}
	var s *Section
	if s, err = parseSection(bs); err != nil {
		return fmt.Errorf("tssi: parsing DSM-CC section failed: %w", err)
	}
	_, err = t.decode(s)
	return
}

// decode feeds a DSM-CC section and returns whether the download has just completed
func (t *TableDSMCC) decode(s *Section) (completed bool, err error) {
	if t.complete {
		return
	}

	i := astikit.NewBytesIterator(s.Body())
	switch s.Header.TableID {
	case PSITableIDDSMCCMessage:
		err = t.parseMessage(i)
	case PSITableIDDSMCCDataBlock:
		err = t.parseDataBlock(i)
	case PSITableIDDSMCCDescriptor:
		// Stream descriptors are not needed to rebuild the carousel
	default:
		err = fmt.Errorf("tssi: table id 0x%x on DSM-CC pid: %w", uint8(s.Header.TableID), ErrUnexpectedTableID)
	}
	if err != nil {
		return
	}

	// Check completion
	if t.download == nil {
		return
	}
	for _, m := range t.download.modules {
		if !m.IsComplete() {
			return
		}
	}
	t.complete = true
	t.pendingBlocks = nil
	t.notify()
	completed = true
	return
}

// parseMessageHeader parses a DSM-CC message header
// Chapter: 7.2.1 | ISO/IEC 13818-6
func parseDSMCCMessageHeader(i *astikit.BytesIterator) (h dsmccMessageHeader, err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(12); err != nil || len(bs) < 12 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	if bs[0] != dsmccProtocolDiscriminator {
		err = fmt.Errorf("tssi: invalid DSM-CC protocol discriminator 0x%x", bs[0])
		return
	}
	h.messageID = binary.BigEndian.Uint16(bs[2:])
	h.transactionID = binary.BigEndian.Uint32(bs[4:])
	h.messageLength = binary.BigEndian.Uint16(bs[10:])

	// Adaptation header
	i.Skip(int(bs[9]))
	return
}

func (t *TableDSMCC) parseMessage(i *astikit.BytesIterator) (err error) {
	// Header
	var h dsmccMessageHeader
	if h, err = parseDSMCCMessageHeader(i); err != nil {
		err = fmt.Errorf("tssi: parsing DSM-CC message header failed: %w", err)
		return
	}

	// Switch on message id
	switch h.messageID {
	case dsmccMessageIDDII:
		// The first DII binds the download
		if t.download != nil {
			return
		}
		var d *dsmccDownload
		if d, err = parseDSMCCDII(i); err != nil {
			err = fmt.Errorf("tssi: parsing DII failed: %w", err)
			return
		}
		t.download = d

		// Replay blocks received before the DII
		pending := t.pendingBlocks
		t.pendingBlocks = nil
		for _, b := range pending {
			t.addBlock(b)
		}
	case dsmccMessageIDDSI:
		if t.serviceGateway != nil {
			return
		}
		if t.serviceGateway, err = parseDSMCCDSI(i); err != nil {
			err = fmt.Errorf("tssi: parsing DSI failed: %w", err)
			return
		}
	}
	return
}

// parseDSMCCDII parses a download info indication
// Chapter: 7.3.6 | ISO/IEC 13818-6
func parseDSMCCDII(i *astikit.BytesIterator) (d *dsmccDownload, err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(18); err != nil || len(bs) < 18 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	d = &dsmccDownload{
		blockSize:  binary.BigEndian.Uint16(bs[4:]),
		downloadID: binary.BigEndian.Uint32(bs),
	}
	if d.blockSize == 0 || d.blockSize > maxDSMCCBlockSize {
		err = fmt.Errorf("tssi: DII block size %d is invalid", d.blockSize)
		return
	}

	// Compatibility descriptor
	i.Skip(int(binary.BigEndian.Uint16(bs[16:])))

	// Get next bytes
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Modules
	d.modules = make([]*DSMCCModule, binary.BigEndian.Uint16(bs))
	for idx := range d.modules {
		if bs, err = i.NextBytesNoCopy(8); err != nil || len(bs) < 8 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		m := &DSMCCModule{
			ModuleID:   binary.BigEndian.Uint16(bs),
			ModuleSize: binary.BigEndian.Uint32(bs[2:]),
			Version:    bs[6],
		}
		n := (uint64(m.ModuleSize) + uint64(d.blockSize) - 1) / uint64(d.blockSize)
		if n > maxDSMCCModuleBlocks {
			err = fmt.Errorf("tssi: module %d of %d bytes needs %d blocks of %d bytes", m.ModuleID, m.ModuleSize, n, d.blockSize)
			return
		}
		m.blocks = make([][]byte, n)

		// Module info
		var info []byte
		if info, err = i.NextBytesNoCopy(int(bs[7])); err != nil || len(info) < int(bs[7]) {
			err = fmt.Errorf("tssi: fetching module info failed: %w", errOrShort(err))
			return
		}
		if m.Descriptors, err = parseBIOPModuleInfo(info); err != nil {
			err = fmt.Errorf("tssi: parsing module info of module %d failed: %w", m.ModuleID, err)
			return
		}
		d.modules[idx] = m
	}
	return
}

// parseBIOPModuleInfo returns the user info descriptors of a BIOP module info
// Chapter: 11.2.2 | Link: https://www.etsi.org/deliver/etsi_tr/101200_101299/101202/01.02.01_60/tr_101202v010201p.pdf
func parseBIOPModuleInfo(info []byte) (l *DescriptorList, err error) {
	// Module info may be empty or not BIOP at all
	if len(info) < 13 {
		return &DescriptorList{}, nil
	}
	i := astikit.NewBytesIterator(info)

	// Timeouts
	i.Skip(12)

	// Taps
	var count byte
	if count, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	for idx := 0; idx < int(count); idx++ {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(7); err != nil || len(bs) < 7 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		i.Skip(int(bs[6]))
	}

	// User info
	var userInfo []byte
	if userInfo, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching user info failed: %w", err)
		return
	}
	return parseDescriptorLoop(userInfo, descriptorScopeDSMCC)
}

// parseDSMCCDSI parses a download server initiate and returns the IOR of the service gateway
// Chapter: 7.3.5 | ISO/IEC 13818-6
func parseDSMCCDSI(i *astikit.BytesIterator) (ior *biopIOR, err error) {
	// Server id
	i.Skip(20)

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Compatibility descriptor
	i.Skip(int(binary.BigEndian.Uint16(bs)))

	// Private data length
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Service gateway info starts with the IOR
	if ior, err = parseBIOPIOR(i); err != nil {
		err = fmt.Errorf("tssi: parsing service gateway IOR failed: %w", err)
		return
	}
	return
}

func (t *TableDSMCC) parseDataBlock(i *astikit.BytesIterator) (err error) {
	// Header
	var h dsmccMessageHeader
	if h, err = parseDSMCCMessageHeader(i); err != nil {
		err = fmt.Errorf("tssi: parsing DSM-CC download data header failed: %w", err)
		return
	}
	if h.messageID != dsmccMessageIDDDB {
		return
	}

	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(6); err != nil || len(bs) < 6 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	b := dsmccBlock{
		blockNumber: binary.BigEndian.Uint16(bs[4:]),
		downloadID:  h.transactionID,
		moduleID:    binary.BigEndian.Uint16(bs),
		version:     bs[2],
	}

	// Block data
	if b.data, err = nextBytes(i, i.Len()-i.Offset()); err != nil {
		return
	}

	// Wait for the DII
	if t.download == nil {
		if len(t.pendingBlocks) < maxPendingDSMCCBlocks {
			t.pendingBlocks = append(t.pendingBlocks, b)
		}
		return
	}
	t.addBlock(b)
	return
}

// addBlock stores a block in its module. Blocks of other downloads or module versions are dropped.
func (t *TableDSMCC) addBlock(b dsmccBlock) {
	if b.downloadID != t.download.downloadID {
		return
	}
	for _, m := range t.download.modules {
		if m.ModuleID != b.moduleID || m.Version != b.version {
			continue
		}
		if int(b.blockNumber) >= len(m.blocks) || m.blocks[b.blockNumber] != nil {
			return
		}
		m.blocks[b.blockNumber] = b.data
		m.received++
		return
	}
}

// data returns the module content as transmitted
func (m *DSMCCModule) data() []byte {
	bs := make([]byte, 0, m.ModuleSize)
	for _, b := range m.blocks {
		bs = append(bs, b...)
	}
	if uint32(len(bs)) > m.ModuleSize {
		bs = bs[:m.ModuleSize]
	}
	return bs
}

// Decode materializes the modules and parses the objects of the carousel
func (t *TableDSMCC) Decode() (*ObjectCarousel, error) {
	if !t.complete {
		return nil, ErrDownloadIncomplete
	}
	if t.carousel != nil {
		return t.carousel, nil
	}

	c, err := newObjectCarousel(t.download.modules, t.serviceGateway)
	if err != nil {
		return nil, fmt.Errorf("tssi: decoding object carousel failed: %w", err)
	}
	t.carousel = c
	return c, nil
}
