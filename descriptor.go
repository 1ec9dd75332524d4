package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

type DescriptorTag uint8

// Descriptor tags
// Chapter: 6.1 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	DescriptorTagAC3                        DescriptorTag = 0x6a
	DescriptorTagApplicationSignalling      DescriptorTag = 0x6f
	DescriptorTagAVCVideo                   DescriptorTag = 0x28
	DescriptorTagComponent                  DescriptorTag = 0x50
	DescriptorTagContent                    DescriptorTag = 0x54
	DescriptorTagDataStreamAlignment        DescriptorTag = 0x6
	DescriptorTagEnhancedAC3                DescriptorTag = 0x7a
	DescriptorTagExtendedEvent              DescriptorTag = 0x4e
	DescriptorTagExtension                  DescriptorTag = 0x7f
	DescriptorTagISO639LanguageAndAudioType DescriptorTag = 0xa
	DescriptorTagLocalTimeOffset            DescriptorTag = 0x58
	DescriptorTagMaximumBitrate             DescriptorTag = 0xe
	DescriptorTagNetworkName                DescriptorTag = 0x40
	DescriptorTagParentalRating             DescriptorTag = 0x55
	DescriptorTagPDC                        DescriptorTag = 0x69
	DescriptorTagPrivateDataIndicator       DescriptorTag = 0xf
	DescriptorTagPrivateDataSpecifier       DescriptorTag = 0x5f
	DescriptorTagRegistration               DescriptorTag = 0x5
	DescriptorTagSatelliteDelivery          DescriptorTag = 0x43
	DescriptorTagService                    DescriptorTag = 0x48
	DescriptorTagShortEvent                 DescriptorTag = 0x4d
	DescriptorTagStreamIdentifier           DescriptorTag = 0x52
	DescriptorTagSubtitling                 DescriptorTag = 0x59
	DescriptorTagTeletext                   DescriptorTag = 0x56
	DescriptorTagVBIData                    DescriptorTag = 0x45
	DescriptorTagVBITeletext                DescriptorTag = 0x46
	DescriptorTagVideoStream                DescriptorTag = 0x2
)

// AIT descriptor tags. They share their values with MPEG tags and are only valid inside an AIT.
// Chapter: 5.3.5 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
const (
	DescriptorTagApplication              DescriptorTag = 0x0
	DescriptorTagApplicationName          DescriptorTag = 0x1
	DescriptorTagTransportProtocol        DescriptorTag = 0x2
	DescriptorTagDVBJApplication          DescriptorTag = 0x3
	DescriptorTagDVBJApplicationLocation  DescriptorTag = 0x4
	DescriptorTagCompressedModule         DescriptorTag = 0x9 // DSM-CC module info scope
	descriptorTagAITFirstSharedWithSIList DescriptorTag = 0x40
)

// descriptorScope selects the tag space a descriptor loop is decoded in
type descriptorScope uint8

const (
	descriptorScopeSI descriptorScope = iota
	descriptorScopeAIT
	descriptorScopeDSMCC
	descriptorScopeCount
)

type descriptorParser func(d *Descriptor, i *astikit.BytesIterator, offsetEnd int) error

var descriptorParserLUT [descriptorScopeCount][256]descriptorParser

func init() {
	si := &descriptorParserLUT[descriptorScopeSI]
	si[DescriptorTagAC3] = newDescriptorAC3
	si[DescriptorTagApplicationSignalling] = newDescriptorApplicationSignalling
	si[DescriptorTagAVCVideo] = newDescriptorAVCVideo
	si[DescriptorTagComponent] = newDescriptorComponent
	si[DescriptorTagContent] = newDescriptorContent
	si[DescriptorTagDataStreamAlignment] = newDescriptorDataStreamAlignment
	si[DescriptorTagEnhancedAC3] = newDescriptorEnhancedAC3
	si[DescriptorTagExtendedEvent] = newDescriptorExtendedEvent
	si[DescriptorTagExtension] = newDescriptorExtension
	si[DescriptorTagISO639LanguageAndAudioType] = newDescriptorISO639LanguageAndAudioType
	si[DescriptorTagLocalTimeOffset] = newDescriptorLocalTimeOffset
	si[DescriptorTagMaximumBitrate] = newDescriptorMaximumBitrate
	si[DescriptorTagNetworkName] = newDescriptorNetworkName
	si[DescriptorTagParentalRating] = newDescriptorParentalRating
	si[DescriptorTagPDC] = newDescriptorPDC
	si[DescriptorTagPrivateDataIndicator] = newDescriptorPrivateDataIndicator
	si[DescriptorTagPrivateDataSpecifier] = newDescriptorPrivateDataSpecifier
	si[DescriptorTagRegistration] = newDescriptorRegistration
	si[DescriptorTagSatelliteDelivery] = newDescriptorSatelliteDelivery
	si[DescriptorTagService] = newDescriptorService
	si[DescriptorTagShortEvent] = newDescriptorShortEvent
	si[DescriptorTagStreamIdentifier] = newDescriptorStreamIdentifier
	si[DescriptorTagSubtitling] = newDescriptorSubtitling
	si[DescriptorTagTeletext] = newDescriptorTeletext
	si[DescriptorTagVBIData] = newDescriptorVBIData
	si[DescriptorTagVBITeletext] = newDescriptorVBITeletext
	si[DescriptorTagVideoStream] = newDescriptorVideoStream
	for t := 0x80; t < 0xff; t++ {
		si[t] = newDescriptorUserDefined
	}

	// AIT private tags live below 0x40, everything above is shared with SI
	ait := &descriptorParserLUT[descriptorScopeAIT]
	ait[DescriptorTagApplication] = newDescriptorApplication
	ait[DescriptorTagApplicationName] = newDescriptorApplicationName
	ait[DescriptorTagTransportProtocol] = newDescriptorTransportProtocol
	ait[DescriptorTagDVBJApplication] = newDescriptorDVBJApplication
	ait[DescriptorTagDVBJApplicationLocation] = newDescriptorDVBJApplicationLocation
	for t := int(descriptorTagAITFirstSharedWithSIList); t < 0x100; t++ {
		ait[t] = si[t]
	}

	dsmcc := &descriptorParserLUT[descriptorScopeDSMCC]
	dsmcc[DescriptorTagCompressedModule] = newDescriptorCompressedModule
}

// Descriptor represents a descriptor. Exactly one of the variant pointers is set, Unknown being the fallback for
// tags that have no decoder in the loop's scope or whose body could not be decoded.
type Descriptor struct {
	AC3                        *DescriptorAC3
	Application                *DescriptorApplication
	ApplicationName            *DescriptorApplicationName
	ApplicationSignalling      *DescriptorApplicationSignalling
	AVCVideo                   *DescriptorAVCVideo
	Component                  *DescriptorComponent
	CompressedModule           *DescriptorCompressedModule
	Content                    *DescriptorContent
	DataStreamAlignment        *DescriptorDataStreamAlignment
	DVBJApplication            *DescriptorDVBJApplication
	DVBJApplicationLocation    *DescriptorDVBJApplicationLocation
	EnhancedAC3                *DescriptorEnhancedAC3
	ExtendedEvent              *DescriptorExtendedEvent
	Extension                  *DescriptorExtension
	ISO639LanguageAndAudioType *DescriptorISO639LanguageAndAudioType
	Length                     uint8
	LocalTimeOffset            *DescriptorLocalTimeOffset
	MaximumBitrate             *DescriptorMaximumBitrate
	NetworkName                *DescriptorNetworkName
	ParentalRating             *DescriptorParentalRating
	PDC                        *DescriptorPDC
	PrivateDataIndicator       *DescriptorPrivateDataIndicator
	PrivateDataSpecifier       *DescriptorPrivateDataSpecifier
	Registration               *DescriptorRegistration
	SatelliteDelivery          *DescriptorSatelliteDelivery
	Service                    *DescriptorService
	ShortEvent                 *DescriptorShortEvent
	StreamIdentifier           *DescriptorStreamIdentifier
	Subtitling                 *DescriptorSubtitling
	Tag                        DescriptorTag // the tag defines the structure of the contained data following the descriptor length.
	Teletext                   *DescriptorTeletext
	TransportProtocol          *DescriptorTransportProtocol
	Unknown                    []byte
	UserDefined                []byte
	VBIData                    *DescriptorVBIData
	VBITeletext                *DescriptorTeletext
	VideoStream                *DescriptorVideoStream
}

// parseDescriptors parses a descriptor loop prefixed by its 12 bits length
func parseDescriptors(i *astikit.BytesIterator, scope descriptorScope) (l *DescriptorList, err error) {
	// Get next 2 bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Get length
	length := int(binary.BigEndian.Uint16(bs) & 0xfff)

	// Get loop
	if bs, err = i.NextBytesNoCopy(length); err != nil || len(bs) < length {
		err = fmt.Errorf("tssi: fetching descriptor loop failed: %w", errOrShort(err))
		return
	}
	return parseDescriptorLoop(bs, scope)
}

// parseDescriptorLoop parses a descriptor loop whose length is already known
func parseDescriptorLoop(bs []byte, scope descriptorScope) (l *DescriptorList, err error) {
	l = &DescriptorList{}
	i := astikit.NewBytesIterator(bs)
	for i.HasBytesLeft() {
		// Get next 2 bytes
		var h []byte
		if h, err = i.NextBytesNoCopy(2); err != nil || len(h) < 2 {
			err = fmt.Errorf("tssi: fetching descriptor header failed: %w", errOrShort(err))
			return
		}

		// Get body
		d := &Descriptor{
			Length: h[1],
			Tag:    DescriptorTag(h[0]),
		}
		var body []byte
		if body, err = i.NextBytesNoCopy(int(d.Length)); err != nil || len(body) < int(d.Length) {
			err = fmt.Errorf("tssi: descriptor 0x%x of length %d overflows its loop: %w", d.Tag, d.Length, errOrShort(err))
			return
		}

		d.parse(body, scope)
		l.descriptors = append(l.descriptors, d)
	}
	return
}

// parse decodes the body of the descriptor. The body is decoded on its own so that a corrupted descriptor can't move
// the loop out of sync.
func (d *Descriptor) parse(body []byte, scope descriptorScope) {
	if fn := descriptorParserLUT[scope][d.Tag]; fn != nil {
		if err := fn(d, astikit.NewBytesIterator(body), len(body)); err == nil {
			return
		}
		// Drop whatever got decoded before the failure
		*d = Descriptor{Length: d.Length, Tag: d.Tag}
	}
	d.Unknown = make([]byte, len(body))
	copy(d.Unknown, body)
}

// nextBytes fetches n bytes that will outlive the section
func nextBytes(i *astikit.BytesIterator, n int) (bs []byte, err error) {
	if bs, err = i.NextBytes(n); err != nil || len(bs) < n {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
	}
	return
}

// nextLengthPrefixedBytes fetches a byte giving a length followed by as many bytes
func nextLengthPrefixedBytes(i *astikit.BytesIterator) (bs []byte, err error) {
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	return nextBytes(i, int(b))
}

// nextLanguage fetches an ISO 639-2 language code
func nextLanguage(i *astikit.BytesIterator) (l [3]byte, err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	copy(l[:], bs)
	return
}

func newDescriptorUserDefined(d *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d.UserDefined, err = nextBytes(i, offsetEnd-i.Offset())
	return
}
