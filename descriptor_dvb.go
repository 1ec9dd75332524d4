package tssi

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
)

// Descriptor extension tags
// Chapter: 6.3 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	DescriptorTagExtensionSupplementaryAudio = 0x6
)

// Service types
// Chapter: 6.2.33 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	ServiceTypeDigitalTelevisionService = 0x1
	ServiceTypeDigitalRadioSoundService = 0x2
	ServiceTypeTeletextService          = 0x3
	ServiceTypeDataBroadcastService     = 0xc
)

// Teletext types
// Chapter: 6.2.43 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	TeletextTypeAdditionalInformationPage                    = 0x3
	TeletextTypeInitialTeletextPage                          = 0x1
	TeletextTypeProgramSchedulePage                          = 0x4
	TeletextTypeTeletextSubtitlePage                         = 0x2
	TeletextTypeTeletextSubtitlePageForHearingImpairedPeople = 0x5
)

// VBI data service id
// Chapter: 6.2.47 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	VBIDataServiceIDEBUTeletext          = 0x1
	VBIDataServiceIDInvertedTeletext     = 0x2
	VBIDataServiceIDVPS                  = 0x4
	VBIDataServiceIDWSS                  = 0x5
	VBIDataServiceIDClosedCaptioning     = 0x6
	VBIDataServiceIDMonochrome442Samples = 0x7
)

type SatelliteDeliveryPolarization uint8

// Satellite delivery polarizations
// Chapter: 6.2.13.2 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
const (
	SatelliteDeliveryPolarizationLinearHorizontal   SatelliteDeliveryPolarization = 0x0
	SatelliteDeliveryPolarizationLinearVertical     SatelliteDeliveryPolarization = 0x1
	SatelliteDeliveryPolarizationCircularHorizontal SatelliteDeliveryPolarization = 0x2 // Circular left
	SatelliteDeliveryPolarizationCircularVertical   SatelliteDeliveryPolarization = 0x3 // Circular right
)

type SatelliteDeliveryModulation uint8

// Satellite delivery modulation types
const (
	SatelliteDeliveryModulationNotDefined SatelliteDeliveryModulation = 0x0
	SatelliteDeliveryModulationQPSK       SatelliteDeliveryModulation = 0x1
	SatelliteDeliveryModulation8PSK       SatelliteDeliveryModulation = 0x2
	SatelliteDeliveryModulation16QAM      SatelliteDeliveryModulation = 0x3
)

type SatelliteDeliveryFEC uint8

// Satellite delivery inner FEC schemes
const (
	SatelliteDeliveryFECNotDefined SatelliteDeliveryFEC = 0x0
	SatelliteDeliveryFEC1_2        SatelliteDeliveryFEC = 0x1
	SatelliteDeliveryFEC2_3        SatelliteDeliveryFEC = 0x2
	SatelliteDeliveryFEC3_4        SatelliteDeliveryFEC = 0x3
	SatelliteDeliveryFEC5_6        SatelliteDeliveryFEC = 0x4
	SatelliteDeliveryFEC7_8        SatelliteDeliveryFEC = 0x5
	SatelliteDeliveryFEC8_9        SatelliteDeliveryFEC = 0x6
	SatelliteDeliveryFEC3_5        SatelliteDeliveryFEC = 0x7
	SatelliteDeliveryFEC4_5        SatelliteDeliveryFEC = 0x8
	SatelliteDeliveryFEC9_10       SatelliteDeliveryFEC = 0x9
	SatelliteDeliveryFECNone       SatelliteDeliveryFEC = 0xf
)

// parseBCD parses n BCD digits out of the most significant nibbles of bs
func parseBCD(bs []byte, n int) (v uint32) {
	for idx := 0; idx < n; idx++ {
		nibble := bs[idx/2]
		if idx%2 == 0 {
			nibble >>= 4
		}
		v = v*10 + uint32(nibble&0xf)
	}
	return
}

// DescriptorNetworkName represents a network name descriptor
// Page: 93 | Chapter: 6.2.27 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorNetworkName struct {
	Name []byte
}

// String returns the network name as UTF-8
func (d *DescriptorNetworkName) String() string {
	return decodeDVBText(d.Name)
}

func newDescriptorNetworkName(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorNetworkName{}
	if d.Name, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
		return
	}
	dd.NetworkName = d
	return
}

// DescriptorSatelliteDelivery represents a satellite delivery system descriptor
// Chapter: 6.2.13.2 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorSatelliteDelivery struct {
	FECInner         SatelliteDeliveryFEC
	Frequency        uint32 // In kHz
	Modulation       SatelliteDeliveryModulation
	ModulationSystem bool // DVB-S2 when set
	OrbitalPosition  uint16 // In tenth of degrees
	Polarization     SatelliteDeliveryPolarization
	RollOff          uint8
	SymbolRate       uint32 // In symbols/second
	WestEastFlag     bool   // East when set
}

func newDescriptorSatelliteDelivery(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(11); err != nil || len(bs) < 11 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Frequency is 8 digits in 10 kHz steps, symbol rate 7 digits in 100 symbols/s steps
	dd.SatelliteDelivery = &DescriptorSatelliteDelivery{
		Frequency:        parseBCD(bs[0:4], 8) * 10,
		OrbitalPosition:  uint16(parseBCD(bs[4:6], 4)),
		WestEastFlag:     bs[6]&0x80 > 0,
		Polarization:     SatelliteDeliveryPolarization(bs[6] >> 5 & 0x3),
		RollOff:          bs[6] >> 3 & 0x3,
		ModulationSystem: bs[6]&0x4 > 0,
		Modulation:       SatelliteDeliveryModulation(bs[6] & 0x3),
		SymbolRate:       parseBCD(bs[7:11], 7) * 100,
		FECInner:         SatelliteDeliveryFEC(bs[10] & 0xf),
	}
	return
}

// DescriptorVBIData represents a VBI data descriptor
// Chapter: 6.2.47 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorVBIData struct {
	Services []DescriptorVBIDataService
}

// DescriptorVBIDataService represents a vbi data service descriptor
// Chapter: 6.2.47 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorVBIDataService struct {
	DataServiceID uint8
	Descriptors   []DescriptorVBIDataDescriptor
}

// DescriptorVBIDataDescriptor represents a vbi data descriptor item
// Chapter: 6.2.47 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorVBIDataDescriptor struct {
	FieldParity bool
	LineOffset  uint8
}

func newDescriptorVBIData(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorVBIData{}

	// Loop
	for i.Offset() < offsetEnd {
		// Get next bytes
		var bs []byte
		if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		srv := DescriptorVBIDataService{DataServiceID: bs[0]}

		// Data service descriptor
		var data []byte
		if data, err = i.NextBytesNoCopy(int(bs[1])); err != nil || len(data) < int(bs[1]) {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		if srv.DataServiceID <= VBIDataServiceIDMonochrome442Samples && srv.DataServiceID != 0x0 && srv.DataServiceID != 0x3 {
			for _, b := range data {
				srv.Descriptors = append(srv.Descriptors, DescriptorVBIDataDescriptor{
					FieldParity: b&0x20 > 0,
					LineOffset:  b & 0x1f,
				})
			}
		}
		d.Services = append(d.Services, srv)
	}
	dd.VBIData = d
	return
}

// DescriptorService represents a service descriptor
// Page: 96 | Chapter: 6.2.33 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorService struct {
	Name     []byte
	Provider []byte
	Type     uint8
}

// ServiceName returns the service name as UTF-8
func (d *DescriptorService) ServiceName() string {
	return decodeDVBText(d.Name)
}

// ProviderName returns the provider name as UTF-8
func (d *DescriptorService) ProviderName() string {
	return decodeDVBText(d.Provider)
}

func newDescriptorService(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	d := &DescriptorService{Type: b}

	// Provider
	if d.Provider, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching provider failed: %w", err)
		return
	}

	// Name
	if d.Name, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching name failed: %w", err)
		return
	}
	dd.Service = d
	return
}

// DescriptorShortEvent represents a short event descriptor
// Page: 99 | Chapter: 6.2.37 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorShortEvent struct {
	EventName []byte
	Language  [3]byte
	Text      []byte
}

// Name returns the event name as UTF-8
func (d *DescriptorShortEvent) Name() string {
	return decodeDVBText(d.EventName)
}

// Description returns the event text as UTF-8
func (d *DescriptorShortEvent) Description() string {
	return decodeDVBText(d.Text)
}

func newDescriptorShortEvent(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	d := &DescriptorShortEvent{}

	// Language
	if d.Language, err = nextLanguage(i); err != nil {
		return
	}

	// Event name
	if d.EventName, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching event name failed: %w", err)
		return
	}

	// Text
	if d.Text, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching text failed: %w", err)
		return
	}
	dd.ShortEvent = d
	return
}

// DescriptorExtendedEvent represents an extended event descriptor
// Page: 58 | Chapter: 6.2.15 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorExtendedEvent struct {
	ISO639LanguageCode   [3]byte
	Items                []DescriptorExtendedEventItem
	LastDescriptorNumber uint8
	Number               uint8
	Text                 []byte
}

// DescriptorExtendedEventItem represents an extended event item descriptor
// Chapter: 6.2.15 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorExtendedEventItem struct {
	Content     []byte
	Description []byte
}

func newDescriptorExtendedEvent(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Create descriptor
	d := &DescriptorExtendedEvent{
		LastDescriptorNumber: b & 0xf,
		Number:               b >> 4,
	}

	// ISO639 language code
	if d.ISO639LanguageCode, err = nextLanguage(i); err != nil {
		return
	}

	// Get next byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Items
	offsetItemsEnd := i.Offset() + int(b)
	for i.Offset() < offsetItemsEnd {
		var item DescriptorExtendedEventItem
		if item.Description, err = nextLengthPrefixedBytes(i); err != nil {
			err = fmt.Errorf("tssi: fetching item description failed: %w", err)
			return
		}
		if item.Content, err = nextLengthPrefixedBytes(i); err != nil {
			err = fmt.Errorf("tssi: fetching item content failed: %w", err)
			return
		}
		d.Items = append(d.Items, item)
	}

	// Text
	if d.Text, err = nextLengthPrefixedBytes(i); err != nil {
		err = fmt.Errorf("tssi: fetching text failed: %w", err)
		return
	}
	dd.ExtendedEvent = d
	return
}

// DescriptorComponent represents a component descriptor
// Chapter: 6.2.8 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorComponent struct {
	ComponentTag       uint8
	ComponentType      uint8
	ISO639LanguageCode [3]byte
	StreamContent      uint8
	StreamContentExt   uint8
	Text               []byte
}

func newDescriptorComponent(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Create descriptor
	d := &DescriptorComponent{
		StreamContentExt: bs[0] >> 4,
		StreamContent:    bs[0] & 0xf,
		ComponentType:    bs[1],
		ComponentTag:     bs[2],
	}

	// ISO639 language code
	if d.ISO639LanguageCode, err = nextLanguage(i); err != nil {
		return
	}

	// Text
	if i.Offset() < offsetEnd {
		if d.Text, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.Component = d
	return
}

// DescriptorStreamIdentifier represents a stream identifier descriptor
// Chapter: 6.2.39 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorStreamIdentifier struct {
	ComponentTag uint8
}

func newDescriptorStreamIdentifier(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	dd.StreamIdentifier = &DescriptorStreamIdentifier{ComponentTag: b}
	return
}

// DescriptorContent represents a content descriptor
// Page: 58 | Chapter: 6.2.9 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorContent struct {
	Items []DescriptorContentItem
}

// DescriptorContentItem represents a content item descriptor
// Chapter: 6.2.9 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorContentItem struct {
	ContentNibbleLevel1 uint8
	ContentNibbleLevel2 uint8
	UserByte            uint8
}

func newDescriptorContent(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorContent{Items: make([]DescriptorContentItem, (offsetEnd-i.Offset())/2)}
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		d.Items[idx] = DescriptorContentItem{
			ContentNibbleLevel1: bs[0] >> 4,
			ContentNibbleLevel2: bs[0] & 0xf,
			UserByte:            bs[1],
		}
	}
	dd.Content = d
	return
}

// DescriptorParentalRating represents a parental rating descriptor
// Page: 93 | Chapter: 6.2.28 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorParentalRating struct {
	Items []DescriptorParentalRatingItem
}

// DescriptorParentalRatingItem represents a parental rating item descriptor
// Chapter: 6.2.28 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorParentalRatingItem struct {
	CountryCode [3]byte
	Rating      uint8
}

// MinimumAge returns the minimum age for the parental rating
func (d DescriptorParentalRatingItem) MinimumAge() int {
	// Undefined or user defined ratings
	if d.Rating == 0 || d.Rating > 0x10 {
		return 0
	}
	return int(d.Rating) + 3
}

func newDescriptorParentalRating(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorParentalRating{Items: make([]DescriptorParentalRatingItem, (offsetEnd-i.Offset())/4)}
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		copy(d.Items[idx].CountryCode[:], bs)
		d.Items[idx].Rating = bs[3]
	}
	dd.ParentalRating = d
	return
}

// DescriptorTeletext represents a teletext descriptor
// Page: 105 | Chapter: 6.2.43 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorTeletext struct {
	Items []DescriptorTeletextItem
}

// DescriptorTeletextItem represents a teletext descriptor item
// Chapter: 6.2.43 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorTeletextItem struct {
	Language [3]byte
	Magazine uint8
	Page     uint8
	Type     uint8
}

func parseDescriptorTeletext(i *astikit.BytesIterator, offsetEnd int) (d *DescriptorTeletext, err error) {
	d = &DescriptorTeletext{Items: make([]DescriptorTeletextItem, (offsetEnd-i.Offset())/5)}
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(5); err != nil || len(bs) < 5 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		copy(d.Items[idx].Language[:], bs)
		d.Items[idx].Type = bs[3] >> 3
		d.Items[idx].Magazine = bs[3] & 0x7
		d.Items[idx].Page = bs[4]>>4*10 + bs[4]&0xf
	}
	return
}

func newDescriptorTeletext(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	dd.Teletext, err = parseDescriptorTeletext(i, offsetEnd)
	return
}

func newDescriptorVBITeletext(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	dd.VBITeletext, err = parseDescriptorTeletext(i, offsetEnd)
	return
}

// DescriptorLocalTimeOffset represents a local time offset descriptor
// Page: 84 | Chapter: 6.2.20 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorLocalTimeOffset struct {
	Items []DescriptorLocalTimeOffsetItem
}

// DescriptorLocalTimeOffsetItem represents a local time offset item descriptor
// Chapter: 6.2.20 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorLocalTimeOffsetItem struct {
	CountryCode             [3]byte
	CountryRegionID         uint8
	LocalTimeOffset         time.Duration
	LocalTimeOffsetPolarity bool // Negative offset when set
	NextTimeOffset          time.Duration
	TimeOfChange            time.Time
}

func newDescriptorLocalTimeOffset(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorLocalTimeOffset{Items: make([]DescriptorLocalTimeOffsetItem, (offsetEnd-i.Offset())/13)}
	for idx := range d.Items {
		item := &d.Items[idx]

		// Country code
		if item.CountryCode, err = nextLanguage(i); err != nil {
			return
		}

		// Get next byte
		var b byte
		if b, err = i.NextByte(); err != nil {
			err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
			return
		}
		item.CountryRegionID = b >> 2
		item.LocalTimeOffsetPolarity = b&0x1 > 0

		// Local time offset
		if item.LocalTimeOffset, err = parseDVBDurationMinutes(i); err != nil {
			err = fmt.Errorf("tssi: parsing DVB duration minutes failed: %w", err)
			return
		}

		// Time of change
		if item.TimeOfChange, err = parseDVBTime(i); err != nil {
			err = fmt.Errorf("tssi: parsing DVB time failed: %w", err)
			return
		}

		// Next time offset
		if item.NextTimeOffset, err = parseDVBDurationMinutes(i); err != nil {
			err = fmt.Errorf("tssi: parsing DVB duration minutes failed: %w", err)
			return
		}
	}
	dd.LocalTimeOffset = d
	return
}

// DescriptorSubtitling represents a subtitling descriptor
// Page: 103 | Chapter: 6.2.41 | Link: https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
type DescriptorSubtitling struct {
	Items []DescriptorSubtitlingItem
}

// DescriptorSubtitlingItem represents subtitling descriptor item
// Chapter: 6.2.41 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorSubtitlingItem struct {
	AncillaryPageID   uint16
	CompositionPageID uint16
	Language          [3]byte
	Type              uint8
}

func newDescriptorSubtitling(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorSubtitling{Items: make([]DescriptorSubtitlingItem, (offsetEnd-i.Offset())/8)}
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(8); err != nil || len(bs) < 8 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		copy(d.Items[idx].Language[:], bs)
		d.Items[idx].Type = bs[3]
		d.Items[idx].CompositionPageID = binary.BigEndian.Uint16(bs[4:6])
		d.Items[idx].AncillaryPageID = binary.BigEndian.Uint16(bs[6:8])
	}
	dd.Subtitling = d
	return
}

// DescriptorPrivateDataSpecifier represents a private data specifier descriptor
type DescriptorPrivateDataSpecifier struct {
	Specifier uint32
}

func newDescriptorPrivateDataSpecifier(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	dd.PrivateDataSpecifier = &DescriptorPrivateDataSpecifier{Specifier: binary.BigEndian.Uint32(bs)}
	return
}

// DescriptorPDC represents a PDC descriptor
// Chapter: 6.2.30 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorPDC struct {
	PIL uint32 // Programme identification label, 20 bits
}

// Day returns the day encoded in the PIL
func (d *DescriptorPDC) Day() uint8 { return uint8(d.PIL >> 15 & 0x1f) }

// Month returns the month encoded in the PIL
func (d *DescriptorPDC) Month() uint8 { return uint8(d.PIL >> 11 & 0xf) }

// Hour returns the hour encoded in the PIL
func (d *DescriptorPDC) Hour() uint8 { return uint8(d.PIL >> 6 & 0x1f) }

// Minute returns the minute encoded in the PIL
func (d *DescriptorPDC) Minute() uint8 { return uint8(d.PIL & 0x3f) }

func newDescriptorPDC(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	dd.PDC = &DescriptorPDC{PIL: uint32(bs[0]&0xf)<<16 | uint32(bs[1])<<8 | uint32(bs[2])}
	return
}

// DescriptorAC3 represents an AC3 descriptor
// Chapter: Annex D | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorAC3 struct {
	AdditionalInfo   []byte
	ASVC             uint8
	BSID             uint8
	ComponentType    uint8
	HasASVC          bool
	HasBSID          bool
	HasComponentType bool
	HasMainID        bool
	MainID           uint8
}

// nextOptionalByte fetches a byte when has is set
func nextOptionalByte(i *astikit.BytesIterator, has bool, dst *uint8) (err error) {
	if !has {
		return
	}
	if *dst, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
	}
	return
}

func newDescriptorAC3(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Create descriptor
	d := &DescriptorAC3{
		HasASVC:          b&0x10 > 0,
		HasBSID:          b&0x40 > 0,
		HasComponentType: b&0x80 > 0,
		HasMainID:        b&0x20 > 0,
	}

	// Optional fields
	for _, f := range []struct {
		has bool
		dst *uint8
	}{
		{has: d.HasComponentType, dst: &d.ComponentType},
		{has: d.HasBSID, dst: &d.BSID},
		{has: d.HasMainID, dst: &d.MainID},
		{has: d.HasASVC, dst: &d.ASVC},
	} {
		if err = nextOptionalByte(i, f.has, f.dst); err != nil {
			return
		}
	}

	// Additional info
	if i.Offset() < offsetEnd {
		if d.AdditionalInfo, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.AC3 = d
	return
}

// DescriptorEnhancedAC3 represents an enhanced AC3 descriptor
// Chapter: Annex D | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorEnhancedAC3 struct {
	AdditionalInfo   []byte
	ASVC             uint8
	BSID             uint8
	ComponentType    uint8
	HasASVC          bool
	HasBSID          bool
	HasComponentType bool
	HasMainID        bool
	HasSubStream1    bool
	HasSubStream2    bool
	HasSubStream3    bool
	MainID           uint8
	MixInfoExists    bool
	SubStream1       uint8
	SubStream2       uint8
	SubStream3       uint8
}

func newDescriptorEnhancedAC3(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Create descriptor
	d := &DescriptorEnhancedAC3{
		HasASVC:          b&0x10 > 0,
		HasBSID:          b&0x40 > 0,
		HasComponentType: b&0x80 > 0,
		HasMainID:        b&0x20 > 0,
		HasSubStream1:    b&0x4 > 0,
		HasSubStream2:    b&0x2 > 0,
		HasSubStream3:    b&0x1 > 0,
		MixInfoExists:    b&0x8 > 0,
	}

	// Optional fields
	for _, f := range []struct {
		has bool
		dst *uint8
	}{
		{has: d.HasComponentType, dst: &d.ComponentType},
		{has: d.HasBSID, dst: &d.BSID},
		{has: d.HasMainID, dst: &d.MainID},
		{has: d.HasASVC, dst: &d.ASVC},
		{has: d.HasSubStream1, dst: &d.SubStream1},
		{has: d.HasSubStream2, dst: &d.SubStream2},
		{has: d.HasSubStream3, dst: &d.SubStream3},
	} {
		if err = nextOptionalByte(i, f.has, f.dst); err != nil {
			return
		}
	}

	// Additional info
	if i.Offset() < offsetEnd {
		if d.AdditionalInfo, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.EnhancedAC3 = d
	return
}

// DescriptorApplicationSignalling represents an application signalling descriptor
// Chapter: 5.3.5.1 | Link: https://www.etsi.org/deliver/etsi_ts/102800_102899/102809/01.03.01_60/ts_102809v010301p.pdf
type DescriptorApplicationSignalling struct {
	Items []DescriptorApplicationSignallingItem
}

// DescriptorApplicationSignallingItem represents one AIT announced by an application signalling descriptor
type DescriptorApplicationSignallingItem struct {
	AITVersion      uint8
	ApplicationType uint16
}

func newDescriptorApplicationSignalling(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorApplicationSignalling{Items: make([]DescriptorApplicationSignallingItem, (offsetEnd-i.Offset())/3)}
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		d.Items[idx] = DescriptorApplicationSignallingItem{
			ApplicationType: binary.BigEndian.Uint16(bs) & 0x7fff,
			AITVersion:      bs[2] & 0x1f,
		}
	}
	dd.ApplicationSignalling = d
	return
}

// DescriptorExtension represents an extension descriptor
// Chapter: 6.2.16 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorExtension struct {
	SupplementaryAudio *DescriptorExtensionSupplementaryAudio
	Tag                uint8
	Unknown            []byte
}

func newDescriptorExtension(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	d := &DescriptorExtension{Tag: b}

	// Switch on tag
	switch d.Tag {
	case DescriptorTagExtensionSupplementaryAudio:
		if d.SupplementaryAudio, err = newDescriptorExtensionSupplementaryAudio(i, offsetEnd); err != nil {
			err = fmt.Errorf("tssi: parsing extension supplementary audio descriptor failed: %w", err)
			return
		}
	default:
		if d.Unknown, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.Extension = d
	return
}

// DescriptorExtensionSupplementaryAudio represents a supplementary audio extension descriptor
// Chapter: 6.4.10 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300468/01.15.01_60/en_300468v011501p.pdf
type DescriptorExtensionSupplementaryAudio struct {
	EditorialClassification uint8
	HasLanguageCode         bool
	LanguageCode            [3]byte
	MixType                 bool
	PrivateData             []byte
}

func newDescriptorExtensionSupplementaryAudio(i *astikit.BytesIterator, offsetEnd int) (d *DescriptorExtensionSupplementaryAudio, err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Init
	d = &DescriptorExtensionSupplementaryAudio{
		EditorialClassification: b >> 2 & 0x1f,
		HasLanguageCode:         b&0x1 > 0,
		MixType:                 b&0x80 > 0,
	}

	// Language code
	if d.HasLanguageCode {
		if d.LanguageCode, err = nextLanguage(i); err != nil {
			return
		}
	}

	// Private data
	if i.Offset() < offsetEnd {
		if d.PrivateData, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	return
}
