package tssi

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astikit"
)

// Audio types
// Page: 683 | https://books.google.fr/books?id=6dgWB3-rChYC&printsec=frontcover&hl=fr
const (
	AudioTypeCleanEffects             = 0x1
	AudioTypeHearingImpaired          = 0x2
	AudioTypeVisualImpairedCommentary = 0x3
)

// Data stream alignments
// Page: 85 | Chapter:2.6.11 | Link: http://ecee.colorado.edu/~ecen5653/ecen5653/papers/iso13818-1.pdf
const (
	DataStreamAligmentAudioSyncWord          = 0x1
	DataStreamAligmentVideoSliceOrAccessUnit = 0x1
	DataStreamAligmentVideoAccessUnit        = 0x2
	DataStreamAligmentVideoGOPOrSEQ          = 0x3
	DataStreamAligmentVideoSEQ               = 0x4
)

// Frame rate codes
// Table 6-4 | ISO/IEC 13818-2
const (
	FrameRateCode23976 = 0x1
	FrameRateCode24    = 0x2
	FrameRateCode25    = 0x3
	FrameRateCode2997  = 0x4
	FrameRateCode30    = 0x5
	FrameRateCode50    = 0x6
	FrameRateCode5994  = 0x7
	FrameRateCode60    = 0x8
)

// DescriptorVideoStream represents a video stream descriptor
// Chapter: 2.6.2 | Link: http://ecee.colorado.edu/~ecen5653/ecen5653/papers/iso13818-1.pdf
type DescriptorVideoStream struct {
	ChromaFormat              uint8
	ConstrainedParameterFlag  bool
	FrameRateCode             uint8
	FrameRateExtensionFlag    bool
	MPEG1OnlyFlag             bool
	MultipleFrameRateFlag     bool
	ProfileAndLevelIndication uint8 // Only set when MPEG1OnlyFlag is false
	StillPictureFlag          bool
}

func newDescriptorVideoStream(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next byte
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}

	// Create descriptor
	d := &DescriptorVideoStream{
		ConstrainedParameterFlag: b&0x2 > 0,
		FrameRateCode:            b >> 3 & 0xf,
		MPEG1OnlyFlag:            b&0x4 > 0,
		MultipleFrameRateFlag:    b&0x80 > 0,
		StillPictureFlag:         b&0x1 > 0,
	}

	// MPEG-2 extension
	if !d.MPEG1OnlyFlag {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(2); err != nil || len(bs) < 2 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		d.ProfileAndLevelIndication = bs[0]
		d.ChromaFormat = bs[1] >> 6
		d.FrameRateExtensionFlag = bs[1]&0x20 > 0
	}
	dd.VideoStream = d
	return
}

// DescriptorRegistration represents a registration descriptor
// Page: 84 | http://ecee.colorado.edu/~ecen5653/ecen5653/papers/iso13818-1.pdf
type DescriptorRegistration struct {
	AdditionalIdentificationInfo []byte
	FormatIdentifier             uint32
}

func newDescriptorRegistration(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	// Create descriptor
	d := &DescriptorRegistration{FormatIdentifier: binary.BigEndian.Uint32(bs)}

	// Additional identification info
	if i.Offset() < offsetEnd {
		if d.AdditionalIdentificationInfo, err = nextBytes(i, offsetEnd-i.Offset()); err != nil {
			return
		}
	}
	dd.Registration = d
	return
}

// DescriptorDataStreamAlignment represents a data stream alignment descriptor
type DescriptorDataStreamAlignment struct {
	Type uint8
}

func newDescriptorDataStreamAlignment(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var b byte
	if b, err = i.NextByte(); err != nil {
		err = fmt.Errorf("tssi: fetching next byte failed: %w", err)
		return
	}
	dd.DataStreamAlignment = &DescriptorDataStreamAlignment{Type: b}
	return
}

// DescriptorISO639LanguageAndAudioType represents an ISO639 language descriptor
// https://github.com/gfto/bitstream/blob/master/mpeg/psi/desc_0a.h
type DescriptorISO639LanguageAndAudioType struct {
	Items []DescriptorISO639LanguageAndAudioTypeItem
}

// DescriptorISO639LanguageAndAudioTypeItem represents one language of an ISO639 language descriptor
type DescriptorISO639LanguageAndAudioTypeItem struct {
	Language [3]byte
	Type     uint8
}

func newDescriptorISO639LanguageAndAudioType(dd *Descriptor, i *astikit.BytesIterator, offsetEnd int) (err error) {
	d := &DescriptorISO639LanguageAndAudioType{}

	// In some actual cases, the length is 3 and the language is described in only 2 bytes
	if offsetEnd-i.Offset() == 3 {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		item := DescriptorISO639LanguageAndAudioTypeItem{Type: bs[2]}
		copy(item.Language[:], bs[:2])
		d.Items = append(d.Items, item)
		dd.ISO639LanguageAndAudioType = d
		return
	}

	// Items
	d.Items = make([]DescriptorISO639LanguageAndAudioTypeItem, (offsetEnd-i.Offset())/4)
	for idx := range d.Items {
		var bs []byte
		if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
			err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
			return
		}
		copy(d.Items[idx].Language[:], bs)
		d.Items[idx].Type = bs[3]
	}
	dd.ISO639LanguageAndAudioType = d
	return
}

// DescriptorMaximumBitrate represents a maximum bitrate descriptor
type DescriptorMaximumBitrate struct {
	Bitrate uint32 // In bytes/second
}

func newDescriptorMaximumBitrate(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(3); err != nil || len(bs) < 3 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	dd.MaximumBitrate = &DescriptorMaximumBitrate{Bitrate: (uint32(bs[0]&0x3f)<<16 | uint32(bs[1])<<8 | uint32(bs[2])) * 50}
	return
}

// DescriptorPrivateDataIndicator represents a private data Indicator descriptor
type DescriptorPrivateDataIndicator struct {
	Indicator uint32
}

func newDescriptorPrivateDataIndicator(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	var bs []byte
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}
	dd.PrivateDataIndicator = &DescriptorPrivateDataIndicator{Indicator: binary.BigEndian.Uint32(bs)}
	return
}

// DescriptorAVCVideo represents an AVC video descriptor
// No doc found unfortunately, basing the implementation on https://github.com/gfto/bitstream/blob/master/mpeg/psi/desc_28.h
type DescriptorAVCVideo struct {
	AVC24HourPictureFlag bool
	AVCStillPresent      bool
	CompatibleFlags      uint8
	ConstraintSet0Flag   bool
	ConstraintSet1Flag   bool
	ConstraintSet2Flag   bool
	LevelIDC             uint8
	ProfileIDC           uint8
}

func newDescriptorAVCVideo(dd *Descriptor, i *astikit.BytesIterator, _ int) (err error) {
	// Get next bytes
	var bs []byte
	if bs, err = i.NextBytesNoCopy(4); err != nil || len(bs) < 4 {
		err = fmt.Errorf("tssi: fetching next bytes failed: %w", errOrShort(err))
		return
	}

	dd.AVCVideo = &DescriptorAVCVideo{
		ProfileIDC:           bs[0],
		ConstraintSet0Flag:   bs[1]&0x80 > 0,
		ConstraintSet1Flag:   bs[1]&0x40 > 0,
		ConstraintSet2Flag:   bs[1]&0x20 > 0,
		CompatibleFlags:      bs[1] & 0x1f,
		LevelIDC:             bs[2],
		AVCStillPresent:      bs[3]&0x80 > 0,
		AVC24HourPictureFlag: bs[3]&0x40 > 0,
	}
	return
}
