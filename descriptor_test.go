package tssi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptorLoop(t *testing.T) {
	loop := append([]byte{}, descriptor(DescriptorTagTeletext, 'd', 'e', 'u', 0x11, 0x50, 'e', 'n', 'g', 0x29, 0x88)...)
	loop = append(loop, descriptor(DescriptorTagISO639LanguageAndAudioType, 'f', 'r', 'a', AudioTypeHearingImpaired)...)
	loop = append(loop, descriptor(DescriptorTagParentalRating, 'F', 'R', 'A', 0x09)...)
	loop = append(loop, descriptor(DescriptorTagService, 0x01, 0x0a, 'x')...)
	loop = append(loop, descriptor(0x30, 0x01, 0x02)...)
	loop = append(loop, descriptor(0x90, 0x03)...)
	loop = append(loop, descriptor(DescriptorTagParentalRating, 'G', 'B', 'R', 0x00)...)

	l, err := parseDescriptorLoop(loop, descriptorScopeSI)
	require.NoError(t, err)
	require.Equal(t, 7, l.Length())
	assert.Len(t, l.Descriptors(), 7)

	d, err := l.DescriptorByTag(DescriptorTagTeletext)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), d.Length)
	assert.Equal(t, &DescriptorTeletext{Items: []DescriptorTeletextItem{
		{Language: [3]byte{'d', 'e', 'u'}, Magazine: 1, Page: 50, Type: 2},
		{Language: [3]byte{'e', 'n', 'g'}, Magazine: 1, Page: 88, Type: 5},
	}}, d.Teletext)

	d, err = l.DescriptorByTag(DescriptorTagISO639LanguageAndAudioType)
	require.NoError(t, err)
	assert.Equal(t, []DescriptorISO639LanguageAndAudioTypeItem{{Language: [3]byte{'f', 'r', 'a'}, Type: AudioTypeHearingImpaired}}, d.ISO639LanguageAndAudioType.Items)

	// Occurrences
	assert.Equal(t, 2, l.LengthForTag(DescriptorTagParentalRating))
	d, err = l.DescriptorByTagOccurrence(DescriptorTagParentalRating, 1)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{'G', 'B', 'R'}, d.ParentalRating.Items[0].CountryCode)
	assert.Zero(t, d.ParentalRating.Items[0].MinimumAge())
	d, err = l.DescriptorByTagOccurrence(DescriptorTagParentalRating, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, d.ParentalRating.Items[0].MinimumAge())
	_, err = l.DescriptorByTagOccurrence(DescriptorTagParentalRating, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	// Corrupted bodies fall back to unknown
	d, err = l.DescriptorByTag(DescriptorTagService)
	require.NoError(t, err)
	assert.Nil(t, d.Service)
	assert.Equal(t, []byte{0x01, 0x0a, 'x'}, d.Unknown)

	// Tags without decoder
	tag, err := l.DescriptorTag(4)
	require.NoError(t, err)
	assert.Equal(t, DescriptorTag(0x30), tag)
	d, err = l.Descriptor(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, d.Unknown)
	d, err = l.Descriptor(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, d.UserDefined)
	length, err := l.DescriptorLength(5)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), length)

	// Absent
	_, err = l.DescriptorByTag(DescriptorTagShortEvent)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Descriptor(7)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.DescriptorTag(-1)
	assert.ErrorIs(t, err, ErrNotFound)

	l.Reset()
	assert.Zero(t, l.Length())
}

func TestParseDescriptorLoopErrors(t *testing.T) {
	_, err := parseDescriptorLoop([]byte{0x48}, descriptorScopeSI)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = parseDescriptorLoop([]byte{0x48, 0x05, 0x01}, descriptorScopeSI)
	assert.ErrorIs(t, err, ErrShortBuffer)

	var l *DescriptorList
	assert.Zero(t, l.Length())
	_, err = l.DescriptorByTag(DescriptorTagService)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDescriptorScopes(t *testing.T) {
	transportProtocol := descriptor(DescriptorTagTransportProtocol, 0x00, 0x01, 0x02, 0x80, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x0b)
	name := descriptor(DescriptorTagApplicationName, 'e', 'n', 'g', 0x02, 'H', 'i')
	networkName := descriptor(DescriptorTagNetworkName, 'N')
	loop := append(append(append([]byte{}, transportProtocol...), name...), networkName...)

	// AIT
	l, err := parseDescriptorLoop(loop, descriptorScopeAIT)
	require.NoError(t, err)
	d, err := l.Descriptor(0)
	require.NoError(t, err)
	require.NotNil(t, d.TransportProtocol)
	assert.Equal(t, &DescriptorTransportProtocol{
		Label: 0x02,
		ObjectCarousel: &DescriptorTransportProtocolObjectCarousel{
			ComponentTag:      0x0b,
			OriginalNetworkID: 0x1,
			RemoteConnection:  true,
			ServiceID:         0x3,
			TransportStreamID: 0x2,
		},
		ProtocolID: TransportProtocolIDObjectCarousel,
	}, d.TransportProtocol)
	d, err = l.Descriptor(1)
	require.NoError(t, err)
	require.NotNil(t, d.ApplicationName)
	assert.Equal(t, "Hi", d.ApplicationName.Items[0].String())

	// Tags above 0x40 are shared with SI
	d, err = l.Descriptor(2)
	require.NoError(t, err)
	require.NotNil(t, d.NetworkName)
	assert.Equal(t, "N", d.NetworkName.String())

	// SI
	l, err = parseDescriptorLoop(loop, descriptorScopeSI)
	require.NoError(t, err)
	d, err = l.Descriptor(0)
	require.NoError(t, err)
	assert.Nil(t, d.TransportProtocol)
	d, err = l.Descriptor(1)
	require.NoError(t, err)
	assert.Nil(t, d.ApplicationName)
	assert.Equal(t, name[2:], d.Unknown)

	// DSM-CC
	l, err = parseDescriptorLoop(descriptor(DescriptorTagCompressedModule, 0x08, 0x00, 0x00, 0x10, 0x00), descriptorScopeDSMCC)
	require.NoError(t, err)
	d, err = l.Descriptor(0)
	require.NoError(t, err)
	assert.Equal(t, &DescriptorCompressedModule{CompressionMethod: 0x08, OriginalSize: 0x1000}, d.CompressedModule)
}
