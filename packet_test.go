package tssi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketParse(t *testing.T) {
	t.Run("payload only", func(t *testing.T) {
		payload := make([]byte, MpegTsPacketSize-mpegTsPacketHeaderSize)
		payload[0] = 0x42
		bs := buildPacket(0x1234, 7, true, payload)
		var p Packet
		require.NoError(t, p.parse(bs))
		assert.Equal(t, PacketHeader{
			ContinuityCounter:         7,
			HasPayload:                true,
			PayloadUnitStartIndicator: true,
			PID:                       0x1234,
		}, p.Header)
		assert.Nil(t, p.AdaptationField)
		assert.Equal(t, payload, p.Payload)
	})

	t.Run("stuffing", func(t *testing.T) {
		var p Packet
		require.NoError(t, p.parse(buildPacket(0x100, 0, false, []byte{0x01, 0x02})))
		require.NotNil(t, p.AdaptationField)
		assert.Equal(t, uint8(181), p.AdaptationField.Length)
		assert.Equal(t, uint8(180), p.AdaptationField.StuffingLength)
		assert.Equal(t, []byte{0x01, 0x02}, p.Payload)
	})

	t.Run("pcr", func(t *testing.T) {
		var p Packet
		require.NoError(t, p.parse(newPacketizer().pcrPacket(0x101, 5, 7)))
		assert.False(t, p.Header.HasPayload)
		assert.Nil(t, p.Payload)
		require.NotNil(t, p.AdaptationField)
		assert.True(t, p.AdaptationField.HasPCR)
		assert.Equal(t, ClockReference{Base: 5, Extension: 7}, p.AdaptationField.PCR)
		assert.Equal(t, uint8(176), p.AdaptationField.StuffingLength)
	})

	t.Run("scrambled with discontinuity", func(t *testing.T) {
		bs := buildPacket(0x100, 3, false, []byte{0x01})
		bs[3] |= ScramblingControlScrambledWithEvenKey << 6
		bs[5] |= 0x80
		var p Packet
		require.NoError(t, p.parse(bs))
		assert.Equal(t, uint8(ScramblingControlScrambledWithEvenKey), p.Header.TransportScramblingControl)
		assert.True(t, p.hasDiscontinuityIndicator())
	})

	t.Run("errors", func(t *testing.T) {
		var p Packet
		bs := buildPacket(0x100, 0, false, []byte{0x01})
		bs[0] = 0x00
		assert.ErrorIs(t, p.parse(bs), ErrPacketMustStartWithASyncByte)

		bs = buildPacket(0x100, 0, false, []byte{0x01})
		bs[4] = 184
		assert.Error(t, p.parse(bs))

		// PCR flag set without room for it
		bs = buildPacket(0x100, 0, false, make([]byte, 182))
		bs[4], bs[5] = 1, 0x10
		assert.Error(t, p.parse(bs))
	})
}

func TestClockReference(t *testing.T) {
	assert.Equal(t, uint64(0), newClockReference(0, 0).Value())
	assert.Equal(t, uint64(300), newClockReference(1, 0).Value())
	assert.Equal(t, uint64(901), newClockReference(3, 1).Value())
	assert.Equal(t, int64(1e9), newClockReference(90000, 0).Duration().Nanoseconds())
}
