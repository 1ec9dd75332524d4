package tssi

import (
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDVBTime(t *testing.T) {
	d, err := parseDVBTime(astikit.NewBytesIterator([]byte{0xc0, 0x79, 0x12, 0x45, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, time.Date(1993, 10, 13, 12, 45, 0, 0, time.UTC), d)

	d, err = parseDVBTime(astikit.NewBytesIterator([]byte{0xff, 0xff, 0xff, 0xff, 0xff}))
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	for _, v := range []time.Time{
		time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2038, 1, 19, 3, 14, 8, 0, time.UTC),
	} {
		d, err = parseDVBTime(astikit.NewBytesIterator(dvbTime(v)))
		require.NoError(t, err)
		assert.Equal(t, v, d)
	}

	_, err = parseDVBTime(astikit.NewBytesIterator([]byte{0xc0, 0x79}))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestParseDVBDuration(t *testing.T) {
	d, err := parseDVBDurationMinutes(astikit.NewBytesIterator([]byte{0x01, 0x30}))
	require.NoError(t, err)
	assert.Equal(t, time.Hour+30*time.Minute, d)

	d, err = parseDVBDurationSeconds(astikit.NewBytesIterator([]byte{0x01, 0x23, 0x45}))
	require.NoError(t, err)
	assert.Equal(t, time.Hour+23*time.Minute+45*time.Second, d)

	_, err = parseDVBDurationSeconds(astikit.NewBytesIterator([]byte{0x01}))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeDVBText(t *testing.T) {
	for _, c := range []struct {
		in   []byte
		name string
		want string
	}{
		{name: "empty", want: ""},
		{in: []byte("News"), name: "default table", want: "News"},
		{in: []byte{'C', 'a', 'f', 0xe9}, name: "default table latin", want: "Café"},
		{in: []byte{0x10, 0x00, 0x02, 0xb1}, name: "ISO 8859-2", want: "ą"},
		{in: []byte{0x01, 0xc0}, name: "ISO 8859-5", want: "Р"},
		{in: []byte{0x15, 0xc3, 0xa9, 't', 0xc3, 0xa9}, name: "UTF-8", want: "été"},
		{in: []byte{0x11, 0x00, 'O', 0x00, 'K'}, name: "UTF-16", want: "OK"},
		{in: []byte{0x86, 'A', 0x87, 0x8a, 'B'}, name: "control codes", want: "A\nB"},
		{in: []byte{0x10, 0x00}, name: "truncated table", want: ""},
	} {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, decodeDVBText(c.in))
		})
	}
}
