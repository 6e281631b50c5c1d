package inflate

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZlibHeaderDefaults(t *testing.T) {
	hdr := ZlibHeader{CMF: 0x78, FLG: 0x9c}
	require.NoError(t, hdr.Validate())
	assert.Equal(t, byte(8), hdr.Method())
	assert.Equal(t, byte(7), hdr.WindowInfo())
	assert.False(t, hdr.HasDict())
	assert.Equal(t, byte(2), hdr.Level())
}

func TestZlibHeaderSingleBitFlips(t *testing.T) {
	for bit := 0; bit < 16; bit++ {
		hdr := ZlibHeader{CMF: 0x78, FLG: 0x9c}
		if bit < 8 {
			hdr.CMF ^= 1 << bit
		} else {
			hdr.FLG ^= 1 << (bit - 8)
		}

		err := hdr.Validate()
		assert.True(t, errors.Is(err, ErrMalformedZlibHeader), "bit %d: %v", bit, err)
	}
}

func TestZlibHeaderRejections(t *testing.T) {
	cases := map[string]ZlibHeader{
		"not deflate":    {CMF: 0x79, FLG: 0x00},
		"window too big": {CMF: 0x88, FLG: 0x1c},
		"preset dict":    {CMF: 0x78, FLG: 0xbb},
	}

	for name, hdr := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(hdr.Validate(), ErrMalformedZlibHeader))
		})
	}
}

func TestDecompressZlibRoundTrip(t *testing.T) {
	input := testInputs()["text"]

	for _, level := range []int{zlib.NoCompression, zlib.BestSpeed, zlib.DefaultCompression, zlib.BestCompression} {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, level)
		require.NoError(t, err)
		_, err = zw.Write(input)
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		stream := buf.Bytes()

		// Header bytes split across slices like a one byte IDAT would.
		out := make([]byte, len(input))
		n, err := DecompressZlib(out, NewSliceSource(stream[:1], stream[1:2], stream[2:]))
		require.NoError(t, err, "level %d", level)
		assert.Equal(t, len(input), n)
		assert.True(t, bytes.Equal(input, out), "level %d", level)
	}
}

func TestDecompressZlibTooSmall(t *testing.T) {
	input := testInputs()["text"]

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(input)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = DecompressZlib(make([]byte, len(input)-1), NewSliceSource(buf.Bytes()))
	assert.True(t, errors.Is(err, ErrOutputBufferOverflow))
}

func TestDecompressZlibNoInput(t *testing.T) {
	_, err := DecompressZlib(nil, NewSliceSource())
	assert.True(t, errors.Is(err, ErrInputExhausted))
}
