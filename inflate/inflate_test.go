package inflate

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bitWriter packs bits the way DEFLATE does, for hand-built streams.
type bitWriter struct {
	buf   []byte
	nbits uint
}

func (w *bitWriter) writeBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		w.buf[len(w.buf)-1] |= byte((v>>i)&1) << (w.nbits % 8)
		w.nbits++
	}
}

// writeCode emits a Huffman code, most significant bit first.
func (w *bitWriter) writeCode(e Entry) {
	for i := int(e.Bits) - 1; i >= 0; i-- {
		w.writeBits(uint32(e.Pattern>>uint(i))&1, 1)
	}
}

func (w *bitWriter) align() {
	w.nbits = uint(len(w.buf)) * 8
}

func (w *bitWriter) writeBytes(b ...byte) {
	w.align()
	w.buf = append(w.buf, b...)
	w.nbits += uint(len(b)) * 8
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

func TestStoredBlock(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1)
	w.writeBits(blockStored, 2)
	w.writeBytes(0x05, 0x00, 0xfa, 0xff)
	w.writeBytes('h', 'e', 'l', 'l', 'o')

	stream := w.bytes()
	out := make([]byte, 5)

	n, err := Inflate(out, NewSliceSource(stream[:3], stream[3:6], stream[6:]))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), out)
}

func TestStoredBlockLenMismatch(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1)
	w.writeBits(blockStored, 2)
	w.writeBytes(0x05, 0x00, 0xfb, 0xff, 1, 2, 3, 4, 5)

	_, err := Inflate(make([]byte, 5), NewSliceSource(w.bytes()))
	assert.True(t, errors.Is(err, ErrMalformedBlockHeader))
}

func TestReservedBlockType(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1)
	w.writeBits(0b11, 2)

	_, err := Inflate(make([]byte, 1), NewSliceSource(w.bytes()))
	assert.True(t, errors.Is(err, ErrMalformedBlockHeader))
}

func fixedBlock(build func(w *bitWriter)) []byte {
	var w bitWriter
	w.writeBits(1, 1)
	w.writeBits(blockFixed, 2)
	build(&w)
	w.writeCode(FixedLitLen().Entry(endOfBlock))

	return w.bytes()
}

func TestOverlappingBackReference(t *testing.T) {
	lit, dist := FixedLitLen(), FixedDist()

	stream := fixedBlock(func(w *bitWriter) {
		for _, b := range []byte("XYZ") {
			w.writeCode(lit.Entry(int(b)))
		}
		w.writeCode(lit.Entry(264)) // length 10
		w.writeCode(dist.Entry(2))  // distance 3
	})

	out := make([]byte, 13)
	n, err := Inflate(out, NewSliceSource(stream))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "XYZXYZXYZXYZX", string(out))
}

func TestBackReferenceOutOfRange(t *testing.T) {
	lit, dist := FixedLitLen(), FixedDist()

	stream := fixedBlock(func(w *bitWriter) {
		w.writeCode(lit.Entry('A'))
		w.writeCode(lit.Entry(257)) // length 3
		w.writeCode(dist.Entry(1))  // distance 2
	})

	_, err := Inflate(make([]byte, 16), NewSliceSource(stream))
	assert.True(t, errors.Is(err, ErrBackReferenceOutOfRange))
}

func TestLengthAndDistanceExtraBits(t *testing.T) {
	lit, dist := FixedLitLen(), FixedDist()

	// 20 literals, then length 265+1 (12) at distance 7+1 (8).
	src := []byte("abcdefghijklmnopqrst")
	stream := fixedBlock(func(w *bitWriter) {
		for _, b := range src {
			w.writeCode(lit.Entry(int(b)))
		}
		w.writeCode(lit.Entry(265))
		w.writeBits(1, 1)
		w.writeCode(dist.Entry(5))
		w.writeBits(1, 1)
	})

	out := make([]byte, len(src)+12)
	n, err := Inflate(out, NewSliceSource(stream))
	require.NoError(t, err)
	require.Equal(t, len(out), n)
	assert.Equal(t, "abcdefghijklmnopqrst"+"mnopqrstmnop", string(out))
}

func TestLiteralOverflow(t *testing.T) {
	lit := FixedLitLen()
	stream := fixedBlock(func(w *bitWriter) {
		w.writeCode(lit.Entry('a'))
		w.writeCode(lit.Entry('b'))
	})

	n, err := Inflate(make([]byte, 1), NewSliceSource(stream))
	assert.True(t, errors.Is(err, ErrOutputBufferOverflow))
	assert.Equal(t, 1, n)
}

func TestCopyBackInternals(t *testing.T) {
	f := NewInflater(nil, make([]byte, 8))
	copy(f.out, "ab")
	f.pos = 2

	require.NoError(t, f.copyBack(1, 3))
	assert.Equal(t, "abbbb", string(f.out[:f.pos]))

	assert.True(t, errors.Is(f.copyBack(6, 1), ErrBackReferenceOutOfRange))
	assert.True(t, errors.Is(f.copyBack(1, 4), ErrOutputBufferOverflow))
}

func testInputs() map[string][]byte {
	rng := rand.New(rand.NewSource(1))

	random := make([]byte, 70_000)
	rng.Read(random)

	var text bytes.Buffer
	words := []string{"png ", "deflate ", "huffman ", "scanline ", "paeth ", "adam7 "}
	for text.Len() < 200_000 {
		text.WriteString(words[rng.Intn(len(words))])
	}

	repeats := bytes.Repeat([]byte("abcabcabd"), 400_000)

	return map[string][]byte{
		"empty":   {},
		"one":     {42},
		"random":  random,
		"text":    text.Bytes(),
		"repeats": repeats,
	}
}

// split cuts b into slices of random length, including empty ones.
func split(b []byte, rng *rand.Rand) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := rng.Intn(300)
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}

	return out
}

func TestRoundTripRawDeflate(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for name, input := range testInputs() {
		for _, level := range []int{flate.HuffmanOnly, flate.NoCompression, flate.BestSpeed, 5, flate.BestCompression} {
			if testing.Short() && len(input) > 100_000 && level != flate.BestSpeed {
				continue
			}

			var buf bytes.Buffer
			fw, err := flate.NewWriter(&buf, level)
			require.NoError(t, err)
			_, err = fw.Write(input)
			require.NoError(t, err)
			require.NoError(t, fw.Close())

			out := make([]byte, len(input))
			n, err := Inflate(out, NewSliceSource(split(buf.Bytes(), rng)...))
			require.NoError(t, err, "%s at level %d", name, level)
			require.Equal(t, len(input), n, "%s at level %d", name, level)
			assert.True(t, bytes.Equal(input, out), "%s at level %d", name, level)
		}
	}
}

func TestInputExhaustedMidStream(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	require.NoError(t, err)
	_, err = fw.Write(testInputs()["text"])
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	stream := buf.Bytes()
	_, err = Inflate(make([]byte, 1<<20), NewSliceSource(stream[:len(stream)/2]))
	assert.True(t, errors.Is(err, ErrInputExhausted))
}
