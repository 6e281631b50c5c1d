package unfilter

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// ColorType is the PNG IHDR color type.
type ColorType uint8

const (
	Grayscale      ColorType = 0
	TrueColor      ColorType = 2
	Indexed        ColorType = 3
	GrayscaleAlpha ColorType = 4
	TrueColorAlpha ColorType = 6
)

func (ct ColorType) String() string {
	switch ct {
	case Grayscale:
		return "grayscale"
	case TrueColor:
		return "truecolor"
	case Indexed:
		return "indexed"
	case GrayscaleAlpha:
		return "grayscale+alpha"
	case TrueColorAlpha:
		return "truecolor+alpha"
	default:
		return "unknown"
	}
}

// Channels is the number of samples per pixel.
func (ct ColorType) Channels() int {
	switch ct {
	case Grayscale, Indexed:
		return 1
	case GrayscaleAlpha:
		return 2
	case TrueColor:
		return 3
	case TrueColorAlpha:
		return 4
	default:
		return 0
	}
}

// allowedDepths lists the legal bit depths of each color type.
var allowedDepths = map[ColorType][]uint8{
	Grayscale:      {1, 2, 4, 8, 16},
	TrueColor:      {8, 16},
	Indexed:        {1, 2, 4, 8},
	GrayscaleAlpha: {8, 16},
	TrueColorAlpha: {8, 16},
}

// Geometry describes the image data the unfilterer walks. It comes from the
// IHDR chunk and is never modified here.
type Geometry struct {
	Width      uint32
	Height     uint32
	BitDepth   uint8
	ColorType  ColorType
	Interlaced bool
}

// Validate checks the color type and bit depth combination and that the
// image is not empty.
func (g Geometry) Validate() error {
	depths, ok := allowedDepths[g.ColorType]
	if !ok {
		return errors.Wrapf(ErrBadGeometry, "color type %d", g.ColorType)
	}

	legal := false
	for _, d := range depths {
		if d == g.BitDepth {
			legal = true
			break
		}
	}

	if !legal {
		return errors.Wrapf(ErrBadGeometry, "bit depth %d for %s", g.BitDepth, g.ColorType)
	}

	if g.Width == 0 || g.Height == 0 {
		return errors.Wrapf(ErrEmptyImage, "%dx%d", g.Width, g.Height)
	}

	return nil
}

func (g Geometry) Channels() int {
	return g.ColorType.Channels()
}

// BitsPerPixel is channels times bit depth.
func (g Geometry) BitsPerPixel() int {
	return g.Channels() * int(g.BitDepth)
}

// FilterChunkSize is the byte distance filters use to find the pixel to the
// left: the bytes in a whole pixel, or 1 when pixels are smaller than a byte.
func (g Geometry) FilterChunkSize() int {
	if n := g.BitsPerPixel() / 8; n > 1 {
		return n
	}

	return 1
}

// SampleSize is the length of the byte slice handed to a Sink per pixel.
// Sub-byte pixels are unpacked into one byte each.
func (g Geometry) SampleSize() int {
	return g.FilterChunkSize()
}

// BytesPerScanline is the payload size of one row of width pixels, rounding
// partial bytes up. It does not include the filter byte. Saturates at
// math.MaxInt.
func BytesPerScanline(width uint32, bitsPerPixel int) int {
	hi, lo := bits.Mul64(uint64(width), uint64(bitsPerPixel))
	if hi != 0 {
		return math.MaxInt
	}

	n := lo/8 + boolToUint(lo%8 != 0)
	if n > math.MaxInt {
		return math.MaxInt
	}

	return int(n)
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func satAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func satMul(a, b int) int {
	if a != 0 && b > math.MaxInt/a {
		return math.MaxInt
	}
	return a * b
}

// passBytes is the filtered size of one pass: a filter byte plus the payload
// per row. Empty passes take no space.
func passBytes(p Pass, bitsPerPixel int) int {
	if p.Width == 0 || p.Height == 0 {
		return 0
	}

	line := satAdd(BytesPerScanline(p.Width, bitsPerPixel), 1)

	return satMul(line, int(p.Height))
}

// TempBufferSize is how many bytes the decompressed, still filtered image
// data occupies, summed over the Adam7 passes when interlaced. A result of
// math.MaxInt means the size does not fit in memory.
func TempBufferSize(g Geometry) int {
	total := 0
	for _, p := range Passes(g) {
		total = satAdd(total, passBytes(p, g.BitsPerPixel()))
	}

	return total
}

// SamplesSize is the size of a buffer holding every pixel's sample bytes in
// row-major order, as filled by Samples.
func SamplesSize(g Geometry) int {
	return satMul(satMul(int(g.Width), int(g.Height)), g.SampleSize())
}
