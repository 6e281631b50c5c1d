// Package unfilter reverses PNG scanline filtering and walks Adam7 interlaced
// data, handing each decoded pixel to a Sink in full-image coordinates.
package unfilter

import (
	"github.com/pkg/errors"
)

// Filter types, from the byte at the start of every scanline.
const (
	FilterNone    = 0
	FilterSub     = 1
	FilterUp      = 2
	FilterAverage = 3
	FilterPaeth   = 4
	numFilters    = 5
)

var (
	// ErrIllegalFilterType is returned for a scanline whose filter byte is
	// not 0-4.
	ErrIllegalFilterType = errors.New("unfilter: illegal filter type")

	// ErrOutputBufferOverflow is returned when the scanlines the geometry
	// requires run past the end of the buffer.
	ErrOutputBufferOverflow = errors.New("unfilter: scanlines run past end of buffer")

	// ErrEmptyImage is returned for a width or height of 0.
	ErrEmptyImage = errors.New("unfilter: image has no pixels")

	// ErrBadGeometry is returned for an unknown color type or a bit depth the
	// color type doesn't allow.
	ErrBadGeometry = errors.New("unfilter: bad color type or bit depth")
)

// Sink receives every decoded pixel once. sample holds the pixel's bytes:
// all channels for 8 and 16 bit depths (16 bit samples are big-endian), or a
// single byte holding the value in its low bits for 1, 2 and 4 bit depths.
// sample is only valid for the duration of the call.
type Sink interface {
	WriteSample(x, y uint32, sample []byte)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(x, y uint32, sample []byte)

func (f SinkFunc) WriteSample(x, y uint32, sample []byte) {
	f(x, y, sample)
}

// PaethPredict is the PNG Paeth predictor. Ties go to a, then b.
func PaethPredict(a, b, c byte) byte {
	p := int32(a) + int32(b) - int32(c)
	pa := abs32(p - int32(a))
	pb := abs32(p - int32(b))
	pc := abs32(p - int32(c))

	// The order of these tests is fixed by the PNG standard.
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}

	return c
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Line reverses one filter in place. prev is the already unfiltered previous
// line of the same pass, or nil on a pass's first line. bpp is the filter
// chunk size.
func Line(filter byte, cur, prev []byte, bpp int) error {
	switch filter {
	case FilterNone:
	case FilterSub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case FilterUp:
		if prev == nil {
			break
		}
		for i := range cur {
			cur[i] += prev[i]
		}
	case FilterAverage:
		for i := range cur {
			var a, b uint16
			if i >= bpp {
				a = uint16(cur[i-bpp])
			}
			if prev != nil {
				b = uint16(prev[i])
			}
			cur[i] += byte((a + b) / 2)
		}
	case FilterPaeth:
		for i := range cur {
			var a, b, c byte
			if i >= bpp {
				a = cur[i-bpp]
			}
			if prev != nil {
				b = prev[i]
				if i >= bpp {
					c = prev[i-bpp]
				}
			}
			cur[i] += PaethPredict(a, b, c)
		}
	default:
		return errors.Wrapf(ErrIllegalFilterType, "filter byte %d", filter)
	}

	return nil
}

// Unfilter reverses the filtering of decompressed image data in place and
// sends every pixel to sink. buf may be longer than the geometry needs; the
// tail is ignored.
//
// Each line's filter byte is reset to none once the line is done, so the
// same buffer can be walked again. A failure part way leaves the lines and
// pixels already handled as they are.
func Unfilter(g Geometry, buf []byte, sink Sink) error {
	if err := g.Validate(); err != nil {
		return err
	}

	bpp := g.FilterChunkSize()
	bitsPerPixel := g.BitsPerPixel()

	for _, p := range Passes(g) {
		if p.Width == 0 || p.Height == 0 {
			continue
		}

		size := passBytes(p, bitsPerPixel)
		if size > len(buf) {
			return errors.Wrapf(ErrOutputBufferOverflow, "pass %d needs %d bytes, %d left", p.Level, size, len(buf))
		}

		if err := unfilterPass(g, p, buf[:size], bpp, sink); err != nil {
			return err
		}

		buf = buf[size:]
	}

	return nil
}

func unfilterPass(g Geometry, p Pass, data []byte, bpp int, sink Sink) error {
	stride := len(data) / int(p.Height)

	var prev []byte
	for y := uint32(0); y < p.Height; y++ {
		row := data[int(y)*stride : int(y+1)*stride]
		filter, cur := row[0], row[1:]

		if err := Line(filter, cur, prev, bpp); err != nil {
			return errors.Wrapf(err, "pass %d line %d", p.Level, y)
		}
		row[0] = FilterNone

		emitLine(g, p, y, cur, bpp, sink)
		prev = cur
	}

	return nil
}

// emitLine hands each pixel of an unfiltered line to sink. Sub-byte pixels
// are unpacked most significant bits first; padding bits at the end of the
// line are skipped.
func emitLine(g Geometry, p Pass, y uint32, line []byte, bpp int, sink Sink) {
	depth := uint(g.BitDepth)

	if depth >= 8 {
		for x := uint32(0); x < p.Width; x++ {
			fx, fy := FullPos(p.Level, x, y)
			off := int(x) * bpp
			sink.WriteSample(fx, fy, line[off:off+bpp])
		}
		return
	}

	var sample [1]byte
	perByte := 8 / depth
	mask := byte(1<<depth - 1)

	for x := uint32(0); x < p.Width; x++ {
		b := line[x/uint32(perByte)]
		shift := 8 - depth*(uint(x)%perByte+1)
		sample[0] = (b >> shift) & mask

		fx, fy := FullPos(p.Level, x, y)
		sink.WriteSample(fx, fy, sample[:])
	}
}

// Samples is a Sink that stores pixels row-major into a flat buffer of
// SampleSize bytes per pixel.
type Samples struct {
	Geometry Geometry
	Buf      []byte
	stride   int
	size     int
}

// NewSamples allocates a buffer for every pixel of g.
func NewSamples(g Geometry) *Samples {
	size := g.SampleSize()

	return &Samples{
		Geometry: g,
		Buf:      make([]byte, SamplesSize(g)),
		stride:   int(g.Width) * size,
		size:     size,
	}
}

func (s *Samples) WriteSample(x, y uint32, sample []byte) {
	off := int(y)*s.stride + int(x)*s.size
	copy(s.Buf[off:off+s.size], sample)
}

// At returns the stored bytes of the pixel at (x, y).
func (s *Samples) At(x, y uint32) []byte {
	off := int(y)*s.stride + int(x)*s.size
	return s.Buf[off : off+s.size]
}
