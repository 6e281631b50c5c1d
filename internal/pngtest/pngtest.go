// Package pngtest builds filtered scanlines and whole PNG files for tests. It
// is an independent reference encoder: filtering follows the PNG
// standard directly and compression uses klauspost/compress.
package pngtest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/zlib"

	"github.com/dselans/pngbop/unfilter"
)

// PixelFunc returns the sample bytes of the pixel at (x, y) in the same
// layout unfilter hands to a Sink.
type PixelFunc func(x, y uint32) []byte

// FilterFunc picks the filter type for line y of an interlace pass.
type FilterFunc func(level int, y uint32) byte

// Cycle uses every filter type in turn.
func Cycle(level int, y uint32) byte {
	return byte((uint32(level) + y) % 5)
}

// Only always uses filter ft.
func Only(ft byte) FilterFunc {
	return func(int, uint32) byte { return ft }
}

func paeth(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := p-a, p-b, p-c
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

// Filter applies filter ft to cur, given the previous raw line (nil on the
// first line) and the filter chunk size bpp.
func Filter(ft byte, cur, prev []byte, bpp int) []byte {
	out := make([]byte, len(cur))

	for i := range cur {
		var a, b, c int
		if i >= bpp {
			a = int(cur[i-bpp])
		}
		if prev != nil {
			b = int(prev[i])
			if i >= bpp {
				c = int(prev[i-bpp])
			}
		}

		x := int(cur[i])
		switch ft {
		case 0:
		case 1:
			x -= a
		case 2:
			x -= b
		case 3:
			x -= (a + b) / 2
		case 4:
			x -= paeth(a, b, c)
		}
		out[i] = byte(x)
	}

	return out
}

// packLine lays out one row of a pass from the pixel function.
func packLine(g unfilter.Geometry, p unfilter.Pass, y uint32, pixel PixelFunc) []byte {
	line := make([]byte, unfilter.BytesPerScanline(p.Width, g.BitsPerPixel()))
	depth := uint(g.BitDepth)

	for x := uint32(0); x < p.Width; x++ {
		fx, fy := unfilter.FullPos(p.Level, x, y)
		sample := pixel(fx, fy)

		if depth >= 8 {
			copy(line[int(x)*len(sample):], sample)
			continue
		}

		bitPos := uint(x) * depth
		line[bitPos/8] |= sample[0] << (8 - depth - bitPos%8)
	}

	return line
}

// Filtered returns the decompressed-but-filtered image data for g.
func Filtered(g unfilter.Geometry, pixel PixelFunc, filter FilterFunc) []byte {
	var buf bytes.Buffer
	bpp := g.FilterChunkSize()

	for _, p := range unfilter.Passes(g) {
		if p.Width == 0 || p.Height == 0 {
			continue
		}

		var prev []byte
		for y := uint32(0); y < p.Height; y++ {
			cur := packLine(g, p, y, pixel)
			ft := filter(p.Level, y)
			buf.WriteByte(ft)
			buf.Write(Filter(ft, cur, prev, bpp))
			prev = cur
		}
	}

	return buf.Bytes()
}

// Pattern is a deterministic, non-trivial PixelFunc for g.
func Pattern(g unfilter.Geometry) PixelFunc {
	size := g.SampleSize()
	levels := 1 << uint(g.BitDepth)

	return func(x, y uint32) []byte {
		out := make([]byte, size)
		if g.BitDepth < 8 {
			out[0] = byte(int(x*7+y*3+x*y) % levels)
			return out
		}
		for i := range out {
			out[i] = byte(x*31 + y*17 + uint32(i)*59 + x*y)
		}
		return out
	}
}

// Compress wraps data in a zlib stream.
func Compress(data []byte, level int) []byte {
	var buf bytes.Buffer

	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		panic(err)
	}
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// Chunk encodes one PNG chunk with its CRC.
func Chunk(typ string, data []byte) []byte {
	out := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(data)))
	copy(out[4:8], typ)
	out = append(out, data...)

	crc := crc32.NewIEEE()
	crc.Write(out[4:])
	return binary.BigEndian.AppendUint32(out, crc.Sum32())
}

// IHDR encodes an IHDR payload for g.
func IHDR(g unfilter.Geometry) []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint32(b[0:4], g.Width)
	binary.BigEndian.PutUint32(b[4:8], g.Height)
	b[8] = g.BitDepth
	b[9] = byte(g.ColorType)
	if g.Interlaced {
		b[12] = 1
	}

	return b
}

// File builds a complete PNG for g with the compressed data split across
// IDAT chunks of at most idatSize bytes.
func File(g unfilter.Geometry, pixel PixelFunc, filter FilterFunc, idatSize int) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	buf.Write(Chunk("IHDR", IHDR(g)))

	if g.ColorType == unfilter.Indexed {
		buf.Write(Chunk("PLTE", make([]byte, 3<<uint(g.BitDepth))))
	}

	z := Compress(Filtered(g, pixel, filter), zlib.DefaultCompression)
	for len(z) > 0 {
		n := idatSize
		if n > len(z) {
			n = len(z)
		}
		buf.Write(Chunk("IDAT", z[:n]))
		z = z[n:]
	}

	buf.Write(Chunk("IEND", nil))

	return buf.Bytes()
}
