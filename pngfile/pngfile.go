// Package pngfile splits a PNG file into chunks, reads its header and hands
// the concatenated IDAT data to the inflate and unfilter packages.
package pngfile

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/dselans/pngbop/unfilter"
)

const (
	signature = "\x89PNG\r\n\x1a\n"

	chunkIHDR = "IHDR"
	chunkPLTE = "PLTE"
	chunkIDAT = "IDAT"
	chunkIEND = "IEND"

	ihdrLen       = 13
	maxDimension  = 1<<31 - 1
	maxPaletteLen = 256 * 3
)

var (
	ErrBadSignature = errors.New("pngfile: not a PNG file")
	ErrTruncated    = errors.New("pngfile: truncated chunk")
	ErrBadChecksum  = errors.New("pngfile: chunk CRC mismatch")
	ErrBadHeader    = errors.New("pngfile: bad IHDR")
	ErrBadPalette   = errors.New("pngfile: bad PLTE")
	ErrChunkOrder   = errors.New("pngfile: chunk out of order")
	ErrMissingChunk = errors.New("pngfile: required chunk missing")

	// ErrUnsupportedInterlaceMethod is returned for an IHDR interlace method
	// other than 0 (none) or 1 (Adam7).
	ErrUnsupportedInterlaceMethod = errors.New("pngfile: unsupported interlace method")
)

// File is a parsed PNG. IDAT holds slices into the data passed to Parse, in
// stream order.
type File struct {
	Geometry       unfilter.Geometry
	IDAT           [][]byte
	PaletteEntries int
	Chunks         []string
}

// CompressedSize is the total IDAT payload length.
func (f *File) CompressedSize() int {
	n := 0
	for _, d := range f.IDAT {
		n += len(d)
	}

	return n
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, []byte(signature))
}

// Parse walks every chunk up to IEND, checking CRCs and chunk order. Data
// after IEND is ignored.
func Parse(data []byte) (*File, error) {
	if !IsPNG(data) {
		return nil, ErrBadSignature
	}

	f := &File{}
	rest := data[len(signature):]
	seenIHDR, seenIEND := false, false
	idatDone := false

	for !seenIEND {
		typ, payload, n, err := nextChunk(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "at offset %d", len(data)-len(rest))
		}
		rest = rest[n:]

		if !seenIHDR && typ != chunkIHDR {
			return nil, errors.Wrapf(ErrChunkOrder, "%s before IHDR", typ)
		}

		if len(f.IDAT) > 0 && typ != chunkIDAT {
			idatDone = true
		}

		f.Chunks = append(f.Chunks, typ)

		switch typ {
		case chunkIHDR:
			if seenIHDR {
				return nil, errors.Wrap(ErrChunkOrder, "second IHDR")
			}
			g, err := parseIHDR(payload)
			if err != nil {
				return nil, err
			}
			f.Geometry = g
			seenIHDR = true
		case chunkPLTE:
			if f.PaletteEntries != 0 || len(f.IDAT) > 0 {
				return nil, errors.Wrap(ErrChunkOrder, "PLTE after IDAT or repeated")
			}
			if len(payload) == 0 || len(payload)%3 != 0 || len(payload) > maxPaletteLen {
				return nil, errors.Wrapf(ErrBadPalette, "length %d", len(payload))
			}
			f.PaletteEntries = len(payload) / 3
		case chunkIDAT:
			if idatDone {
				return nil, errors.Wrap(ErrChunkOrder, "IDAT chunks are not consecutive")
			}
			f.IDAT = append(f.IDAT, payload)
		case chunkIEND:
			seenIEND = true
		}
	}

	if len(f.IDAT) == 0 {
		return nil, errors.Wrap(ErrMissingChunk, chunkIDAT)
	}

	if f.Geometry.ColorType == unfilter.Indexed && f.PaletteEntries == 0 {
		return nil, errors.Wrap(ErrMissingChunk, chunkPLTE)
	}

	return f, nil
}

// nextChunk reads one chunk from the front of b and returns its type, its
// payload and the number of bytes it took up.
func nextChunk(b []byte) (string, []byte, int, error) {
	if len(b) < 12 {
		if len(b) == 0 {
			return "", nil, 0, errors.Wrap(ErrMissingChunk, chunkIEND)
		}
		return "", nil, 0, errors.Wrapf(ErrTruncated, "%d bytes left", len(b))
	}

	length := binary.BigEndian.Uint32(b[0:4])
	if length > maxDimension || uint64(length) > uint64(len(b)-12) {
		return "", nil, 0, errors.Wrapf(ErrTruncated, "chunk length %d with %d bytes left", length, len(b)-12)
	}

	end := 8 + int(length)
	typ := string(b[4:8])
	want := binary.BigEndian.Uint32(b[end : end+4])

	if got := crc32.ChecksumIEEE(b[4:end]); got != want {
		return "", nil, 0, errors.Wrapf(ErrBadChecksum, "%s: got %08x, want %08x", typ, got, want)
	}

	return typ, b[8:end], end + 4, nil
}

func parseIHDR(b []byte) (unfilter.Geometry, error) {
	if len(b) != ihdrLen {
		return unfilter.Geometry{}, errors.Wrapf(ErrBadHeader, "length %d", len(b))
	}

	g := unfilter.Geometry{
		Width:     binary.BigEndian.Uint32(b[0:4]),
		Height:    binary.BigEndian.Uint32(b[4:8]),
		BitDepth:  b[8],
		ColorType: unfilter.ColorType(b[9]),
	}

	if g.Width > maxDimension || g.Height > maxDimension {
		return g, errors.Wrapf(ErrBadHeader, "dimensions %dx%d", g.Width, g.Height)
	}

	if b[10] != 0 {
		return g, errors.Wrapf(ErrBadHeader, "compression method %d", b[10])
	}

	if b[11] != 0 {
		return g, errors.Wrapf(ErrBadHeader, "filter method %d", b[11])
	}

	switch b[12] {
	case 0:
	case 1:
		g.Interlaced = true
	default:
		return g, errors.Wrapf(ErrUnsupportedInterlaceMethod, "method %d", b[12])
	}

	if err := g.Validate(); err != nil {
		return g, errors.Wrap(err, "IHDR")
	}

	return g, nil
}
