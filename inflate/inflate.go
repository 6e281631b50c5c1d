// Package inflate decompresses zlib-wrapped DEFLATE streams (RFC1950, RFC1951)
// into a buffer the caller sizes up front.
//
// Input is a sequence of byte slices, typically the IDAT payloads of a PNG,
// and DEFLATE data may cross slice boundaries anywhere. Decompression never
// allocates output space: running out of room is ErrOutputBufferOverflow,
// running out of input is ErrInputExhausted.
package inflate

import (
	"github.com/pkg/errors"
)

// Block types, from the two BTYPE bits.
const (
	blockStored  = 0b00
	blockFixed   = 0b01
	blockDynamic = 0b10
)

const endOfBlock = 256

// codeLengthOrder is the order in which dynamic headers transmit the code
// lengths of the code-length alphabet.
var codeLengthOrder = [NumCodeLengthSymbols]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// Inflater decodes one raw DEFLATE stream. It is single use.
type Inflater struct {
	src *BitCursor
	out []byte
	pos int

	codeLen Table
	litLen  Table
	dist    Table
	lengths [NumLitLenSymbols + NumDistSymbols]uint16
}

func NewInflater(src *BitCursor, out []byte) *Inflater {
	return &Inflater{
		src: src,
		out: out,
	}
}

// Inflate decompresses a raw DEFLATE stream from src into out and returns the
// number of bytes written.
func Inflate(out []byte, src ByteSource) (int, error) {
	return NewInflater(NewBitCursor(src), out).Inflate()
}

// Inflate runs the block loop until the final block ends. On error, out holds
// whatever was decoded before it.
func (f *Inflater) Inflate() (int, error) {
	for block := 0; ; block++ {
		final, err := f.src.NextOneBit()
		if err != nil {
			return f.pos, err
		}

		btype, err := f.src.NextBitsLSB(2)
		if err != nil {
			return f.pos, err
		}

		switch btype {
		case blockStored:
			err = f.stored()
		case blockFixed:
			err = f.codes(fixedLitLen, fixedDist)
		case blockDynamic:
			if err = f.readDynamicTables(); err == nil {
				err = f.codes(&f.litLen, &f.dist)
			}
		default:
			err = errors.Wrap(ErrMalformedBlockHeader, "reserved block type 11")
		}

		if err != nil {
			return f.pos, errors.Wrapf(err, "block %d at output offset %d", block, f.pos)
		}

		if final {
			return f.pos, nil
		}
	}
}

// Written is how many bytes of out have been filled.
func (f *Inflater) Written() int {
	return f.pos
}

func (f *Inflater) stored() error {
	f.src.FlushToByteBoundary()

	length, nlength, err := f.src.NextLenNLen()
	if err != nil {
		return err
	}

	if nlength != ^length {
		return errors.Wrapf(ErrMalformedBlockHeader, "stored block LEN %#04x NLEN %#04x", length, nlength)
	}

	n := int(length)
	if n > len(f.out)-f.pos {
		return errors.Wrapf(ErrOutputBufferOverflow, "stored block of %d bytes", n)
	}

	for n > 0 {
		b, err := f.src.NextUpToNRawBytes(n)
		if err != nil {
			return err
		}
		f.pos += copy(f.out[f.pos:], b)
		n -= len(b)
	}

	return nil
}

func (f *Inflater) readDynamicTables() error {
	hlit, err := f.src.NextBitsLSB(5)
	if err != nil {
		return err
	}

	hdist, err := f.src.NextBitsLSB(5)
	if err != nil {
		return err
	}

	hclen, err := f.src.NextBitsLSB(4)
	if err != nil {
		return err
	}

	numLit := int(hlit) + 257
	numDist := int(hdist) + 1
	numCodeLen := int(hclen) + 4

	if numLit > NumLitLenSymbols || numDist > NumDistSymbols {
		return errors.Wrapf(ErrMalformedBlockHeader, "dynamic header declares %d literal/length and %d distance codes", numLit, numDist)
	}

	var clLengths [NumCodeLengthSymbols]uint16
	for _, sym := range codeLengthOrder[:numCodeLen] {
		l, err := f.src.NextBitsLSB(3)
		if err != nil {
			return err
		}
		clLengths[sym] = uint16(l)
	}

	if err := f.codeLen.Build(clLengths[:]); err != nil {
		return errors.Wrap(err, "code length alphabet")
	}

	lengths := f.lengths[:numLit+numDist]
	for i := 0; i < len(lengths); {
		sym, err := f.codeLen.Decode(f.src)
		if err != nil {
			return err
		}

		if sym < 16 {
			lengths[i] = sym
			i++
			continue
		}

		var (
			value  uint16
			repeat uint32
		)

		switch sym {
		case 16:
			if i == 0 {
				return errors.Wrap(ErrHuffmanDecodeFailure, "repeat code with no previous length")
			}
			value = lengths[i-1]
			repeat, err = f.src.NextBitsLSB(2)
			repeat += 3
		case 17:
			repeat, err = f.src.NextBitsLSB(3)
			repeat += 3
		default:
			repeat, err = f.src.NextBitsLSB(7)
			repeat += 11
		}

		if err != nil {
			return err
		}

		if i+int(repeat) > len(lengths) {
			return errors.Wrapf(ErrHuffmanDecodeFailure, "code length repeat of %d overruns %d lengths", repeat, len(lengths))
		}

		for ; repeat > 0; repeat-- {
			lengths[i] = value
			i++
		}
	}

	if lengths[endOfBlock] == 0 {
		return errors.Wrap(ErrHuffmanDecodeFailure, "no code for end of block")
	}

	if err := f.litLen.Build(lengths[:numLit]); err != nil {
		return errors.Wrap(err, "literal/length alphabet")
	}

	if err := f.dist.Build(lengths[numLit:]); err != nil {
		return errors.Wrap(err, "distance alphabet")
	}

	return nil
}

// codes decodes symbols with the given tables until end of block.
func (f *Inflater) codes(litLen, dist *Table) error {
	for {
		sym, err := litLen.Decode(f.src)
		if err != nil {
			return err
		}

		switch {
		case sym < endOfBlock:
			if f.pos >= len(f.out) {
				return errors.Wrap(ErrOutputBufferOverflow, "literal")
			}
			f.out[f.pos] = byte(sym)
			f.pos++
		case sym == endOfBlock:
			return nil
		default:
			length, err := f.length(sym)
			if err != nil {
				return err
			}

			distSym, err := dist.Decode(f.src)
			if err != nil {
				return err
			}

			distance, err := f.distance(distSym)
			if err != nil {
				return err
			}

			if err := f.copyBack(distance, length); err != nil {
				return err
			}
		}
	}
}

// length maps a length symbol (257-285) and its extra bits to a match length.
func (f *Inflater) length(sym uint16) (int, error) {
	switch {
	case sym <= 264:
		return int(sym) - 254, nil
	case sym <= 284:
		extra := uint(sym-261) / 4
		v, err := f.src.NextBitsLSB(extra)
		if err != nil {
			return 0, err
		}
		return (int((sym-265)%4+4) << extra) + 3 + int(v), nil
	case sym == 285:
		return 258, nil
	default:
		return 0, errors.Wrapf(ErrHuffmanDecodeFailure, "invalid length symbol %d", sym)
	}
}

// distance maps a distance symbol (0-29) and its extra bits to a distance.
func (f *Inflater) distance(sym uint16) (int, error) {
	switch {
	case sym <= 3:
		return int(sym) + 1, nil
	case sym < NumDistSymbols:
		extra := uint(sym)/2 - 1
		v, err := f.src.NextBitsLSB(extra)
		if err != nil {
			return 0, err
		}
		return (int(sym%2+2) << extra) + 1 + int(v), nil
	default:
		return 0, errors.Wrapf(ErrHuffmanDecodeFailure, "invalid distance symbol %d", sym)
	}
}

// copyBack replays length bytes starting distance bytes back. It copies a
// byte at a time: when distance < length the source overlaps the bytes being
// written and the pattern repeats.
func (f *Inflater) copyBack(distance, length int) error {
	if distance > f.pos {
		return errors.Wrapf(ErrBackReferenceOutOfRange, "distance %d with %d bytes written", distance, f.pos)
	}

	if length > len(f.out)-f.pos {
		return errors.Wrapf(ErrOutputBufferOverflow, "back-reference of %d bytes", length)
	}

	from := f.pos - distance
	for i := 0; i < length; i++ {
		f.out[f.pos+i] = f.out[from+i]
	}
	f.pos += length

	return nil
}
