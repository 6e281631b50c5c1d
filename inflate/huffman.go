package inflate

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MaxCodeBits is the longest code DEFLATE allows in any alphabet.
	MaxCodeBits = 15

	// Alphabet sizes, RFC1951 3.2.5-3.2.7. The fixed literal/length code
	// defines 288 symbols even though 286 and 287 never appear in valid data.
	NumCodeLengthSymbols = 19
	NumLitLenSymbols     = 286
	NumFixedLitLen       = 288
	NumDistSymbols       = 30

	maxSymbols = NumFixedLitLen
)

// Entry is one symbol's code. Bits == 0 marks a symbol that is not used by
// the current tree and never has a pattern.
type Entry struct {
	Pattern uint16
	Bits    uint16
}

func (e Entry) String() string {
	if e.Bits == 0 {
		return "-"
	}
	return fmt.Sprintf("%0*b", int(e.Bits), e.Pattern)
}

// Table is a canonical Huffman code for one alphabet, rebuilt from code
// lengths alone. It has fixed capacity so tables can live inside the engine
// without allocation.
type Table struct {
	entries [maxSymbols]Entry
	n       int

	minBits uint16
	maxBits uint16

	// Codes of one length are consecutive, so per length we keep the first
	// code, how many codes there are and where their symbols start in
	// symbols (which is ordered by length, then symbol).
	count   [MaxCodeBits + 1]uint16
	first   [MaxCodeBits + 1]uint16
	offset  [MaxCodeBits + 1]uint16
	symbols [maxSymbols]uint16
}

// NewTable builds a Table from per-symbol code lengths.
func NewTable(lengths []uint16) (*Table, error) {
	t := &Table{}
	if err := t.Build(lengths); err != nil {
		return nil, err
	}

	return t, nil
}

// Build assigns codes to lengths following RFC1951 3.2.2, replacing whatever
// the table held before.
func (t *Table) Build(lengths []uint16) error {
	if len(lengths) == 0 || len(lengths) > maxSymbols {
		return errors.Errorf("inflate: alphabet of %d symbols not supported", len(lengths))
	}

	*t = Table{n: len(lengths)}

	// 1) Count the number of codes for each code length.
	var blCount [MaxCodeBits + 1]uint32
	for sym, l := range lengths {
		if l > MaxCodeBits {
			return errors.Wrapf(ErrHuffmanDecodeFailure, "symbol %d has length %d", sym, l)
		}
		blCount[l]++
	}
	blCount[0] = 0

	// 2) Find the numerical value of the smallest code for each code length.
	var nextCode [MaxCodeBits + 1]uint32
	code := uint32(0)
	for l := 1; l <= MaxCodeBits; l++ {
		code = (code + blCount[l-1]) << 1
		nextCode[l] = code
	}

	// 3) Assign consecutive values to the codes of each length, in symbol
	// order. Unused symbols get nothing.
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		if nextCode[l] >= 1<<l {
			return errors.Wrapf(ErrHuffmanDecodeFailure, "no %d-bit code left for symbol %d", l, sym)
		}
		t.entries[sym] = Entry{Pattern: uint16(nextCode[l]), Bits: l}
		nextCode[l]++

		if t.minBits == 0 || l < t.minBits {
			t.minBits = l
		}
		if l > t.maxBits {
			t.maxBits = l
		}
	}

	var off uint16
	for l := 1; l <= MaxCodeBits; l++ {
		t.count[l] = uint16(blCount[l])
		t.first[l] = uint16(nextCode[l] - blCount[l])
		t.offset[l] = off
		off += t.count[l]
	}

	var fill [MaxCodeBits + 1]uint16
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		t.symbols[t.offset[l]+fill[l]] = uint16(sym)
		fill[l]++
	}

	return nil
}

// Len is the number of symbols in the alphabet.
func (t *Table) Len() int {
	return t.n
}

// Entry returns the code assigned to sym.
func (t *Table) Entry(sym int) Entry {
	return t.entries[sym]
}

// Entries returns the codes of every symbol in the alphabet.
func (t *Table) Entries() []Entry {
	return t.entries[:t.n]
}

// MinBits and MaxBits are the shortest and longest assigned code lengths, or
// 0 for a table with no codes.
func (t *Table) MinBits() uint16 { return t.minBits }
func (t *Table) MaxBits() uint16 { return t.maxBits }

// lookup finds the symbol whose code is exactly (pattern, bits).
func (t *Table) lookup(pattern uint32, bits uint16) (uint16, bool) {
	first := uint32(t.first[bits])
	if pattern < first {
		return 0, false
	}

	idx := pattern - first
	if idx >= uint32(t.count[bits]) {
		return 0, false
	}

	return t.symbols[uint32(t.offset[bits])+idx], true
}

// Decode reads one symbol. It starts with the shortest code length and grows
// the candidate one bit at a time until it matches or passes the longest.
func (t *Table) Decode(c *BitCursor) (uint16, error) {
	if t.maxBits == 0 {
		return 0, errors.Wrap(ErrHuffmanDecodeFailure, "table has no codes")
	}

	pattern, err := c.NextBitsMSB(uint(t.minBits))
	if err != nil {
		return 0, err
	}

	for bits := t.minBits; ; bits++ {
		if sym, ok := t.lookup(pattern, bits); ok {
			return sym, nil
		}

		if bits == t.maxBits {
			return 0, errors.Wrapf(ErrHuffmanDecodeFailure, "no code matches %0*b", int(bits), pattern)
		}

		bit, err := c.NextBitsLSB(1)
		if err != nil {
			return 0, err
		}
		pattern = pattern<<1 | bit
	}
}
