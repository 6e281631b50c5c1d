package inflate

// The fixed Huffman codes of RFC1951 3.2.6. They never change, so they are
// built once and shared by every decode.
var (
	fixedLitLen = mustTable(fixedLitLenLengths())
	fixedDist   = mustTable(fixedDistLengths())
)

func fixedLitLenLengths() []uint16 {
	lengths := make([]uint16, NumFixedLitLen)
	for sym := range lengths {
		switch {
		case sym < 144:
			lengths[sym] = 8
		case sym < 256:
			lengths[sym] = 9
		case sym < 280:
			lengths[sym] = 7
		default:
			lengths[sym] = 8
		}
	}

	return lengths
}

func fixedDistLengths() []uint16 {
	lengths := make([]uint16, NumDistSymbols)
	for sym := range lengths {
		lengths[sym] = 5
	}

	return lengths
}

func mustTable(lengths []uint16) *Table {
	t, err := NewTable(lengths)
	if err != nil {
		panic(err)
	}

	return t
}

// FixedLitLen returns the shared fixed literal/length table. Callers must not
// rebuild it.
func FixedLitLen() *Table {
	return fixedLitLen
}

// FixedDist returns the shared fixed distance table. Callers must not rebuild
// it.
func FixedDist() *Table {
	return fixedDist
}
