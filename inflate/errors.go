package inflate

import (
	"github.com/pkg/errors"
)

var (
	// ErrInputExhausted is returned when a read needs more bytes than the
	// byte source can provide.
	ErrInputExhausted = errors.New("inflate: input exhausted")

	// ErrMalformedZlibHeader is returned when CM is not 8, CINFO is above 7,
	// a preset dictionary is requested or FCHECK fails.
	ErrMalformedZlibHeader = errors.New("inflate: malformed zlib header")

	// ErrMalformedBlockHeader is returned for a stored block whose LEN and
	// NLEN disagree, a reserved block type, or dynamic header counts outside
	// of the alphabet sizes.
	ErrMalformedBlockHeader = errors.New("inflate: malformed block header")

	// ErrHuffmanDecodeFailure is returned when no code matches within the
	// table's longest code, or when a set of code lengths can't be turned
	// into a canonical code.
	ErrHuffmanDecodeFailure = errors.New("inflate: huffman decode failure")

	// ErrBackReferenceOutOfRange is returned when a back-reference points to
	// before the start of the output.
	ErrBackReferenceOutOfRange = errors.New("inflate: back-reference out of range")

	// ErrOutputBufferOverflow is returned when decompression would write past
	// the end of the caller's buffer.
	ErrOutputBufferOverflow = errors.New("inflate: output buffer overflow")
)
