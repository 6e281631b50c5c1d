package inflate

// ByteSource yields the byte slices that make up a compressed stream, in
// order. Chunk boundaries carry no meaning; a stream may be split anywhere.
//
// Next returns false once there are no more slices. Empty slices are allowed
// and are skipped by the cursor.
type ByteSource interface {
	Next() ([]byte, bool)
}

// SliceSource is a ByteSource over slices the caller already holds. The
// slices are borrowed, never copied or modified.
type SliceSource struct {
	slices [][]byte
	idx    int
}

func NewSliceSource(slices ...[]byte) *SliceSource {
	return &SliceSource{slices: slices}
}

func (s *SliceSource) Next() ([]byte, bool) {
	if s.idx >= len(s.slices) {
		return nil, false
	}

	b := s.slices[s.idx]
	s.idx++

	return b, true
}
