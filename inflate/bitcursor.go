package inflate

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

// maxBitRead is the widest single read the cursor supports. DEFLATE never
// needs more than 16 at once; the accumulator must stay below 32 bits.
const maxBitRead = 24

// BitCursor pulls bits and bytes out of a ByteSource.
//
// DEFLATE packs data elements starting at the least significant bit of each
// byte. Huffman codes are the exception: they are packed starting with their
// most significant bit, so NextBitsMSB hands them back reversed relative to
// NextBitsLSB.
type BitCursor struct {
	current []byte
	more    ByteSource

	spare      uint32 // pending bits, the next bit to hand out is bit 0
	spareCount uint   // always < 32

	consumed int64 // bytes pulled from the source so far
	scratch  [1]byte
}

func NewBitCursor(src ByteSource) *BitCursor {
	return &BitCursor{more: src}
}

// Consumed is the number of input bytes pulled into the cursor so far.
func (c *BitCursor) Consumed() int64 {
	return c.consumed
}

func (c *BitCursor) String() string {
	return fmt.Sprintf("BitCursor{consumed: %d, spare: %0*b, current: %d bytes}",
		c.consumed, int(c.spareCount), c.spare, len(c.current))
}

// advance makes c.current non-empty, or reports that the source is drained.
func (c *BitCursor) advance() error {
	for len(c.current) == 0 {
		next, ok := c.more.Next()
		if !ok {
			return errors.Wrapf(ErrInputExhausted, "after %d bytes", c.consumed)
		}
		c.current = next
	}

	return nil
}

func (c *BitCursor) grabByte() (byte, error) {
	if err := c.advance(); err != nil {
		return 0, err
	}

	b := c.current[0]
	c.current = c.current[1:]
	c.consumed++

	return b, nil
}

// feed tops the accumulator up a whole byte at a time until it holds at least
// count bits.
func (c *BitCursor) feed(count uint) error {
	for c.spareCount < count {
		b, err := c.grabByte()
		if err != nil {
			return err
		}
		c.spare |= uint32(b) << c.spareCount
		c.spareCount += 8
	}

	return nil
}

// NextOneBit reads a single bit.
func (c *BitCursor) NextOneBit() (bool, error) {
	v, err := c.NextBitsLSB(1)
	return v != 0, err
}

// NextBitsLSB reads count bits; the first bit read is bit 0 of the result.
// Used for every non-Huffman field: block headers, extra bits, dynamic
// header counts.
func (c *BitCursor) NextBitsLSB(count uint) (uint32, error) {
	if count == 0 {
		return 0, nil
	}

	if count > maxBitRead {
		return 0, errors.Errorf("inflate: bit read of %d exceeds %d", count, maxBitRead)
	}

	if c.spareCount < count {
		if err := c.feed(count); err != nil {
			return 0, err
		}
	}

	v := c.spare & (1<<count - 1)
	c.spare >>= count
	c.spareCount -= count

	return v, nil
}

// NextBitsMSB reads count bits; the first bit read is the highest bit of the
// result. Used for matching Huffman codes.
func (c *BitCursor) NextBitsMSB(count uint) (uint32, error) {
	v, err := c.NextBitsLSB(count)
	if err != nil || count == 0 {
		return 0, err
	}

	return bits.Reverse32(v) >> (32 - count), nil
}

// FlushToByteBoundary discards the bits left over from a partially read byte.
// Whole bytes already in the accumulator are kept.
func (c *BitCursor) FlushToByteBoundary() {
	drop := c.spareCount % 8
	c.spare >>= drop
	c.spareCount -= drop
}

// rawByte reads one byte at a byte boundary, draining the accumulator first.
func (c *BitCursor) rawByte() (byte, error) {
	if c.spareCount >= 8 {
		b := byte(c.spare)
		c.spare >>= 8
		c.spareCount -= 8
		return b, nil
	}

	return c.grabByte()
}

func (c *BitCursor) rawUint16() (uint16, error) {
	lo, err := c.rawByte()
	if err != nil {
		return 0, err
	}

	hi, err := c.rawByte()
	if err != nil {
		return 0, err
	}

	return uint16(lo) | uint16(hi)<<8, nil
}

// NextLenNLen reads the LEN and NLEN fields of a stored block. Only valid
// directly after FlushToByteBoundary.
func (c *BitCursor) NextLenNLen() (uint16, uint16, error) {
	length, err := c.rawUint16()
	if err != nil {
		return 0, 0, err
	}

	nlength, err := c.rawUint16()
	if err != nil {
		return 0, 0, err
	}

	return length, nlength, nil
}

// NextUpToNRawBytes returns up to n contiguous bytes, never crossing into the
// next slice of the source. Callers loop until they have what they need. The
// returned slice aliases the input and must not be modified.
func (c *BitCursor) NextUpToNRawBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	if c.spareCount >= 8 {
		b, _ := c.rawByte()
		c.scratch[0] = b
		return c.scratch[:], nil
	}

	if err := c.advance(); err != nil {
		return nil, err
	}

	if n > len(c.current) {
		n = len(c.current)
	}

	out := c.current[:n]
	c.current = c.current[n:]
	c.consumed += int64(n)

	return out, nil
}
