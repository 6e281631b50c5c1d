package inflate

import (
	"github.com/pkg/errors"
)

const (
	zlibDeflate   = 8
	zlibMaxCInfo  = 7
	zlibFDictFlag = 1 << 5
)

// ZlibHeader is the two byte zlib stream header.
type ZlibHeader struct {
	CMF byte
	FLG byte
}

func (h ZlibHeader) Method() byte     { return h.CMF & 0x0f }
func (h ZlibHeader) WindowInfo() byte { return h.CMF >> 4 }
func (h ZlibHeader) HasDict() bool    { return h.FLG&zlibFDictFlag != 0 }
func (h ZlibHeader) Level() byte      { return h.FLG >> 6 }

// Validate checks the header against RFC1950. Preset dictionaries are not
// supported and are reported as a malformed header.
func (h ZlibHeader) Validate() error {
	if m := h.Method(); m != zlibDeflate {
		return errors.Wrapf(ErrMalformedZlibHeader, "compression method %d", m)
	}

	if ci := h.WindowInfo(); ci > zlibMaxCInfo {
		return errors.Wrapf(ErrMalformedZlibHeader, "window info %d", ci)
	}

	if h.HasDict() {
		return errors.Wrap(ErrMalformedZlibHeader, "preset dictionary")
	}

	if (uint16(h.CMF)<<8|uint16(h.FLG))%31 != 0 {
		return errors.Wrapf(ErrMalformedZlibHeader, "check bits fail for %02x%02x", h.CMF, h.FLG)
	}

	return nil
}

// DecompressZlib validates the zlib header at the start of src and inflates
// the DEFLATE stream behind it into out, returning the bytes written. The
// Adler-32 trailer is not checked.
func DecompressZlib(out []byte, src ByteSource) (int, error) {
	cursor := NewBitCursor(src)

	hdr, err := readZlibHeader(cursor)
	if err != nil {
		return 0, err
	}

	if err := hdr.Validate(); err != nil {
		return 0, err
	}

	return NewInflater(cursor, out).Inflate()
}

func readZlibHeader(c *BitCursor) (ZlibHeader, error) {
	cmf, err := c.rawByte()
	if err != nil {
		return ZlibHeader{}, errors.Wrap(err, "reading CMF")
	}

	flg, err := c.rawByte()
	if err != nil {
		return ZlibHeader{}, errors.Wrap(err, "reading FLG")
	}

	return ZlibHeader{CMF: cmf, FLG: flg}, nil
}
