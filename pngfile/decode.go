package pngfile

import (
	"math"

	"github.com/pkg/errors"

	"github.com/dselans/pngbop/inflate"
	"github.com/dselans/pngbop/unfilter"
)

// ErrLimitExceeded is returned when an image is larger than the configured
// Limits, before any buffer is allocated.
var ErrLimitExceeded = errors.New("pngfile: image exceeds limits")

// Limits bounds the images Decode accepts. A zero field means no limit.
type Limits struct {
	MaxWidth  uint32
	MaxHeight uint32
	MaxPixels uint64
}

func (l Limits) Check(g unfilter.Geometry) error {
	if l.MaxWidth != 0 && g.Width > l.MaxWidth {
		return errors.Wrapf(ErrLimitExceeded, "width %d > %d", g.Width, l.MaxWidth)
	}

	if l.MaxHeight != 0 && g.Height > l.MaxHeight {
		return errors.Wrapf(ErrLimitExceeded, "height %d > %d", g.Height, l.MaxHeight)
	}

	if pixels := uint64(g.Width) * uint64(g.Height); l.MaxPixels != 0 && pixels > l.MaxPixels {
		return errors.Wrapf(ErrLimitExceeded, "%d pixels > %d", pixels, l.MaxPixels)
	}

	if unfilter.TempBufferSize(g) == math.MaxInt || unfilter.SamplesSize(g) == math.MaxInt {
		return errors.Wrapf(ErrLimitExceeded, "%dx%d does not fit in memory", g.Width, g.Height)
	}

	return nil
}

// Inspect parses data and checks it against limits without decompressing.
func Inspect(data []byte, limits Limits) (*File, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := limits.Check(f.Geometry); err != nil {
		return f, err
	}

	return f, nil
}

// Decode parses data, inflates the IDAT stream into a buffer sized for the
// geometry and unfilters it into sink. It returns the parsed file and the
// number of bytes inflated.
func Decode(data []byte, limits Limits, sink unfilter.Sink) (*File, int, error) {
	f, err := Inspect(data, limits)
	if err != nil {
		return f, 0, err
	}

	n, err := f.decode(sink)

	return f, n, err
}

func (f *File) decode(sink unfilter.Sink) (int, error) {
	buf := make([]byte, unfilter.TempBufferSize(f.Geometry))

	n, err := inflate.DecompressZlib(buf, inflate.NewSliceSource(f.IDAT...))
	if err != nil {
		return n, errors.Wrap(err, "inflating IDAT")
	}

	if err := unfilter.Unfilter(f.Geometry, buf[:n], sink); err != nil {
		return n, errors.Wrap(err, "unfiltering")
	}

	return n, nil
}

// DecodeSamples decodes data into a flat row-major sample buffer.
func DecodeSamples(data []byte, limits Limits) (*File, *unfilter.Samples, int, error) {
	f, err := Inspect(data, limits)
	if err != nil {
		return f, nil, 0, err
	}

	samples := unfilter.NewSamples(f.Geometry)

	n, err := f.decode(samples)
	if err != nil {
		return f, nil, n, err
	}

	return f, samples, n, nil
}
