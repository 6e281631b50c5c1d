package destination

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	summaryBase   = "summary"
	samplesSuffix = ".samples"
	shaPrefixLen  = 12
)

// File appends one record per result to summary.json or summary.msgpack in
// dir, and optionally writes the decoded samples next to it.
type File struct {
	dir          string
	format       string
	writeSamples bool

	mu  sync.Mutex
	f   *os.File
	enc *codec.Encoder
	log *logrus.Entry
}

func NewFile(dir, format string, writeSamples bool) (*File, error) {
	h, err := handle(format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create destination dir '%s'", dir)
	}

	path := SummaryPath(dir, format)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open summary file '%s'", path)
	}

	return &File{
		dir:          dir,
		format:       format,
		writeSamples: writeSamples,
		f:            f,
		enc:          codec.NewEncoder(f, h),
		log:          logrus.WithField("pkg", "destination.file"),
	}, nil
}

// SummaryPath is where a File destination in dir writes its records.
func SummaryPath(dir, format string) string {
	return filepath.Join(dir, summaryBase+"."+format)
}

// SamplesPath is where the samples of r are written.
func SamplesPath(dir string, r *Result) string {
	prefix := r.SHA256
	if len(prefix) > shaPrefixLen {
		prefix = prefix[:shaPrefixLen]
	}

	return filepath.Join(dir, prefix+"-"+filepath.Base(r.Path)+samplesSuffix)
}

func (d *File) Write(_ context.Context, r *Result) error {
	if d.writeSamples && !r.Failed() && len(r.Samples) > 0 {
		if err := os.WriteFile(SamplesPath(d.dir, r), r.Samples, 0644); err != nil {
			return errors.Wrapf(err, "unable to write samples for '%s'", r.Path)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enc.Encode(r); err != nil {
		return errors.Wrapf(err, "unable to write record for '%s'", r.Path)
	}

	if d.format == FormatJSON {
		if _, err := d.f.Write([]byte("\n")); err != nil {
			return errors.Wrap(err, "unable to write record separator")
		}
	}

	d.log.Debugf("wrote record for line %d", r.Line)

	return nil
}

func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.f.Close(); err != nil {
		return errors.Wrap(err, "unable to close summary file")
	}

	return nil
}

// ReadSummary reads every record of a summary file written by File.
func ReadSummary(path, format string) ([]*Result, error) {
	h, err := handle(format)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read summary file")
	}

	dec := codec.NewDecoderBytes(data, h)

	var out []*Result
	for len(bytes.TrimSpace(data[dec.NumBytesRead():])) > 0 {
		r := &Result{}
		if err := dec.Decode(r); err != nil {
			return out, errors.Wrapf(err, "unable to decode record %d", len(out))
		}
		out = append(out, r)
	}

	return out, nil
}
