// Package destination stores decode results: as JSON or msgpack records on
// disk, as rows in postgres or mysql, or as redis keys.
package destination

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/dselans/pngbop/config"
)

const (
	TypeFile     = "file"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeRedis    = "redis"

	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Result is the summary of decoding one manifest entry. Error is set, and
// the image fields may be empty, when the decode failed.
type Result struct {
	RunID           string    `codec:"run_id" db:"run_id"`
	Line            int64     `codec:"line" db:"line"`
	Path            string    `codec:"path" db:"path"`
	Width           uint32    `codec:"width" db:"width"`
	Height          uint32    `codec:"height" db:"height"`
	BitDepth        uint8     `codec:"bit_depth" db:"bit_depth"`
	ColorType       string    `codec:"color_type" db:"color_type"`
	Interlaced      bool      `codec:"interlaced" db:"interlaced"`
	PaletteEntries  int       `codec:"palette_entries" db:"palette_entries"`
	IDATChunks      int       `codec:"idat_chunks" db:"idat_chunks"`
	CompressedBytes int       `codec:"compressed_bytes" db:"compressed_bytes"`
	InflatedBytes   int       `codec:"inflated_bytes" db:"inflated_bytes"`
	SampleBytes     int       `codec:"sample_bytes" db:"sample_bytes"`
	SHA256          string    `codec:"sha256" db:"sha256"`
	DurationMicros  int64     `codec:"duration_us" db:"duration_us"`
	Error           string    `codec:"error,omitempty" db:"error"`
	DecodedAt       time.Time `codec:"decoded_at" db:"decoded_at"`

	// Samples holds the decoded pixels; only the file destination stores
	// them, and only when asked to.
	Samples []byte `codec:"-" db:"-"`
}

// Failed reports whether the decode failed.
func (r *Result) Failed() bool {
	return r.Error != ""
}

type Destination interface {
	Write(ctx context.Context, r *Result) error
	Close() error
}

// New connects to the destination described by cfg.
func New(ctx context.Context, cfg *config.TOMLDestination) (Destination, error) {
	if cfg == nil {
		return nil, errors.New("destination config cannot be nil")
	}

	switch cfg.Type {
	case TypeFile:
		return NewFile(cfg.Dir, cfg.Format, cfg.WriteSamples)
	case TypePostgres, TypeMySQL:
		return NewSQL(ctx, cfg.Type, cfg.DSN, cfg.CreateTable)
	case TypeRedis:
		return NewRedis(ctx, cfg.DSN, cfg.KeyPrefix, cfg.Format)
	default:
		return nil, errors.Errorf("unknown destination type '%s'", cfg.Type)
	}
}

func handle(format string) (codec.Handle, error) {
	switch format {
	case FormatJSON:
		return &codec.JsonHandle{}, nil
	case FormatMsgpack:
		return &codec.MsgpackHandle{WriteExt: true}, nil
	default:
		return nil, errors.Errorf("unknown record format '%s'", format)
	}
}

// Encode serializes r in the given format.
func Encode(format string, r *Result) ([]byte, error) {
	h, err := handle(format)
	if err != nil {
		return nil, err
	}

	var out []byte
	if err := codec.NewEncoderBytes(&out, h).Encode(r); err != nil {
		return nil, errors.Wrap(err, "unable to encode result")
	}

	return out, nil
}

// Decode is the inverse of Encode.
func Decode(format string, data []byte) (*Result, error) {
	h, err := handle(format)
	if err != nil {
		return nil, err
	}

	r := &Result{}
	if err := codec.NewDecoderBytes(data, h).Decode(r); err != nil {
		return nil, errors.Wrap(err, "unable to decode result")
	}

	return r, nil
}
