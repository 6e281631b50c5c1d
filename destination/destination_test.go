package destination

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dselans/pngbop/config"
)

func newResult(line int64) *Result {
	return &Result{
		RunID:           "5b0c1b6a-0b84-4b7e-9d1c-3f0c2a8e9e11",
		Line:            line,
		Path:            "/images/cat.png",
		Width:           640,
		Height:          480,
		BitDepth:        8,
		ColorType:       "truecolor",
		Interlaced:      true,
		IDATChunks:      3,
		CompressedBytes: 12345,
		InflatedBytes:   921600 + 480,
		SampleBytes:     921600,
		SHA256:          "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		DurationMicros:  1500,
		DecodedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Samples:         []byte{1, 2, 3, 4},
	}
}

func assertSameResult(t *testing.T, want, got *Result) {
	t.Helper()

	assert.True(t, want.DecodedAt.Equal(got.DecodedAt), "decoded_at %s != %s", want.DecodedAt, got.DecodedAt)

	w, g := *want, *got
	w.DecodedAt, g.DecodedAt = time.Time{}, time.Time{}
	w.Samples = nil
	assert.Equal(t, w, g)
}

func TestEncodeDecode(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			r := newResult(7)
			r.Error = "inflate: huffman decode failure"

			data, err := Encode(format, r)
			require.NoError(t, err)

			got, err := Decode(format, data)
			require.NoError(t, err)
			assertSameResult(t, r, got)
			assert.True(t, got.Failed())
		})
	}

	_, err := Encode("xml", newResult(1))
	assert.Error(t, err)
}

func TestFileDestination(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")

			d, err := NewFile(dir, format, true)
			require.NoError(t, err)

			ok := newResult(1)
			failed := newResult(2)
			failed.Path = "/images/broken.png"
			failed.Error = "pngfile: chunk CRC mismatch"

			require.NoError(t, d.Write(context.Background(), ok))
			require.NoError(t, d.Write(context.Background(), failed))
			require.NoError(t, d.Close())

			got, err := ReadSummary(SummaryPath(dir, format), format)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assertSameResult(t, ok, got[0])
			assertSameResult(t, failed, got[1])

			samples, err := os.ReadFile(SamplesPath(dir, ok))
			require.NoError(t, err)
			assert.Equal(t, ok.Samples, samples)
			assert.Equal(t, "9f86d081884c-cat.png.samples", filepath.Base(SamplesPath(dir, ok)))

			assert.NoFileExists(t, SamplesPath(dir, failed))
		})
	}
}

func TestFileDestinationAppends(t *testing.T) {
	dir := t.TempDir()

	for i := int64(0); i < 2; i++ {
		d, err := NewFile(dir, FormatJSON, false)
		require.NoError(t, err)
		require.NoError(t, d.Write(context.Background(), newResult(i)))
		require.NoError(t, d.Close())
	}

	got, err := ReadSummary(SummaryPath(dir, FormatJSON), FormatJSON)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[1].Line)

	_, err = os.Stat(SamplesPath(dir, newResult(0)))
	assert.True(t, os.IsNotExist(err))
}

func TestNewRejects(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil)
	assert.Error(t, err)

	_, err = New(ctx, &config.TOMLDestination{Type: "mongo"})
	assert.Error(t, err)

	_, err = New(ctx, &config.TOMLDestination{Type: TypeFile, Dir: t.TempDir(), Format: "xml"})
	assert.Error(t, err)

	_, err = NewSQL(ctx, "sqlite3", "file::memory:", false)
	assert.Error(t, err)

	_, err = NewRedis(ctx, "http://localhost", "pngbop:", FormatJSON)
	assert.Error(t, err)
}

func TestSQLDestination(t *testing.T) {
	dsn := os.Getenv("PNGBOP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PNGBOP_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()

	d, err := NewSQL(ctx, TypePostgres, dsn, true)
	require.NoError(t, err)
	defer d.Close()

	r := newResult(99)
	r.RunID = "sql-test-" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, d.Write(ctx, r))

	var count int
	require.NoError(t, d.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+TableName+` WHERE run_id = $1`, r.RunID))
	assert.Equal(t, 1, count)
}

func TestRedisDestination(t *testing.T) {
	url := os.Getenv("PNGBOP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PNGBOP_TEST_REDIS_URL not set")
	}

	ctx := context.Background()

	d, err := NewRedis(ctx, url, "pngbop-test:", FormatMsgpack)
	require.NoError(t, err)
	defer d.Close()

	r := newResult(3)
	require.NoError(t, d.Write(ctx, r))

	data, err := d.client.Get(d.Key(r)).Bytes()
	require.NoError(t, err)

	got, err := Decode(FormatMsgpack, data)
	require.NoError(t, err)
	assertSameResult(t, r, got)

	require.NoError(t, d.client.Del(d.Key(r)).Err())
}
