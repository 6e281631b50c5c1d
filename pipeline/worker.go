package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/pngbop/destination"
	"github.com/dselans/pngbop/pngfile"
)

func (p *Pipeline) runWorker(
	shutdownCtx context.Context,
	id int,
	jobCh <-chan *Job,
	writerCh chan<- *WriterJob,
) error {
	llog := p.log.WithFields(logrus.Fields{
		"method": "runWorker",
		"id":     id,
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	var numProcessed int

MAIN:
	for {
		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case job, open := <-jobCh:
			if !open {
				llog.Debug("job channel closed - exiting worker")
				break MAIN
			}

			wj := &WriterJob{Line: job.Line}

			if !job.Skip {
				wj.Result = p.processJob(job)
				numProcessed++

				if wj.Result.Failed() {
					llog.Warnf("line %d: %s: %s", job.Line, job.Path, wj.Result.Error)

					if p.cfg.TOML.Config.StopOnError {
						return errors.Errorf("decode of line %d (%s) failed: %s", job.Line, job.Path, wj.Result.Error)
					}
				}
			}

			select {
			case <-shutdownCtx.Done():
				llog.Debug("received shutdown signal")
				break MAIN
			case writerCh <- wj:
			}
		}
	}

	llog.Debugf("handled '%d' jobs", numProcessed)

	return nil
}

// processJob reads and decodes one image. Failures are recorded on the
// result rather than returned.
func (p *Pipeline) processJob(j *Job) *destination.Result {
	start := time.Now()

	r := &destination.Result{
		RunID:     p.cp.RunID,
		Line:      j.Line,
		Path:      j.Path,
		DecodedAt: start,
	}

	defer func() {
		r.DurationMicros = time.Since(start).Microseconds()

		if r.Failed() {
			p.stats.failed.Add(1)
		} else {
			p.stats.decoded.Add(1)
		}
	}()

	data, err := os.ReadFile(j.Path)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	if p.cfg.CLI.DryRun {
		f, err := pngfile.Inspect(data, p.limits)
		describe(r, f)
		if err != nil {
			r.Error = err.Error()
		}
		return r
	}

	f, samples, n, err := pngfile.DecodeSamples(data, p.limits)
	describe(r, f)
	r.InflatedBytes = n
	p.stats.inflatedBytes.Add(int64(n))

	if err != nil {
		r.Error = err.Error()
		return r
	}

	sum := sha256.Sum256(samples.Buf)
	r.SHA256 = hex.EncodeToString(sum[:])
	r.SampleBytes = len(samples.Buf)

	if p.cfg.TOML.Destination.WriteSamples {
		r.Samples = samples.Buf
	}

	return r
}

func describe(r *destination.Result, f *pngfile.File) {
	if f == nil {
		return
	}

	g := f.Geometry
	r.Width = g.Width
	r.Height = g.Height
	r.BitDepth = g.BitDepth
	r.ColorType = g.ColorType.String()
	r.Interlaced = g.Interlaced
	r.PaletteEntries = f.PaletteEntries
	r.IDATChunks = len(f.IDAT)
	r.CompressedBytes = f.CompressedSize()
}
