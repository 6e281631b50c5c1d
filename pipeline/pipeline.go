// Package pipeline decodes every PNG listed in a manifest. A reader feeds
// manifest lines to decode workers, writers push the results to a
// destination and a checkpointer records how far the run has got.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/pngbop/checkpoint"
	"github.com/dselans/pngbop/checkpoint/types"
	"github.com/dselans/pngbop/config"
	"github.com/dselans/pngbop/destination"
	"github.com/dselans/pngbop/pngfile"
)

const (
	checkpointBuffer = 1000
	shutdownTimeout  = 5 * time.Second
)

// Job is one manifest line. Skip is set for blank and comment lines, which
// only need to pass through to the checkpointer.
type Job struct {
	Line int64
	Path string
	Skip bool
}

type WriterJob struct {
	Line   int64
	Result *destination.Result
}

type CheckpointJob struct {
	Line     int64
	Failed   bool
	Skipped  bool
	WriterID int
}

// Stats are the run's progress counters.
type Stats struct {
	LinesRead     int64 `json:"lines_read"`
	Decoded       int64 `json:"decoded"`
	Failed        int64 `json:"failed"`
	Written       int64 `json:"written"`
	InflatedBytes int64 `json:"inflated_bytes"`
	LineOffset    int64 `json:"line_offset"`
}

type counters struct {
	linesRead     atomic.Int64
	decoded       atomic.Int64
	failed        atomic.Int64
	written       atomic.Int64
	inflatedBytes atomic.Int64
}

type Pipeline struct {
	cfg    *config.Config
	log    *logrus.Entry
	cp     *types.Checkpoint
	dst    destination.Destination
	limits pngfile.Limits

	stats      counters
	readerDone atomic.Bool
	last       time.Time
}

// New validates cfg and loads or creates the checkpoint. When dst is nil the
// destination is built from cfg; dry runs need none.
func New(ctx context.Context, cfg *config.Config, dst destination.Destination) (*Pipeline, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	cp, err := loadCheckpoint(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load checkpoint file")
	}

	if dst == nil && !cfg.CLI.DryRun {
		dst, err = destination.New(ctx, cfg.TOML.Destination)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create destination")
		}
	}

	return &Pipeline{
		cfg: cfg,
		cp:  cp,
		dst: dst,
		limits: pngfile.Limits{
			MaxWidth:  cfg.TOML.Limits.MaxWidth,
			MaxHeight: cfg.TOML.Limits.MaxHeight,
			MaxPixels: cfg.TOML.Limits.MaxPixels,
		},
		log: logrus.WithFields(logrus.Fields{"pkg": "pipeline", "run_id": cp.RunID}),
	}, nil
}

func loadCheckpoint(cfg *config.Config) (*types.Checkpoint, error) {
	if cfg.TOML.Config.DisableCheckpointing || cfg.CLI.DryRun {
		now := time.Now()
		return &types.Checkpoint{
			ManifestFile: cfg.TOML.Source.File,
			RunID:        uuid.New().String(),
			StartedAt:    now,
			LastUpdated:  now,
		}, nil
	}

	return checkpoint.Load(cfg.TOML.Config.CheckpointFile, cfg.TOML.Source.File, cfg.CLI.DisableResume)
}

// Checkpoint returns the run's checkpoint.
func (p *Pipeline) Checkpoint() *types.Checkpoint {
	return p.cp
}

// Stats returns a snapshot of the progress counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		LinesRead:     p.stats.linesRead.Load(),
		Decoded:       p.stats.decoded.Load(),
		Failed:        p.stats.failed.Load(),
		Written:       p.stats.written.Load(),
		InflatedBytes: p.stats.inflatedBytes.Load(),
		LineOffset:    p.cp.Offset(),
	}
}

// Run processes the manifest until it is exhausted, a stage fails or
// shutdownCtx is cancelled. The checkpoint is saved on the way out in every
// case.
func (p *Pipeline) Run(shutdownCtx context.Context) error {
	ctx, cancel := context.WithCancel(shutdownCtx)
	defer cancel()

	numWorkers := p.cfg.TOML.Config.NumWorkers
	numWriters := p.cfg.TOML.Config.NumWriters

	errCh := make(chan error, numWorkers+numWriters+2)
	jobCh := make(chan *Job, numWorkers)
	writerCh := make(chan *WriterJob, numWriters)
	cpCh := make(chan *CheckpointJob, checkpointBuffer)
	cpDone := make(chan struct{})

	workerWg := &sync.WaitGroup{}
	writerWg := &sync.WaitGroup{}

	// Launch reader
	go func() {
		defer close(jobCh)

		if err := p.runReader(ctx, jobCh); err != nil {
			errCh <- errors.Wrap(err, "error in reader")
		}
	}()

	// Launch workers
	for i := 0; i < numWorkers; i++ {
		i := i
		workerWg.Add(1)

		go func() {
			defer workerWg.Done()

			if err := p.runWorker(ctx, i, jobCh, writerCh); err != nil {
				errCh <- errors.Wrapf(err, "error in worker %d", i)
			}
		}()
	}

	go func() {
		workerWg.Wait()
		close(writerCh)
	}()

	// Launch writers
	for i := 0; i < numWriters; i++ {
		i := i
		writerWg.Add(1)

		go func() {
			defer writerWg.Done()

			if err := p.runWriter(ctx, i, writerCh, cpCh); err != nil {
				errCh <- errors.Wrapf(err, "error in writer %d", i)
			}
		}()
	}

	go func() {
		writerWg.Wait()
		close(cpCh)
	}()

	// Launch checkpointer; it drains cpCh until every writer has exited
	go func() {
		defer close(cpDone)

		if err := p.runCheckpointer(ctx, cpCh); err != nil {
			errCh <- errors.Wrap(err, "error in checkpointer")
		}
	}()

	reporterDone := make(chan struct{})

	go func() {
		defer close(reporterDone)
		p.runReporter(cpDone)
	}()

	select {
	case <-cpDone:
	case err := <-errCh:
		p.log.Debug("stage failed, waiting for the rest to stop")
		cancel()

		if waitErr := p.waitWorkers(cpDone); waitErr != nil {
			p.log.Error(waitErr)
		} else {
			<-reporterDone
		}

		p.close()

		return err
	}

	<-reporterDone
	p.close()

	select {
	case err := <-errCh:
		return err
	default:
	}

	if shutdownCtx.Err() != nil {
		p.log.Info("interrupted, progress saved")
	}

	p.log.Debug("pipeline run completed")

	return nil
}

func (p *Pipeline) waitWorkers(cpDone <-chan struct{}) error {
	select {
	case <-cpDone:
		p.log.Debug("all stages have exited")
		return nil
	case <-time.After(shutdownTimeout):
		p.log.Warn("timed out waiting for workers and/or checkpointer to exit")
		return errors.New("timed out waiting for workers and/or checkpointer to exit")
	}
}

func (p *Pipeline) close() {
	if p.dst == nil {
		return
	}

	if err := p.dst.Close(); err != nil {
		p.log.Errorf("error closing destination: %v", err)
	}
}
