package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (p *Pipeline) runWriter(shutdownCtx context.Context, id int, writerCh <-chan *WriterJob, cpChan chan<- *CheckpointJob) error {
	llog := p.log.WithFields(logrus.Fields{
		"method": "runWriter",
		"id":     id,
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	var numWritten int

MAIN:
	for {
		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case job, open := <-writerCh:
			if !open {
				llog.Debug("writer channel closed - exiting writer")
				break MAIN
			}

			cp := &CheckpointJob{
				Line:     job.Line,
				WriterID: id,
				Skipped:  job.Result == nil,
			}

			if job.Result != nil {
				if err := p.writeJob(shutdownCtx, job); err != nil {
					llog.Errorf("error writing job: %v", err)
					return errors.Wrap(err, "error writing job")
				}

				cp.Failed = job.Result.Failed()
				numWritten++
			}

			// Write checkpoint
			cpChan <- cp
		}
	}

	llog.Debugf("handled '%d' jobs", numWritten)

	return nil
}

func (p *Pipeline) writeJob(ctx context.Context, j *WriterJob) error {
	if p.dst == nil {
		p.log.WithFields(logrus.Fields{
			"line":       j.Line,
			"path":       j.Result.Path,
			"width":      j.Result.Width,
			"height":     j.Result.Height,
			"color_type": j.Result.ColorType,
			"bit_depth":  j.Result.BitDepth,
			"interlaced": j.Result.Interlaced,
			"error":      j.Result.Error,
		}).Info("dry run")

		return nil
	}

	if err := p.dst.Write(ctx, j.Result); err != nil {
		return err
	}

	p.stats.written.Add(1)

	return nil
}
