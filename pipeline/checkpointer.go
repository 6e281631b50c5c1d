package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// runCheckpointer advances the checkpoint offset as lines are written and
// saves it to disk. Lines finish out of order, so the offset only moves past
// a line once every line before it is done too.
//
// It keeps draining cpChan after ctx is cancelled; the channel is closed
// once every writer has exited, and a final save happens then.
func (p *Pipeline) runCheckpointer(ctx context.Context, cpChan <-chan *CheckpointJob) error {
	llog := p.log.WithFields(logrus.Fields{
		"method": "runCheckpointer",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	next := p.cp.Offset() + 1
	pending := make(map[int64]*CheckpointJob)

	for cp := range cpChan {
		llog.Debugf("received checkpoint for line '%v' writer id '%v'", cp.Line, cp.WriterID)

		pending[cp.Line] = cp

		var advanced, processed, failed int64
		for {
			done, ok := pending[next]
			if !ok {
				break
			}

			delete(pending, next)
			advanced = next
			next++

			if !done.Skipped {
				processed++
			}
			if done.Failed {
				failed++
			}
		}

		if advanced == 0 {
			continue
		}

		p.cp.Advance(advanced, processed, failed)

		if err := p.saveCheckpoint(false); err != nil {
			llog.Errorf("error saving checkpoint for line '%v': %v", advanced, err)
		}
	}

	if p.readerDone.Load() && len(pending) == 0 && ctx.Err() == nil {
		llog.Debug("manifest fully processed")
		p.cp.Complete()
	} else if len(pending) > 0 {
		llog.Debugf("'%d' lines finished past the checkpoint offset will be redone on resume", len(pending))
	}

	if err := p.saveCheckpoint(true); err != nil {
		return errors.Wrap(err, "unable to save final checkpoint")
	}

	return nil
}

func (p *Pipeline) saveCheckpoint(force bool) error {
	llog := p.log.WithFields(logrus.Fields{
		"method": "saveCheckpoint",
	})

	if p.cfg.TOML.Config.DisableCheckpointing || p.cfg.CLI.DryRun {
		return nil
	}

	// Skip checkpoint if it's NOT zero/unset OR we haven't passed CheckpointInterval
	if !force && !p.last.IsZero() && p.last.Add(p.cfg.TOML.Config.Interval()).After(time.Now()) {
		llog.Debugf("skipping checkpoint save, last save was %v ago", time.Since(p.last))
		return nil
	}

	llog.Debugf("saving checkpoint to '%s'", p.cfg.TOML.Config.CheckpointFile)

	// Save checkpoint to disk
	if err := p.cp.Save(p.cfg.TOML.Config.CheckpointFile); err != nil {
		return errors.Wrap(err, "unable to save checkpoint")
	}

	// Note that a checkpoint save has occurred
	p.last = time.Now()

	return nil
}
