package pipeline

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Report is the progress snapshot written to --report-output.
type Report struct {
	RunID     string    `json:"run_id"`
	Manifest  string    `json:"manifest"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Elapsed   string    `json:"elapsed"`
	Done      bool      `json:"done"`
	Stats
}

// runReporter logs progress every report interval until done is closed, then
// reports one last time.
func (p *Pipeline) runReporter(done <-chan struct{}) {
	llog := p.log.WithFields(logrus.Fields{
		"method": "runReporter",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	ticker := time.NewTicker(p.cfg.CLI.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			p.report(llog, true)
			return
		case <-ticker.C:
			p.report(llog, false)
		}
	}
}

func (p *Pipeline) report(llog *logrus.Entry, done bool) {
	r := p.Report(done)

	llog.WithFields(logrus.Fields{
		"lines_read":  r.LinesRead,
		"decoded":     r.Decoded,
		"failed":      r.Failed,
		"written":     r.Written,
		"inflated":    r.InflatedBytes,
		"line_offset": r.LineOffset,
		"elapsed":     r.Elapsed,
	}).Info("progress")

	if p.cfg.CLI.ReportOutput == "" {
		return
	}

	if err := writeReport(p.cfg.CLI.ReportOutput, r); err != nil {
		llog.Errorf("unable to write report: %v", err)
	}
}

// Report builds a progress snapshot.
func (p *Pipeline) Report(done bool) *Report {
	now := time.Now()

	return &Report{
		RunID:     p.cp.RunID,
		Manifest:  p.cfg.TOML.Source.File,
		StartedAt: p.cp.StartedAt,
		UpdatedAt: now,
		Elapsed:   now.Sub(p.cp.StartedAt).Round(time.Millisecond).String(),
		Done:      done,
		Stats:     p.Stats(),
	}
}

func writeReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal report")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "unable to write report file")
	}

	return nil
}
