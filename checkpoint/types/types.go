package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Checkpoint records how far through a manifest a run has got. LineOffset is
// the number of leading manifest lines whose results have all been written.
type Checkpoint struct {
	ManifestFile string     `json:"manifest_file"`
	LineOffset   int64      `json:"line_offset"`
	RunID        string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	LastUpdated  time.Time  `json:"last_updated"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Processed    int64      `json:"processed"`
	Failed       int64      `json:"failed"`

	sync.Mutex `json:"-"`
}

// Advance moves the offset forward and adds to the counters. An offset
// behind the current one is ignored.
func (cp *Checkpoint) Advance(offset, processed, failed int64) {
	cp.Lock()
	defer cp.Unlock()

	if offset > cp.LineOffset {
		cp.LineOffset = offset
	}

	cp.Processed += processed
	cp.Failed += failed
	cp.LastUpdated = time.Now()
}

// Complete marks the run as finished.
func (cp *Checkpoint) Complete() {
	cp.Lock()
	defer cp.Unlock()

	now := time.Now()
	cp.CompletedAt = &now
	cp.LastUpdated = now
}

// Offset returns the current line offset.
func (cp *Checkpoint) Offset() int64 {
	cp.Lock()
	defer cp.Unlock()

	return cp.LineOffset
}

// Save writes the checkpoint to a temp file next to checkpointFile and
// renames it into place.
func (cp *Checkpoint) Save(checkpointFile string) error {
	cp.Lock()
	data, err := json.MarshalIndent(cp, "", "  ")
	cp.Unlock()

	if err != nil {
		return errors.Wrap(err, "unable to marshal checkpoint file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(checkpointFile), filepath.Base(checkpointFile)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temp checkpoint file")
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write temp checkpoint file")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close temp checkpoint file")
	}

	if err := os.Rename(tmp.Name(), checkpointFile); err != nil {
		return errors.Wrap(err, "unable to rename checkpoint file")
	}

	return nil
}
