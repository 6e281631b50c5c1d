package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/pngbop/checkpoint/types"
	"github.com/dselans/pngbop/validate"
)

// Load reads checkpointFile, or creates a fresh checkpoint for manifestFile
// if it doesn't exist. A checkpoint written for a different manifest is an
// error. With fresh set, any existing checkpoint is replaced.
func Load(checkpointFile, manifestFile string, fresh bool) (*types.Checkpoint, error) {
	startedAt := time.Now()
	logrus.Debugf("checkpoint loading started at '%s'", startedAt)

	defer func() {
		endedAt := time.Now()
		logrus.Debugf("checkpoint loading completed at '%s'", endedAt)
		logrus.Debugf("checkpoint loading took '%s'", endedAt.Sub(startedAt))
	}()

	var createCheckpoint bool

	// Check if checkpoint file exists; if it does not exist - create it,
	// otherwise, try to load it.
	if _, err := os.Stat(checkpointFile); err != nil {
		if os.IsNotExist(err) {
			createCheckpoint = true
		} else {
			return nil, errors.Wrap(err, "unable to stat checkpoint file")
		}
	}

	if createCheckpoint || fresh {
		logrus.Debugf("creating checkpoint file '%s'", checkpointFile)
		return create(checkpointFile, manifestFile)
	}

	logrus.Debugf("loading checkpoint file '%s'", checkpointFile)

	cp, err := load(checkpointFile)
	if err != nil {
		return nil, err
	}

	if !sameFile(cp.ManifestFile, manifestFile) {
		return nil, errors.Errorf("checkpoint '%s' belongs to manifest '%s', not '%s'",
			checkpointFile, cp.ManifestFile, manifestFile)
	}

	return cp, nil
}

func load(checkpointFile string) (*types.Checkpoint, error) {
	data, err := os.ReadFile(checkpointFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read checkpoint file")
	}

	cp := &types.Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal checkpoint file")
	}

	if err := validate.Checkpoint(cp); err != nil {
		return nil, errors.Wrap(err, "invalid checkpoint file")
	}

	return cp, nil
}

func create(checkpointFile, manifestFile string) (*types.Checkpoint, error) {
	abs, err := filepath.Abs(manifestFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve manifest path")
	}

	now := time.Now()

	cp := &types.Checkpoint{
		ManifestFile: abs,
		RunID:        uuid.New().String(),
		StartedAt:    now,
		LastUpdated:  now,
	}

	// Try to write checkpoint file
	if err := cp.Save(checkpointFile); err != nil {
		return nil, errors.Wrap(err, "unable to write checkpoint file")
	}

	return cp, nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	return errA == nil && errB == nil && absA == absB
}
