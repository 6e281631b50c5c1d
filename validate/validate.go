package validate

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dselans/pngbop/checkpoint/types"
)

func Checkpoint(cp *types.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}

	if cp.ManifestFile == "" {
		return errors.New("checkpoint manifest_file cannot be empty")
	}

	if _, err := uuid.Parse(cp.RunID); err != nil {
		return errors.Wrapf(err, "checkpoint run_id '%s' is invalid", cp.RunID)
	}

	if cp.LineOffset < 0 {
		return errors.Errorf("checkpoint line_offset %d cannot be negative", cp.LineOffset)
	}

	if cp.Processed < 0 || cp.Failed < 0 || cp.Failed > cp.Processed {
		return errors.Errorf("checkpoint counts are inconsistent (processed %d, failed %d)", cp.Processed, cp.Failed)
	}

	if cp.StartedAt.IsZero() {
		return errors.New("checkpoint started_at cannot be empty")
	}

	if cp.CompletedAt != nil && cp.CompletedAt.Before(cp.StartedAt) {
		return errors.New("checkpoint completed_at is before started_at")
	}

	return nil
}
