package validate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dselans/pngbop/checkpoint/types"
)

func TestCheckpoint(t *testing.T) {
	now := time.Now()
	before := now.Add(-time.Hour)

	valid := func() *types.Checkpoint {
		return &types.Checkpoint{
			ManifestFile: "/data/manifest.txt",
			RunID:        uuid.New().String(),
			StartedAt:    now,
			LineOffset:   10,
			Processed:    8,
			Failed:       2,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cp *types.Checkpoint)
		wantErr bool
	}{
		{"valid", func(*types.Checkpoint) {}, false},
		{"no manifest", func(cp *types.Checkpoint) { cp.ManifestFile = "" }, true},
		{"bad run id", func(cp *types.Checkpoint) { cp.RunID = "abc" }, true},
		{"negative offset", func(cp *types.Checkpoint) { cp.LineOffset = -1 }, true},
		{"failed above processed", func(cp *types.Checkpoint) { cp.Failed = 9 }, true},
		{"no start", func(cp *types.Checkpoint) { cp.StartedAt = time.Time{} }, true},
		{"completed early", func(cp *types.Checkpoint) { cp.CompletedAt = &before }, true},
		{"completed", func(cp *types.Checkpoint) { cp.CompletedAt = &now }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := valid()
			tt.mutate(cp)

			err := Checkpoint(cp)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, Checkpoint(nil))
}
