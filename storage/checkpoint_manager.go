package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"llama-lora/core/models"

	"github.com/samber/lo"
)

// ErrNoCheckpoint is returned when the checkpoints volume holds no checkpoint yet
var ErrNoCheckpoint = errors.New("no checkpoint found")

// ArtifactStore persists run artifacts
type ArtifactStore interface {
	CreateArtifact(runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error
}

// CheckpointManager resolves checkpoints on the checkpoints volume
type CheckpointManager struct {
	dir       string
	artifacts ArtifactStore
}

// NewCheckpointManager creates a checkpoint manager over dir. artifacts may be
// nil, in which case checkpoints are not recorded.
func NewCheckpointManager(dir string, artifacts ArtifactStore) *CheckpointManager {
	return &CheckpointManager{
		dir:       dir,
		artifacts: artifacts,
	}
}

// Dir returns the checkpoints volume path
func (cm *CheckpointManager) Dir() string {
	return cm.dir
}

// List returns every checkpoint directory on the volume, newest first
func (cm *CheckpointManager) List(ctx context.Context) ([]models.Checkpoint, error) {
	entries, err := os.ReadDir(cm.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints volume %s: %w", cm.dir, err)
	}

	dirs := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return e.IsDir() && e.Name()[0] != '.'
	})

	checkpoints := make([]models.Checkpoint, 0, len(dirs))
	for _, d := range dirs {
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		checkpoints = append(checkpoints, models.Checkpoint{
			Name:    d.Name(),
			Path:    filepath.Join(cm.dir, d.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		if !checkpoints[i].ModTime.Equal(checkpoints[j].ModTime) {
			return checkpoints[i].ModTime.After(checkpoints[j].ModTime)
		}
		return checkpoints[i].Name > checkpoints[j].Name
	})

	return checkpoints, nil
}

// Newest returns the most recently modified checkpoint. It never falls back
// to the base model: an empty or missing volume is ErrNoCheckpoint.
func (cm *CheckpointManager) Newest(ctx context.Context) (models.Checkpoint, error) {
	checkpoints, err := cm.List(ctx)
	if err != nil {
		return models.Checkpoint{}, err
	}
	if len(checkpoints) == 0 {
		return models.Checkpoint{}, fmt.Errorf("%w in %s", ErrNoCheckpoint, cm.dir)
	}
	return checkpoints[0], nil
}

// RecordNewest stores the newest checkpoint as an artifact of runID
func (cm *CheckpointManager) RecordNewest(ctx context.Context, runID string) (models.Checkpoint, error) {
	ckpt, err := cm.Newest(ctx)
	if err != nil {
		return models.Checkpoint{}, err
	}
	if cm.artifacts == nil {
		return ckpt, nil
	}

	meta := map[string]interface{}{
		"name":     ckpt.Name,
		"mod_time": ckpt.ModTime,
	}
	if err := cm.artifacts.CreateArtifact(runID, models.ArtifactTypeCheckpoint, ckpt.Path, meta); err != nil {
		return ckpt, fmt.Errorf("failed to record checkpoint %s: %w", ckpt.Path, err)
	}
	return ckpt, nil
}
