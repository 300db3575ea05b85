package models

import "time"

// RunEvent represents a state transition event for a run
type RunEvent struct {
	ID         int64                  `json:"id"`
	RunID      string                 `json:"run_id"`
	At         time.Time              `json:"at"`
	FromStatus *RunStatus             `json:"from_status,omitempty"`
	ToStatus   RunStatus              `json:"to_status"`
	Reason     string                 `json:"reason"`
	MetaJSON   map[string]interface{} `json:"meta,omitempty"`
}

// ArtifactType represents the type of run artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeDataset    ArtifactType = "dataset"
)

// RunArtifact represents an artifact produced by a run (checkpoint, dataset snapshot)
type RunArtifact struct {
	ID        int64                  `json:"id"`
	RunID     string                 `json:"run_id"`
	Type      ArtifactType           `json:"type"`
	URI       string                 `json:"uri"`
	CreatedAt time.Time              `json:"created_at"`
	MetaJSON  map[string]interface{} `json:"meta,omitempty"`
}

// Checkpoint is a fine-tuning output directory on the checkpoints volume
type Checkpoint struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}
