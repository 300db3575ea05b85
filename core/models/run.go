package models

import "time"

// Run represents one invocation of the training entrypoint
type Run struct {
	ID         string     `json:"id"`
	App        string     `json:"app"`
	BaseModel  string     `json:"base_model"`
	Dataset    string     `json:"dataset"`
	Split      string     `json:"split"`
	Samples    int        `json:"samples"`
	ValSetSize int        `json:"val_set_size"`
	OutputDir  string     `json:"output_dir"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunStatus represents the current status of a training run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ModelBundle is what the external loader builds from a checkpoint. The
// members are opaque handles owned by the backend that produced them.
type ModelBundle struct {
	Checkpoint string
	Model      string
	Tokenizer  string
	Prompter   string
}
