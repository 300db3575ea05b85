package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"llama-lora/core/models"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id has no record
var ErrRunNotFound = errors.New("run not found")

// RunRepository handles database operations for training runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run and its creation event. A run without an id gets
// a fresh one.
func (r *RunRepository) CreateRun(run *models.Run) error {
	query := `
		INSERT INTO runs (
			id, app, base_model, dataset, split, samples, val_set_size,
			output_dir, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", run.ID, err)
		}
	}

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(query,
		runID,
		run.App,
		run.BaseModel,
		run.Dataset,
		run.Split,
		run.Samples,
		run.ValSetSize,
		run.OutputDir,
		run.Status,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	run.ID = runID.String()
	if err := createRunEventTx(tx, run.ID, nil, run.Status, "run_created", nil); err != nil {
		return err
	}

	return tx.Commit()
}

const runColumns = `
	id, app, base_model, dataset, split, samples, val_set_size, output_dir,
	status, error, created_at, started_at, finished_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var runError sql.NullString
	var startedAt sql.NullTime
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.App,
		&run.BaseModel,
		&run.Dataset,
		&run.Split,
		&run.Samples,
		&run.ValSetSize,
		&run.OutputDir,
		&run.Status,
		&runError,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if runError.Valid {
		run.Error = runError.String
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

// GetRun retrieves a run by id
func (r *RunRepository) GetRun(id string) (*models.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}

	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns lists runs newest first, optionally filtered by status
func (r *RunRepository) ListRuns(status *models.RunStatus, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRunStatus updates run status atomically with event logging
func (r *RunRepository) UpdateRunStatus(runID string, fromStatus, toStatus models.RunStatus, reason string, meta map[string]interface{}) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE runs SET
			status = $1,
			started_at = CASE WHEN $1 = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			updated_at = NOW()
		WHERE id = $2
	`
	res, err := tx.Exec(updateQuery, toStatus, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}

	if err := createRunEventTx(tx, runID, &fromStatus, toStatus, reason, meta); err != nil {
		return err
	}

	return tx.Commit()
}

// FinishRun stores the outcome fields of a finished run
func (r *RunRepository) FinishRun(run *models.Run) error {
	query := `
		UPDATE runs SET
			samples = $1, val_set_size = $2, error = NULLIF($3, ''),
			finished_at = $4, updated_at = NOW()
		WHERE id = $5
	`

	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	res, err := r.db.Exec(query, run.Samples, run.ValSetSize, run.Error, finishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func createRunEventTx(tx *sql.Tx, runID string, fromStatus *models.RunStatus, toStatus models.RunStatus, reason string, meta map[string]interface{}) error {
	query := `
		INSERT INTO run_events (run_id, from_status, to_status, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`

	var fromStatusStr *string
	if fromStatus != nil {
		s := string(*fromStatus)
		fromStatusStr = &s
	}

	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(query, runID, fromStatusStr, toStatus, reason, metaJSON); err != nil {
		return fmt.Errorf("failed to record event for run %s: %w", runID, err)
	}
	return nil
}

func marshalMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode event meta: %w", err)
	}
	return string(b), nil
}

func unmarshalMeta(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode meta: %w", err)
	}
	return meta, nil
}
