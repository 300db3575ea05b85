package repository

import (
	"fmt"

	"llama-lora/core/models"
)

// ArtifactRepository stores the checkpoints and dataset slices a run produced
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

const artifactColumns = `id, run_id, type, uri, created_at, meta_json`

func scanArtifact(row rowScanner) (models.RunArtifact, error) {
	var artifact models.RunArtifact
	var metaJSON []byte

	if err := row.Scan(
		&artifact.ID,
		&artifact.RunID,
		&artifact.Type,
		&artifact.URI,
		&artifact.CreatedAt,
		&metaJSON,
	); err != nil {
		return artifact, err
	}

	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return artifact, fmt.Errorf("artifact %d: %w", artifact.ID, err)
	}
	artifact.MetaJSON = meta
	return artifact, nil
}

// GetRunArtifacts lists a run's artifacts newest first, optionally of one
// type. A non-positive limit returns them all.
func (r *ArtifactRepository) GetRunArtifacts(runID string, artifactType *models.ArtifactType, limit int) ([]models.RunArtifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM run_artifacts WHERE run_id = $1`
	args := []interface{}{runID}
	argIndex := 2

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, *artifactType)
		argIndex++
	}

	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts of run %s: %w", runID, err)
	}
	defer rows.Close()

	artifacts := []models.RunArtifact{}
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact records an artifact of a run. The uri is a checkpoint path
// or a dataset slice such as hf://owner/name/config/split.
func (r *ArtifactRepository) CreateArtifact(runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error {
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(
		`INSERT INTO run_artifacts (run_id, type, uri, meta_json) VALUES ($1, $2, $3, $4)`,
		runID, artifactType, uri, metaJSON,
	); err != nil {
		return fmt.Errorf("failed to record %s artifact for run %s: %w", artifactType, runID, err)
	}
	return nil
}
