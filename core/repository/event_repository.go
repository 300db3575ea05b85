package repository

import (
	"database/sql"
	"fmt"

	"llama-lora/core/models"
)

// EventRepository reads the status-transition log written alongside run updates
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, run_id, at, from_status, to_status, reason, meta_json`

func scanEvent(row rowScanner) (models.RunEvent, error) {
	var event models.RunEvent
	var fromStatus sql.NullString
	var metaJSON []byte

	if err := row.Scan(
		&event.ID,
		&event.RunID,
		&event.At,
		&fromStatus,
		&event.ToStatus,
		&event.Reason,
		&metaJSON,
	); err != nil {
		return event, err
	}

	// NULL for the creation event
	if fromStatus.Valid {
		status := models.RunStatus(fromStatus.String)
		event.FromStatus = &status
	}

	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return event, fmt.Errorf("event %d: %w", event.ID, err)
	}
	event.MetaJSON = meta
	return event, nil
}

// GetRunEvents lists a run's transitions newest first. A non-positive limit
// returns the whole log.
func (r *EventRepository) GetRunEvents(runID string, limit int) ([]models.RunEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM run_events WHERE run_id = $1 ORDER BY at DESC, id DESC`
	args := []interface{}{runID}

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events of run %s: %w", runID, err)
	}
	defer rows.Close()

	events := []models.RunEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
