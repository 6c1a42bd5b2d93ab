package repository

import (
	"context"
	"encoding/json"

	"segrun-orchestrator/core/models"
)

// EventRepository handles database operations for run events. The ledger
// is advisory: run state lives exclusively in object storage.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EnsureSchema creates the run_events table if it does not exist
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_events (
			id UUID PRIMARY KEY,
			run_url TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			event TEXT NOT NULL,
			detail_json TEXT NOT NULL DEFAULT '{}'
		)
	`)
	return err
}

// RecordEvent inserts one run lifecycle event
func (r *EventRepository) RecordEvent(ctx context.Context, event models.RunEvent) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_events (id, run_url, at, event, detail_json)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.RunURL,
		event.At,
		event.Event,
		string(detail),
	)
	return err
}

// GetRunEvents retrieves events for a run, most recent first
func (r *EventRepository) GetRunEvents(ctx context.Context, runURL string, limit int) ([]models.RunEvent, error) {
	query := `
		SELECT id, run_url, at, event, detail_json
		FROM run_events
		WHERE run_url = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runURL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var event models.RunEvent
		var detailJSON string

		err := rows.Scan(
			&event.ID,
			&event.RunURL,
			&event.At,
			&event.Event,
			&detailJSON,
		)
		if err != nil {
			continue
		}

		if detailJSON != "" {
			json.Unmarshal([]byte(detailJSON), &event.Detail)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
