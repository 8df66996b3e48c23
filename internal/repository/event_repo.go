package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vekjja/espwifi-broker/internal/model"
)

const (
	// DefaultRecentLimit is used when Recent is asked for a non-positive count.
	DefaultRecentLimit = 100
	// MaxRecentLimit caps how many events one Recent call returns.
	MaxRecentLimit = 1000
)

// EventRepository stores lifecycle events in sqlite. Rows are written for
// diagnostics only and are never read back into broker state.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record inserts ev.
func (r *EventRepository) Record(ctx context.Context, ev model.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	query := `
		INSERT INTO events (type, device_id, tunnel, conn_id, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		string(ev.Type),
		ev.DeviceID,
		ev.Tunnel,
		ev.ConnID,
		ev.Detail,
		ev.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. limit is capped at
// MaxRecentLimit.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	query := `
		SELECT id, type, device_id, tunnel, conn_id, detail, at
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var ev model.Event
		var typ string
		if err := rows.Scan(&ev.ID, &typ, &ev.DeviceID, &ev.Tunnel, &ev.ConnID, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = model.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// CountByDevice returns how many events were recorded for key.
func (r *EventRepository) CountByDevice(ctx context.Context, key model.Key) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE device_id = ? AND tunnel = ?`,
		key.DeviceID, key.Tunnel,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
