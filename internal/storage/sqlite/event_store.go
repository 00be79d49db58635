// Package sqlite persists the incident event log that feeds geo
// clustering. The store is append-mostly; clustering always reads a
// bounded snapshot of the most recent events.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/safety.signal/internal/geo"
	"github.com/banshee-data/safety.signal/internal/monitoring"

	_ "modernc.org/sqlite"
)

type EventStore struct {
	*sql.DB
}

// NewEventStore opens (or creates) the sqlite database at path and
// bootstraps the event table. Schema changes beyond the bootstrap are
// handled by the migrations directory.
func NewEventStore(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS geo_events (
			event_id          TEXT PRIMARY KEY,
			latitude          DOUBLE NOT NULL,
			longitude         DOUBLE NOT NULL,
			unix_nanos        BIGINT NOT NULL,
			event_type        TEXT NOT NULL,
			severity          BIGINT NOT NULL,
			recorded_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_geo_events_unix_nanos
			ON geo_events(unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap geo_events: %w", err)
	}

	return &EventStore{db}, nil
}

// Append validates and stores one event, assigning it an ID when the
// caller did not.
func (s *EventStore) Append(event geo.GeoEvent) (geo.GeoEvent, error) {
	if err := event.Validate(); err != nil {
		return geo.GeoEvent{}, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	_, err := s.Exec(`
		INSERT INTO geo_events (event_id, latitude, longitude, unix_nanos, event_type, severity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Latitude, event.Longitude, event.UnixNanos, event.EventType, event.Severity,
	)
	if err != nil {
		return geo.GeoEvent{}, fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}
	return event, nil
}

// Snapshot returns up to limit of the most recent events, oldest first
// so clustering runs see a stable ordering. limit <= 0 means no limit.
func (s *EventStore) Snapshot(limit int) ([]geo.GeoEvent, error) {
	query := `
		SELECT event_id, latitude, longitude, unix_nanos, event_type, severity
		FROM geo_events ORDER BY unix_nanos DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []geo.GeoEvent
	for rows.Next() {
		var e geo.GeoEvent
		if err := rows.Scan(&e.ID, &e.Latitude, &e.Longitude, &e.UnixNanos, &e.EventType, &e.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse the DESC scan so the snapshot is oldest-first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// TrimTo deletes everything but the newest retain events. Old incidents
// decay to near-zero risk anyway; trimming keeps clustering input
// bounded on-device.
func (s *EventStore) TrimTo(retain int) (int64, error) {
	if retain < 0 {
		retain = 0
	}
	res, err := s.Exec(`
		DELETE FROM geo_events WHERE event_id NOT IN (
			SELECT event_id FROM geo_events ORDER BY unix_nanos DESC LIMIT ?
		)`, retain)
	if err != nil {
		return 0, fmt.Errorf("failed to trim events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		monitoring.Debugf("storage: trimmed %d events, retaining %d", deleted, retain)
	}
	return deleted, nil
}

// Count returns the number of stored events.
func (s *EventStore) Count() (int, error) {
	var n int
	if err := s.QueryRow(`SELECT COUNT(*) FROM geo_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// EventsSince returns events at or after the cutoff, oldest first.
func (s *EventStore) EventsSince(cutoff time.Time) ([]geo.GeoEvent, error) {
	rows, err := s.Query(`
		SELECT event_id, latitude, longitude, unix_nanos, event_type, severity
		FROM geo_events WHERE unix_nanos >= ? ORDER BY unix_nanos ASC`,
		cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query events since %s: %w", cutoff, err)
	}
	defer rows.Close()

	var events []geo.GeoEvent
	for rows.Next() {
		var e geo.GeoEvent
		if err := rows.Scan(&e.ID, &e.Latitude, &e.Longitude, &e.UnixNanos, &e.EventType, &e.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
