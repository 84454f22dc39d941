// Package eventlog persists structured events to an append-only store.
//
// The store is an ordered, write-once stream consumed later by the offline
// timeline tool. Writes never fail the caller: a failed append is logged and
// dropped, and a store that cannot be opened on disk falls back to an
// in-memory database.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// EventKind identifies a structured event record.
type EventKind string

const (
	KindModeChange             EventKind = "mode_change"
	KindSensorError            EventKind = "sensor_error"
	KindSensorRecovered        EventKind = "sensor_recovered"
	KindAnalysisTriggered      EventKind = "analysis_triggered"
	KindAnalysisResult         EventKind = "analysis_result"
	KindInterventionStart      EventKind = "intervention_start"
	KindInterventionSuppressed EventKind = "intervention_suppressed"
	KindUserFeedback           EventKind = "user_feedback"
	KindShutdown               EventKind = "shutdown"
)

// Record is one appended event.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      EventKind      `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// Store appends records to a sqlite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the event database at path. When the file cannot be
// opened an in-memory database is used instead so event logging keeps
// working for the life of the process.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	log := logger.With().Str("component", "eventlog").Logger()

	db, err := openAt(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open event database, falling back to memory")
		db, err = sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory event database: %w", err)
		}
	}

	s := &Store{db: db, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event tables: %w", err)
	}

	log.Info().Str("path", path).Msg("Event log opened")
	return s, nil
}

func openAt(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; all appends go through one connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			timestamp  TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`)
	return err
}

// Append writes one event record. Failures are logged, never returned; the
// core treats the sink as fire-and-forget.
func (s *Store) Append(kind EventKind, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to encode event payload")
		data = []byte("{}")
	}

	_, err = s.db.Exec(
		`INSERT INTO events (id, timestamp, event_type, payload) VALUES (?, ?, ?, ?)`,
		uuid.NewString(),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(kind),
		string(data),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to append event")
	}
}

// Recent returns up to limit most recent events, newest first. Used by the
// tray tooltip and by tests.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, timestamp, event_type, payload FROM events ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts, payload string
		if err := rows.Scan(&rec.ID, &ts, &rec.Kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &rec.Payload)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
