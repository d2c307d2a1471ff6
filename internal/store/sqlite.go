// Package store - durable sink backed by SQLite. Persistence is best effort:
// the engine functions correctly with the sink absent or failing, and no
// operation is retried here.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
	_ "modernc.org/sqlite"
)

// Sink persists events, patterns, and anomalies to SQLite.
type Sink struct {
	db     *sql.DB
	dbPath string
}

// OpenSink initializes the SQLite database at the given path.
func OpenSink(path string) (*Sink, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenSink")
	defer timer.Stop()

	logging.Store("Opening durable sink at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	sink := &Sink{db: db, dbPath: path}
	if err := sink.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Durable sink ready")
	return sink, nil
}

// initialize creates the required tables.
func (s *Sink) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		description TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		decision_logic TEXT,
		outcome TEXT,
		tags TEXT,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

	CREATE TABLE IF NOT EXISTS patterns (
		name TEXT PRIMARY KEY,
		confidence REAL NOT NULL,
		payload TEXT NOT NULL,
		detected_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		anomaly_type TEXT NOT NULL,
		severity REAL NOT NULL,
		payload TEXT NOT NULL,
		detected_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveEvent persists a single event.
func (s *Sink) SaveEvent(e types.BehavioralEvent) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("failed to serialize tags: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO events
		 (id, event_type, description, timestamp, decision_logic, outcome, tags, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events))`,
		e.ID, string(e.EventType), e.Description, e.Timestamp.Format(time.RFC3339Nano),
		e.DecisionLogic, e.Outcome, string(tags),
	)
	return err
}

// LoadEvents returns all persisted events in original insertion order.
func (s *Sink) LoadEvents() ([]types.BehavioralEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, event_type, description, timestamp, decision_logic, outcome, tags
		 FROM events ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.BehavioralEvent
	for rows.Next() {
		var e types.BehavioralEvent
		var eventType, ts, tags string
		var logic, outcome sql.NullString

		if err := rows.Scan(&e.ID, &eventType, &e.Description, &ts, &logic, &outcome, &tags); err != nil {
			logging.StoreWarn("Skipping unreadable event row: %v", err)
			continue
		}

		e.EventType = types.EventType(eventType)
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		e.DecisionLogic = logic.String
		e.Outcome = outcome.String
		if tags != "" {
			if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
				logging.StoreDebug("Failed to parse tags for event %s: %v", e.ID, err)
			}
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

// ReplacePatterns replaces the persisted pattern set wholesale, mirroring the
// detector's recompute-everything semantics.
func (s *Sink) ReplacePatterns(patterns []types.Pattern) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM patterns"); err != nil {
		return err
	}
	for _, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to serialize pattern %s: %w", p.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO patterns (name, confidence, payload) VALUES (?, ?, ?)",
			p.Name, p.Confidence, string(payload),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveAnomalies persists the latest anomaly scan results.
func (s *Sink) SaveAnomalies(anomalies []types.Anomaly) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range anomalies {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to serialize anomaly %s: %w", a.ID, err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO anomalies (id, anomaly_type, severity, payload) VALUES (?, ?, ?, ?)",
			a.ID, string(a.Type), a.Severity, string(payload),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
