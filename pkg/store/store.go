// Package store persists sessions, their activity log, evidence captures
// and final metrics in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("store: not found")

// Session statuses
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Session is a stored session row
type Session struct {
	ID         string           `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
	Monitoring bool             `json:"monitoring"`
	Source     string           `json:"source"`
	Status     string           `json:"status"`
	Final      *monitor.Metrics `json:"final_metrics,omitempty"`
}

// Capture is a stored evidence capture
type Capture struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	File      string    `json:"file"`
	At        time.Time `json:"at"`
}

// Store wraps the SQLite connection
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies
// migrations
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles concurrency best with a single writer
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the connection
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// CreateSession inserts a running session
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	status := sess.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, monitoring, source, status) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, toMillis(sess.StartedAt), sess.Monitoring, sess.Source, status)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// AppendActivity appends one activity log entry
func (s *Store) AppendActivity(ctx context.Context, sessionID string, e monitor.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (session_id, type, direction, at) VALUES (?, ?, ?, ?)`,
		sessionID, e.Type.String(), e.Direction, toMillis(e.Timestamp))
	if err != nil {
		return fmt.Errorf("append activity for %s: %w", sessionID, err)
	}
	return nil
}

// RecordCapture stores an evidence capture and returns its ID
func (s *Store) RecordCapture(ctx context.Context, c Capture) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (session_id, type, label, file, at) VALUES (?, ?, ?, ?, ?)`,
		c.SessionID, c.Type, c.Label, c.File, toMillis(c.At))
	if err != nil {
		return 0, fmt.Errorf("record capture for %s: %w", c.SessionID, err)
	}
	return res.LastInsertId()
}

// FinalizeSession marks a session stopped and stores its final metrics
func (s *Store) FinalizeSession(ctx context.Context, id string, endedAt time.Time, final monitor.Metrics) error {
	data, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, status = ?, final_metrics = ? WHERE id = ?`,
		toMillis(endedAt), StatusStopped, string(data), id)
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = `id, started_at, ended_at, monitoring, source, status, final_metrics`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		final   sql.NullString
	)
	if err := row.Scan(&sess.ID, &started, &ended, &sess.Monitoring, &sess.Source, &sess.Status, &final); err != nil {
		return sess, err
	}
	sess.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		sess.EndedAt = &t
	}
	if final.Valid {
		var m monitor.Metrics
		if err := json.Unmarshal([]byte(final.String), &m); err != nil {
			return sess, fmt.Errorf("decode metrics for %s: %w", sess.ID, err)
		}
		sess.Final = &m
	}
	return sess, nil
}

// GetSession returns one session
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, ErrNotFound
	}
	return sess, err
}

// ListSessions returns sessions, newest first
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListActivity returns a session's activity log in insertion order
func (s *Store) ListActivity(ctx context.Context, sessionID string) ([]monitor.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, direction, at FROM activity WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", sessionID, err)
	}
	defer rows.Close()

	entries := []monitor.ActivityEntry{}
	for rows.Next() {
		var (
			typ, direction string
			at             int64
		)
		if err := rows.Scan(&typ, &direction, &at); err != nil {
			return nil, err
		}
		m, ok := monitor.ParseModality(typ)
		if !ok {
			return nil, fmt.Errorf("unknown activity type %q", typ)
		}
		entries = append(entries, monitor.ActivityEntry{Type: m, Direction: direction, Timestamp: fromMillis(at)})
	}
	return entries, rows.Err()
}

// ListCaptures returns a session's evidence captures in insertion order
func (s *Store) ListCaptures(ctx context.Context, sessionID string) ([]Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, type, label, file, at FROM captures WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list captures for %s: %w", sessionID, err)
	}
	defer rows.Close()

	captures := []Capture{}
	for rows.Next() {
		var (
			c  Capture
			at int64
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Type, &c.Label, &c.File, &at); err != nil {
			return nil, err
		}
		c.At = fromMillis(at)
		captures = append(captures, c)
	}
	return captures, rows.Err()
}
