// Package state keeps a history of session operations in SQLite.
//
// The store implements session.Journal. Each session gets one row in the
// sessions table, created on its first event and closed by its "close"
// event; every journaled operation becomes a row in events.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/leapmp/pkg/session"
)

// SQLiteStore persists session events.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	engine string
	logger *slog.Logger
}

// SessionRecord summarizes one journaled session.
type SessionRecord struct {
	ID        string
	Engine    string
	StartedAt time.Time
	ClosedAt  *time.Time
	Events    int
}

// NewSQLiteStore creates a store. engine is recorded with each new
// session row.
func NewSQLiteStore(engine string, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{engine: engine, logger: logger}
}

// Open opens the database at path and runs pending migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record implements session.Journal.
func (s *SQLiteStore) Record(ctx context.Context, ev session.Event) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	at := ev.At.UTC()
	if ev.At.IsZero() {
		at = time.Now().UTC()
	}
	stamp := at.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, engine, started_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		ev.SessionID, s.engine, stamp,
	); err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}

	var errText sql.NullString
	if ev.Err != "" {
		errText = sql.NullString{String: ev.Err, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, op, detail, error, duration_ns, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Op, ev.Detail, errText, int64(ev.Duration), stamp,
	); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if ev.Op == "close" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET closed_at = ? WHERE id = ?`, stamp, ev.SessionID,
		); err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
	}

	return tx.Commit()
}

// ListSessions returns the most recent sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.engine, s.started_at, s.closed_at, COUNT(e.id)
		FROM sessions s LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var started string
		var closed sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Engine, &started, &closed, &rec.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("session %s: %w", rec.ID, err)
		}
		if closed.Valid {
			t, err := time.Parse(time.RFC3339Nano, closed.String)
			if err != nil {
				return nil, fmt.Errorf("session %s: %w", rec.ID, err)
			}
			rec.ClosedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// ListEvents returns the events of a session in the order they were
// recorded.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT op, detail, error, duration_ns, at FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Event
	for rows.Next() {
		ev := session.Event{SessionID: sessionID}
		var errText sql.NullString
		var dur int64
		var at string
		if err := rows.Scan(&ev.Op, &ev.Detail, &errText, &dur, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Err = errText.String
		ev.Duration = time.Duration(dur)
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("event at: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ session.Journal = (*SQLiteStore)(nil)
