// Package eventlog implements the append-only SQLite event store: the
// durable record of everything that happened in every session. Every
// message, tool call, and tool result is appended once and never mutated;
// sessions are reconstructed by replaying events in timestamp order.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/conduitrun/conduit/pkg/runtime"
)

// Store is a SQLite-backed append-only event log. A Store is safe for
// concurrent use.
type Store struct {
	db *sql.DB

	stmtAppend      *sql.Stmt
	stmtLoadSession *sql.Stmt
	stmtLoadFiltered *sql.Stmt
	stmtListSessions *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	kind TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);
`

// Open opens or creates the event log at path. An empty path opens a
// private in-memory database, useful for tests and `conduit chat` runs
// with no --db flag.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init event log schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare() error {
	var err error
	if s.stmtAppend, err = s.db.Prepare(
		`INSERT INTO events (id, session_id, timestamp, kind, data) VALUES (?, ?, ?, ?, ?)`,
	); err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	if s.stmtLoadSession, err = s.db.Prepare(
		`SELECT id, session_id, timestamp, data FROM events WHERE session_id = ? ORDER BY timestamp, id`,
	); err != nil {
		return fmt.Errorf("prepare load_session: %w", err)
	}
	if s.stmtLoadFiltered, err = s.db.Prepare(
		`SELECT id, session_id, timestamp, data FROM events WHERE session_id = ? AND kind = ? ORDER BY timestamp, id`,
	); err != nil {
		return fmt.Errorf("prepare load_events: %w", err)
	}
	if s.stmtListSessions, err = s.db.Prepare(`
		SELECT
			session_id,
			MIN(timestamp) AS started_at,
			MAX(CASE WHEN kind = 'session_end' THEN timestamp END) AS ended_at,
			SUM(CASE WHEN kind = 'message' THEN 1 ELSE 0 END) AS message_count
		FROM events
		GROUP BY session_id
		ORDER BY started_at DESC
	`); err != nil {
		return fmt.Errorf("prepare list_sessions: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes a single event to the log. Events are immutable once
// appended; there is no Update or Delete.
func (s *Store) Append(ctx context.Context, event runtime.Event) error {
	data, err := event.Kind.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal event kind: %w", err)
	}
	_, err = s.stmtAppend.ExecContext(ctx,
		event.ID.String(),
		event.SessionID.String(),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.Kind.Name),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadSession loads every event for a session, ordered by timestamp.
func (s *Store) LoadSession(ctx context.Context, sessionID runtime.SessionId) ([]runtime.Event, error) {
	rows, err := s.stmtLoadSession.QueryContext(ctx, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return scanEvents(rows)
}

// LoadEvents loads events for a session, optionally filtered to a single
// EventKindName. An empty kind loads every event.
func (s *Store) LoadEvents(ctx context.Context, sessionID runtime.SessionId, kind runtime.EventKindName) ([]runtime.Event, error) {
	if kind == "" {
		return s.LoadSession(ctx, sessionID)
	}
	rows, err := s.stmtLoadFiltered.QueryContext(ctx, sessionID.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]runtime.Event, error) {
	defer rows.Close()

	var events []runtime.Event
	for rows.Next() {
		var idStr, sessionIDStr, timestampStr, data string
		if err := rows.Scan(&idStr, &sessionIDStr, &timestampStr, &data); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		event, err := parseRow(idStr, sessionIDStr, timestampStr, data)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func parseRow(idStr, sessionIDStr, timestampStr, data string) (runtime.Event, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return runtime.Event{}, &runtime.CorruptedError{Table: "events", ID: idStr, Reason: "id: " + err.Error()}
	}
	sessionID, err := runtime.ParseSessionId(sessionIDStr)
	if err != nil {
		return runtime.Event{}, &runtime.CorruptedError{Table: "events", ID: idStr, Reason: "session_id: " + err.Error()}
	}
	timestamp, err := time.Parse(time.RFC3339Nano, timestampStr)
	if err != nil {
		return runtime.Event{}, &runtime.CorruptedError{Table: "events", ID: idStr, Reason: "timestamp: " + err.Error()}
	}
	var kind runtime.EventKind
	if err := kind.UnmarshalJSON([]byte(data)); err != nil {
		return runtime.Event{}, &runtime.CorruptedError{Table: "events", ID: idStr, Reason: "data: " + err.Error()}
	}
	return runtime.Event{ID: id, SessionID: sessionID, Timestamp: timestamp, Kind: kind}, nil
}

// ListSessions returns a summary of every session, most recently started first.
func (s *Store) ListSessions(ctx context.Context) ([]runtime.SessionSummary, error) {
	rows, err := s.stmtListSessions.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []runtime.SessionSummary
	for rows.Next() {
		var sessionIDStr, startedAtStr string
		var endedAtStr sql.NullString
		var messageCount int
		if err := rows.Scan(&sessionIDStr, &startedAtStr, &endedAtStr, &messageCount); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}

		sessionID, err := runtime.ParseSessionId(sessionIDStr)
		if err != nil {
			return nil, &runtime.CorruptedError{Table: "events", ID: sessionIDStr, Reason: "session_id: " + err.Error()}
		}
		startedAt, err := time.Parse(time.RFC3339Nano, startedAtStr)
		if err != nil {
			return nil, &runtime.CorruptedError{Table: "events", ID: sessionIDStr, Reason: "started_at: " + err.Error()}
		}

		summary := runtime.SessionSummary{ID: sessionID, StartedAt: startedAt, MessageCount: messageCount}
		if endedAtStr.Valid {
			endedAt, err := time.Parse(time.RFC3339Nano, endedAtStr.String)
			if err != nil {
				return nil, &runtime.CorruptedError{Table: "events", ID: sessionIDStr, Reason: "ended_at: " + err.Error()}
			}
			summary.EndedAt = &endedAt
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return summaries, nil
}
