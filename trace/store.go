// Package trace persists session events — activations, commands,
// actions, errors — to SQLite for later inspection. Writes are batched
// and asynchronous so recording never blocks the dispatcher.
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Schema for the session_events table. Call Store.Init() or apply
// manually.
const Schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	detail TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_ts ON session_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_session_events_kind ON session_events(kind);
`

// Event is one recorded session event.
type Event struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
	Timestamp int64  `json:"timestamp"` // unix microseconds
}

// Store persists events to SQLite asynchronously.
type Store struct {
	db   *sql.DB
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewStore creates a store backed by the given database connection and
// starts its flush goroutine.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan Event, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the session_events table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Record queues an event for async persistence. Non-blocking; drops if
// the buffer is full so the session never feels backpressure.
func (s *Store) Record(ctx context.Context, kind, detail string) {
	e := Event{Kind: kind, Detail: detail, Timestamp: time.Now().UnixMicro()}
	select {
	case s.ch <- e:
	default:
	}
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, detail, timestamp FROM session_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]Event, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []Event) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("trace store: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO session_events (kind, detail, timestamp) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.Kind, e.Detail, e.Timestamp); err != nil {
			slog.Error("trace store: insert", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("trace store: commit", "error", err)
	}
}
