// Package journal records orchestration events in a SQLite database so that
// past runs can be listed and inspected after the process exits.
//
// The journal subscribes to an [event.Bus] and stores every lifecycle event
// as its wire envelope. Worker output and chat lines are not recorded; they
// are already kept in Claude's own session files.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/logging"
)

// Schema is the authoritative journal schema.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	quest_id    TEXT NOT NULL DEFAULT '',
	quest_path  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	slot_count  INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	outcome     TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	type    TEXT NOT NULL,
	time    TEXT NOT NULL,
	data    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
`

// FileName is the default journal file inside the state directory.
const FileName = "journal.db"

// Fixed width so that stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run summarizes one orchestration run.
type Run struct {
	ID         string
	QuestID    string
	QuestPath  string
	Title      string
	SlotCount  int
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string
	Error      string
}

// Finished reports whether the run's finish event was recorded.
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// Entry is one recorded event.
type Entry struct {
	Seq   int64
	RunID string
	event.Envelope
}

// Journal is a SQLite-backed event journal. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logging.Logger
}

// Open opens (creating if needed) the journal at path. The special path
// ":memory:" opens a private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &Journal{db: db, logger: logging.NopLogger()}, nil
}

// SetLogger sets the logger used to report write failures from Attach.
func (j *Journal) SetLogger(logger *logging.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	j.logger = logger
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Attach subscribes the journal to every event on bus. The returned func
// removes the subscription.
func (j *Journal) Attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(func(e event.Event) {
		switch e.EventType() {
		case event.TypeWorkerOutput, event.TypeChatLine:
			return
		}
		if err := j.Record(e); err != nil {
			j.logger.Warn("failed to journal event", "type", e.EventType(), "error", err)
		}
	})
	return func() { bus.Unsubscribe(id) }
}

type runRef struct {
	RunID string `json:"runId"`
}

// Record stores e under the run named by its runId field. Events without a
// run id are rejected.
func (j *Journal) Record(e event.Event) error {
	env, err := event.Encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var ref runRef
	if err := json.Unmarshal(env.Data, &ref); err != nil || ref.RunID == "" {
		return errors.NewValidationError("event has no run id").WithField("runId").WithValue(env.Type)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin journal write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	switch ev := e.(type) {
	case event.QuestStartedEvent:
		_, err = tx.Exec(
			`INSERT INTO runs (id, quest_id, quest_path, title, slot_count, started_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET quest_id = excluded.quest_id, quest_path = excluded.quest_path,
			   title = excluded.title, slot_count = excluded.slot_count, started_at = excluded.started_at`,
			ev.RunID, ev.QuestID, ev.QuestPath, ev.Title, ev.SlotCount, env.Time.UTC().Format(timeLayout),
		)
	case event.QuestFinishedEvent:
		err = j.ensureRun(tx, ev.RunID, env.Time)
		if err == nil {
			_, err = tx.Exec(
				`UPDATE runs SET finished_at = ?, outcome = ?, error = ? WHERE id = ?`,
				env.Time.UTC().Format(timeLayout), string(ev.Outcome), ev.Error, ev.RunID,
			)
		}
	default:
		err = j.ensureRun(tx, ref.RunID, env.Time)
	}
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO events (run_id, type, time, data) VALUES (?, ?, ?, ?)`,
		ref.RunID, env.Type, env.Time.UTC().Format(timeLayout), string(env.Data),
	); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return tx.Commit()
}

// ensureRun creates a placeholder run row so that events recorded without a
// preceding quest.started still list.
func (j *Journal) ensureRun(tx *sql.Tx, runID string, at time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO runs (id, started_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		runID, at.UTC().Format(timeLayout),
	)
	return err
}

// Runs lists recorded runs, most recent first. limit <= 0 means no limit.
func (j *Journal) Runs(limit int) ([]Run, error) {
	query := `SELECT id, quest_id, quest_path, title, slot_count, started_at, finished_at, outcome, error
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one run by id.
func (j *Journal) Run(id string) (Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := j.db.QueryRow(
		`SELECT id, quest_id, quest_path, title, slot_count, started_at, finished_at, outcome, error
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.NewNotFoundError("run", id).WithCause(err)
	}
	return r, err
}

// Events returns the events of a run in the order they were recorded.
func (j *Journal) Events(runID string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, type, time, data FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			ts, data string
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Type, &ts, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		e.Data = json.RawMessage(data)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&r.ID, &r.QuestID, &r.QuestPath, &r.Title, &r.SlotCount, &started, &finished, &r.Outcome, &r.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse run start: %w", err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse run finish: %w", err)
		}
		r.FinishedAt = &ft
	}
	return r, nil
}
