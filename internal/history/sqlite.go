// Package history keeps a log of finished job runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	cron "github.com/kaiserkarel/mcron"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	list        TEXT NOT NULL,
	owner       TEXT NOT NULL,
	expression  TEXT NOT NULL,
	description TEXT NOT NULL,
	due         INTEGER NOT NULL,
	started     INTEGER NOT NULL,
	ended       INTEGER NOT NULL,
	err         TEXT,
	output      BLOB
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started);
CREATE INDEX IF NOT EXISTS runs_list ON runs(list, started);
`

var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Run is one recorded execution.
type Run struct {
	ID          string
	JobID       string
	List        string
	Owner       string
	Expression  string
	Description string
	Due         time.Time
	Started     time.Time
	Ended       time.Time
	Err         string
	Output      []byte
}

// Failed reports whether the run ended with an error.
func (r Run) Failed() bool { return r.Err != "" }

// Store implements cron.History.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create history directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "history: %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate history")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record implements cron.History.
func (s *Store) Record(ctx context.Context, l cron.Log) error {
	var msg sql.NullString
	if l.Err != nil {
		msg = sql.NullString{String: l.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(id, job_id, list, owner, expression, description, due, started, ended, err, output)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Entry.ID, l.Entry.List.String(), l.Entry.Owner, l.Entry.Expression, l.Entry.Description,
		l.Due.UnixNano(), l.Started.UnixNano(), l.Ended.UnixNano(), msg, l.Output,
	)
	return errors.Wrap(err, "record run")
}

// Recent returns up to n runs, newest first. A non-empty list restricts the
// result to that list, as printed by cron.ListTag.String.
func (s *Store) Recent(ctx context.Context, n int, list string) ([]Run, error) {
	query := `SELECT id, job_id, list, owner, expression, description, due, started, ended, err, output
		FROM runs`
	args := []any{}
	if list != "" {
		query += ` WHERE list = ?`
		args = append(args, list)
	}
	query += ` ORDER BY started DESC LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                   Run
			due, started, ended int64
			msg                 sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.List, &r.Owner, &r.Expression, &r.Description,
			&due, &started, &ended, &msg, &r.Output); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Due = time.Unix(0, due)
		r.Started = time.Unix(0, started)
		r.Ended = time.Unix(0, ended)
		r.Err = msg.String
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "read runs")
}

// Prune deletes runs started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "prune runs")
	}
	return res.RowsAffected()
}

var _ cron.History = (*Store)(nil)
