package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Boomnana/test-agent/internal/model"
)

// SQLiteStore implements JobStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	logs        TEXT NOT NULL DEFAULT '[]',
	result_ref  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job model.JobStatus) error {
	logsJSON, err := json.Marshal(job.Log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal logs")
	}

	var finished sql.NullTime
	if job.FinishedAt != nil {
		finished = sql.NullTime{Time: job.FinishedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, state, logs, result_ref, error, created_at, updated_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			logs = excluded.logs,
			result_ref = excluded.result_ref,
			error = excluded.error,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at`,
		job.ID, string(job.State), string(logsJSON), job.ResultRef, job.Error,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(), finished,
	)
	return eris.Wrapf(err, "sqlite: save job %s", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.JobStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, logs, result_ref, error, created_at, updated_at, finished_at FROM jobs WHERE id = ?`,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "job %s", id)
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.JobStatus, error) {
	query := `SELECT id, state, logs, result_ref, error, created_at, updated_at, finished_at FROM jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.JobStatus
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.JobStatus, error) {
	var (
		j        model.JobStatus
		state    string
		logsJSON string
		finished sql.NullTime
	)
	err := row.Scan(&j.ID, &state, &logsJSON, &j.ResultRef, &j.Error, &j.CreatedAt, &j.UpdatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	if err := json.Unmarshal([]byte(logsJSON), &j.Log); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal logs")
	}
	j.State = model.ParseJobState(state)
	if finished.Valid {
		t := finished.Time.In(time.UTC)
		j.FinishedAt = &t
	}
	return &j, nil
}
