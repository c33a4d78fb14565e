package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Boomnana/test-agent/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements JobStore using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgSaveJob = `INSERT INTO jobs (id, state, logs, result_ref, error, created_at, updated_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	logs = EXCLUDED.logs,
	result_ref = EXCLUDED.result_ref,
	error = EXCLUDED.error,
	updated_at = EXCLUDED.updated_at,
	finished_at = EXCLUDED.finished_at`
	pgJobColumns = `SELECT id, state, logs, result_ref, error, created_at, updated_at, finished_at FROM jobs`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	logs        JSONB NOT NULL DEFAULT '[]'::jsonb,
	result_ref  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, job model.JobStatus) error {
	logsJSON, err := json.Marshal(job.Log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal logs")
	}
	_, err = s.pool.Exec(ctx, pgSaveJob,
		job.ID, string(job.State), logsJSON, job.ResultRef, job.Error,
		job.CreatedAt, job.UpdatedAt, job.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.JobStatus, error) {
	row := s.pool.QueryRow(ctx, pgJobColumns+` WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.JobStatus, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.State != "" {
		rows, err = s.pool.Query(ctx,
			pgJobColumns+` WHERE state = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(filter.State), limit, filter.Offset)
	} else {
		rows, err = s.pool.Query(ctx,
			pgJobColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, filter.Offset)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.JobStatus
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list jobs scan")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func scanPgJob(row pgx.Row) (*model.JobStatus, error) {
	var (
		j        model.JobStatus
		state    string
		logsJSON []byte
	)
	if err := row.Scan(&j.ID, &state, &logsJSON, &j.ResultRef, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt); err != nil {
		return nil, err
	}
	if len(logsJSON) > 0 {
		if err := json.Unmarshal(logsJSON, &j.Log); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal logs")
		}
	}
	j.State = model.ParseJobState(state)
	return &j, nil
}
