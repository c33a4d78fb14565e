// Package store persists job history.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Boomnana/test-agent/internal/config"
	"github.com/Boomnana/test-agent/internal/model"
)

// ErrJobNotFound is returned when a job id has no persisted record.
var ErrJobNotFound = eris.New("store: job not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State  model.JobState `json:"state,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// JobStore defines the persistence interface for job history.
type JobStore interface {
	// SaveJob inserts or replaces the record for job.ID.
	SaveJob(ctx context.Context, job model.JobStatus) error
	GetJob(ctx context.Context, id string) (*model.JobStatus, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.JobStatus, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// Open builds the store selected by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (JobStore, error) {
	var (
		st  JobStore
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// Nop discards writes and holds no history.
type Nop struct{}

func (Nop) SaveJob(context.Context, model.JobStatus) error { return nil }

func (Nop) GetJob(_ context.Context, id string) (*model.JobStatus, error) {
	return nil, eris.Wrapf(ErrJobNotFound, "job %s", id)
}

func (Nop) ListJobs(context.Context, JobFilter) ([]model.JobStatus, error) { return nil, nil }
func (Nop) Migrate(context.Context) error                                  { return nil }
func (Nop) Close() error                                                   { return nil }
