package monitoring

import (
	"context"
	"time"

	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/resilience"
	"github.com/Boomnana/test-agent/internal/store"
)

// mockStore serves a fixed job list.
type mockStore struct {
	store.Nop
	jobs []model.JobStatus
	err  error
}

func (m *mockStore) ListJobs(context.Context, store.JobFilter) ([]model.JobStatus, error) {
	return m.jobs, m.err
}

type fixedCircuit resilience.CircuitState

func (f fixedCircuit) BreakerState() resilience.CircuitState { return resilience.CircuitState(f) }

func finishedJob(id string, state model.JobState, created time.Time, took time.Duration, errMsg string) model.JobStatus {
	end := created.Add(took)
	return model.JobStatus{
		ID:         id,
		State:      state,
		Error:      errMsg,
		CreatedAt:  created,
		UpdatedAt:  end,
		FinishedAt: &end,
	}
}
