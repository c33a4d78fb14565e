// Package monitoring watches recorded job outcomes and raises alerts when the
// service looks unhealthy.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Boomnana/test-agent/internal/jobs"
	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/resilience"
	"github.com/Boomnana/test-agent/internal/store"
)

const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of job health.
type MetricsSnapshot struct {
	// Jobs created within the lookback window.
	JobsTotal     int     `json:"jobs_total"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsCancelled int     `json:"jobs_cancelled"`
	JobsActive    int     `json:"jobs_active"`
	JobsTimedOut  int     `json:"jobs_timed_out"`
	FailRate      float64 `json:"fail_rate"`
	AvgDurSecs    float64 `json:"avg_duration_secs"`

	// Classifier circuit, empty when not reported.
	CircuitState string `json:"circuit_state,omitempty"`

	Lookback    time.Duration `json:"lookback"`
	CollectedAt time.Time     `json:"collected_at"`
}

// CircuitReporter exposes the classifier's breaker state.
type CircuitReporter interface {
	BreakerState() resilience.CircuitState
}

// Collector gathers metrics from the job store.
type Collector struct {
	store   store.JobStore
	circuit CircuitReporter
	now     func() time.Time
}

// NewCollector creates a collector. circuit may be nil.
func NewCollector(st store.JobStore, circuit CircuitReporter) *Collector {
	return &Collector{store: st, circuit: circuit, now: time.Now}
}

// Collect summarizes jobs created within lookback.
func (c *Collector) Collect(ctx context.Context, lookback time.Duration) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{Lookback: lookback, CollectedAt: now}
	cutoff := now.Add(-lookback)

	list, err := c.store.ListJobs(ctx, store.JobFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	var totalDur time.Duration
	var durCount int
	for _, j := range list {
		if j.CreatedAt.Before(cutoff) {
			continue
		}
		snap.JobsTotal++
		switch j.State {
		case model.JobCompleted:
			snap.JobsCompleted++
		case model.JobFailed:
			snap.JobsFailed++
			if jobs.IsTimeout(j) {
				snap.JobsTimedOut++
			}
		case model.JobCancelled:
			snap.JobsCancelled++
		default:
			snap.JobsActive++
		}
		if j.FinishedAt != nil && j.State != model.JobCancelled {
			totalDur += j.FinishedAt.Sub(j.CreatedAt)
			durCount++
		}
	}

	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
	}
	if durCount > 0 {
		snap.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	if c.circuit != nil {
		snap.CircuitState = c.circuit.BreakerState().String()
	}

	return snap, nil
}
