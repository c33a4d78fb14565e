package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 10 * time.Minute

// Sweep removes terminal jobs that finished more than the retention window
// before now and returns how many were removed. It does nothing when
// retention is disabled.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.Retention)

	m.mu.Lock()
	var removed []string
	for id, j := range m.jobs {
		if !j.status.State.Terminal() || j.status.FinishedAt == nil {
			continue
		}
		if j.status.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed = append(removed, id)
		}
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.persistMu.Lock()
		for _, id := range removed {
			delete(m.persisted, id)
		}
		m.persistMu.Unlock()
		zap.L().Info("jobs: swept expired jobs", zap.Int("removed", len(removed)))
	}
	return len(removed)
}

// RunJanitor sweeps on every SweepInterval tick until ctx is done. It
// returns immediately when retention is disabled.
func (m *Manager) RunJanitor(ctx context.Context) {
	if m.opts.Retention <= 0 {
		return
	}
	interval := m.opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("jobs: janitor started",
		zap.Duration("retention", m.opts.Retention),
		zap.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}
