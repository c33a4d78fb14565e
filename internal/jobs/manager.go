// Package jobs owns the lifecycle of analysis jobs: submission, status,
// cancellation, the overall deadline and retention.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/model"
)

var (
	// ErrJobTimeout is the cancellation cause when a job outlives its deadline.
	ErrJobTimeout = eris.New("jobs: job timed out")
	// ErrJobCancelled is the cancellation cause for a user cancel request.
	ErrJobCancelled = eris.New("jobs: job cancelled by user")
)

// TimeoutErrorPrefix starts the error recorded on jobs stopped by the
// timeout.
const TimeoutErrorPrefix = "job timed out"

// IsTimeout reports whether st failed because it outlived the timeout.
func IsTimeout(st model.JobStatus) bool {
	return st.State == model.JobFailed && strings.HasPrefix(st.Error, TimeoutErrorPrefix)
}

const (
	defaultTimeout = time.Hour
	persistTimeout = 5 * time.Second
)

// Task is the work a job performs. It returns the result reference on
// success and must return promptly once ctx is done.
type Task func(ctx context.Context, ex *Execution) (string, error)

// Recorder receives a snapshot after every job change. store.JobStore
// satisfies it.
type Recorder interface {
	SaveJob(ctx context.Context, job model.JobStatus) error
}

// Options configures a Manager.
type Options struct {
	// Timeout bounds each job from execution start to a terminal state.
	Timeout time.Duration
	// Retention is how long terminal jobs stay in memory. Zero keeps them
	// for the life of the process.
	Retention time.Duration
	// SweepInterval is how often the janitor looks for expired jobs.
	SweepInterval time.Duration
	// Recorder, when set, mirrors every change on a best-effort basis.
	Recorder Recorder
}

type job struct {
	status model.JobStatus
	// cancel signals the live execution; nil once it has finished.
	cancel context.CancelCauseFunc
	seq    uint64
}

// Manager is the process-wide job registry.
type Manager struct {
	opts Options
	now  func() time.Time

	mu   sync.RWMutex
	jobs map[string]*job

	persistMu sync.Mutex
	persisted map[string]uint64

	wg sync.WaitGroup
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Manager{
		opts:      opts,
		now:       time.Now,
		jobs:      make(map[string]*job),
		persisted: make(map[string]uint64),
	}
}

// Execution is handed to a running Task.
type Execution struct {
	ID string
	m  *Manager
}

// Logf appends a line to the job's log. Lines written after the job reached
// a terminal state are dropped.
func (e *Execution) Logf(format string, args ...any) {
	e.m.mu.Lock()
	j, ok := e.m.jobs[e.ID]
	if !ok || j.status.State.Terminal() {
		e.m.mu.Unlock()
		return
	}
	e.m.appendLog(j, fmt.Sprintf(format, args...))
	snap := e.m.snapshot(j)
	e.m.mu.Unlock()
	e.m.persist(snap)
}

// Submit registers a pending job, starts it in the background and returns
// its id immediately.
func (m *Manager) Submit(task Task) string {
	id := uuid.New().String()
	now := m.now()

	ctx, cancel := context.WithCancelCause(context.Background())
	j := &job{
		status: model.JobStatus{
			ID:        id,
			State:     model.JobPending,
			Log:       []model.LogEntry{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[id] = j
	m.appendLog(j, "Job accepted.")
	snap := m.snapshot(j)
	m.mu.Unlock()
	m.persist(snap)

	zap.L().Info("jobs: submitted", zap.String("job_id", id))

	m.wg.Add(1)
	go m.run(ctx, id, task)
	return id
}

type outcome struct {
	ref string
	err error
}

func (m *Manager) run(ctx context.Context, id string, task Task) {
	defer m.wg.Done()

	m.mu.Lock()
	j := m.jobs[id]
	cancel := j.cancel
	if j.status.State != model.JobPending {
		// Cancelled before it started.
		m.mu.Unlock()
		m.finish(id, outcome{err: context.Cause(ctx)}, false)
		cancel(nil)
		return
	}
	m.transition(j, model.JobRunning)
	m.appendLog(j, "Job started.")
	snap := m.snapshot(j)
	m.mu.Unlock()
	m.persist(snap)

	deadline, stopDeadline := context.WithTimeoutCause(context.Background(), m.opts.Timeout, ErrJobTimeout)
	defer stopDeadline()
	defer cancel(nil)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("jobs: task panicked",
					zap.String("job_id", id),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
				done <- outcome{err: eris.Errorf("jobs: panic: %v", r)}
			}
		}()
		ref, err := task(ctx, &Execution{ID: id, m: m})
		done <- outcome{ref: ref, err: err}
	}()

	select {
	case out := <-done:
		timedOut := deadline.Err() != nil && errors.Is(context.Cause(deadline), ErrJobTimeout)
		m.finish(id, out, timedOut)
	case <-deadline.Done():
		// Set the cause before finish so the deferred cancel cannot win.
		// The task may still be unwinding; its outcome is discarded.
		cancel(ErrJobTimeout)
		m.finish(id, outcome{err: ErrJobTimeout}, true)
	}
}

// finish moves a job to its terminal state. A job that is cancelling always
// ends cancelled; otherwise a timeout ends it failed even if the task
// returned a result.
func (m *Manager) finish(id string, out outcome, timedOut bool) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.status.State.Terminal() {
		m.mu.Unlock()
		return
	}
	j.cancel = nil

	log := zap.L().With(zap.String("job_id", id))
	switch {
	case j.status.State == model.JobCancelling:
		m.transition(j, model.JobCancelled)
		j.status.Error = "job cancelled by user"
		m.appendLog(j, "Job cancelled.")
		log.Info("jobs: cancelled")
	case timedOut:
		m.transition(j, model.JobFailed)
		j.status.Error = fmt.Sprintf("%s after %s; retry or reduce the input size", TimeoutErrorPrefix, m.opts.Timeout)
		m.appendLog(j, fmt.Sprintf("Job timed out after %s and was stopped.", m.opts.Timeout))
		log.Warn("jobs: timed out", zap.Duration("timeout", m.opts.Timeout))
	case out.err != nil:
		m.transition(j, model.JobFailed)
		j.status.Error = out.err.Error()
		m.appendLog(j, "Job failed: "+out.err.Error())
		log.Error("jobs: failed", zap.Error(out.err))
	default:
		m.transition(j, model.JobCompleted)
		j.status.ResultRef = out.ref
		m.appendLog(j, "Result available at "+out.ref)
		m.appendLog(j, "Job completed.")
		log.Info("jobs: completed", zap.String("result_ref", out.ref))
	}
	finished := m.now()
	j.status.FinishedAt = &finished
	snap := m.snapshot(j)
	m.mu.Unlock()
	m.persist(snap)
}

// Status returns a copy of the job's state. Unknown ids yield the synthetic
// unknown state.
func (m *Manager) Status(id string) model.JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.JobStatus{ID: id, State: model.JobUnknown, Log: []model.LogEntry{}}
	}
	return copyStatus(j.status)
}

// List returns copies of every job, newest first.
func (m *Manager) List() []model.JobStatus {
	m.mu.RLock()
	out := make([]model.JobStatus, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, copyStatus(j.status))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Cancel requests cancellation of a job.
func (m *Manager) Cancel(id string) model.CancelResult {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return model.CancelResult{ID: id, Outcome: model.CancelNotFound, State: model.JobUnknown}
	}

	state := j.status.State
	switch {
	case state.Terminal():
		m.mu.Unlock()
		return model.CancelResult{ID: id, Outcome: model.CancelAlreadyFinished, State: state}
	case state == model.JobCancelling:
		m.mu.Unlock()
		return model.CancelResult{ID: id, Outcome: model.CancelAccepted, State: state}
	case j.cancel != nil:
		m.transition(j, model.JobCancelling)
		m.appendLog(j, "Cancellation requested, stopping the pipeline.")
		j.cancel(ErrJobCancelled)
		snap := m.snapshot(j)
		m.mu.Unlock()
		m.persist(snap)
		zap.L().Info("jobs: cancellation requested", zap.String("job_id", id))
		return model.CancelResult{ID: id, Outcome: model.CancelAccepted, State: model.JobCancelling}
	default:
		m.transition(j, model.JobFailed)
		j.status.Error = "no running execution found to cancel"
		m.appendLog(j, "Cancel request failed: no running execution found.")
		finished := m.now()
		j.status.FinishedAt = &finished
		snap := m.snapshot(j)
		m.mu.Unlock()
		m.persist(snap)
		zap.L().Warn("jobs: cancel found no running execution", zap.String("job_id", id))
		return model.CancelResult{ID: id, Outcome: model.CancelNoRunningExecution, State: model.JobFailed}
	}
}

// CancelAll requests cancellation of every live job and returns how many
// were signalled.
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	var ids []string
	for id, j := range m.jobs {
		if !j.status.State.Terminal() && j.status.State != model.JobCancelling {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if m.Cancel(id).Outcome == model.CancelAccepted {
			n++
		}
	}
	return n
}

// Wait blocks until every execution has returned or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "jobs: wait")
	}
}

// transition must be called with m.mu held. Invalid transitions are a
// programming error and are logged rather than applied.
func (m *Manager) transition(j *job, target model.JobState) {
	if err := j.status.State.ValidateTransition(target); err != nil {
		zap.L().Error("jobs: rejected transition", zap.String("job_id", j.status.ID), zap.Error(err))
		return
	}
	j.status.State = target
}

// appendLog must be called with m.mu held.
func (m *Manager) appendLog(j *job, msg string) {
	now := m.now()
	j.status.Log = append(j.status.Log, model.LogEntry{Time: now, Message: msg})
	j.status.UpdatedAt = now
	j.seq++
}

// snapshot must be called with m.mu held.
func (m *Manager) snapshot(j *job) versioned {
	return versioned{seq: j.seq, status: copyStatus(j.status)}
}

type versioned struct {
	seq    uint64
	status model.JobStatus
}

// persist saves snap unless a newer snapshot of the same job was already
// saved, so the stored state never moves backwards.
func (m *Manager) persist(snap versioned) {
	if m.opts.Recorder == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	id := snap.status.ID
	if snap.seq <= m.persisted[id] {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.opts.Recorder.SaveJob(ctx, snap.status); err != nil {
		zap.L().Warn("jobs: failed to persist job", zap.String("job_id", id), zap.Error(err))
		return
	}
	m.persisted[id] = snap.seq
}

func copyStatus(s model.JobStatus) model.JobStatus {
	out := s
	out.Log = append([]model.LogEntry(nil), s.Log...)
	if out.Log == nil {
		out.Log = []model.LogEntry{}
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
