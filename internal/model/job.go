package model

import (
	"fmt"
	"time"
)

// JobState represents where an analysis job is in its lifecycle.
type JobState string

const (
	JobPending    JobState = "pending"
	JobRunning    JobState = "running"
	JobCancelling JobState = "cancelling"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"

	// JobUnknown is reported for ids the registry has never seen. It is never
	// stored on a job.
	JobUnknown JobState = "unknown"
)

func (s JobState) String() string { return string(s) }

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ValidateTransition returns an error if moving from s to target is not an
// edge of the job state machine.
func (s JobState) ValidateTransition(target JobState) error {
	if !s.canTransition(target) {
		return fmt.Errorf("invalid job state transition from %s to %s", s, target)
	}
	return nil
}

func (s JobState) canTransition(target JobState) bool {
	switch s {
	case JobPending:
		// A job can be cancelled or time out before its execution reports in.
		return target == JobRunning || target == JobCancelling || target == JobFailed
	case JobRunning:
		return target == JobCompleted || target == JobFailed || target == JobCancelling
	case JobCancelling:
		return target == JobCancelled
	default:
		return false
	}
}

// ParseJobState converts a stored string back into a JobState.
func ParseJobState(s string) JobState {
	switch JobState(s) {
	case JobPending, JobRunning, JobCancelling, JobCompleted, JobFailed, JobCancelled:
		return JobState(s)
	default:
		return JobUnknown
	}
}

// LogEntry is one line of a job's user-visible log.
type LogEntry struct {
	Time    time.Time `json:"time" yaml:"time"`
	Message string    `json:"message" yaml:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// JobStatus is a point-in-time snapshot of a job. Slices are copies owned by
// the caller.
type JobStatus struct {
	ID         string     `json:"job_id" yaml:"job_id"`
	State      JobState   `json:"status" yaml:"status"`
	Log        []LogEntry `json:"logs" yaml:"logs"`
	ResultRef  string     `json:"report_url,omitempty" yaml:"report_url,omitempty"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// CancelOutcome describes how a cancel request was handled.
type CancelOutcome string

const (
	CancelAccepted           CancelOutcome = "accepted"
	CancelAlreadyFinished    CancelOutcome = "already_finished"
	CancelNoRunningExecution CancelOutcome = "no_running_execution"
	CancelNotFound           CancelOutcome = "not_found"
)

// CancelResult is returned by a cancel request.
type CancelResult struct {
	ID      string        `json:"job_id"`
	Outcome CancelOutcome `json:"outcome"`
	State   JobState      `json:"status"`
}
