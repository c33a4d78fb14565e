// Package classifier defines the contract between the pipeline and the
// language model that tags, audits, extracts and clusters test cases.
package classifier

import (
	"context"
	"sync/atomic"

	"github.com/Boomnana/test-agent/internal/model"
)

// Task names identify what a call is for in logs and usage reports.
const (
	TaskTag     = "tag"
	TaskAudit   = "audit"
	TaskExtract = "extract"
	TaskCluster = "cluster"
)

// Request is one classifier call. The classifier answers Prompt under the
// System instructions and is expected to reply with a single JSON object.
type Request struct {
	Task      string
	System    string
	Prompt    string
	MaxTokens int64
}

// Response is the raw text the classifier produced plus what it cost.
type Response struct {
	Text  string
	Usage model.TokenUsage
}

// Classifier performs one call. Implementations must honor ctx.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Meter counts calls and tokens that pass through it. One Meter is created
// per job so usage can be reported per job.
type Meter struct {
	next Classifier

	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

// NewMeter wraps next.
func NewMeter(next Classifier) *Meter {
	return &Meter{next: next}
}

// Classify forwards to the wrapped classifier and records usage on success.
func (m *Meter) Classify(ctx context.Context, req Request) (*Response, error) {
	m.calls.Add(1)
	resp, err := m.next.Classify(ctx, req)
	if err != nil {
		return nil, err
	}
	m.input.Add(resp.Usage.InputTokens)
	m.output.Add(resp.Usage.OutputTokens)
	return resp, nil
}

// Usage returns a snapshot of what has been recorded so far.
func (m *Meter) Usage() model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  m.input.Load(),
		OutputTokens: m.output.Load(),
		Calls:        m.calls.Load(),
	}
}
