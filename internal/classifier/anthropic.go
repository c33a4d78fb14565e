package classifier

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/resilience"
	"github.com/Boomnana/test-agent/pkg/anthropic"
)

// Anthropic classifies through the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a provider. maxTokens is used when a request does not
// set its own limit.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Classify sends req as a single user turn. The system prompt is marked
// cacheable since every case in a stage shares it.
func (a *Anthropic) Classify(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	temp := 0.0

	msgReq := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
	if req.System != "" {
		msgReq.System = []anthropic.SystemBlock{{Text: req.System, Cached: true}}
	}

	resp, err := a.client.CreateMessage(ctx, msgReq)
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}
	resp.Usage.LogCost(a.model, req.Task)

	if resp.StopReason == "max_tokens" {
		return nil, eris.Wrapf(ErrMalformed, "%s: response truncated at %d tokens", req.Task, maxTokens)
	}

	return &Response{
		Text: resp.Text(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Calls:        1,
		},
	}, nil
}
