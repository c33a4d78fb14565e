package classifier

import (
	"context"
	"errors"

	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/resilience"
	"github.com/Boomnana/test-agent/pkg/openai"
)

// OpenAI classifies through an OpenAI-compatible chat endpoint in JSON mode.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates a provider.
func NewOpenAI(client *openai.Client, model string, maxTokens int64) *OpenAI {
	return &OpenAI{client: client, model: model, maxTokens: maxTokens}
}

// Classify sends req as a system + user exchange.
func (o *OpenAI) Classify(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	temp := 0.0

	msgs := make([]openai.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: req.Prompt})

	resp, err := o.client.Chat(ctx, openai.ChatRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}

	return &Response{
		Text: resp.Content(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Calls:        1,
		},
	}, nil
}
