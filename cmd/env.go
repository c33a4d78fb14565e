package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/classifier"
	"github.com/Boomnana/test-agent/internal/config"
	"github.com/Boomnana/test-agent/internal/jobs"
	"github.com/Boomnana/test-agent/internal/pipeline"
	"github.com/Boomnana/test-agent/internal/report"
	"github.com/Boomnana/test-agent/internal/resilience"
	"github.com/Boomnana/test-agent/internal/store"
	anthropicpkg "github.com/Boomnana/test-agent/pkg/anthropic"
	"github.com/Boomnana/test-agent/pkg/openai"
)

// appEnv holds the components shared by serve and analyze.
type appEnv struct {
	Classifier *classifier.Resilient
	Store      store.JobStore
	Reports    *report.FileWriter
	Pipeline   *pipeline.Pipeline
	Jobs       *jobs.Manager
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates cfg for mode and wires the classifier, store, result
// writer, pipeline and job manager.
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	cl, err := newClassifier(c)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	writer, err := report.NewFileWriter(c.Reports.Dir, c.Reports.URLPrefix)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cl, writer, pipeline.Options{MaxConcurrency: c.Pipeline.MaxConcurrency})
	m := jobs.NewManager(jobs.Options{
		Timeout:       c.Jobs.Timeout,
		Retention:     c.Jobs.Retention,
		SweepInterval: c.Jobs.SweepInterval,
		Recorder:      st,
	})

	zap.L().Info("environment ready",
		zap.String("provider", c.Classifier.Provider),
		zap.String("store", c.Store.Driver),
		zap.Int("max_concurrency", c.Pipeline.MaxConcurrency),
		zap.Duration("job_timeout", c.Jobs.Timeout),
	)

	return &appEnv{Classifier: cl, Store: st, Reports: writer, Pipeline: p, Jobs: m}, nil
}

// newClassifier builds the configured provider behind the resilience layer.
func newClassifier(c *config.Config) (*classifier.Resilient, error) {
	var provider classifier.Classifier
	switch c.Classifier.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL)
		provider = classifier.NewAnthropic(client, c.Anthropic.Model, c.Anthropic.MaxTokens)
	case "openai":
		client := &openai.Client{
			BaseURL:    c.OpenAI.BaseURL,
			APIKey:     c.OpenAI.Key,
			HTTPClient: &http.Client{},
		}
		provider = classifier.NewOpenAI(client, c.OpenAI.Model, c.OpenAI.MaxTokens)
	default:
		return nil, eris.Errorf("unsupported classifier provider: %s", c.Classifier.Provider)
	}

	return classifier.NewResilient(provider, classifier.Options{
		CallTimeout: c.Classifier.CallTimeout,
		RatePerSec:  c.Classifier.RatePerSec,
		Burst:       c.Classifier.Burst,
		Retry: resilience.RetryPolicy{
			MaxAttempts: c.Classifier.MaxAttempts,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: c.Classifier.BreakerThreshold,
			Cooldown:         c.Classifier.BreakerCooldown,
		},
	}), nil
}
