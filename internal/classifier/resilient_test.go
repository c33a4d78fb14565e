package classifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Boomnana/test-agent/internal/resilience"
)

func fastOptions() Options {
	return Options{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Breaker: resilience.BreakerConfig{FailureThreshold: 100, Cooldown: time.Minute},
	}
}

func TestResilient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	next := Func(func(context.Context, Request) (*Response, error) {
		if calls.Add(1) < 3 {
			return nil, resilience.NewTransientError(errors.New("503"), 503)
		}
		return &Response{Text: "{}"}, nil
	})

	r := NewResilient(next, fastOptions())
	resp, err := r.Classify(context.Background(), Request{Task: TaskTag})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilient_DoesNotRetryPermanent(t *testing.T) {
	var calls atomic.Int32
	next := Func(func(context.Context, Request) (*Response, error) {
		calls.Add(1)
		return nil, errors.New("invalid request")
	})

	r := NewResilient(next, fastOptions())
	_, err := r.Classify(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilient_CallTimeout(t *testing.T) {
	var calls atomic.Int32
	next := Func(func(ctx context.Context, _ Request) (*Response, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	opts := fastOptions()
	opts.CallTimeout = 10 * time.Millisecond
	opts.Retry.MaxAttempts = 2
	r := NewResilient(next, opts)

	start := time.Now()
	_, err := r.Classify(context.Background(), Request{Task: TaskExtract})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract call exceeded 10ms")
	assert.Equal(t, int32(2), calls.Load(), "timed out attempts are retried")
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilient_ParentCancelStops(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	next := Func(func(ctx context.Context, _ Request) (*Response, error) {
		calls.Add(1)
		cancel()
		return nil, resilience.NewTransientError(errors.New("503"), 503)
	})

	r := NewResilient(next, fastOptions())
	_, err := r.Classify(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	next := Func(func(context.Context, Request) (*Response, error) {
		calls.Add(1)
		return nil, resilience.NewTransientError(errors.New("502"), 502)
	})

	opts := fastOptions()
	opts.Retry.MaxAttempts = 1
	opts.Breaker.FailureThreshold = 2
	r := NewResilient(next, opts)

	for i := 0; i < 2; i++ {
		_, _ = r.Classify(context.Background(), Request{})
	}
	_, err := r.Classify(context.Background(), Request{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResilient_PacerBacksOffOn429(t *testing.T) {
	var calls atomic.Int32
	next := Func(func(context.Context, Request) (*Response, error) {
		if calls.Add(1) == 1 {
			return nil, resilience.NewTransientError(errors.New("429"), 429)
		}
		return &Response{Text: "{}"}, nil
	})

	opts := fastOptions()
	opts.RatePerSec = 1000
	opts.Burst = 10
	r := NewResilient(next, opts)

	_, err := r.Classify(context.Background(), Request{})
	require.NoError(t, err)
	// Halved to 500 then raised 20% on the successful retry.
	assert.InDelta(t, 600, float64(r.pacer.Limit()), 0.001)
}

func TestPacer_Bounds(t *testing.T) {
	p := newPacer(rate.Limit(8), 1)
	for i := 0; i < 10; i++ {
		p.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(1), p.Limit())

	for i := 0; i < 50; i++ {
		p.OnSuccess()
	}
	assert.Equal(t, rate.Limit(8), p.Limit())
}
