package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	val, err := Do(context.Background(), DefaultRetryPolicy(), func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	val, err := Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("temporary"), 503)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry callbacks: %v", retries)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("malformed response")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ParentCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	_, err := Do(ctx, fastPolicy(5), func(_ context.Context) (int, error) {
		calls.Add(1)
		cancel()
		return 0, NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls.Load())
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	p := fastPolicy(4)
	p.ShouldRetry = func(error) bool { return true }

	_, _ = Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestBackoff_CappedAndGrowing(t *testing.T) {
	p := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2,
	}.withDefaults()
	p.JitterFraction = 0

	if got := p.backoff(0); got != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", got)
	}
	if got := p.backoff(1); got != 200*time.Millisecond {
		t.Errorf("attempt 1: expected 200ms, got %v", got)
	}
	if got := p.backoff(5); got != 300*time.Millisecond {
		t.Errorf("attempt 5: expected cap 300ms, got %v", got)
	}
}

func TestBackoff_JitterWithinBounds(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, JitterFraction: 0.5}.withDefaults()
	for i := 0; i < 50; i++ {
		got := p.backoff(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", got)
		}
	}
}
