package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Boomnana/test-agent/internal/resilience"
)

// Options configures a Resilient classifier.
type Options struct {
	// CallTimeout bounds each attempt. Zero means no per-call bound.
	CallTimeout time.Duration
	// RatePerSec paces attempts across all jobs. Zero disables pacing.
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryPolicy
	Breaker    resilience.BreakerConfig
}

// Resilient wraps a provider with pacing, per-call timeouts, retries and a
// circuit breaker. It is safe for concurrent use and is shared by all jobs.
type Resilient struct {
	next    Classifier
	opts    Options
	pacer   *pacer
	breaker *resilience.Breaker
}

// NewResilient wraps next.
func NewResilient(next Classifier, opts Options) *Resilient {
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("classifier")
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "classifier"
	}
	r := &Resilient{
		next:    next,
		opts:    opts,
		breaker: resilience.NewBreaker(opts.Breaker),
	}
	if opts.RatePerSec > 0 {
		r.pacer = newPacer(rate.Limit(opts.RatePerSec), opts.Burst)
	}
	return r
}

// Classify runs req with retries. Each attempt waits for the pacer, passes
// the breaker and runs under its own timeout.
func (r *Resilient) Classify(ctx context.Context, req Request) (*Response, error) {
	return resilience.Do(ctx, r.opts.Retry, func(ctx context.Context) (*Response, error) {
		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "classifier: rate limit wait")
			}
		}
		return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*Response, error) {
			return r.attempt(ctx, req)
		})
	})
}

// BreakerState reports the shared circuit breaker's state.
func (r *Resilient) BreakerState() resilience.CircuitState {
	return r.breaker.State()
}

func (r *Resilient) attempt(ctx context.Context, req Request) (*Response, error) {
	callCtx := ctx
	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}

	resp, err := r.next.Classify(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = resilience.NewTransientError(
				eris.Wrapf(err, "classifier: %s call exceeded %s", req.Task, r.opts.CallTimeout), 0)
		}
		if r.pacer != nil {
			var te *resilience.TransientError
			if errors.As(err, &te) && te.StatusCode == 429 {
				r.pacer.OnRateLimit()
			}
		}
		return nil, err
	}
	if r.pacer != nil {
		r.pacer.OnSuccess()
	}
	return resp, nil
}

// pacer is a rate.Limiter that halves its rate on 429 responses and creeps
// back up to the configured rate on success.
type pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	max     rate.Limit
	min     rate.Limit
	current rate.Limit
}

func newPacer(r rate.Limit, burst int) *pacer {
	if burst <= 0 {
		burst = 1
	}
	return &pacer{
		limiter: rate.NewLimiter(r, burst),
		max:     r,
		min:     r / 8,
		current: r,
	}
}

func (p *pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *pacer) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current >= p.max {
		return
	}
	p.current = min(p.current*1.2, p.max)
	p.limiter.SetLimit(p.current)
}

func (p *pacer) OnRateLimit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = max(p.current*0.5, p.min)
	p.limiter.SetLimit(p.current)
	zap.L().Warn("classifier: reducing call rate after 429",
		zap.Float64("rate_per_sec", float64(p.current)),
	)
}

func (p *pacer) Limit() rate.Limit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
