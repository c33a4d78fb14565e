// Package resilience provides the retry and circuit breaker wrappers used
// around classifier calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown passes.
	CircuitOpen
	// CircuitHalfOpen lets a probe through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// Name appears in state change logs.
	Name string

	// FailureThreshold is the number of consecutive counted failures that
	// opens the circuit. Default: 5.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a probe. Default: 30s.
	Cooldown time.Duration

	// ShouldTrip decides which errors count. Default: IsTransient, so a
	// malformed response does not open the circuit.
	ShouldTrip func(err error) bool
}

// Breaker is a consecutive-failure circuit breaker shared by every job that
// talks to the same classifier.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &Breaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Execute runs fn through the breaker.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(ctx, err)
	return val, err
}

// State returns the current state, reporting half-open once the cooldown has
// elapsed on an open circuit.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A caller giving up is not a verdict on the service.
	if err != nil && ctx.Err() != nil {
		return
	}

	if err == nil || !b.cfg.ShouldTrip(err) {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case CircuitClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.openedAt = b.now()
		b.transition(CircuitOpen)
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: circuit state change",
		zap.String("breaker", b.cfg.Name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}
