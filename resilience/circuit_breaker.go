package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voyago/fulfillment/utils"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker is cooling down after repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
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

// Breaker fails calls to an external collaborator fast once it is evidently
// down. It never retries: the calls it wraps are not idempotent, and replays
// are owned by the failure queue.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	halfOpenMax int

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time

	logger *utils.Logger
}

type BreakerConfig struct {
	Name        string
	MaxFailures int
	Cooldown    time.Duration
	HalfOpenMax int
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		halfOpenMax: cfg.HalfOpenMax,
		state:       CircuitClosed,
		logger:      utils.NewLogger("circuit-breaker"),
	}
}

// Do runs fn unless the breaker is open. The call itself is invoked at most
// once per Do; a context timeout surfaces as the call's own error.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	b.record(ctx, err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			b.transition(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return b.successes < b.halfOpenMax
	}
	return false
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	from := b.state

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		switch b.state {
		case CircuitClosed:
			if b.failures >= b.maxFailures {
				b.transition(CircuitOpen)
			}
		case CircuitHalfOpen:
			b.transition(CircuitOpen)
		}
	} else {
		switch b.state {
		case CircuitClosed:
			b.failures = 0
		case CircuitHalfOpen:
			b.successes++
			if b.successes >= b.halfOpenMax {
				b.transition(CircuitClosed)
			}
		}
	}

	to := b.state
	b.mu.Unlock()

	if from != to {
		b.logger.Warn(ctx, "circuit breaker state changed", map[string]interface{}{
			"breaker": b.name,
			"from":    from.String(),
			"to":      to.String(),
		})
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(state CircuitState) {
	if b.state == state {
		return
	}
	b.state = state
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
