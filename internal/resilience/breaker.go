// Package resilience guards calls to outside services with a circuit
// breaker and retry with backoff.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting calls
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Probing for recovery
)

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before a trial call
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used for notification channels.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	rejected  uint64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, state: CircuitClosed}
}

// Do runs fn unless the circuit is open, and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return ErrCircuitOpen
		}
		b.transitionTo(CircuitHalfOpen)
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case ok && b.state == CircuitHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionTo(CircuitClosed)
		}
	case ok:
		b.failures = 0
	case b.state == CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}
	}
}

func (b *Breaker) transitionTo(state CircuitState) {
	b.state = state
	b.failures = 0
	b.successes = 0
	if state == CircuitOpen {
		b.openedAt = b.now()
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns how many calls the open circuit turned away.
func (b *Breaker) Rejected() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}
