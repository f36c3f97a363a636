package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/babysteps/progression/internal/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker protects calls to outbound collaborators, one circuit per key.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	probing     bool
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[key] = c
	}
	return c
}

// Check returns whether the circuit for the given key allows a request. After
// the reset timeout an open circuit lets a single probe through.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitOpen:
		since := cb.now().Sub(c.lastFailure)
		if since > cb.resetTimeout {
			c.state = CircuitHalfOpen
			c.probing = true
			return domain.GuardResult{Allowed: true}
		}
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("circuit open for %s, resets in %s", key, cb.resetTimeout-since),
			Guard:   "circuit_breaker",
		}
	case CircuitHalfOpen:
		if c.probing {
			return domain.GuardResult{
				Allowed: false,
				Reason:  "circuit half-open, probe in flight",
				Guard:   "circuit_breaker",
			}
		}
		c.probing = true
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// RecordSuccess marks a successful execution for the given key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.state = CircuitClosed
	c.failures = 0
	c.probing = false
}

// RecordFailure marks a failed execution for the given key.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.failures++
	c.lastFailure = cb.now()
	c.probing = false

	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
	}
}

// State returns the current state of the key's circuit.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.get(key).state
}

// Do runs fn if the circuit allows it and records the outcome. A rejected
// call returns an Unavailable AppError without running fn.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return domain.ErrUnavailable(res.Reason, nil)
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}
