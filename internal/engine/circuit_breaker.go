package engine

import (
	"sync"
	"time"

	"github.com/rendis/timeline/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is let through.
	Cooldown time.Duration
}

// DefaultCircuitBreakerConfig returns the configuration used for event sinks.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

type breaker struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// CircuitBreakers tracks failure state per named event sink, so a broker
// that is down stops costing a failed call on every engine transition.
type CircuitBreakers struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	now      func() time.Time
	breakers map[string]*breaker
}

// NewCircuitBreakers creates a registry with the given config.
func NewCircuitBreakers(config CircuitBreakerConfig) *CircuitBreakers {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	return &CircuitBreakers{
		config:   config,
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

// Allow returns nil when a call to sink may proceed. After the cooldown a
// single probe is let through; its outcome closes or reopens the circuit.
func (r *CircuitBreakers) Allow(sink string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(sink)

	switch b.state {
	case CircuitOpen:
		if r.now().Sub(b.openedAt) < r.config.Cooldown {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"event sink %q is unavailable after %d consecutive failures", sink, b.failures).
				WithDetails(map[string]any{
					"sink":                 sink,
					"consecutive_failures": b.failures,
					"cooldown_remaining":   (r.config.Cooldown - r.now().Sub(b.openedAt)).String(),
				})
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen, "event sink %q is being probed", sink)
		}
		b.probing = true
	}
	return nil
}

// RecordSuccess closes the circuit for sink.
func (r *CircuitBreakers) RecordSuccess(sink string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(sink)
	b.state = CircuitClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure and returns the resulting state.
func (r *CircuitBreakers) RecordFailure(sink string) CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(sink)
	b.failures++
	b.probing = false
	if b.state == CircuitHalfOpen || b.failures >= r.config.FailureThreshold {
		b.state = CircuitOpen
		b.openedAt = r.now()
	}
	return b.state
}

// State returns the current state for sink.
func (r *CircuitBreakers) State(sink string) CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(sink).state
}

func (r *CircuitBreakers) get(sink string) *breaker {
	b, ok := r.breakers[sink]
	if !ok {
		b = &breaker{state: CircuitClosed}
		r.breakers[sink] = b
	}
	return b
}
