package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/rendis/timeline/internal/store"
)

// Sink is a named event destination.
type Sink struct {
	Name     string
	Appender EventAppender
}

// FanOut delivers each event to every sink in order. Sinks that keep failing
// are skipped by their circuit breaker until the cooldown elapses.
type FanOut struct {
	mu       sync.RWMutex
	sinks    []Sink
	breakers *CircuitBreakers
	logger   *slog.Logger
}

// NewFanOut creates a fan-out appender. A nil breakers registry uses the defaults.
func NewFanOut(breakers *CircuitBreakers, logger *slog.Logger, sinks ...Sink) *FanOut {
	if breakers == nil {
		breakers = NewCircuitBreakers(DefaultCircuitBreakerConfig())
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &FanOut{sinks: sinks, breakers: breakers, logger: logger}
}

// Add appends a sink. It is safe to call while events flow.
func (f *FanOut) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// AppendEvent implements EventAppender. Sinks earlier in the list see the
// event first, so the store should come first to assign the sequence.
func (f *FanOut) AppendEvent(ctx context.Context, event *store.Event) error {
	f.mu.RLock()
	sinks := slices.Clone(f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := f.breakers.Allow(s.Name); err != nil {
			f.logger.Debug("event sink skipped", "sink", s.Name, "event_type", event.Type, "error", err)
			continue
		}
		if err := s.Appender.AppendEvent(ctx, event); err != nil {
			if f.breakers.RecordFailure(s.Name) == CircuitOpen {
				f.logger.Warn("event sink circuit opened", "sink", s.Name, "error", err)
			}
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name, err))
			continue
		}
		f.breakers.RecordSuccess(s.Name)
	}
	return errors.Join(errs...)
}
