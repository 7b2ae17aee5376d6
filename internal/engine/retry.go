package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rendis/timeline/pkg/schema"
)

// RetryPolicy bounds retries of snapshot saves. Delays use
// time.ParseDuration syntax so a policy can live in a settings file.
type RetryPolicy struct {
	Max      int    `json:"max" yaml:"max"`
	Backoff  string `json:"backoff,omitempty" yaml:"backoff,omitempty"` // constant | linear | exponential
	Delay    string `json:"delay,omitempty" yaml:"delay,omitempty"`
	MaxDelay string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
}

// DefaultSaveRetryPolicy is used by AutoSaver when no policy is configured.
var DefaultSaveRetryPolicy = RetryPolicy{Max: 3, Backoff: "exponential", Delay: "50ms", MaxDelay: "1s"}

// IsRetryableError reports whether a failed save is worth another attempt.
// Typed errors decide by code; cancellation never retries; anything else
// (busy database, dropped connection) does, bounded by the policy.
func IsRetryableError(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var tlErr *schema.TimelineError
	if errors.As(err, &tlErr) {
		return tlErr.IsRetryable()
	}
	return true
}

// Wait returns the delay before retry number attempt (zero based). An
// unparsable delay means no wait.
func (p RetryPolicy) Wait(attempt int) time.Duration {
	base, err := time.ParseDuration(p.Delay)
	if err != nil || base <= 0 {
		return 0
	}
	d := base
	switch p.Backoff {
	case "linear":
		d = base * time.Duration(attempt+1)
	case "exponential":
		d = base << min(attempt, 30)
	}
	if limit, err := time.ParseDuration(p.MaxDelay); err == nil && limit > 0 && d > limit {
		d = limit
	}
	return d
}

// Do calls op until it succeeds, fails with a permanent error or the policy
// runs out of retries. onRetry, if set, sees every error that is retried.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil || attempt >= p.Max || !IsRetryableError(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if d := p.Wait(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}
}
