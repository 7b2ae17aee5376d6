package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/pkg/schema"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("save: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"store error", schema.NewError(schema.ErrCodeStore, "database is locked"), true},
		{"wrapped store error", fmt.Errorf("save snapshot: %w", schema.NewError(schema.ErrCodeStore, "x")), true},
		{"plain error", errors.New("connection reset by peer"), true},
		{"validation", schema.NewError(schema.ErrCodeValidation, "x"), false},
		{"not found", schema.NewError(schema.ErrCodeNotFound, "x"), false},
		{"conflict", schema.NewError(schema.ErrCodeConflict, "x"), false},
		{"invalid transition", schema.NewError(schema.ErrCodeInvalidTransition, "x"), false},
		{"circuit open", schema.NewError(schema.ErrCodeCircuitOpen, "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRetryPolicy_Wait(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"no delay", RetryPolicy{Backoff: "exponential"}, 3, 0},
		{"bad delay", RetryPolicy{Delay: "soon"}, 0, 0},
		{"constant", RetryPolicy{Backoff: "constant", Delay: "100ms"}, 4, 100 * time.Millisecond},
		{"unknown backoff is constant", RetryPolicy{Backoff: "none", Delay: "100ms"}, 4, 100 * time.Millisecond},
		{"linear", RetryPolicy{Backoff: "linear", Delay: "100ms"}, 2, 300 * time.Millisecond},
		{"exponential", RetryPolicy{Backoff: "exponential", Delay: "100ms"}, 3, 800 * time.Millisecond},
		{"capped", RetryPolicy{Backoff: "exponential", Delay: "100ms", MaxDelay: "250ms"}, 3, 250 * time.Millisecond},
		{"bad cap ignored", RetryPolicy{Backoff: "linear", Delay: "100ms", MaxDelay: "later"}, 1, 200 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Wait(tt.attempt))
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	busy := schema.NewError(schema.ErrCodeStore, "database is locked")

	t.Run("succeeds after retries", func(t *testing.T) {
		calls := 0
		var retried []int
		err := RetryPolicy{Max: 3, Delay: "1ms"}.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		}, func(attempt int, _ error) { retried = append(retried, attempt) })
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("gives up after max", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{Max: 2}.Do(context.Background(), func(context.Context) error {
			calls++
			return busy
		}, nil)
		assert.Equal(t, busy, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops at once", func(t *testing.T) {
		calls := 0
		gone := schema.NewError(schema.ErrCodeNotFound, "timeline gone")
		err := RetryPolicy{Max: 5}.Do(context.Background(), func(context.Context) error {
			calls++
			return gone
		}, nil)
		assert.Equal(t, gone, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := RetryPolicy{Max: 5, Delay: "1h"}.Do(ctx, func(context.Context) error {
			cancel()
			return busy
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
