package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverport/policyqa/pkg/utils/httpclient"
)

// fastRetryConfig keeps test wall time negligible. Assertions are on attempt
// counts and outcomes only; jitter makes timing non-deterministic by design.
func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), "op", fastRetryConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "two retries then success")
}

func TestRetryNonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	wantErr := errors.New("invalid api key")
	err := RetryWithBackoff(context.Background(), "op", fastRetryConfig(3), func() error {
		attempts++
		return wantErr
	})

	require.Error(t, err)
	assert.Same(t, wantErr, err, "final error is propagated unchanged")
	assert.Equal(t, 1, attempts, "zero retries for a non-retryable error")
}

func TestRetryBudgetExhaustedPropagatesFinalError(t *testing.T) {
	attempts := 0
	wantErr := errors.New("request timed out")
	err := RetryWithBackoff(context.Background(), "op", fastRetryConfig(2), func() error {
		attempts++
		return wantErr
	})

	require.Error(t, err)
	assert.Same(t, wantErr, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestRetryHonorsAllowSet(t *testing.T) {
	cfg := fastRetryConfig(2)
	cfg.RetryableNames = []string{"quota exceeded"}

	attempts := 0
	err := RetryWithBackoff(context.Background(), "op", cfg, func() error {
		attempts++
		if attempts == 1 {
			return errors.New("quota exceeded for project")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := RetryWithBackoff(ctx, "op", fastRetryConfig(5), func() error {
		attempts++
		cancel()
		return errors.New("connection refused")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelayBounds(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	for attempt := 0; attempt < 6; attempt++ {
		base := float64(cfg.BaseDelay)
		for i := 0; i < attempt; i++ {
			base *= cfg.Multiplier
		}
		if base > float64(cfg.MaxDelay) {
			base = float64(cfg.MaxDelay)
		}

		for i := 0; i < 20; i++ {
			d := float64(cfg.backoffDelay(attempt))
			assert.GreaterOrEqual(t, d, base*1.10, "jitter at least 10%%")
			assert.LessOrEqual(t, d, base*1.25, "jitter at most 25%%")
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitBreakerOpen, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limit name", errors.New("openai: rate limit exceeded"), true},
		{"timeout name", errors.New("request timed out"), true},
		{"connection name", errors.New("dial tcp: connection refused"), true},
		{"overloaded name", errors.New("anthropic: overloaded_error"), true},
		{"status 429", &httpclient.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"status 500", &httpclient.StatusError{StatusCode: http.StatusInternalServerError}, true},
		{"status 502", &httpclient.StatusError{StatusCode: http.StatusBadGateway}, true},
		{"status 503", &httpclient.StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"status 504", &httpclient.StatusError{StatusCode: http.StatusGatewayTimeout}, true},
		{"status 400", &httpclient.StatusError{StatusCode: http.StatusBadRequest}, false},
		{"status 401", &httpclient.StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"wrapped status 503", fmt.Errorf("embed: %w", &httpclient.StatusError{StatusCode: 503}), true},
		{"plain business error", errors.New("collection not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestCircuitBreakerClosedState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	assert.Equal(t, StateClosed, cb.State())

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerOpensOnMaxFailures(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      3,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)

	testErr := errors.New("test error")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return testErr })
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return testErr })
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(80 * time.Millisecond)

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      1,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
