// Package resilience provides retry with backoff and circuit breaking for
// calls to external embedding, generation, and vector-index providers.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// RetryConfig controls retry behavior for one external-call family.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay, before jitter.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// RetryableNames is a caller-supplied allow-set; an error whose message
	// contains any of these substrings is treated as retryable in addition
	// to the built-in transient classification.
	RetryableNames []string
	// RetryableErrors overrides classification entirely when set.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the retry configuration used for embedding and
// vector-index calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}
}

// GenerationRetryConfig returns the retry configuration for generation calls.
// Generation is the most expensive and most rate-limited step, so it gets
// fewer retries with a longer base delay.
func GenerationRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   15 * time.Second,
		Multiplier: 2.0,
	}
}

// retryable resolves the effective classification for a config.
func (c *RetryConfig) retryable(err error) bool {
	if c.RetryableErrors != nil {
		return c.RetryableErrors(err)
	}
	if matchesNames(err, c.RetryableNames) {
		return true
	}
	return IsRetryableError(err)
}

// backoffDelay computes the delay before retry number attempt (zero-based):
// min(base * multiplier^attempt, max) plus 10-25% random jitter.
func (c *RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := float64(c.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if capped := float64(c.MaxDelay); delay > capped {
		delay = capped
	}
	jitter := delay * (0.10 + rand.Float64()*0.15)
	return time.Duration(delay + jitter)
}

// RetryWithBackoff executes fn, retrying retryable failures with exponential
// backoff and jitter. The final error is returned unchanged so callers can
// still classify it. name identifies the operation in logs.
func RetryWithBackoff(ctx context.Context, name string, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !config.retryable(err) {
			logger.Debugw("error is not retryable",
				"operation", name,
				"error", err.Error(),
			)
			return err
		}

		if attempt >= config.MaxRetries {
			logger.Warnw("retry budget exhausted",
				"operation", name,
				"attempts", attempt+1,
				"error", err.Error(),
			)
			return lastErr
		}

		delay := config.backoffDelay(attempt)
		logger.Warnw("retrying after transient failure",
			"operation", name,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err.Error(),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// RetryWithCircuitBreaker combines retry and circuit breaking.
func RetryWithCircuitBreaker(
	ctx context.Context,
	name string,
	retryConfig *RetryConfig,
	cb *CircuitBreaker,
	fn func() error,
) error {
	return RetryWithBackoff(ctx, name, retryConfig, func() error {
		return cb.Execute(fn)
	})
}

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures opens the breaker once reached.
	MaxFailures int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxCalls bounds probe calls in the half-open state.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns the default circuit breaker configuration.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreakerState is the breaker state.
type CircuitBreakerState int

const (
	// StateClosed allows all calls.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects all calls.
	StateOpen
	// StateHalfOpen allows a bounded number of probe calls.
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen is returned while the breaker rejects calls.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after consecutive failures and recovers via probing.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu                sync.RWMutex
	state             CircuitBreakerState
	failures          int
	lastFailureTime   time.Time
	halfOpenCalls     int
	halfOpenSuccesses int
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)

	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			logger.Infow("circuit breaker transitioning to half-open")
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenSuccesses = 0
			return nil
		}
		return ErrCircuitBreakerOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCalls++
		return nil

	default:
		return ErrCircuitBreakerOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenCalls {
			logger.Infow("circuit breaker transitioning to closed")
			cb.state = StateClosed
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			logger.Warnw("circuit breaker opening",
				"failures", cb.failures,
				"max_failures", cb.config.MaxFailures,
			)
			cb.state = StateOpen
		}

	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opening after half-open failure")
		cb.state = StateOpen
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns breaker statistics for monitoring.
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"state":               cb.state.String(),
		"failures":            cb.failures,
		"last_failure_time":   cb.lastFailureTime,
		"half_open_calls":     cb.halfOpenCalls,
		"half_open_successes": cb.halfOpenSuccesses,
	}
}

// Reset returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
}
