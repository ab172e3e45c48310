// Package resilience provides resilient wrappers around LLM providers.
package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/utils/httpclient"
)

// ResilientEmbeddingProvider wraps an EmbeddingProvider with retry and
// circuit breaking.
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// NewResilientEmbeddingProvider creates a resilient embedding provider.
func NewResilientEmbeddingProvider(
	provider llm.EmbeddingProvider,
	retryConfig *RetryConfig,
	cbConfig *CircuitBreakerConfig,
) *ResilientEmbeddingProvider {
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	if cbConfig == nil {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	return &ResilientEmbeddingProvider{
		provider: provider,
		retry:    retryConfig,
		cb:       NewCircuitBreaker(cbConfig),
	}
}

// Embed generates embeddings for multiple texts with retry and circuit breaking.
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	var err error

	err = RetryWithCircuitBreaker(ctx, "embed", r.retry, r.cb, func() error {
		result, err = r.provider.Embed(ctx, texts)
		return err
	})

	return result, err
}

// EmbedSingle generates an embedding for one text with retry and circuit breaking.
func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	var err error

	err = RetryWithCircuitBreaker(ctx, "embed_single", r.retry, r.cb, func() error {
		result, err = r.provider.EmbedSingle(ctx, text)
		return err
	})

	return result, err
}

// Name returns the provider name.
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name() + "-resilient"
}

// CircuitBreaker exposes the breaker for monitoring.
func (r *ResilientEmbeddingProvider) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

// ResilientChatProvider wraps a ChatProvider with retry and circuit breaking.
type ResilientChatProvider struct {
	provider llm.ChatProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// NewResilientChatProvider creates a resilient chat provider.
func NewResilientChatProvider(
	provider llm.ChatProvider,
	retryConfig *RetryConfig,
	cbConfig *CircuitBreakerConfig,
) *ResilientChatProvider {
	if retryConfig == nil {
		retryConfig = GenerationRetryConfig()
	}
	if cbConfig == nil {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	return &ResilientChatProvider{
		provider: provider,
		retry:    retryConfig,
		cb:       NewCircuitBreaker(cbConfig),
	}
}

// Chat performs a conversation with retry and circuit breaking.
func (r *ResilientChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var result string
	var err error

	err = RetryWithCircuitBreaker(ctx, "chat", r.retry, r.cb, func() error {
		result, err = r.provider.Chat(ctx, messages)
		return err
	})

	return result, err
}

// Generate produces a completion with retry and circuit breaking.
func (r *ResilientChatProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts *llm.GenerateOptions) (string, error) {
	var result string
	var err error

	err = RetryWithCircuitBreaker(ctx, "generate", r.retry, r.cb, func() error {
		result, err = r.provider.Generate(ctx, systemPrompt, userPrompt, opts)
		return err
	})

	return result, err
}

// Name returns the provider name.
func (r *ResilientChatProvider) Name() string {
	return r.provider.Name() + "-resilient"
}

// CircuitBreaker exposes the breaker for monitoring.
func (r *ResilientChatProvider) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

// transientNames are error-message fragments that indicate a transient
// provider failure: rate limiting, timeouts, connection problems, and
// server overload, in the shapes the major providers emit them.
var transientNames = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"connection error",
	"overloaded",
	"service unavailable",
	"temporarily unavailable",
	"server error",
	"EOF",
}

// retryableStatusCodes are the HTTP status codes treated as transient.
var retryableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func matchesNames(err error, names []string) bool {
	if err == nil || len(names) == 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, name := range names {
		if strings.Contains(msg, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// IsRetryableError reports whether err represents a transient failure worth
// retrying. Matches network-level errors, known transient failure names, and
// HTTP status codes carried by httpclient.StatusError.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A rejected call never becomes a retry loop against an open breaker.
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return false
	}

	// Context cancellation means the caller gave up, not the provider.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if retryableStatusCodes[statusErr.StatusCode] {
			logger.Debugw("retryable status code", "status", statusErr.StatusCode)
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("network timeout, retryable", "error", err.Error())
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		logger.Debugw("DNS error, retryable", "error", err.Error())
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		logger.Debugw("network operation error, retryable", "error", err.Error())
		return true
	}

	if matchesNames(err, transientNames) {
		logger.Debugw("transient provider error, retryable", "error", err.Error())
		return true
	}

	logger.Debugw("error not retryable", "error", err.Error())
	return false
}

// Stats summarizes a wrapper's resilience state.
type Stats struct {
	CircuitBreakerState    string
	CircuitBreakerFailures int
	CircuitBreakerStats    map[string]interface{}
}

// GetEmbeddingProviderStats returns resilience statistics for an embedding
// provider, or nil when the provider is not wrapped.
func GetEmbeddingProviderStats(provider llm.EmbeddingProvider) *Stats {
	if rp, ok := provider.(*ResilientEmbeddingProvider); ok {
		cbStats := rp.cb.Stats()
		return &Stats{
			CircuitBreakerState:    cbStats["state"].(string),
			CircuitBreakerFailures: cbStats["failures"].(int),
			CircuitBreakerStats:    cbStats,
		}
	}
	return nil
}

// GetChatProviderStats returns resilience statistics for a chat provider,
// or nil when the provider is not wrapped.
func GetChatProviderStats(provider llm.ChatProvider) *Stats {
	if rp, ok := provider.(*ResilientChatProvider); ok {
		cbStats := rp.cb.Stats()
		return &Stats{
			CircuitBreakerState:    cbStats["state"].(string),
			CircuitBreakerFailures: cbStats["failures"].(int),
			CircuitBreakerStats:    cbStats,
		}
	}
	return nil
}
