// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/coverport/policyqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions configures a single LLM provider endpoint. The service
// carries two instances, one for embeddings and one for answer generation,
// so each can point at a different provider and model.
type ProviderOptions struct {
	// Provider is the registered provider name (openai, anthropic).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL overrides the provider's default API base URL.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model is the model name to request.
	Model string `json:"model" mapstructure:"model"`

	// Timeout bounds a single provider request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry budget applied by the resilience wrapper
	// around this provider's calls.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the organization ID (optional, OpenAI only).
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions creates provider options with defaults.
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "openai",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// NewEmbeddingOptions creates defaults for the embedding provider.
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "text-embedding-3-small"
	return opts
}

// NewChatOptions creates defaults for the generation provider.
func NewChatOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "gpt-4o-mini"
	return opts
}

// ToConfigMap converts the options into the map consumed by provider
// factories.
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"model":        o.Model,
		"timeout":      o.Timeout,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Provider, options.Join(prefixes...)+"llm.provider", o.Provider, "LLM provider (openai, anthropic).")
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"llm.base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, options.Join(prefixes...)+"llm.api-key", o.APIKey, "LLM API key.")
	fs.StringVar(&o.Model, options.Join(prefixes...)+"llm.model", o.Model, "LLM model name.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"llm.timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, options.Join(prefixes...)+"llm.max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.StringVar(&o.Organization, options.Join(prefixes...)+"llm.organization", o.Organization, "LLM organization ID (optional).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for %s provider", o.Provider))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete completes the LLM provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}
