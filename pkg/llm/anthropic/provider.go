// Package anthropic provides the Anthropic chat provider implementation.
// Anthropic has no embeddings API, so this provider registers for chat only;
// pair it with an embedding-capable provider in configuration.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coverport/policyqa/pkg/llm"
	"github.com/coverport/policyqa/pkg/utils/httpclient"
)

// ProviderName identifies the Anthropic provider in the registry.
const ProviderName = "anthropic"

const apiVersion = "2023-06-01"

func init() {
	llm.RegisterChatProvider(ProviderName, NewChatProvider)
}

// Config holds Anthropic provider configuration.
type Config struct {
	// BaseURL is the API base address.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey is the API key.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// ChatModel is the model used for generation.
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Temperature controls randomness; 0 leaves the API default.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds generated tokens. The messages API requires it, so
	// a default is always applied.
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "https://api.anthropic.com/v1",
		ChatModel: "claude-3-5-sonnet-20241022",
		Timeout:   120 * time.Second,
		MaxTokens: 1024,
	}
}

// Provider is the Anthropic chat provider.
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewChatProvider creates an Anthropic provider from a configuration map.
func NewChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["max_tokens"].(int); ok && v > 0 {
		cfg.MaxTokens = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key is required")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig creates an Anthropic provider from a structured config.
// Retries are left to the resilience wrapper; the client makes one attempt
// per call.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type messageRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []messageEntry `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature,omitempty"`
}

type messageEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) complete(ctx context.Context, system string, messages []messageEntry, opts *llm.GenerateOptions) (string, error) {
	reqBody := messageRequest{
		Model:     p.config.ChatModel,
		System:    system,
		Messages:  messages,
		MaxTokens: p.config.MaxTokens,
	}

	if p.config.Temperature > 0 {
		reqBody.Temperature = p.config.Temperature
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			reqBody.MaxTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			reqBody.Temperature = opts.Temperature
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	var msgResp messageResponse
	if err := p.client.DoJSON(req, &msgResp); err != nil {
		return "", err
	}

	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return msgResp.Content[0].Text, nil
}

// Chat performs a multi-turn conversation. System messages are lifted into
// the request's system field as the messages API requires.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var system string
	entries := make([]messageEntry, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = msg.Content
			continue
		}
		entries = append(entries, messageEntry{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return p.complete(ctx, system, entries, nil)
}

// Generate produces a completion for a system/user prompt pair.
func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts *llm.GenerateOptions) (string, error) {
	entries := []messageEntry{
		{Role: string(llm.RoleUser), Content: userPrompt},
	}
	return p.complete(ctx, systemPrompt, entries, opts)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
}
