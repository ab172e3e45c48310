// Package llm provides a unified abstraction over embedding and chat providers.
// Embedding and generation may use different providers; the choice is made at
// configuration time through the factory registry, never inside business logic.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts in one call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// GenerateOptions controls a single generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// ChatProvider generates text from prompts.
type ChatProvider interface {
	// Chat performs a multi-turn conversation.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate produces a completion for a single system/user prompt pair.
	// opts may be nil, in which case provider defaults apply.
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts *GenerateOptions) (string, error)

	// Name returns the provider name.
	Name() string
}

// Message is one message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider supports both embedding and chat.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory builds a full provider from configuration.
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory builds an embedding-only provider from configuration.
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory builds a chat-only provider from configuration.
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

var registry = &providerRegistry{
	providers:          make(map[string]ProviderFactory),
	embeddingProviders: make(map[string]EmbeddingProviderFactory),
	chatProviders:      make(map[string]ChatProviderFactory),
}

type providerRegistry struct {
	mu                 sync.RWMutex
	providers          map[string]ProviderFactory
	embeddingProviders map[string]EmbeddingProviderFactory
	chatProviders      map[string]ChatProviderFactory
}

// RegisterProvider registers a full provider factory.
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// RegisterEmbeddingProvider registers an embedding-only provider factory.
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.embeddingProviders[name] = factory
}

// RegisterChatProvider registers a chat-only provider factory.
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.chatProviders[name] = factory
}

// NewProvider creates a full provider by name.
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	return factory(config)
}

// NewEmbeddingProvider creates an embedding provider by name.
// A dedicated embedding factory takes precedence over a full provider factory.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.embeddingProviders[name]; ok {
		return factory(config)
	}

	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown embedding provider: %s", name)
}

// NewChatProvider creates a chat provider by name.
// A dedicated chat factory takes precedence over a full provider factory.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.chatProviders[name]; ok {
		return factory(config)
	}

	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown chat provider: %s", name)
}

// ListProviders returns the names of all registered providers.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string

	for name := range registry.providers {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range registry.embeddingProviders {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range registry.chatProviders {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}
