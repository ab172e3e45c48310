package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coverport/policyqa/pkg/llm"
)

const testAPIKey = "test-key"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("expected BaseURL https://api.openai.com/v1, got %s", cfg.BaseURL)
	}
	if cfg.EmbedModel != "text-embedding-3-small" {
		t.Errorf("expected EmbedModel text-embedding-3-small, got %s", cfg.EmbedModel)
	}
	if cfg.ChatModel != "gpt-4o-mini" {
		t.Errorf("expected ChatModel gpt-4o-mini, got %s", cfg.ChatModel)
	}
	if cfg.Timeout != 120*time.Second {
		t.Errorf("expected Timeout 120s, got %v", cfg.Timeout)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{
			name: "valid config",
			config: map[string]any{
				"api_key": testAPIKey,
			},
			wantError: false,
		},
		{
			name: "custom config",
			config: map[string]any{
				"api_key":      testAPIKey,
				"base_url":     "https://api.openai.com/v1",
				"embed_model":  "text-embedding-3-large",
				"chat_model":   "gpt-4o",
				"organization": "org-123",
			},
			wantError: false,
		},
		{
			name:      "missing api_key",
			config:    map[string]any{},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider.Name() != ProviderName {
				t.Errorf("expected name %s, got %s", ProviderName, provider.Name())
			}
		})
	}
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testAPIKey {
			t.Errorf("unexpected auth header %q", got)
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		// Respond out of order; the client must reorder by index.
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "embedding": []float32{0.2}, "index": 1},
				{"object": "embedding", "embedding": []float32{0.1}, "index": 0},
			},
			"model": req.Model,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	provider := NewProviderWithConfig(&Config{
		BaseURL:    srv.URL,
		APIKey:     testAPIKey,
		EmbedModel: "text-embedding-3-small",
		Timeout:    5 * time.Second,
	})

	embeddings, err := provider.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][0] != 0.1 || embeddings[1][0] != 0.2 {
		t.Errorf("embeddings not ordered by index: %v", embeddings)
	}
}

func TestGenerateSendsSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || req.Messages[0].Content != "be brief" {
			t.Errorf("unexpected system message: %+v", req.Messages[0])
		}
		if req.MaxTokens != 500 {
			t.Errorf("expected max_tokens 500, got %d", req.MaxTokens)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "done"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	provider := NewProviderWithConfig(&Config{
		BaseURL:   srv.URL,
		APIKey:    testAPIKey,
		ChatModel: "gpt-4o-mini",
		Timeout:   5 * time.Second,
	})

	answer, err := provider.Generate(context.Background(), "be brief", "question",
		&llm.GenerateOptions{MaxTokens: 500})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer != "done" {
		t.Errorf("expected answer 'done', got %q", answer)
	}
}
