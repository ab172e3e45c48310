package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testAPIKey = "test-key"

func TestNewChatProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewChatProvider(map[string]any{}); err == nil {
		t.Error("expected error for missing api_key, got nil")
	}

	provider, err := NewChatProvider(map[string]any{"api_key": testAPIKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != ProviderName {
		t.Errorf("expected name %s, got %s", ProviderName, provider.Name())
	}
}

func TestGenerateLiftsSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != testAPIKey {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("unexpected version header %q", got)
		}

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "answer from excerpts only" {
			t.Errorf("unexpected system field %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens == 0 {
			t.Error("max_tokens must always be set")
		}

		resp := map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "grounded answer"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	provider := NewProviderWithConfig(&Config{
		BaseURL:   srv.URL,
		APIKey:    testAPIKey,
		ChatModel: "claude-3-5-sonnet-20241022",
		Timeout:   5 * time.Second,
		MaxTokens: 1024,
	})

	answer, err := provider.Generate(context.Background(), "answer from excerpts only", "what is covered?", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer != "grounded answer" {
		t.Errorf("expected 'grounded answer', got %q", answer)
	}
}
