package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valpere/cvtran/internal"
)

func TestOllamaTranslator_Translate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content == "" {
			t.Errorf("expected system instructions first, got %+v", req.Messages)
		}
		if req.Messages[1].Content != `{"title":"Engineer"}` {
			t.Errorf("unexpected user message %q", req.Messages[1].Content)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("expected non-streaming json format, got format=%q stream=%v", req.Format, req.Stream)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":       req.Model,
			"message":     map[string]string{"role": "assistant", "content": "<think>ok</think>\n{\"title\":\"Ingeniero\"}"},
			"done_reason": "stop",
			"eval_count":  12,
		})
	}))
	defer server.Close()

	svc := NewOllamaTranslator(ServiceConfig{BaseURL: server.URL + "/", Model: "llama3.2"})

	result, err := svc.Translate(context.Background(), TranslateRequest{
		Text:         `{"title":"Engineer"}`,
		TargetLang:   "es",
		Instructions: Instructions("es"),
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TranslatedText != `{"title":"Ingeniero"}` {
		t.Errorf("expected cleaned JSON, got %q", result.TranslatedText)
	}
	if result.Metadata["model"] != "llama3.2" || result.Metadata["eval_count"] != "12" {
		t.Errorf("unexpected metadata %v", result.Metadata)
	}
}

func TestOllamaTranslator_Translate_TruncatedIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message":     map[string]string{"role": "assistant", "content": `{"title":"Ingen`},
			"done_reason": "length",
		})
	}))
	defer server.Close()

	svc := NewOllamaTranslator(ServiceConfig{BaseURL: server.URL})
	result, err := svc.Translate(context.Background(), TranslateRequest{Text: `{"title":"Engineer"}`, TargetLang: "es"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TranslatedText != `{"title":"Ingen` || result.Metadata["done_reason"] != "length" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestOllamaTranslator_Translate_EmptyMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done_reason":"stop"}`))
	}))
	defer server.Close()

	svc := NewOllamaTranslator(ServiceConfig{BaseURL: server.URL})
	_, err := svc.Translate(context.Background(), TranslateRequest{Text: "{}", TargetLang: "es"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestOllamaTranslator_Translate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model is loading"))
	}))
	defer server.Close()

	svc := NewOllamaTranslator(ServiceConfig{BaseURL: server.URL})

	result, err := svc.Translate(context.Background(), TranslateRequest{Text: "{}", TargetLang: "uk"})
	if err == nil {
		t.Fatal("expected error for non-OK status")
	}
	if !errors.Is(err, internal.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if result == nil || result.Error == "" {
		t.Error("expected error message in result")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected *APIError with status 503, got %v", err)
	}
}

func TestOllamaTranslator_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"qwen3:14b"},{"name":"llama3.2:latest"}]}`))
	}))
	defer server.Close()

	tests := []struct {
		model   string
		wantErr bool
	}{
		{"qwen3:14b", false},
		{"llama3.2", false},
		{"mistral", true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			svc := NewOllamaTranslator(ServiceConfig{BaseURL: server.URL, Model: tt.model})
			err := svc.IsAvailable(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("IsAvailable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOllamaTranslator_IsAvailable_NotRunning(t *testing.T) {
	svc := NewOllamaTranslator(ServiceConfig{BaseURL: "http://127.0.0.1:1"})
	if err := svc.IsAvailable(context.Background()); err == nil {
		t.Error("expected error when Ollama is not running")
	}
}

func TestOllamaTranslator_Name(t *testing.T) {
	if got := NewOllamaTranslator(ServiceConfig{}).Name(); got != "ollama" {
		t.Errorf("expected 'ollama', got %q", got)
	}
}
