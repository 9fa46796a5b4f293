package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/cvtran/internal/postprocess"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "qwen3:14b"
)

// OllamaTranslator talks to a local Ollama daemon through /api/chat.
type OllamaTranslator struct {
	endpoint string
	model    string
	client   *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	DoneReason string        `json:"done_reason"`
	EvalCount  int           `json:"eval_count"`
}

func NewOllamaTranslator(cfg ServiceConfig) *OllamaTranslator {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaTranslator{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}
}

func (s *OllamaTranslator) Name() string {
	return "ollama"
}

func (s *OllamaTranslator) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	body, err := json.Marshal(ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.Text},
		},
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return result.fail(fmt.Errorf("encode request: %w", err))
	}

	var chat ollamaChatResponse
	if err := s.call(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body), &chat); err != nil {
		return result.fail(err)
	}
	if chat.Message.Content == "" {
		return result.fail(fmt.Errorf("%s: %w", s.Name(), ErrEmptyResponse))
	}

	// A "length" stop leaves truncated JSON; the healer closes it.
	result.TranslatedText = postprocess.Clean(chat.Message.Content)
	result.Metadata = map[string]string{
		"model":       s.model,
		"done_reason": chat.DoneReason,
		"eval_count":  strconv.Itoa(chat.EvalCount),
	}
	return result, nil
}

// IsAvailable checks that the daemon answers and has the configured model
// pulled.
func (s *OllamaTranslator) IsAvailable(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := s.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return err
	}
	for _, m := range tags.Models {
		if m.Name == s.model || strings.TrimSuffix(m.Name, ":latest") == s.model {
			return nil
		}
	}
	return fmt.Errorf("%s: model %q is not pulled", s.Name(), s.model)
}

func (s *OllamaTranslator) call(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Service: s.Name(), StatusCode: resp.StatusCode, Message: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
