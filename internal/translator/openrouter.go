package translator

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/valpere/cvtran/internal/postprocess"
)

const (
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemini-2.5-flash"
)

type OpenRouterService struct {
	apiKey string
	model  string
	client *resty.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func NewOpenRouterService(cfg ServiceConfig) *OpenRouterService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenRouterModel
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeoutOrDefault(cfg.Timeout))
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("HTTP-Referer", "https://cvtran.local")
	client.SetHeader("X-Title", "cvtran")

	return &OpenRouterService{
		apiKey: cfg.APIKey,
		model:  model,
		client: client,
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Close() error {
	return s.client.Close()
}

func (s *OpenRouterService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.apiKey == "" {
		return result.fail(fmt.Errorf("%s: %w", s.Name(), ErrMissingAPIKey))
	}

	body := chatCompletionRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.Text},
		},
		MaxTokens: 4096,
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&chatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		return result.fail(fmt.Errorf("openrouter request: %w", err))
	}
	if response.IsError() {
		return result.fail(&APIError{Service: s.Name(), StatusCode: response.StatusCode(), Message: response.String()})
	}

	completion := response.Result().(*chatCompletionResponse)
	if len(completion.Choices) == 0 {
		return result.fail(fmt.Errorf("%s: %w", s.Name(), ErrEmptyResponse))
	}

	result.TranslatedText = postprocess.Clean(completion.Choices[0].Message.Content)
	result.Metadata = map[string]string{
		"model":             completion.Model,
		"prompt_tokens":     fmt.Sprintf("%d", completion.Usage.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", completion.Usage.CompletionTokens),
	}
	return result, nil
}

func (s *OpenRouterService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("%s: %w", s.Name(), ErrMissingAPIKey)
	}
	return nil
}
