package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/valpere/cvtran/internal/postprocess"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIService calls the OpenAI Responses API. SDK-level retries are
// disabled; the resilience controller owns retry policy.
type OpenAIService struct {
	apiKey string
	model  string
	client *openai.Client
}

func NewOpenAIService(cfg ServiceConfig) *OpenAIService {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeoutOrDefault(cfg.Timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIService{
		apiKey: cfg.APIKey,
		model:  model,
		client: &client,
	}
}

func (s *OpenAIService) Name() string {
	return "openai"
}

func (s *OpenAIService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.apiKey == "" {
		return result.fail(fmt.Errorf("%s: %w", s.Name(), ErrMissingAPIKey))
	}

	params := responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(4096),
		Instructions:    openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Text, responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := s.client.Responses.New(ctx, params)
	if err != nil {
		return result.fail(fmt.Errorf("openai request: %w", err))
	}

	text := resp.OutputText()
	if text == "" {
		return result.fail(fmt.Errorf("%s: %w", s.Name(), ErrEmptyResponse))
	}

	result.TranslatedText = postprocess.Clean(text)
	result.Metadata = map[string]string{
		"model":         string(resp.Model),
		"input_tokens":  fmt.Sprintf("%d", resp.Usage.InputTokens),
		"output_tokens": fmt.Sprintf("%d", resp.Usage.OutputTokens),
	}
	return result, nil
}

func (s *OpenAIService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("%s: %w", s.Name(), ErrMissingAPIKey)
	}
	return nil
}
