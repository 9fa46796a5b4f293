package translator

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingAPIKey = errors.New("API key not configured")
	ErrEmptyResponse = errors.New("empty response from backend")
)

// ServiceConfig holds the settings of one backend. Fields a backend does not
// use are ignored.
type ServiceConfig struct {
	APIKey  string        `mapstructure:"api_key" json:"api_key"`
	Model   string        `mapstructure:"model" json:"model"`
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`

	// Google only.
	Credentials string `mapstructure:"credentials" json:"credentials"`
	ProjectID   string `mapstructure:"project_id" json:"project_id"`
}

// TranslateRequest is one fragment sent to a backend.
type TranslateRequest struct {
	Text         string `json:"text"`
	TargetLang   string `json:"target_lang"`
	Instructions string `json:"instructions"`
}

// ServiceResult is the outcome of one backend call. TranslatedText has
// already been through postprocess.Clean.
type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

func (r *ServiceResult) fail(err error) (*ServiceResult, error) {
	r.Error = err.Error()
	return r, err
}

//go:generate mockgen -source=types.go -destination=../mocks/translator/mock_service.go -package=mock_translator TranslationService

// TranslationService is a text-generation backend. Translate performs a
// single request; retries and fallback belong to the caller.
type TranslationService interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
}

const defaultTimeout = 120 * time.Second

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
