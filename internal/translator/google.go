package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/cvtran/internal/jsonlex"
)

// googleBatchSize is the number of strings sent per Translation API call.
const googleBatchSize = 100

// GoogleService uses Cloud Translation. It is not a generative model, so it
// never sees JSON syntax: the string values of a fragment are extracted,
// translated as a batch and written back in place. Keys and structure are
// untouched, which makes it a safe fallback.
type GoogleService struct {
	opts      []option.ClientOption
	translate func(ctx context.Context, texts []string, target language.Tag) ([]string, error)
}

func NewGoogleService(cfg ServiceConfig) *GoogleService {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	s := &GoogleService{opts: opts}
	s.translate = s.cloudTranslate
	return s
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	target, err := language.Parse(req.TargetLang)
	if err != nil {
		return result.fail(fmt.Errorf("invalid target language: %w", err))
	}

	spans, texts := translatableValues(req.Text)
	if len(texts) == 0 {
		result.TranslatedText = req.Text
		return result, nil
	}

	var translated []string
	for i := 0; i < len(texts); i += googleBatchSize {
		end := min(i+googleBatchSize, len(texts))
		out, err := s.translate(ctx, texts[i:end], target)
		if err != nil {
			return result.fail(fmt.Errorf("google translate: %w", err))
		}
		if len(out) != end-i {
			return result.fail(fmt.Errorf("google translate: got %d translations for %d texts", len(out), end-i))
		}
		translated = append(translated, out...)
	}

	text, err := replaceValues(req.Text, spans, translated)
	if err != nil {
		return result.fail(err)
	}
	result.TranslatedText = text
	result.Metadata = map[string]string{"values": fmt.Sprintf("%d", len(texts))}
	return result, nil
}

func (s *GoogleService) IsAvailable(ctx context.Context) error {
	return nil
}

func (s *GoogleService) cloudTranslate(ctx context.Context, texts []string, target language.Tag) ([]string, error) {
	client, err := translate.NewClient(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	translations, err := client.Translate(ctx, texts, target, &translate.Options{Format: translate.Text})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(translations))
	for i, t := range translations {
		out[i] = t.Text
	}
	return out, nil
}

// translatableValues returns the spans of string values (not keys) in text
// that hold human-readable content, together with their decoded contents.
func translatableValues(text string) ([]jsonlex.Span, []string) {
	var (
		spans []jsonlex.Span
		texts []string
	)
	for _, sp := range jsonlex.Strings(text) {
		if sp.Key {
			continue
		}
		var value string
		if err := json.Unmarshal([]byte(text[sp.Start:sp.End]), &value); err != nil {
			continue
		}
		if strings.TrimSpace(value) == "" || looksOpaque(value) {
			continue
		}
		spans = append(spans, sp)
		texts = append(texts, value)
	}
	return spans, texts
}

func looksOpaque(value string) bool {
	v := strings.ToLower(value)
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") ||
		strings.HasPrefix(v, "data:") || strings.HasPrefix(v, "mailto:") ||
		(strings.Contains(v, "@") && !strings.Contains(v, " "))
}

func replaceValues(text string, spans []jsonlex.Span, values []string) (string, error) {
	var sb strings.Builder
	prev := 0
	for i, sp := range spans {
		sb.WriteString(text[prev:sp.Start])
		lit, err := encodeString(values[i])
		if err != nil {
			return "", err
		}
		sb.WriteString(lit)
		prev = sp.End
	}
	sb.WriteString(text[prev:])
	return sb.String(), nil
}

func encodeString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
