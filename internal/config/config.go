package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/cvtran/internal/orchestrator"
	"github.com/valpere/cvtran/internal/resilience"
	"github.com/valpere/cvtran/internal/store"
	"github.com/valpere/cvtran/internal/translator"
)

type Config struct {
	Server    ServerConfig                    `mapstructure:"server"`
	Backends  BackendsConfig                  `mapstructure:"backends"`
	Pipeline  orchestrator.OrchestratorConfig `mapstructure:"pipeline"`
	Retry     resilience.Policy               `mapstructure:"retry"`
	Cache     store.Config                    `mapstructure:"cache"`
	Redaction RedactionConfig                 `mapstructure:"redaction"`
	Log       LogConfig                       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	CORS            CORSConfig    `mapstructure:"cors"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BackendsConfig names the primary and optional fallback backend and holds
// the settings of every backend that can fill either role.
type BackendsConfig struct {
	Primary    string                   `mapstructure:"primary" validate:"required,oneof=openrouter openai ollama google"`
	Fallback   string                   `mapstructure:"fallback" validate:"omitempty,oneof=openrouter openai ollama google,nefield=Primary"`
	OpenRouter translator.ServiceConfig `mapstructure:"openrouter"`
	OpenAI     translator.ServiceConfig `mapstructure:"openai"`
	Ollama     translator.ServiceConfig `mapstructure:"ollama"`
	Google     translator.ServiceConfig `mapstructure:"google"`
}

// Service returns the settings of the named backend.
func (b BackendsConfig) Service(name string) (translator.ServiceConfig, bool) {
	switch name {
	case "openrouter":
		return b.OpenRouter, true
	case "openai":
		return b.OpenAI, true
	case "ollama":
		return b.Ollama, true
	case "google":
		return b.Google, true
	}
	return translator.ServiceConfig{}, false
}

type RedactionConfig struct {
	Paths []string `mapstructure:"paths"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cvtran")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cvtran")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := loader.viper
	setDefaults(v)

	envBindings := []struct{ key, env string }{
		{"backends.openrouter.api_key", "OPENROUTER_API_KEY"},
		{"backends.openai.api_key", "OPENAI_API_KEY"},
		{"backends.ollama.base_url", "OLLAMA_BASE_URL"},
		{"backends.google.credentials", "GOOGLE_APPLICATION_CREDENTIALS"},
		{"backends.google.project_id", "GOOGLE_CLOUD_PROJECT"},
		{"cache.dsn", "CVTRAN_CACHE_DSN"},
		{"server.port", "PORT"},
		{"server.cors.allowed_origins", "CVTRAN_ALLOWED_ORIGINS"},
		{"backends.primary", "CVTRAN_PRIMARY_BACKEND"},
		{"backends.fallback", "CVTRAN_FALLBACK_BACKEND"},
		{"log.level", "CVTRAN_LOG_LEVEL"},
		{"pipeline.validate_language", "CVTRAN_VALIDATE_LANGUAGE"},
		{"backends.openrouter.model", "OPENROUTER_MODEL"},
		{"backends.openai.model", "OPENAI_MODEL"},
		{"backends.ollama.model", "OLLAMA_MODEL"},
		{"cache.driver", "CVTRAN_CACHE_DRIVER"},
		{"cache.directory", "CVTRAN_CACHE_DIR"},
		{"redaction.paths", "CVTRAN_REDACTION_PATHS"},
		{"pipeline.timeout", "CVTRAN_TIMEOUT"},
		{"retry.max_attempts", "CVTRAN_RETRY_MAX_ATTEMPTS"},
	}
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", b.env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	pipeline := orchestrator.DefaultConfig()
	retry := resilience.DefaultPolicy()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("backends.primary", "openrouter")
	v.SetDefault("backends.fallback", "")
	v.SetDefault("backends.openrouter.model", "google/gemini-2.5-flash")
	v.SetDefault("backends.openrouter.timeout", pipeline.Timeout)
	v.SetDefault("backends.openai.model", "gpt-4o-mini")
	v.SetDefault("backends.openai.timeout", pipeline.Timeout)
	v.SetDefault("backends.ollama.base_url", "http://localhost:11434")
	v.SetDefault("backends.ollama.model", "qwen3:14b")
	v.SetDefault("backends.ollama.timeout", pipeline.Timeout)

	v.SetDefault("pipeline.chunk_size", pipeline.ChunkSize)
	v.SetDefault("pipeline.batch_size", pipeline.BatchSize)
	v.SetDefault("pipeline.fragment_delay", pipeline.FragmentDelay)
	v.SetDefault("pipeline.timeout", pipeline.Timeout)
	v.SetDefault("pipeline.validate_language", false)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.fallback_after", retry.FallbackAfter)

	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.directory", "translation-cache")
	v.SetDefault("cache.retention", store.DefaultRetention)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
