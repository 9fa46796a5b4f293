// Package app assembles the pipeline from configuration.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/valpere/cvtran/internal/config"
	"github.com/valpere/cvtran/internal/langcheck"
	"github.com/valpere/cvtran/internal/metrics"
	"github.com/valpere/cvtran/internal/orchestrator"
	"github.com/valpere/cvtran/internal/redact"
	"github.com/valpere/cvtran/internal/resilience"
	"github.com/valpere/cvtran/internal/store"
	"github.com/valpere/cvtran/internal/translator"
)

// Components holds everything a command or handler needs to serve
// translations.
type Components struct {
	Primary  translator.TranslationService
	Fallback translator.TranslationService
	Cache    store.Cache
	Registry *prometheus.Registry
	Pipeline *orchestrator.Orchestrator
}

// New builds the backends, opens the cache and wires the orchestrator.
func New(cfg *config.Config) (*Components, error) {
	primary, err := NewService(cfg.Backends.Primary, cfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("primary backend: %w", err)
	}
	var fallback translator.TranslationService
	if cfg.Backends.Fallback != "" {
		if fallback, err = NewService(cfg.Backends.Fallback, cfg.Backends); err != nil {
			return nil, fmt.Errorf("fallback backend: %w", err)
		}
	}

	cache, err := store.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	controller := resilience.NewController(cfg.Retry, primary, fallback, m)
	opts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	if cfg.Pipeline.ValidateLanguage {
		opts = append(opts, orchestrator.WithLanguageCheck(langcheck.New()))
	}
	pipeline := orchestrator.New(controller, cache, redact.New(cfg.Redaction.Paths), cfg.Pipeline, opts...)

	slog.Info("Pipeline ready",
		"primary", primary.Name(),
		"fallback", cfg.Backends.Fallback,
		"cache", cfg.Cache.Driver,
		"chunkSize", cfg.Pipeline.ChunkSize)

	return &Components{
		Primary:  primary,
		Fallback: fallback,
		Cache:    cache,
		Registry: reg,
		Pipeline: pipeline,
	}, nil
}

// Close releases the cache and any backend holding connections.
func (c *Components) Close() error {
	var errs []error
	for _, svc := range []translator.TranslationService{c.Primary, c.Fallback} {
		if closer, ok := svc.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	return errors.Join(errs...)
}

// NewService constructs the backend called name.
func NewService(name string, backends config.BackendsConfig) (translator.TranslationService, error) {
	svcCfg, ok := backends.Service(name)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	switch name {
	case "openrouter":
		if svcCfg.APIKey == "" {
			return nil, errors.New("openrouter requires OPENROUTER_API_KEY")
		}
		return translator.NewOpenRouterService(svcCfg), nil
	case "openai":
		if svcCfg.APIKey == "" {
			return nil, errors.New("openai requires OPENAI_API_KEY")
		}
		return translator.NewOpenAIService(svcCfg), nil
	case "ollama":
		return translator.NewOllamaTranslator(svcCfg), nil
	case "google":
		return translator.NewGoogleService(svcCfg), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

// SetupLogging installs the default slog logger described by cfg.
func SetupLogging(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
