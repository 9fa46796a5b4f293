package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/cvtran/internal/config"
	"github.com/valpere/cvtran/internal/orchestrator"
	"github.com/valpere/cvtran/internal/resilience"
	"github.com/valpere/cvtran/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Backends: config.BackendsConfig{Primary: "ollama"},
		Pipeline: orchestrator.DefaultConfig(),
		Retry:    resilience.DefaultPolicy(),
		Cache:    store.Config{Driver: "file", Directory: t.TempDir(), Retention: time.Hour},
		Log:      config.LogConfig{Level: "info", Format: "text"},
	}
}

func TestNewService(t *testing.T) {
	backends := config.BackendsConfig{}
	backends.OpenRouter.APIKey = "or-key"
	backends.OpenAI.APIKey = "sk-key"

	tests := []struct {
		name    string
		backend string
		want    string
		wantErr bool
	}{
		{"openrouter", "openrouter", "openrouter", false},
		{"openai", "openai", "openai", false},
		{"ollama", "ollama", "ollama", false},
		{"google", "google", "google", false},
		{"unknown", "babelfish", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.backend, backends)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, svc.Name())
		})
	}
}

func TestNewService_MissingKey(t *testing.T) {
	_, err := NewService("openai", config.BackendsConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backends.Fallback = "google"

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	assert.Equal(t, "ollama", c.Primary.Name())
	require.NotNil(t, c.Fallback)
	assert.Equal(t, "google", c.Fallback.Name())
	assert.NotNil(t, c.Pipeline)

	stats, err := c.Cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTranslations)
}

func TestNew_SQLiteCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Driver = "sqlite"
	cfg.Cache.DSN = filepath.Join(t.TempDir(), "cache.db")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestNew_BadPrimary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backends.Primary = "openai"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary backend")
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupLogging(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}
