package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, path string) (*Config, error) {
	t.Helper()
	loader, err := NewConfigLoader(path)
	require.NoError(t, err)
	return loader.Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, "openrouter", cfg.Backends.Primary)
	assert.Empty(t, cfg.Backends.Fallback)
	assert.Equal(t, 800, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 3, cfg.Pipeline.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.FragmentDelay)
	assert.Equal(t, 120*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, uint(5), cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, uint(2), cfg.Retry.FallbackAfter)
	assert.Equal(t, "file", cfg.Cache.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.Retention)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name              string
		configContent     string
		env               map[string]string
		wantErrorContains []string
		check             func(t *testing.T, cfg *Config)
	}{
		{
			name: "custom values",
			configContent: `server:
  port: 9090
backends:
  primary: ollama
  fallback: openai
  ollama:
    model: aya:35b
pipeline:
  chunk_size: 400
  fragment_delay: 50ms
retry:
  max_attempts: 3
  base_delay: 1s
cache:
  driver: sqlite
  directory: /tmp/cvtran
redaction:
  paths: [profile.picture]
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "ollama", cfg.Backends.Primary)
				assert.Equal(t, "openai", cfg.Backends.Fallback)
				assert.Equal(t, "aya:35b", cfg.Backends.Ollama.Model)
				assert.Equal(t, 400, cfg.Pipeline.ChunkSize)
				assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.FragmentDelay)
				assert.Equal(t, uint(3), cfg.Retry.MaxAttempts)
				assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
				assert.Equal(t, "sqlite", cfg.Cache.Driver)
				assert.Equal(t, []string{"profile.picture"}, cfg.Redaction.Paths)
			},
		},
		{
			name:          "secrets from environment",
			configContent: "backends:\n  primary: openai\n",
			env: map[string]string{
				"OPENAI_API_KEY":   "sk-test",
				"CVTRAN_CACHE_DSN": "postgres://localhost/cvtran",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "sk-test", cfg.Backends.OpenAI.APIKey)
				assert.Equal(t, "postgres://localhost/cvtran", cfg.Cache.DSN)
			},
		},
		{
			name:              "unknown backend",
			configContent:     "backends:\n  primary: babelfish\n",
			wantErrorContains: []string{"invalid configuration", "primary"},
		},
		{
			name:              "fallback equal to primary",
			configContent:     "backends:\n  primary: openai\n  fallback: openai\n",
			wantErrorContains: []string{"fallback"},
		},
		{
			name:              "zero attempts",
			configContent:     "retry:\n  max_attempts: 0\n",
			wantErrorContains: []string{"max_attempts"},
		},
		{
			name:              "unknown cache driver",
			configContent:     "cache:\n  driver: redis\n",
			wantErrorContains: []string{"driver"},
		},
		{
			name:              "invalid YAML",
			configContent:     "server: [port\n",
			wantErrorContains: []string{"could not be read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := load(t, writeConfig(t, tt.configContent))
			if len(tt.wantErrorContains) > 0 {
				require.Error(t, err)
				for _, want := range tt.wantErrorContains {
					assert.Contains(t, err.Error(), want)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := load(t, filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestBackendsConfig_Service(t *testing.T) {
	b := BackendsConfig{}
	b.Ollama.Model = "qwen3:14b"

	svc, ok := b.Service("ollama")
	require.True(t, ok)
	assert.Equal(t, "qwen3:14b", svc.Model)

	_, ok = b.Service("babelfish")
	assert.False(t, ok)
}
