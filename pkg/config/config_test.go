package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	path := writeConfig(t, "backend:\n  provider: openai\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Backend.APIKey, "api key should come from env")
	assert.Equal(t, 10, cfg.Chat.Window)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, "file", cfg.Store.Type)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
backend:
  provider: gemini
  timeout: 30s
store:
  type: redis
  redis_addr: localhost:6379
  redis_ttl: 24h
janitor:
  enabled: true
  schedule: "@daily"
  max_age: 72h
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, 24*time.Hour, cfg.Store.RedisTTL.Std())
	assert.Equal(t, 72*time.Hour, cfg.Janitor.MaxAge.Std())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "backend:\n  provider: telepathy\n"},
		{"unknown store", "store:\n  type: tape\n"},
		{"redis without addr", "store:\n  type: redis\n"},
		{"bad duration", "backend:\n  timeout: soon\n"},
		{"negative window", "chat:\n  window: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	require.NoError(t, Default().Validate())
}
