package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a large file (> 1MB)
	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	err := os.WriteFile(largeFile, []byte(data), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(largeFile)
	if err == nil {
		t.Fatal("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
server:
  port: 9090
session:
  name: support
  store: redis
  max_history: 40
  redis:
    addr: localhost:6379
    ttl: 24h
relay:
  generation_timeout: 5s
  broadcast_replies: true
  rate_limit:
    requests_per_second: 2
    burst: 4
llm:
  provider: mock
  reply: pong
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "support", cfg.Session.Name)
	assert.Equal(t, "conversationHistory", cfg.Session.HistoryKey)
	assert.Equal(t, 40, cfg.Session.MaxHistory)
	assert.Equal(t, 24*time.Hour, cfg.Session.Redis.TTL)
	assert.Equal(t, 10, cfg.Relay.ContextWindow)
	assert.Equal(t, 5*time.Second, cfg.Relay.GenerationTimeout)
	assert.True(t, cfg.Relay.BroadcastReplies)
	assert.True(t, cfg.Relay.RateLimit.Enabled())
	assert.Equal(t, 4, cfg.Relay.RateLimit.Burst)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.Equal(t, map[string]any{"reply": "pong"}, cfg.LLM.ProviderOptions())
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvConfigPath, "")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default().Session, cfg.Session)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_EnvPath(t *testing.T) {
	path := writeConfig(t, "session:\n  name: from-env\n")
	t.Setenv(EnvConfigPath, path)

	assert.Equal(t, path, ResolvePath(""))
	assert.Equal(t, "explicit.yaml", ResolvePath("explicit.yaml"))
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHATRELAY_TEST_KEY", "secret")
	t.Setenv("CHATRELAY_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"key: ${CHATRELAY_TEST_KEY}", "key: secret"},
		{"key: ${CHATRELAY_TEST_UNSET}", "key: "},
		{"key: ${CHATRELAY_TEST_UNSET:-fallback}", "key: fallback"},
		{"key: ${CHATRELAY_TEST_EMPTY:-fallback}", "key: fallback"},
		{"price: $5", "price: $5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnv(tt.in), tt.in)
	}
}

func TestLoadConfig_ExpandsAPIKey(t *testing.T) {
	t.Setenv("CHATRELAY_TEST_GEMINI", "g-key")
	path := writeConfig(t, "llm:\n  provider: gemini\n  api_key: ${CHATRELAY_TEST_GEMINI}\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "anthropic" }, "llm.provider"},
		{"bad store", func(c *Config) { c.Session.Store = "sqlite" }, "session.store"},
		{"redis without addr", func(c *Config) { c.Session.Store = "redis" }, "session.redis.addr"},
		{"firestore without project", func(c *Config) { c.Session.Store = "firestore" }, "project_id"},
		{"empty session name", func(c *Config) { c.Session.Name = "" }, "session.name"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"exporter", func(c *Config) { c.Observability.Exporter = "zipkin" }, "exporter"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, ":8080", Default().Server.Addr())
	assert.Equal(t, "127.0.0.1:9000", ServerConfig{Host: "127.0.0.1", Port: 9000}.Addr())
}
