// Package config loads the relay's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/aixgo-dev/chatrelay/internal/observability"
	"github.com/aixgo-dev/chatrelay/internal/orchestration"
	"github.com/aixgo-dev/chatrelay/pkg/relay"
	"github.com/aixgo-dev/chatrelay/pkg/security"
	"github.com/aixgo-dev/chatrelay/pkg/session"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath overrides the default config file location.
	EnvConfigPath = "CHATRELAY_CONFIG"
	// DefaultPath is read when no path is given.
	DefaultPath = "config/chatrelay.yaml"

	maxConfigSize = 1 << 20 // 1MB
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Log           LogConfig            `yaml:"log"`
	Session       session.Config       `yaml:"session"`
	Relay         RelayConfig          `yaml:"relay"`
	LLM           LLMConfig            `yaml:"llm"`
	Observability observability.Config `yaml:"observability"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json, auto
}

// RelayConfig holds session actor behaviour
type RelayConfig struct {
	ContextWindow        int                      `yaml:"context_window"`
	GenerationTimeout    time.Duration            `yaml:"generation_timeout"`
	BroadcastReplies     bool                     `yaml:"broadcast_replies"`
	AllowSessionOverride bool                     `yaml:"allow_session_override"`
	SweepSchedule        string                   `yaml:"sweep_schedule"`
	RateLimit            security.RateLimitConfig `yaml:"rate_limit"`
}

// LLMConfig selects and configures the generation provider
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // openai, gemini, vertexai, bedrock, mock
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`

	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
	Region    string `yaml:"region"`
	// Reply is the canned answer of the mock provider.
	Reply string `yaml:"reply"`
}

// Orchestration returns the generation parameters for the orchestrator.
func (c *Config) Orchestration() orchestration.Config {
	return orchestration.Config{
		Model:         c.LLM.Model,
		SystemPrompt:  c.LLM.SystemPrompt,
		ContextWindow: c.Relay.ContextWindow,
		MaxTokens:     c.LLM.MaxTokens,
		Temperature:   c.LLM.Temperature,
		Timeout:       c.Relay.GenerationTimeout,
	}
}

// ProviderOptions returns the loosely typed options handed to a provider factory.
func (l LLMConfig) ProviderOptions() map[string]any {
	opts := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			opts[k] = v
		}
	}
	set("api_key", l.APIKey)
	set("base_url", l.BaseURL)
	set("project_id", l.ProjectID)
	set("location", l.Location)
	set("region", l.Region)
	set("reply", l.Reply)
	return opts
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Session: session.DefaultConfig(),
		Relay: RelayConfig{
			ContextWindow:     orchestration.DefaultContextWindow,
			GenerationTimeout: orchestration.DefaultTimeout,
			SweepSchedule:     relay.DefaultSweepSchedule,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        orchestration.DefaultModel,
			MaxTokens:    orchestration.DefaultMaxTokens,
			Temperature:  orchestration.DefaultTemperature,
			SystemPrompt: orchestration.DefaultSystemPrompt,
		},
		Observability: observability.Config{
			ServiceName: observability.DefaultServiceName,
			Exporter:    "none",
		},
	}
}

// ResolvePath picks the config file: an explicit path, then
// $CHATRELAY_CONFIG, then DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// LoadConfig loads configuration from a YAML file. Values the file leaves
// unset keep their defaults. A missing file at the default location yields
// the defaults; a missing explicit path is an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	path = ResolvePath(path)

	cfg := Default()

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.applyEnv()
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	case info.Size() > maxConfigSize:
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse expands ${VAR} references in data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Bare $VAR is left alone so literal dollar signs survive.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		parts := envRef.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}

// applyEnv fills API keys from the environment when the file leaves them empty
func (c *Config) applyEnv() {
	if c.LLM.APIKey != "" {
		return
	}
	switch c.LLM.Provider {
	case "openai":
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		c.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
}

var validProviders = map[string]bool{
	"openai": true, "gemini": true, "vertexai": true, "bedrock": true, "mock": true,
}

var validStores = map[string]bool{
	"": true, "file": true, "memory": true, "redis": true, "firestore": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Log.Format != "" && c.Log.Format != "auto" && c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console, json or auto, got %q", c.Log.Format))
	}

	if c.Session.Name == "" {
		errs = append(errs, errors.New("session.name is required"))
	}
	if !validStores[c.Session.Store] {
		errs = append(errs, fmt.Errorf("session.store %q is not supported", c.Session.Store))
	}
	if c.Session.MaxHistory < 0 {
		errs = append(errs, errors.New("session.max_history must not be negative"))
	}
	if c.Session.Store == "redis" && c.Session.Redis.Addr == "" {
		errs = append(errs, errors.New("session.redis.addr is required for the redis store"))
	}
	if c.Session.Store == "firestore" && c.Session.Firestore.ProjectID == "" {
		errs = append(errs, errors.New("session.firestore.project_id is required for the firestore store"))
	}

	if c.Relay.ContextWindow < 0 {
		errs = append(errs, errors.New("relay.context_window must not be negative"))
	}
	if c.Relay.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("relay.rate_limit.requests_per_second must not be negative"))
	}

	if !validProviders[c.LLM.Provider] {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens must not be negative"))
	}

	switch c.Observability.Exporter {
	case "", "none", "otlp", "stdout":
	default:
		errs = append(errs, fmt.Errorf("observability.exporter %q is not supported", c.Observability.Exporter))
	}

	return errors.Join(errs...)
}
