// Package orchestration turns a conversation transcript into a single
// generated reply, shielding callers from generation failures.
package orchestration

import (
	"context"
	"strings"
	"time"

	"github.com/aixgo-dev/chatrelay/internal/llm/provider"
	"github.com/aixgo-dev/chatrelay/internal/observability"
	"github.com/aixgo-dev/chatrelay/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultSystemPrompt is prepended to every prompt.
	DefaultSystemPrompt = "You are a helpful AI assistant. Provide clear, concise, and friendly responses."
	// DefaultContextWindow bounds how many history entries are sent.
	DefaultContextWindow = 10
	// DefaultMaxTokens caps the reply length.
	DefaultMaxTokens = 512
	// DefaultTemperature is the sampling temperature.
	DefaultTemperature = 0.7
	// DefaultModel is the model requested when none is configured.
	DefaultModel = "@cf/meta/llama-3.1-8b-instruct"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 60 * time.Second

	// FallbackUnavailable replaces the reply when generation fails.
	FallbackUnavailable = "I'm experiencing technical difficulties. Please try again in a moment."
	// FallbackEmpty replaces a reply that carried no text.
	FallbackEmpty = "I'm sorry, I couldn't generate a response."
)

// Generator produces a reply for a conversation. Implementations never fail;
// faults are mapped to fallback text.
type Generator interface {
	Generate(ctx context.Context, history []session.Message, latestUserText string) string
}

// Config holds the fixed generation parameters.
type Config struct {
	Model         string        `yaml:"model"`
	SystemPrompt  string        `yaml:"system_prompt"`
	ContextWindow int           `yaml:"context_window"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the stock generation parameters.
func DefaultConfig() Config {
	return Config{
		Model:         DefaultModel,
		SystemPrompt:  DefaultSystemPrompt,
		ContextWindow: DefaultContextWindow,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		Timeout:       DefaultTimeout,
	}
}

// ChatOrchestrator builds bounded prompts and calls a provider.
type ChatOrchestrator struct {
	provider provider.Provider
	cfg      Config
	logger   zerolog.Logger
}

// NewChatOrchestrator creates an orchestrator. Zero fields in cfg take
// their defaults, except Temperature, which is used as given.
func NewChatOrchestrator(p provider.Provider, cfg Config, logger zerolog.Logger) *ChatOrchestrator {
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = def.ContextWindow
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &ChatOrchestrator{
		provider: p,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Config returns the effective configuration.
func (o *ChatOrchestrator) Config() Config { return o.cfg }

// Generate returns the reply text, or a fallback on any failure.
func (o *ChatOrchestrator) Generate(ctx context.Context, history []session.Message, latestUserText string) string {
	text, _ := o.Reply(ctx, history, latestUserText)
	return text
}

// Reply is Generate that also reports whether a fallback was substituted.
func (o *ChatOrchestrator) Reply(ctx context.Context, history []session.Message, latestUserText string) (string, bool) {
	msgs := o.BuildPrompt(history, latestUserText)

	ctx, span := observability.StartSpan(ctx, "chat.generate",
		trace.WithAttributes(
			attribute.Int("chat.prompt_messages", len(msgs)),
			attribute.Int("chat.history_len", len(history)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Messages:    msgs,
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		o.logger.Error().Err(err).Str("provider", o.provider.Name()).Msg("generation failed")
		span.SetAttributes(attribute.String("chat.fallback", "unavailable"))
		return FallbackUnavailable, true
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		o.logger.Warn().Str("provider", o.provider.Name()).Msg("generation returned no text")
		span.SetAttributes(attribute.String("chat.fallback", "empty"))
		return FallbackEmpty, true
	}

	return resp.Content, false
}

// BuildPrompt assembles system prompt, the newest ContextWindow history
// entries and the latest user text. A trailing history entry identical to
// the latest user message is not sent twice.
func (o *ChatOrchestrator) BuildPrompt(history []session.Message, latestUserText string) []provider.Message {
	latest := session.UserMessage(latestUserText)
	if n := len(history); n > 0 && history[n-1] == latest {
		history = history[:n-1]
	}
	if len(history) > o.cfg.ContextWindow {
		history = history[len(history)-o.cfg.ContextWindow:]
	}

	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: string(session.RoleSystem), Content: o.cfg.SystemPrompt})
	for _, m := range history {
		msgs = append(msgs, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, provider.Message{Role: string(session.RoleUser), Content: latestUserText})
	return msgs
}
