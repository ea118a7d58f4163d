package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aixgo-dev/chatrelay/internal/observability"
	metrics "github.com/aixgo-dev/chatrelay/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProvider wraps a Provider with a trace span and Prometheus
// metrics around every call.
type InstrumentedProvider struct {
	provider Provider
}

// NewInstrumentedProvider wraps a provider with automatic observability
func NewInstrumentedProvider(provider Provider) *InstrumentedProvider {
	return &InstrumentedProvider{provider: provider}
}

// Name returns the wrapped provider's name.
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Unwrap returns the wrapped provider.
func (p *InstrumentedProvider) Unwrap() Provider {
	return p.provider
}

// CreateCompletion creates a completion with automatic instrumentation
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("llm.%s.completion", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
			attribute.Float64("llm.temperature", request.Temperature),
			attribute.Int("llm.max_tokens", request.MaxTokens),
			attribute.Int("llm.messages_count", len(request.Messages)),
		),
	)
	defer span.End()

	startTime := time.Now()
	response, err := p.provider.CreateCompletion(ctx, request)
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordGeneration(p.provider.Name(), err, duration, 0, 0)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", response.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", response.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", response.Usage.TotalTokens),
		attribute.String("llm.finish_reason", response.FinishReason),
	)
	metrics.RecordGeneration(p.provider.Name(), nil, duration, response.Usage.PromptTokens, response.Usage.CompletionTokens)

	return response, nil
}
