package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "gpt-4o-mini"

func init() {
	RegisterFactory("openai", func(config map[string]any) (Provider, error) {
		apiKey := stringOpt(config, "api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		return NewOpenAIProvider(apiKey, stringOpt(config, "base_url")), nil
	})
}

// chatCompletionClient is the subset of the go-openai client we call.
type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs.
type OpenAIProvider struct {
	client chatCompletionClient
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL selects
// the public OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// CreateCompletion creates a chat completion
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = openaiDefaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.Name(), codeForStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
		pe.StatusCode = apiErr.HTTPStatusCode
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := NewProviderError(p.Name(), codeForStatus(reqErr.HTTPStatusCode), err.Error(), err)
		pe.StatusCode = reqErr.HTTPStatusCode
		return pe
	}

	return wrapError(p.Name(), err)
}
