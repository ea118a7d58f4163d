package provider

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	genaiDefaultModel   = "gemini-2.0-flash"
	genaiClientTimeout  = 30 * time.Second
	vertexDefaultRegion = "us-central1"
)

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Provider, error) {
		apiKey := stringOpt(config, "api_key")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}
		return NewGeminiProvider(apiKey)
	})

	RegisterFactory("vertexai", func(config map[string]any) (Provider, error) {
		projectID := stringOpt(config, "project_id")
		if projectID == "" {
			projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if projectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT not set")
		}

		location := stringOpt(config, "location")
		if location == "" {
			location = os.Getenv("VERTEX_AI_LOCATION")
		}
		if location == "" {
			location = vertexDefaultRegion
		}

		return NewVertexAIProvider(projectID, location)
	})
}

// contentGenerator is satisfied by genai.Client.Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIProvider implements Provider on the Google Gen AI SDK, against either
// the Gemini API or Vertex AI.
type GenAIProvider struct {
	name   string
	models contentGenerator
}

// NewGeminiProvider creates a provider for the Gemini Developer API.
func NewGeminiProvider(apiKey string) (*GenAIProvider, error) {
	return newGenAIProvider("gemini", &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewVertexAIProvider creates a provider for Vertex AI.
// It uses Application Default Credentials (ADC) for authentication.
func NewVertexAIProvider(projectID, location string) (*GenAIProvider, error) {
	return newGenAIProvider("vertexai", &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
}

func newGenAIProvider(name string, cfg *genai.ClientConfig) (*GenAIProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), genaiClientTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", name, err)
	}

	return &GenAIProvider{name: name, models: client.Models}, nil
}

// Name returns the provider name
func (p *GenAIProvider) Name() string {
	return p.name
}

// CreateCompletion generates content with the configured backend.
func (p *GenAIProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = genaiDefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents, systemInstruction := buildGenAIContents(req.Messages)
	if systemInstruction != nil {
		config.SystemInstruction = systemInstruction
	}

	resp, err := p.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(p.name, err)
	}

	return p.parseResponse(resp)
}

// buildGenAIContents converts messages to Gen AI contents. System messages
// become the system instruction and "assistant" is renamed to "model".
func buildGenAIContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var systemParts []*genai.Part
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, &genai.Part{Text: m.Content})
			continue
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	if len(systemParts) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: systemParts}
}

func (p *GenAIProvider) parseResponse(resp *genai.GenerateContentResponse) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError(p.name, ErrorCodeEmptyResponse, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}

	finishReason := strings.ToLower(string(candidate.FinishReason))
	if finishReason == "" {
		finishReason = "stop"
	}
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, NewProviderError(p.name, ErrorCodeContentFiltered, "response blocked by safety filters", nil)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &CompletionResponse{
		Content:      sb.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}
