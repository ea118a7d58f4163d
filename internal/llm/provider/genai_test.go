package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestBuildGenAIContents(t *testing.T) {
	contents, system := buildGenAIContents([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "again"},
	})

	require.NotNil(t, system)
	assert.Equal(t, "be brief", system.Parts[0].Text)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "again", contents[2].Parts[0].Text)
}

func TestBuildGenAIContents_NoSystem(t *testing.T) {
	_, system := buildGenAIContents([]Message{{Role: "user", Content: "hi"}})
	assert.Nil(t, system)
}

func TestGenAIProvider_CreateCompletion(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "hel"}, {Text: "lo"}}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 2,
			TotalTokenCount:      6,
		},
	}}
	p := &GenAIProvider{name: "gemini", models: gen}

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "hi"}},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)

	assert.Equal(t, genaiDefaultModel, gen.model)
	assert.Equal(t, int32(512), gen.config.MaxOutputTokens)
	assert.InDelta(t, 0.7, float64(*gen.config.Temperature), 0.0001)
	assert.NotNil(t, gen.config.SystemInstruction)
	assert.Len(t, gen.contents, 1)
}

func TestGenAIProvider_EmptyCandidates(t *testing.T) {
	p := &GenAIProvider{name: "gemini", models: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeEmptyResponse, pe.Code)
}

func TestGenAIProvider_SafetyBlock(t *testing.T) {
	p := &GenAIProvider{name: "vertexai", models: &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}}}

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeContentFiltered, pe.Code)
}

func TestGenAIProvider_Error(t *testing.T) {
	p := &GenAIProvider{name: "gemini", models: &fakeGenerator{err: errors.New("Error 503, Service Unavailable")}}

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "gemini", pe.Provider)
	assert.Equal(t, ErrorCodeServerError, pe.Code)
	assert.True(t, pe.IsRetryable)
}
