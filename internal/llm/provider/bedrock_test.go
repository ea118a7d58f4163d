package provider

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockProvider_CreateCompletion(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "hello"}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(5),
			OutputTokens: aws.Int32(1),
			TotalTokens:  aws.Int32(6),
		},
	}}
	p := &BedrockProvider{client: fake}

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "earlier"},
			{Role: "user", Content: "again"},
		},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)

	in := fake.input
	assert.Equal(t, bedrockDefaultModel, aws.ToString(in.ModelId))
	assert.Len(t, in.System, 1)
	require.Len(t, in.Messages, 3)
	assert.Equal(t, types.ConversationRoleAssistant, in.Messages[1].Role)
	assert.Equal(t, int32(512), aws.ToInt32(in.InferenceConfig.MaxTokens))
}

func TestBedrockProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"throttled", &types.ThrottlingException{Message: aws.String("slow")}, ErrorCodeRateLimit},
		{"denied", &types.AccessDeniedException{Message: aws.String("no")}, ErrorCodeAuthentication},
		{"validation", &types.ValidationException{Message: aws.String("bad")}, ErrorCodeInvalidRequest},
		{"timeout", &types.ModelTimeoutException{Message: aws.String("late")}, ErrorCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &BedrockProvider{client: &fakeConverse{err: tt.err}}
			_, err := p.CreateCompletion(context.Background(), CompletionRequest{})

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestBedrockProvider_NoMessage(t *testing.T) {
	p := &BedrockProvider{client: &fakeConverse{out: &bedrockruntime.ConverseOutput{}}}

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeEmptyResponse, pe.Code)
}
