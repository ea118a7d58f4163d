package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const bedrockDefaultModel = "meta.llama3-1-8b-instruct-v1:0"

func init() {
	RegisterFactory("bedrock", func(config map[string]any) (Provider, error) {
		region := stringOpt(config, "region")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			return nil, fmt.Errorf("AWS_REGION not set")
		}
		return NewBedrockProvider(context.Background(), region)
	})
}

// converseAPI is the subset of the Bedrock runtime client we call.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider with the Bedrock Converse API.
type BedrockProvider struct {
	client converseAPI
}

// NewBedrockProvider loads the default AWS credential chain for region.
func NewBedrockProvider(ctx context.Context, region string) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// Name returns the provider name
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// CreateCompletion sends the conversation through Converse.
func (p *BedrockProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = bedrockDefaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(float32(req.Temperature))},
	}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	for _, m := range req.Messages {
		text := &types.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case "system":
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{text},
			})
		default:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{text},
			})
		}
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, p.wrapError(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "converse output carried no message", nil)
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}

	resp := &CompletionResponse{
		Content:      sb.String(),
		FinishReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func (p *BedrockProvider) wrapError(err error) error {
	var (
		throttled   *types.ThrottlingException
		denied      *types.AccessDeniedException
		notFound    *types.ResourceNotFoundException
		invalid     *types.ValidationException
		timeout     *types.ModelTimeoutException
		unavailable *types.ServiceUnavailableException
		internal    *types.InternalServerException
	)

	var code string
	switch {
	case errors.As(err, &throttled):
		code = ErrorCodeRateLimit
	case errors.As(err, &denied):
		code = ErrorCodeAuthentication
	case errors.As(err, &notFound):
		code = ErrorCodeModelNotFound
	case errors.As(err, &invalid):
		code = ErrorCodeInvalidRequest
	case errors.As(err, &timeout):
		code = ErrorCodeTimeout
	case errors.As(err, &unavailable), errors.As(err, &internal):
		code = ErrorCodeServerError
	default:
		code = classifyError(err)
	}
	return NewProviderError(p.Name(), code, err.Error(), err)
}
