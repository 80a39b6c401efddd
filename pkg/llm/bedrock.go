package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/vellum-io/vellum/pkg/kind"
)

// BedrockConverseAPI is the slice of the Bedrock runtime client the
// backend uses. Tests substitute a stub.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient invokes models through the Bedrock Converse API. The
// system prompt becomes a Converse System content block.
type BedrockClient struct {
	client BedrockConverseAPI
}

func NewBedrockClient(ctx context.Context, region string) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &BedrockClient{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// NewBedrockClientWithAPI wires an explicit Converse client.
func NewBedrockClientWithAPI(client BedrockConverseAPI) *BedrockClient {
	return &BedrockClient{client: client}
}

func (b *BedrockClient) Name() string { return BackendBedrock }

func (b *BedrockClient) Invoke(ctx context.Context, _ string, req *InvokeRequest) (*Result, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("bedrock model not configured: %w", kind.ErrConfigMissing)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		input.InferenceConfig.TopP = aws.Float32(float32(*req.TopP))
	}

	resp, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %v: %w", err, kind.ErrBackendUnavailable)
	}

	message, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(message.Value.Content) == 0 {
		return nil, fmt.Errorf("no message content in bedrock response: %w", kind.ErrLLMFailed)
	}

	var text string
	for _, block := range message.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text = tb.Value
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("empty bedrock response: %w", kind.ErrLLMFailed)
	}

	res := &Result{
		Text:    text,
		Model:   req.Model,
		Backend: BackendBedrock,
	}
	if resp.Usage != nil {
		res.Usage = &Usage{}
		if resp.Usage.InputTokens != nil {
			res.Usage.InputTokens = int(*resp.Usage.InputTokens)
		}
		if resp.Usage.OutputTokens != nil {
			res.Usage.OutputTokens = int(*resp.Usage.OutputTokens)
		}
		if resp.Usage.TotalTokens != nil {
			res.Usage.TotalTokens = int(*resp.Usage.TotalTokens)
		}
	}
	return res, nil
}
