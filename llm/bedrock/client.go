// Package bedrock adapts the AWS Bedrock Runtime Converse API
// (github.com/aws/aws-sdk-go-v2/service/bedrockruntime) to llm.Producer,
// grounded on the shape of the teacher's features/model/bedrock client but
// trimmed to the single-turn text completion the resolver's LLM stages need
// (no tool use, no transcript re-encoding, no streaming).
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/cos-systems/cos/llm"
)

// ConverseClient captures the subset of the Bedrock Runtime client used here.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements llm.Producer over Bedrock's Converse API.
type Client struct {
	rt           ConverseClient
	defaultModel string
}

// New builds a Client from a Bedrock Runtime client and a default model ARN
// or inference-profile identifier.
func New(rt ConverseClient, defaultModel string) (*Client, error) {
	if rt == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{rt: rt, defaultModel: defaultModel}, nil
}

// NewFromConfig builds a Client from an already-loaded aws.Config (see
// config.aws.LoadDefaultConfig in the ambient config package).
func NewFromConfig(cfg aws.Config, defaultModel string) (*Client, error) {
	return New(bedrockruntime.NewFromConfig(cfg), defaultModel)
}

// Complete implements llm.Producer.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Prompt == "" {
		return llm.Response{}, errors.New("bedrock: prompt is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
			},
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	var cfg types.InferenceConfiguration
	hasCfg := false
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		cfg.MaxTokens = &mt
		hasCfg = true
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = &cfg
	}

	out, err := c.rt.Converse(ctx, input)
	if err != nil {
		return llm.Response{}, fmt.Errorf("bedrock converse: %w", err)
	}
	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return llm.Response{}, errors.New("bedrock: response had no message output")
	}
	var text string
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	resp := llm.Response{Text: text}
	if out.Usage != nil {
		resp.Usage = llm.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp, nil
}
