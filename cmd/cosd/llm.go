package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/cos-systems/cos/config"
	"github.com/cos-systems/cos/llm"
	"github.com/cos-systems/cos/llm/anthropic"
	"github.com/cos-systems/cos/llm/bedrock"
	"github.com/cos-systems/cos/llm/openai"
)

// newProducer builds the llm.Producer backing the resolver's LLM selection
// and synthesis stages (spec §4.4 stages 6-7), or nil if cfg.Active is empty
// (those stages are then skipped entirely — spec allows a resolver with no
// LLM configured at all). Bedrock loads credentials and region the way the
// AWS SDK's own examples do, via config.LoadDefaultConfig's provider chain
// rather than hand-rolling one.
func newProducer(ctx context.Context, cfg config.LLMConfig) (llm.Producer, error) {
	switch cfg.Active {
	case "":
		return nil, nil
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.Anthropic.APIKey, cfg.Anthropic.DefaultModel)
	case "openai":
		return openai.NewFromAPIKey(cfg.OpenAI.APIKey, cfg.OpenAI.DefaultModel)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for bedrock: %w", err)
		}
		return bedrock.NewFromConfig(awsCfg, cfg.Bedrock.DefaultModel)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Active)
	}
}
