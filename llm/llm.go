// Package llm defines the model-producer abstraction used by the resolver's
// LLM-selection and LLM-synthesis stages (spec §4.4 stages 6-7). Concrete
// producers live in sibling packages
// (llm/anthropic, llm/openai, llm/bedrock), mirroring the teacher's
// features/model/{anthropic,openai,bedrock} layout, but behind a much
// narrower interface: this package has no notion of tool calling or
// streaming, because nothing downstream of it needs more than "send a
// prompt, get text back".
package llm

import "context"

// Request is one text-completion request.
type Request struct {
	// System is an optional system/instruction prompt.
	System string
	// Prompt is the user-facing prompt text.
	Prompt string
	// Model overrides the producer's configured default model identifier.
	Model string
	// MaxTokens caps the completion length; zero uses the producer's default.
	MaxTokens int
	// Temperature biases sampling; zero uses the producer's default.
	Temperature float64
}

// TokenUsage reports token accounting for a completion, when the provider
// exposes it.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a text completion.
type Response struct {
	Text  string
	Usage TokenUsage
}

// Producer completes a prompt against a hosted or local language model.
type Producer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
