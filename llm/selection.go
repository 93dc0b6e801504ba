package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cos-systems/cos/resolver"
)

// Selector implements resolver.LLMSelector over a Producer (spec §4.4 stage
// 6): it asks the model to rank discovery candidates against the missing
// capability id and parses a strict JSON array back out. resolver does not
// import llm (it only depends on the narrow LLMSelector/LLMSynthesizer
// interfaces it declares itself), so this direction of import is safe.
type Selector struct {
	producer Producer
	model    string
}

// NewSelector wraps producer as a Selector, optionally pinning a model.
func NewSelector(producer Producer, model string) *Selector {
	return &Selector{producer: producer, model: model}
}

// Rank implements resolver.LLMSelector.
func (s *Selector) Rank(ctx context.Context, req resolver.MissingCapabilityRequest, candidateIDs []string) ([]resolver.LLMRanking, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	prompt := rankPrompt(req, candidateIDs)
	resp, err := s.producer.Complete(ctx, Request{
		System:      "You rank candidate capability identifiers by how well they satisfy a request. Respond with JSON only.",
		Prompt:      prompt,
		Model:       s.model,
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("llm selector: %w", err)
	}
	var parsed []struct {
		CapabilityID string  `json:"capability_id"`
		Score        float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return nil, fmt.Errorf("llm selector: could not parse ranking response: %w", err)
	}
	out := make([]resolver.LLMRanking, len(parsed))
	for i, p := range parsed {
		out[i] = resolver.LLMRanking{CapabilityID: p.CapabilityID, Score: p.Score}
	}
	return out, nil
}

func rankPrompt(req resolver.MissingCapabilityRequest, candidateIDs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Missing capability: %q\n", req.CapabilityID)
	if goal, ok := req.Context["goal"]; ok && goal != "" {
		fmt.Fprintf(&b, "Goal: %q\n", goal)
	}
	b.WriteString("Candidates:\n")
	for _, id := range candidateIDs {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	b.WriteString(`Return a JSON array of {"capability_id": string, "score": number 0-1}, most relevant first. JSON only, no prose.`)
	return b.String()
}

// Synthesizer implements resolver.LLMSynthesizer over a Producer (spec §4.4
// stage 7, last resort): it asks the model to emit a `(capability "id" {
// ... })` form and returns the raw source for the validation harness to
// check before anything is registered.
type Synthesizer struct {
	producer Producer
	model    string
}

// NewSynthesizer wraps producer as a Synthesizer, optionally pinning a model.
func NewSynthesizer(producer Producer, model string) *Synthesizer {
	return &Synthesizer{producer: producer, model: model}
}

// Synthesize satisfies resolver.LLMSynthesizer structurally.
func (s *Synthesizer) Synthesize(ctx context.Context, req resolver.MissingCapabilityRequest, schemaHint string) (string, error) {
	prompt := fmt.Sprintf(
		"Write a single capability definition form: (capability %q {:input {...} :output {...}}).\n"+
			"Constraint: %s\nRespond with the form only, no prose, no code fences.",
		req.CapabilityID, schemaHint,
	)
	resp, err := s.producer.Complete(ctx, Request{
		System:      "You synthesize capability manifests for a capability-oriented orchestration substrate.",
		Prompt:      prompt,
		Model:       s.model,
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("llm synthesizer: %w", err)
	}
	return strings.TrimSpace(stripFences(resp.Text)), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```clojure")
	s = strings.TrimPrefix(s, "```lisp")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSON trims a model response down to its outermost JSON array,
// tolerating stray prose or code fences the model may have added despite
// being asked not to.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
