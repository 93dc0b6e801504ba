package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/llm"
	"github.com/cos-systems/cos/resolver"
)

type stubProducer struct {
	text string
	err  error
}

func (s stubProducer) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: s.text}, s.err
}

func TestSelectorRankParsesJSON(t *testing.T) {
	prod := stubProducer{text: `some prose [{"capability_id":"ccos.demo.a","score":0.9},{"capability_id":"ccos.demo.b","score":0.4}] trailing`}
	sel := llm.NewSelector(prod, "")

	rankings, err := sel.Rank(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "ccos.demo.x"}, []string{"ccos.demo.a", "ccos.demo.b"})
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, "ccos.demo.a", rankings[0].CapabilityID)
	assert.Equal(t, 0.9, rankings[0].Score)
}

func TestSelectorRankNoCandidatesShortCircuits(t *testing.T) {
	sel := llm.NewSelector(stubProducer{}, "")
	rankings, err := sel.Rank(context.Background(), resolver.MissingCapabilityRequest{}, nil)
	require.NoError(t, err)
	assert.Empty(t, rankings)
}

func TestSynthesizerStripsCodeFences(t *testing.T) {
	prod := stubProducer{text: "```clojure\n(capability \"ccos.demo.synth\" {:input {} :output {}})\n```"}
	synth := llm.NewSynthesizer(prod, "")

	source, err := synth.Synthesize(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "ccos.demo.synth"}, "no constraints")
	require.NoError(t, err)
	assert.Equal(t, `(capability "ccos.demo.synth" {:input {} :output {}})`, source)
}
