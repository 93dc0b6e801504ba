package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/validate"
)

func candidate(id string, paramCount int, source string) validate.Candidate {
	return validate.Candidate{
		Manifest: manifest.CapabilityManifest{
			ID:          id,
			Name:        "demo",
			Description: "a demo capability",
			Metadata:    map[string]string{"input_param_count": itoa(paramCount)},
		},
		Source: source,
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestHarnessAdmitsWellFormedCapability(t *testing.T) {
	h := validate.NewHarness(5, nil, nil)
	c := candidate("ccos.demo.weather", 2, `(capability "ccos.demo.weather" {:input {:city :string}})`)
	res := h.Validate(c)
	assert.True(t, res.Admit)
}

func TestHarnessRejectsUnparseableSource(t *testing.T) {
	h := validate.NewHarness(5, nil, nil)
	c := candidate("ccos.demo.weather", 1, `(capability "ccos.demo.weather" {`)
	res := h.Validate(c)
	assert.False(t, res.Admit)
}

func TestHarnessRejectsMultipleTopLevelForms(t *testing.T) {
	h := validate.NewHarness(5, nil, nil)
	c := candidate("ccos.demo.weather", 1, `(capability "a" {}) (capability "b" {})`)
	res := h.Validate(c)
	assert.False(t, res.Admit)
}

func TestHarnessRejectsMalformedID(t *testing.T) {
	h := validate.NewHarness(5, nil, nil)
	c := candidate("NotWellFormed", 1, `(capability "NotWellFormed" {})`)
	res := h.Validate(c)
	assert.False(t, res.Admit)
}

// TestMaxParameterCountPolicyRejection grounds spec §8 scenario 4: a
// synthesized capability with 6 input keys is rejected under
// MaxParameterCountPolicy(5).
func TestMaxParameterCountPolicyRejection(t *testing.T) {
	h := validate.NewHarness(5, nil, nil)
	c := candidate("ccos.demo.synth", 6, `(capability "ccos.demo.synth" {:input {:a 1 :b 2 :c 3 :d 4 :e 5 :f 6}})`)
	res := h.Validate(c)
	assert.False(t, res.Admit)
	found := false
	for _, iss := range res.Issues {
		if iss.Source == "policy.max_parameter_count" && iss.Severity == validate.Error {
			found = true
		}
	}
	assert.True(t, found, "expected a max_parameter_count Error issue")
}

func TestPerformanceAnalyzerFlagsDeepNesting(t *testing.T) {
	deep := "(((((((((((((x)))))))))))))"
	issues := validate.PerformanceAnalyzer(validate.Candidate{Source: deep})
	assert.NotEmpty(t, issues)
	assert.Equal(t, validate.Warn, issues[0].Severity)
}
