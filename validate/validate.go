// Package validate implements the validation and governance harness for
// synthesized capabilities (spec §4.5): parse/structural checks, static
// analyzers, and pluggable governance policies, admitting a capability only
// when nothing returns an Error-severity Issue.
package validate

import (
	"regexp"
	"strings"

	"github.com/cos-systems/cos/manifest"
)

// Severity classifies an Issue raised by an Analyzer or Policy.
type Severity string

const (
	Info  Severity = "Info"
	Warn  Severity = "Warn"
	Error Severity = "Error"
)

// Issue is one finding against a candidate manifest/source pair.
type Issue struct {
	Severity Severity
	Source   string // which analyzer/policy raised this, for audit
	Message  string
}

// Candidate is a synthesized capability awaiting admission: a manifest plus
// the HEL source text it was synthesized from (spec §4.4 stage 7's
// `(capability "id" { ... })` form, already parsed into the manifest and
// kept alongside its source for static analysis).
type Candidate struct {
	Manifest manifest.CapabilityManifest
	Source   string
}

// Analyzer is a pure function over a Candidate returning zero or more
// Issues (spec §4.5: "each analyzer is a pure function").
type Analyzer func(c Candidate) []Issue

// Policy is a governance-level Analyzer; it is a type alias, a second name
// so call sites read as "policy" rather than "analyzer", and the two are
// interchangeable (spec §4.5 distinguishes "static analyzers" from "governance
// policies" by role, not by mechanism).
type Policy = Analyzer

// Harness runs the parse/structural checks, a configured set of analyzers,
// and a configured set of policies over a Candidate.
type Harness struct {
	Analyzers []Analyzer
	Policies  []Policy
}

// NewHarness constructs a Harness with the required policy (spec §4.5:
// "at least MaxParameterCountPolicy(N) is required") plus the one built-in
// analyzer, PerformanceAnalyzer, and any caller-supplied extras appended.
func NewHarness(maxParams int, extraAnalyzers []Analyzer, extraPolicies []Policy) *Harness {
	h := &Harness{
		Analyzers: append([]Analyzer{PerformanceAnalyzer}, extraAnalyzers...),
		Policies:  append([]Policy{MaxParameterCountPolicy(maxParams)}, extraPolicies...),
	}
	return h
}

// Result is the outcome of running a Harness over a Candidate.
type Result struct {
	Issues  []Issue
	Admit   bool
}

// Validate runs parse/structural checks, then every analyzer and policy,
// returning the accumulated Issues and whether the candidate is admitted
// (spec §4.5's "Admission": no Error-severity issue from any stage).
func (h *Harness) Validate(c Candidate) Result {
	var issues []Issue

	issues = append(issues, parseCheck(c)...)
	issues = append(issues, structuralCheck(c)...)
	for _, a := range h.Analyzers {
		issues = append(issues, a(c)...)
	}
	for _, p := range h.Policies {
		issues = append(issues, p(c)...)
	}

	admit := true
	for _, iss := range issues {
		if iss.Severity == Error {
			admit = false
			break
		}
	}
	return Result{Issues: issues, Admit: admit}
}

// parseCheck rejects a candidate with no source text at all — the synthesis
// stage is expected to always produce a non-empty form (spec §4.5: "Parse
// check (rejects if not parseable)"; since HEL parsing proper is out of
// scope, "parseable" here means "non-empty and balanced", the minimum a
// caller can check without a grammar).
func parseCheck(c Candidate) []Issue {
	trimmed := strings.TrimSpace(c.Source)
	if trimmed == "" {
		return []Issue{{Severity: Error, Source: "parse", Message: "empty capability source"}}
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return []Issue{{Severity: Error, Source: "parse", Message: "unbalanced parentheses in capability source"}}
	}
	return nil
}

var capabilityFormRE = regexp.MustCompile(`\(capability\s+"[^"]+"`)

// structuralCheck enforces exactly one top-level capability form, required
// keys, and a well-formed id (spec §4.5).
func structuralCheck(c Candidate) []Issue {
	var issues []Issue

	matches := capabilityFormRE.FindAllString(c.Source, -1)
	if len(matches) != 1 {
		issues = append(issues, Issue{Severity: Error, Source: "structural", Message: "source must contain exactly one top-level capability form"})
	}

	if c.Manifest.ID == "" {
		issues = append(issues, Issue{Severity: Error, Source: "structural", Message: "capability id is required"})
	} else if !wellFormedID(c.Manifest.ID) {
		issues = append(issues, Issue{Severity: Error, Source: "structural", Message: "capability id is not well-formed (expected dotted lowercase segments)"})
	}
	if c.Manifest.Name == "" {
		issues = append(issues, Issue{Severity: Warn, Source: "structural", Message: "capability has no display name"})
	}
	if c.Manifest.Description == "" {
		issues = append(issues, Issue{Severity: Warn, Source: "structural", Message: "capability has no description"})
	}
	return issues
}

var wellFormedIDRE = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9_-]+)+$`)

func wellFormedID(id string) bool { return wellFormedIDRE.MatchString(id) }

// PerformanceAnalyzer flags excessive nesting depth and obviously unbounded
// recursion (spec §4.5's "performance analyzer"). Both checks are lexical
// heuristics over the source text, not a real recursion analysis — adequate
// for a synthesis-time sanity check, not a soundness guarantee.
func PerformanceAnalyzer(c Candidate) []Issue {
	const maxDepth = 12
	depth, maxSeen := 0, 0
	for _, r := range c.Source {
		switch r {
		case '(':
			depth++
			if depth > maxSeen {
				maxSeen = depth
			}
		case ')':
			if depth > 0 {
				depth--
			}
		}
	}
	var issues []Issue
	if maxSeen > maxDepth {
		issues = append(issues, Issue{Severity: Warn, Source: "performance", Message: "nesting depth exceeds recommended maximum"})
	}

	if c.Manifest.Name != "" && strings.Contains(c.Source, "("+c.Manifest.Name) && !strings.Contains(c.Source, "if") && !strings.Contains(c.Source, "when") && !strings.Contains(c.Source, "cond") {
		issues = append(issues, Issue{Severity: Warn, Source: "performance", Message: "self-referential form with no visible base-case conditional: possible unbounded recursion"})
	}
	return issues
}

// MaxParameterCountPolicy rejects manifests whose declared input map has
// more than n keys (spec §4.5's mandatory policy). It inspects the
// manifest's metadata["input_param_count"] field since InputSchema is typed
// `any` here to avoid the manifest<->schema import cycle (manifest.go's own
// documented reason); callers constructing a synthesized manifest must set
// that metadata key for this policy to see the true count.
func MaxParameterCountPolicy(n int) Policy {
	return func(c Candidate) []Issue {
		count := inputParamCount(c.Manifest)
		if count > n {
			return []Issue{{
				Severity: Error,
				Source:   "policy.max_parameter_count",
				Message:  "input parameter count exceeds policy maximum",
			}}
		}
		return nil
	}
}

func inputParamCount(m manifest.CapabilityManifest) int {
	if m.Metadata == nil {
		return 0
	}
	raw, ok := m.Metadata["input_param_count"]
	if !ok {
		return 0
	}
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
