// Package plan implements the Plan entity (spec §3): a HEL or Wasm program
// body together with the metadata the Governance Kernel and Orchestrator
// need to validate and execute it.
package plan

import (
	"strings"

	"github.com/cos-systems/cos/hel"
	"github.com/cos-systems/cos/value"
)

// Language names the representation of a Plan's body.
type Language string

const (
	LanguageHEL  Language = "HEL"
	LanguageWasm Language = "Wasm"
)

// Status is a lifecycle state of a Plan.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusValidated Status = "Validated"
	StatusExecuting Status = "Executing"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Body carries a plan's program in one of two forms, selected by the owning
// Plan's Language. For HEL, AST is the pre-built expression tree the
// Orchestrator drives (spec §1: HEL's concrete syntax and parser are out of
// scope); Source is a human-authored textual rendering of the same program
// kept alongside it so governance's phrase-matching checks (§4.6) have text
// to scan without needing to print the AST back out. For Wasm, Bytecode is
// the compiled module and Source/AST are unused.
type Body struct {
	Source   string
	AST      *hel.Node
	Bytecode []byte
}

// Plan is a HEL (or Wasm) program together with the governance metadata
// required to admit and execute it.
type Plan struct {
	PlanID               string
	Name                 string
	IntentIDs            []string
	Language             Language
	Body                 Body
	Status               Status
	Policies             map[string]value.Value
	CapabilitiesRequired map[string]struct{}
	Annotations          map[string]string
	Metadata             map[string]string
	InputSchema          any // *schema.Schema, kept as any to avoid an import cycle
	OutputSchema         any

	scaffolded bool
}

// New constructs a Draft plan over a HEL AST, with source as its textual
// rendering for governance's phrase checks. IntentIDs must be non-empty per
// the data model invariant, except for capability-internal plans (spec
// §4.6's "intent may be None").
func New(planID string, intentIDs []string, ast *hel.Node, source string) *Plan {
	return &Plan{
		PlanID:               planID,
		IntentIDs:            append([]string(nil), intentIDs...),
		Language:             LanguageHEL,
		Body:                 Body{Source: source, AST: ast},
		Status:               StatusDraft,
		Policies:             make(map[string]value.Value),
		CapabilitiesRequired: make(map[string]struct{}),
		Annotations:          make(map[string]string),
		Metadata:             make(map[string]string),
	}
}

// Scaffolded reports whether the plan's body has already been wrapped by
// governance's scaffold step. Once true, the body is immutable (spec §3).
func (p *Plan) Scaffolded() bool { return p.scaffolded }

// Scaffold wraps the plan's body in a `(do ...)` form, both textually and in
// the AST, unless it is already a `do` form or has already been scaffolded
// (spec §8: scaffold_plan is idempotent — calling it twice yields the same
// result as calling it once). Only the Governance Kernel should call this.
func (p *Plan) Scaffold() {
	if p.scaffolded {
		return
	}
	if p.Body.AST != nil && p.Body.AST.Kind != hel.NDo {
		p.Body.AST = hel.Do(p.Body.AST)
	}
	trimmed := strings.TrimSpace(p.Body.Source)
	if trimmed != "" && !strings.HasPrefix(trimmed, "(do ") && trimmed != "(do)" {
		p.Body.Source = "(do " + p.Body.Source + ")"
	}
	p.scaffolded = true
}

// RequireCapability records that the plan depends on a capability id.
func (p *Plan) RequireCapability(id string) {
	p.CapabilitiesRequired[id] = struct{}{}
}
