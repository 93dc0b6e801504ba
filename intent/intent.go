// Package intent implements the Intent entity and its lifecycle (spec §3).
package intent

import (
	"time"

	"github.com/cos-systems/cos/value"
)

// Status is a lifecycle state of an Intent.
type Status string

const (
	StatusActive     Status = "Active"
	StatusExecuting  Status = "Executing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusSuspended  Status = "Suspended"
)

// Intent is a structured goal produced by an Arbiter from a natural-language
// request.
type Intent struct {
	IntentID         string
	Name             string
	OriginalRequest  string
	Goal             string
	Constraints      map[string]value.Value
	Preferences      map[string]value.Value
	SuccessCriteria  string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Metadata         map[string]string
}

// New constructs an Active Intent. CreatedAt/UpdatedAt are supplied by the
// caller rather than taken at construction time, keeping the package free of
// wall-clock reads so callers control time in tests and replay.
func New(intentID, originalRequest, goal string, now time.Time) *Intent {
	return &Intent{
		IntentID:        intentID,
		OriginalRequest: originalRequest,
		Goal:            goal,
		Constraints:     make(map[string]value.Value),
		Preferences:     make(map[string]value.Value),
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        make(map[string]string),
	}
}

// validTransitions enumerates the legal lifecycle edges (spec §8: Active to
// a terminal state must pass through Executing).
var validTransitions = map[Status]map[Status]bool{
	StatusActive:    {StatusExecuting: true, StatusSuspended: true},
	StatusExecuting: {StatusCompleted: true, StatusFailed: true, StatusSuspended: true},
	StatusSuspended: {StatusExecuting: true, StatusFailed: true},
}

// Transition moves the intent to next, returning an error if the edge is not
// legal from the current status.
func (i *Intent) Transition(next Status, now time.Time) error {
	allowed := validTransitions[i.Status]
	if allowed == nil || !allowed[next] {
		return &TransitionError{From: i.Status, To: next}
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

// TransitionError reports an illegal lifecycle edge.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return "intent: illegal transition from " + string(e.From) + " to " + string(e.To)
}

// StorableIntent is the persisted projection of Intent: constraint and
// preference expressions are serialized to strings (their HEL source form,
// opaque to this package), and lineage/provenance metadata is added.
type StorableIntent struct {
	IntentID             string
	Name                 string
	OriginalRequest      string
	Goal                 string
	ConstraintExprs      map[string]string
	PreferenceExprs      map[string]string
	Status               Status
	ParentIntentID       string
	ChildIntentIDs       []string
	TriggerSource        string
	GenerationContext    GenerationContext
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GenerationContext records which arbiter produced a StorableIntent and how.
type GenerationContext struct {
	ArbiterID   string
	GeneratedAt time.Time
	Method      string // e.g. "template", "llm"
}
