// Package causalchain implements the append-only, per-plan audit log (spec
// §3, §4.7): every observable action taken while executing a plan, linked by
// parent/child relationships and queryable by plan id, intent id, or filter.
package causalchain

import (
	"sync"
	"time"

	"github.com/cos-systems/cos/value"
)

// ActionType enumerates the kinds of CausalAction recorded.
type ActionType string

const (
	ActionIntentCreated       ActionType = "IntentCreated"
	ActionIntentStatusChanged ActionType = "IntentStatusChanged"
	ActionPlanStarted         ActionType = "PlanStarted"
	ActionCapabilityCall      ActionType = "CapabilityCall"
	ActionCapabilityResult    ActionType = "CapabilityResult"
	ActionPlanCompleted       ActionType = "PlanCompleted"
	ActionAuditEvent          ActionType = "AuditEvent"
)

// ExecutionResult is the outcome of a capability execution.
type ExecutionResult struct {
	Success  bool
	Value    value.Value
	Metadata map[string]string
}

// CausalAction is a single append-only record in the chain.
type CausalAction struct {
	ActionID       string
	PlanID         string
	IntentID       string
	ParentActionID string
	ActionType     ActionType
	Timestamp      int64 // monotonic per chain, e.g. a logical clock or unix nanos
	FunctionName   string
	Arguments      []value.Value
	Result         *ExecutionResult
	Metadata       map[string]string
}

// Filter narrows a query over the chain (spec §4.7 query_actions).
type Filter struct {
	ActionType     ActionType // zero value matches any
	FunctionPrefix string
	From, To       int64 // zero To means unbounded
}

func (f Filter) matches(a CausalAction) bool {
	if f.ActionType != "" && a.ActionType != f.ActionType {
		return false
	}
	if f.FunctionPrefix != "" && (len(a.FunctionName) < len(f.FunctionPrefix) || a.FunctionName[:len(f.FunctionPrefix)] != f.FunctionPrefix) {
		return false
	}
	if f.From != 0 && a.Timestamp < f.From {
		return false
	}
	if f.To != 0 && a.Timestamp > f.To {
		return false
	}
	return true
}

// Chain is an append-only, arena-and-index audit log (spec §9): a slice of
// records plus id-keyed indices, no owning cycles.
type Chain struct {
	mu        sync.RWMutex
	actions   []CausalAction
	byID      map[string]int // action_id -> index into actions
	byPlan    map[string][]int
	byIntent  map[string][]int
	lastStamp int64
	clock     func() int64
}

// New constructs an empty Chain. clock supplies monotonically non-decreasing
// timestamps; pass a logical counter in tests to avoid wall-clock reads.
func New(clock func() int64) *Chain {
	return &Chain{
		byID:     make(map[string]int),
		byPlan:   make(map[string][]int),
		byIntent: make(map[string][]int),
		clock:    clock,
	}
}

// NewWithWallClock constructs a Chain stamped with time.Now().UnixNano().
func NewWithWallClock() *Chain {
	return New(func() int64 { return time.Now().UnixNano() })
}

// Append adds a to the chain, assigning it a non-decreasing timestamp and
// validating the linkage invariants (spec §8): a CapabilityResult must name
// an existing parent CapabilityCall in the same plan.
func (c *Chain) Append(a CausalAction) (CausalAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.clock()
	if ts < c.lastStamp {
		ts = c.lastStamp
	}
	c.lastStamp = ts
	a.Timestamp = ts

	if a.ActionType == ActionCapabilityResult {
		parentIdx, ok := c.byID[a.ParentActionID]
		if !ok {
			return CausalAction{}, &LinkageError{ActionID: a.ActionID, ParentActionID: a.ParentActionID}
		}
		parent := c.actions[parentIdx]
		if parent.ActionType != ActionCapabilityCall || parent.PlanID != a.PlanID {
			return CausalAction{}, &LinkageError{ActionID: a.ActionID, ParentActionID: a.ParentActionID}
		}
	}

	idx := len(c.actions)
	c.actions = append(c.actions, a)
	c.byID[a.ActionID] = idx
	c.byPlan[a.PlanID] = append(c.byPlan[a.PlanID], idx)
	if a.IntentID != "" {
		c.byIntent[a.IntentID] = append(c.byIntent[a.IntentID], idx)
	}
	return a, nil
}

// LinkageError reports a CapabilityResult with no matching parent
// CapabilityCall in the chain.
type LinkageError struct {
	ActionID       string
	ParentActionID string
}

func (e *LinkageError) Error() string {
	return "causalchain: action " + e.ActionID + " references missing parent CapabilityCall " + e.ParentActionID
}

// ByPlan returns actions for planID in insertion order.
func (c *Chain) ByPlan(planID string) []CausalAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collect(c.byPlan[planID])
}

// ByIntent returns actions for intentID in insertion order.
func (c *Chain) ByIntent(intentID string) []CausalAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collect(c.byIntent[intentID])
}

// Query returns actions matching f in insertion order.
func (c *Chain) Query(f Filter) []CausalAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []CausalAction
	for _, a := range c.actions {
		if f.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func (c *Chain) collect(idxs []int) []CausalAction {
	out := make([]CausalAction, len(idxs))
	for i, idx := range idxs {
		out[i] = c.actions[idx]
	}
	return out
}
