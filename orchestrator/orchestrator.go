// Package orchestrator implements the Orchestrator and its execution loop
// (spec §4.7): the only consumer of the HEL evaluator for live plans. It
// drives a plan's AST through hel.Interpreter, dispatches effectful
// NCall nodes to the Capability Marketplace, records every capability
// invocation to the Causal Chain via the Marketplace's own Hook extension
// point, applies the Governance Kernel's execution-mode policy (approval
// gating, dry-run simulation), and advances intent lifecycle state as the
// plan runs.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/causalchain"
	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/governance"
	"github.com/cos-systems/cos/hel"
	"github.com/cos-systems/cos/intent"
	"github.com/cos-systems/cos/plan"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

// CapabilityDispatcher is the narrow surface the Orchestrator needs from the
// Capability Marketplace.
type CapabilityDispatcher interface {
	Execute(ctx context.Context, id string, args []value.Value) (value.Value, error)
}

// IntentStore resolves and persists Intents as the Orchestrator advances
// their lifecycle.
type IntentStore interface {
	Get(id string) (*intent.Intent, bool)
	Put(in *intent.Intent)
}

// MemIntentStore is a minimal in-process IntentStore, sufficient for
// single-process use and for tests.
type MemIntentStore struct {
	mu sync.Mutex
	m  map[string]*intent.Intent
}

// NewMemIntentStore constructs an empty MemIntentStore.
func NewMemIntentStore() *MemIntentStore {
	return &MemIntentStore{m: make(map[string]*intent.Intent)}
}

func (s *MemIntentStore) Get(id string) (*intent.Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	return v, ok
}

func (s *MemIntentStore) Put(in *intent.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[in.IntentID] = in
}

// runContext carries the plan/intent identifiers a Call needs to record
// linked Causal Chain actions, and the id of the action a fresh
// CapabilityCall should cite as its parent. Nested step/call nesting beyond
// this single level is not tracked — every top-level capability call within
// a plan parents off the plan's PlanStarted action, which is sufficient to
// satisfy the chain's linkage invariant without modeling a full call tree.
type runContext struct {
	planID         string
	intentID       string
	parentActionID string
}

type runContextKey struct{}

func withRunContext(ctx context.Context, rc runContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

func runContextFrom(ctx context.Context) (runContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(runContext)
	return rc, ok
}

// Orchestrator drives plan execution end to end (spec §4.7).
type Orchestrator struct {
	capabilities CapabilityDispatcher
	chain        *causalchain.Chain
	approvals    *approval.Queue
	intents      IntentStore
	security     *governance.Kernel
	logger       telemetry.Logger

	pollInterval    time.Duration
	approvalTimeout time.Duration

	seq     int64
	pending sync.Map
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithApprovalQueue(q *approval.Queue) Option { return func(o *Orchestrator) { o.approvals = q } }
func WithLogger(l telemetry.Logger) Option        { return func(o *Orchestrator) { o.logger = l } }
func WithPollInterval(d time.Duration) Option     { return func(o *Orchestrator) { o.pollInterval = d } }
func WithApprovalTimeout(d time.Duration) Option  { return func(o *Orchestrator) { o.approvalTimeout = d } }

// WithSecurityPolicy installs the execution-mode policy at construction
// time, for callers that can build it first (e.g. tests that never route
// through the Governance Kernel at all).
func WithSecurityPolicy(k *governance.Kernel) Option { return func(o *Orchestrator) { o.security = k } }

// New constructs an Orchestrator. The Governance Kernel is deliberately not
// a required constructor argument: SPEC_FULL's intended wiring has the
// Kernel call back into this Orchestrator's Execute, which means the
// Orchestrator must exist before the Kernel can be constructed. Build the
// Orchestrator first, then the Kernel over it, then call SetSecurityPolicy
// (or pass WithSecurityPolicy when a Kernel happens to already exist).
func New(capabilities CapabilityDispatcher, chain *causalchain.Chain, intents IntentStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		capabilities:    capabilities,
		chain:           chain,
		intents:         intents,
		logger:          telemetry.NewNoopLogger(),
		pollInterval:    200 * time.Millisecond,
		approvalTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetSecurityPolicy wires the Governance Kernel in after construction,
// resolving the Orchestrator<->Kernel construction cycle (see New).
func (o *Orchestrator) SetSecurityPolicy(k *governance.Kernel) { o.security = k }

func (o *Orchestrator) nextActionID(planID string) string {
	n := atomic.AddInt64(&o.seq, 1)
	return fmt.Sprintf("%s-act-%d", planID, n)
}

// Execute runs p's HEL body to completion, advancing in's lifecycle as it
// goes (spec §4.7, §8's "Active to terminal goes through Executing"). This
// is the sole entry point the Governance Kernel is expected to call.
func (o *Orchestrator) Execute(ctx context.Context, p *plan.Plan, in *intent.Intent) (value.Value, error) {
	intentID := ""
	if in != nil {
		intentID = in.IntentID
		if err := o.transitionIntent(in, intent.StatusExecuting); err != nil {
			return value.Value{}, err
		}
	}

	p.Status = plan.StatusExecuting
	started, err := o.chain.Append(causalchain.CausalAction{
		ActionID:   o.nextActionID(p.PlanID),
		PlanID:     p.PlanID,
		IntentID:   intentID,
		ActionType: causalchain.ActionPlanStarted,
		Metadata:   map[string]string{"plan_name": p.Name},
	})
	if err != nil {
		return value.Value{}, err
	}

	ctx = withRunContext(ctx, runContext{planID: p.PlanID, intentID: intentID, parentActionID: started.ActionID})

	interp := hel.New(o, o)
	result, err := interp.Eval(ctx, p.Body.AST, hel.NewEnv())

	if err != nil {
		p.Status = plan.StatusFailed
		if in != nil {
			_ = o.transitionIntent(in, intent.StatusFailed)
		}
		_, _ = o.chain.Append(causalchain.CausalAction{
			ActionID:       o.nextActionID(p.PlanID),
			PlanID:         p.PlanID,
			IntentID:       intentID,
			ParentActionID: started.ActionID,
			ActionType:     causalchain.ActionAuditEvent,
			Metadata:       map[string]string{"outcome": "failed", "error": err.Error()},
		})
		return value.Value{}, err
	}

	p.Status = plan.StatusCompleted
	if in != nil {
		_ = o.transitionIntent(in, intent.StatusCompleted)
	}
	_, _ = o.chain.Append(causalchain.CausalAction{
		ActionID:       o.nextActionID(p.PlanID),
		PlanID:         p.PlanID,
		IntentID:       intentID,
		ParentActionID: started.ActionID,
		ActionType:     causalchain.ActionPlanCompleted,
		Result:         &causalchain.ExecutionResult{Success: true, Value: result},
	})
	return result, nil
}

func (o *Orchestrator) transitionIntent(in *intent.Intent, next intent.Status) error {
	now := time.Now()
	if err := in.Transition(next, now); err != nil {
		return errors.Wrap(errors.RuntimeError, "orchestrator: illegal intent transition", err)
	}
	if o.intents != nil {
		o.intents.Put(in)
	}
	return nil
}

// Call implements hel.Host: every `(call :capability.id args...)` form in a
// plan body routes here (spec §4.7's "RequiresHost dispatch"). It applies
// the execution-mode policy before any capability actually runs.
func (o *Orchestrator) Call(ctx context.Context, capabilityID string, args []value.Value) (value.Value, error) {
	rc, _ := runContextFrom(ctx)
	mode := governance.ExecutionModeFromContext(ctx)

	if o.security != nil && o.security.RequiresApproval(capabilityID, mode) {
		decided, err := o.awaitApproval(ctx, rc, capabilityID, args)
		if err != nil {
			return value.Value{}, err
		}
		if !decided {
			return value.Value{}, errors.Newf(errors.ApprovalRejected, "approval rejected for capability %q", capabilityID)
		}
	}

	if o.security != nil && o.security.ShouldSimulateInDryRun(capabilityID, mode) {
		return o.simulate(ctx, rc, capabilityID, args), nil
	}

	return o.capabilities.Execute(ctx, capabilityID, args)
}

// awaitApproval enqueues a human approval gate and blocks until it is
// decided or times out (spec §4.7: "enqueuing approval.Requests and
// suspending on require-approval"). It returns (true, nil) on approval,
// (false, nil) on rejection, and a non-nil error only for infrastructure
// failures or timeout.
func (o *Orchestrator) awaitApproval(ctx context.Context, rc runContext, capabilityID string, args []value.Value) (bool, error) {
	if o.approvals == nil {
		return false, errors.Newf(errors.GovernanceError, "capability %q requires approval but no approval queue is configured", capabilityID)
	}

	approvalID := o.nextActionID(rc.planID) + "-approval"
	if _, err := o.approvals.Enqueue(ctx, approval.Request{
		ApprovalID:   approvalID,
		Category:     approval.CategoryPlanGate,
		CapabilityID: capabilityID,
		PlanID:       rc.planID,
		IntentID:     rc.intentID,
		RequestedAt:  time.Now(),
		Reason:       fmt.Sprintf("capability %q requires human approval under the current execution mode", capabilityID),
	}); err != nil {
		return false, err
	}

	deadline := time.Now().Add(o.approvalTimeout)
	for {
		req, err := o.approvals.Get(ctx, approvalID)
		if err != nil {
			return false, err
		}
		switch req.Status {
		case approval.StatusApproved:
			return true, nil
		case approval.StatusRejected, approval.StatusExpired:
			return false, nil
		}
		if time.Now().After(deadline) {
			return false, errors.Newf(errors.TimeoutError, "approval %q timed out waiting for a decision", approvalID)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

// simulate produces a deterministic placeholder result for a high/critical
// capability under dry-run mode, recording the call to the Causal Chain
// itself (the Marketplace Hook never fires because the capability is never
// actually dispatched — spec §8's round-trip law: "no HTTP/MCP/A2A calls
// actually dispatched... simulated values are deterministic").
func (o *Orchestrator) simulate(ctx context.Context, rc runContext, capabilityID string, args []value.Value) value.Value {
	callID := o.nextActionID(rc.planID)
	_, _ = o.chain.Append(causalchain.CausalAction{
		ActionID:       callID,
		PlanID:         rc.planID,
		IntentID:       rc.intentID,
		ParentActionID: rc.parentActionID,
		ActionType:     causalchain.ActionCapabilityCall,
		FunctionName:   capabilityID,
		Arguments:      args,
		Metadata:       map[string]string{"simulated": "true"},
	})
	result := value.Str("simulated:" + capabilityID)
	_, _ = o.chain.Append(causalchain.CausalAction{
		ActionID:       o.nextActionID(rc.planID),
		PlanID:         rc.planID,
		IntentID:       rc.intentID,
		ParentActionID: callID,
		ActionType:     causalchain.ActionCapabilityResult,
		FunctionName:   capabilityID,
		Result:         &causalchain.ExecutionResult{Success: true, Value: result, Metadata: map[string]string{"simulated": "true"}},
	})
	return result
}

// BeforeExecute implements marketplace.Hook: logs a CapabilityCall action
// immediately before a real (non-simulated) capability dispatches.
func (o *Orchestrator) BeforeExecute(ctx context.Context, capabilityID string, args []value.Value) {
	rc, ok := runContextFrom(ctx)
	if !ok {
		return
	}
	callID := o.nextActionID(rc.planID)
	_, _ = o.chain.Append(causalchain.CausalAction{
		ActionID:       callID,
		PlanID:         rc.planID,
		IntentID:       rc.intentID,
		ParentActionID: rc.parentActionID,
		ActionType:     causalchain.ActionCapabilityCall,
		FunctionName:   capabilityID,
		Arguments:      args,
	})
	o.pending.Store(pendingKey{rc.planID, capabilityID}, callID)
}

type pendingKey struct {
	planID       string
	capabilityID string
}

// AfterExecute implements marketplace.Hook: logs the linked CapabilityResult
// action once a real capability dispatch returns.
func (o *Orchestrator) AfterExecute(ctx context.Context, capabilityID string, result value.Value, err error) {
	rc, ok := runContextFrom(ctx)
	if !ok {
		return
	}
	v, loaded := o.pending.LoadAndDelete(pendingKey{rc.planID, capabilityID})
	if !loaded {
		return
	}
	callID := v.(string)
	execResult := &causalchain.ExecutionResult{Success: err == nil, Value: result}
	if err != nil {
		execResult.Metadata = map[string]string{"error": err.Error(), "error_category": string(errors.KindOf(err))}
	}
	_, _ = o.chain.Append(causalchain.CausalAction{
		ActionID:       o.nextActionID(rc.planID),
		PlanID:         rc.planID,
		IntentID:       rc.intentID,
		ParentActionID: callID,
		ActionType:     causalchain.ActionCapabilityResult,
		FunctionName:   capabilityID,
		Result:         execResult,
	})
}

// StepStarted implements hel.StepObserver; steps are not separately logged
// to the Causal Chain today (the capability calls within them already are),
// but the hook is kept so a future tracing backend has a place to attach.
func (o *Orchestrator) StepStarted(label string) {}

// StepCompleted implements hel.StepObserver.
func (o *Orchestrator) StepCompleted(label string, result value.Value) {}
