package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/causalchain"
	"github.com/cos-systems/cos/executor"
	"github.com/cos-systems/cos/governance"
	"github.com/cos-systems/cos/hel"
	"github.com/cos-systems/cos/intent"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/marketplace"
	"github.com/cos-systems/cos/orchestrator"
	"github.com/cos-systems/cos/plan"
	"github.com/cos-systems/cos/store/memory"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

func addHandler(ctx context.Context, args []value.Value) (value.Value, error) {
	return value.Int(args[0].AsInt() + args[1].AsInt()), nil
}

type wired struct {
	orch      *orchestrator.Orchestrator
	kernel    *governance.Kernel
	chain     *causalchain.Chain
	intents   *orchestrator.MemIntentStore
	approvals *approval.Queue
}

func newWiredOrchestrator(t *testing.T, opts ...orchestrator.Option) wired {
	t.Helper()
	mp := marketplace.New(telemetry.NewNoopLogger())
	mp.RegisterExecutor(manifest.ProviderLocal, executor.NewLocal())
	require.NoError(t, mp.RegisterLocal("ccos.math.add", "add", "adds two integers", executor.LocalHandlerFunc(addHandler)))

	var clock int64
	chain := causalchain.New(func() int64 { clock++; return clock })
	intents := orchestrator.NewMemIntentStore()
	approvals := approval.New(memory.New())

	allOpts := append([]orchestrator.Option{orchestrator.WithApprovalQueue(approvals), orchestrator.WithPollInterval(5 * time.Millisecond)}, opts...)
	orch := orchestrator.New(mp, chain, intents, allOpts...)
	mp.SetHook(orch)
	kernel := governance.NewKernel(orch, intents)
	orch.SetSecurityPolicy(kernel)

	return wired{orch: orch, kernel: kernel, chain: chain, intents: intents, approvals: approvals}
}

// TestScenario1ArithmeticViaHostCapability grounds spec §8 scenario 1
// end-to-end through governance, orchestration, and the marketplace.
func TestScenario1ArithmeticViaHostCapability(t *testing.T) {
	w := newWiredOrchestrator(t)

	in := intent.New("i1", "what is 2 plus 3", "perform arithmetic", time.Unix(0, 0))
	w.intents.Put(in)

	body := hel.Do(hel.Step("s", hel.Call("ccos.math.add", hel.Lit(value.Int(2)), hel.Lit(value.Int(3)))))
	p := plan.New("p1", []string{"i1"}, body, `(do (step "s" (call :ccos.math.add 2 3)))`)

	result, err := w.kernel.ValidateAndExecute(context.Background(), p, in)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.AsInt())
	assert.Equal(t, plan.StatusCompleted, p.Status)
	assert.Equal(t, intent.StatusCompleted, in.Status)

	actions := w.chain.ByPlan("p1")
	var calls, results int
	var callID string
	for _, a := range actions {
		switch a.ActionType {
		case causalchain.ActionCapabilityCall:
			calls++
			callID = a.ActionID
			assert.Equal(t, "ccos.math.add", a.FunctionName)
			require.Len(t, a.Arguments, 2)
			assert.Equal(t, int64(2), a.Arguments[0].AsInt())
			assert.Equal(t, int64(3), a.Arguments[1].AsInt())
		case causalchain.ActionCapabilityResult:
			results++
			assert.Equal(t, callID, a.ParentActionID)
			require.NotNil(t, a.Result)
			assert.True(t, a.Result.Success)
			assert.Equal(t, int64(5), a.Result.Value.AsInt())
		}
	}
	assert.Equal(t, 1, calls, "expected exactly one CapabilityCall action")
	assert.Equal(t, 1, results, "expected exactly one linked CapabilityResult action")
}

func TestDryRunSimulatesHighSecurityCapability(t *testing.T) {
	shellCalled := false
	mp := marketplace.New(telemetry.NewNoopLogger())
	mp.RegisterExecutor(manifest.ProviderLocal, executor.NewLocal())
	require.NoError(t, mp.RegisterLocal("ccos.system.shell", "shell", "runs a shell command", executor.LocalHandlerFunc(func(ctx context.Context, args []value.Value) (value.Value, error) {
		shellCalled = true
		return value.Str("real output"), nil
	})))

	var clock int64
	chain := causalchain.New(func() int64 { clock++; return clock })
	intents := orchestrator.NewMemIntentStore()
	orch := orchestrator.New(mp, chain, intents)
	mp.SetHook(orch)
	kernel := governance.NewKernel(orch, intents)
	orch.SetSecurityPolicy(kernel)

	in := intent.New("i1", "run a command, safely", "inspect the system", time.Unix(0, 0))
	intents.Put(in)
	p := plan.New("p1", []string{"i1"}, hel.Do(hel.Call("ccos.system.shell")), "(do (call :ccos.system.shell))")
	p.Policies["execution_mode"] = value.Str("dry-run")

	result, err := kernel.ValidateAndExecute(context.Background(), p, in)
	require.NoError(t, err)
	assert.False(t, shellCalled, "dry-run must not dispatch the real capability")
	assert.Contains(t, result.AsString(), "simulated")
}

func TestRequireApprovalRejectionPropagates(t *testing.T) {
	w := newWiredOrchestrator(t)
	mp := marketplace.New(telemetry.NewNoopLogger())
	mp.RegisterExecutor(manifest.ProviderLocal, executor.NewLocal())
	require.NoError(t, mp.RegisterLocal("ccos.payment.charge", "charge", "charges a payment method", executor.LocalHandlerFunc(func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Str("charged"), nil
	})))
	orch := orchestrator.New(mp, w.chain, w.intents, orchestrator.WithApprovalQueue(w.approvals), orchestrator.WithPollInterval(5*time.Millisecond))
	mp.SetHook(orch)
	kernel := governance.NewKernel(orch, w.intents)
	orch.SetSecurityPolicy(kernel)

	in := intent.New("i2", "charge the customer $10", "process a payment", time.Unix(0, 0))
	w.intents.Put(in)
	p := plan.New("p2", []string{"i2"}, hel.Do(hel.Call("ccos.payment.charge")), "(do (call :ccos.payment.charge))")
	p.Policies["execution_mode"] = value.Str("require-approval")

	done := make(chan error, 1)
	go func() {
		_, err := kernel.ValidateAndExecute(context.Background(), p, in)
		done <- err
	}()

	var approvalID string
	for i := 0; i < 200; i++ {
		pending, _ := w.approvals.ListPendingByCategory(context.Background(), approval.CategoryPlanGate)
		if len(pending) > 0 {
			approvalID = pending[0].ApprovalID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, approvalID, "expected an approval request to be enqueued")
	require.NoError(t, w.approvals.Decide(context.Background(), approvalID, false, value.Nil(), "reviewer"))

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rejected execution to return")
	}
}
