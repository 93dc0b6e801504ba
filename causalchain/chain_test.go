package causalchain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/causalchain"
	"github.com/cos-systems/cos/value"
)

func logicalClock() func() int64 {
	var n int64
	return func() int64 { n++; return n }
}

func TestCapabilityResultRequiresParentCall(t *testing.T) {
	c := causalchain.New(logicalClock())

	_, err := c.Append(causalchain.CausalAction{
		ActionID:       "r1",
		PlanID:         "p1",
		ActionType:     causalchain.ActionCapabilityResult,
		ParentActionID: "missing",
	})
	require.Error(t, err)

	call, err := c.Append(causalchain.CausalAction{
		ActionID:     "c1",
		PlanID:       "p1",
		ActionType:   causalchain.ActionCapabilityCall,
		FunctionName: "ccos.math.add",
		Arguments:    []value.Value{value.Int(2), value.Int(3)},
	})
	require.NoError(t, err)

	result, err := c.Append(causalchain.CausalAction{
		ActionID:       "r1",
		PlanID:         "p1",
		ActionType:     causalchain.ActionCapabilityResult,
		ParentActionID: call.ActionID,
		Result:         &causalchain.ExecutionResult{Success: true, Value: value.Int(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, call.ActionID, result.ParentActionID)

	actions := c.ByPlan("p1")
	require.Len(t, actions, 2)
	assert.True(t, actions[0].Timestamp <= actions[1].Timestamp)
}

func TestQueryByFunctionPrefix(t *testing.T) {
	c := causalchain.New(logicalClock())
	_, _ = c.Append(causalchain.CausalAction{ActionID: "a", PlanID: "p", ActionType: causalchain.ActionCapabilityCall, FunctionName: "ccos.math.add"})
	_, _ = c.Append(causalchain.CausalAction{ActionID: "b", PlanID: "p", ActionType: causalchain.ActionCapabilityCall, FunctionName: "ccos.fs.write"})

	got := c.Query(causalchain.Filter{FunctionPrefix: "ccos.math"})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ActionID)
}
