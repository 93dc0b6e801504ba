package microvm

import (
	"context"

	"github.com/cos-systems/cos/value"
)

// Mock is always available and returns deterministic stubs without running
// anything. It still enforces the permission gate uniformly with every
// other provider (spec §4.8: "mock enforces nothing but still passes
// permission check").
type Mock struct {
	// Responses maps capability id to the Value the mock returns when the
	// permission check passes. A missing entry returns Nil.
	Responses map[string]value.Value
}

// NewMock constructs a Mock provider.
func NewMock(responses map[string]value.Value) *Mock {
	if responses == nil {
		responses = make(map[string]value.Value)
	}
	return &Mock{Responses: responses}
}

func (m *Mock) Name() string                             { return "mock" }
func (m *Mock) IsAvailable(ctx context.Context) bool      { return true }
func (m *Mock) Initialize(ctx context.Context) error      { return nil }
func (m *Mock) Cleanup(ctx context.Context) error         { return nil }

func (m *Mock) ExecuteProgram(ctx context.Context, ec ExecutionContext) (ExecutionResult, error) {
	if err := CheckPermission(ec); err != nil {
		return ExecutionResult{}, err
	}
	v, ok := m.Responses[ec.CapabilityID]
	if !ok {
		v = value.Nil()
	}
	return ExecutionResult{Success: true, Value: v}, nil
}
