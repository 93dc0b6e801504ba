package microvm

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/cos-systems/cos/errors"
)

// GVisor isolates program execution inside a gVisor (runsc) user-space
// kernel sandbox. It is available only where the runsc binary is on PATH;
// ExecuteProgram's runsc invocation is not implemented (no gVisor SDK is
// wired into this module's dependency stack — see DESIGN.md), but the
// permission gate and availability probe are real so callers can detect the
// backend and fail closed rather than silently falling back to a weaker
// isolation level.
type GVisor struct{}

// NewGVisor constructs a GVisor provider shape.
func NewGVisor() *GVisor { return &GVisor{} }

func (g *GVisor) Name() string { return "gvisor" }

func (g *GVisor) IsAvailable(ctx context.Context) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := exec.LookPath("runsc")
	return err == nil
}

func (g *GVisor) Initialize(ctx context.Context) error {
	if !g.IsAvailable(ctx) {
		return errors.New(errors.RuntimeError, "gvisor provider: runsc not found on PATH")
	}
	return nil
}

func (g *GVisor) Cleanup(ctx context.Context) error { return nil }

func (g *GVisor) ExecuteProgram(ctx context.Context, ec ExecutionContext) (ExecutionResult, error) {
	if err := CheckPermission(ec); err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{}, errors.New(errors.RuntimeError, "gvisor provider: runsc container execution is not implemented")
}
