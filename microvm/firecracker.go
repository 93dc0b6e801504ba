package microvm

import (
	"context"
	"runtime"

	"github.com/cos-systems/cos/errors"
)

// Firecracker isolates program execution in a Linux microVM. Launching and
// managing real Firecracker VMs requires a kernel image, rootfs, and a
// running firecracker binary wired to a jailer — infrastructure this
// substrate does not provision. The provider enforces the permission gate
// identically to every other backend and reports itself unavailable
// everywhere except Linux, documenting rather than silently skipping the
// unimplemented execution path (spec §4.8).
type Firecracker struct{}

// NewFirecracker constructs a Firecracker provider shape.
func NewFirecracker() *Firecracker { return &Firecracker{} }

func (f *Firecracker) Name() string { return "firecracker" }

func (f *Firecracker) IsAvailable(ctx context.Context) bool {
	return runtime.GOOS == "linux"
}

func (f *Firecracker) Initialize(ctx context.Context) error {
	if runtime.GOOS != "linux" {
		return errors.New(errors.RuntimeError, "firecracker provider requires linux")
	}
	return nil
}

func (f *Firecracker) Cleanup(ctx context.Context) error { return nil }

func (f *Firecracker) ExecuteProgram(ctx context.Context, ec ExecutionContext) (ExecutionResult, error) {
	if err := CheckPermission(ec); err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{}, errors.New(errors.RuntimeError, "firecracker provider: VM lifecycle management is not implemented")
}
