// Package microvm implements the MicroVM provider abstraction (spec §4.8):
// a uniform isolation contract enforced identically regardless of backend,
// with permission checking that is never advisory.
package microvm

import (
	"context"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/value"
)

// NetworkPolicy governs outbound network access for a running program.
type NetworkPolicy string

const (
	NetworkDenied    NetworkPolicy = "Denied"
	NetworkAllowList NetworkPolicy = "AllowList"
	NetworkDenyList  NetworkPolicy = "DenyList"
	NetworkFull      NetworkPolicy = "Full"
)

// FilesystemPolicy governs filesystem access for a running program.
type FilesystemPolicy string

const (
	FSNone      FilesystemPolicy = "None"
	FSReadOnly  FilesystemPolicy = "ReadOnly"
	FSReadWrite FilesystemPolicy = "ReadWrite"
	FSFull      FilesystemPolicy = "Full"
)

// ResourceConfig bounds what a program may consume and reach, and what it
// may see in its environment.
type ResourceConfig struct {
	TimeoutMS  int64
	MemoryMB   int64
	CPUFrac    float64
	Network    NetworkPolicy
	NetworkSet []string // AllowList/DenyList members, host:port or CIDR
	FS         FilesystemPolicy
	FSPaths    []string
	Env        map[string]string
}

// ExecutionContext carries everything a provider needs to run (and gate) one
// program invocation.
type ExecutionContext struct {
	ExecutionID          string
	Program              string
	CapabilityID         string
	CapabilityPermissions []string
	Args                 []value.Value
	Config               ResourceConfig
	RuntimeContext       map[string]string
}

// ExecutionResult is the outcome of running a program inside a MicroVM.
type ExecutionResult struct {
	Success bool
	Value   value.Value
	Stdout  string
	Stderr  string
}

// Provider is the isolation backend contract (spec §4.8).
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Initialize(ctx context.Context) error
	ExecuteProgram(ctx context.Context, ec ExecutionContext) (ExecutionResult, error)
	Cleanup(ctx context.Context) error
}

// CheckPermission enforces the uniform security gate every provider must
// apply before running a program: a capability not present in
// CapabilityPermissions is always rejected, regardless of backend (spec
// §4.8 and §8's MicroVM testable property).
func CheckPermission(ec ExecutionContext) error {
	if ec.CapabilityID == "" {
		return nil
	}
	for _, allowed := range ec.CapabilityPermissions {
		if allowed == ec.CapabilityID {
			return nil
		}
	}
	return errors.Newf(errors.SecurityViolation, "Security violation: capability %q is not in the permitted set", ec.CapabilityID)
}
