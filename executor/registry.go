package executor

import (
	"context"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/microvm"
	"github.com/cos-systems/cos/value"
)

// Registry forwards a capability call to an internal capability registry,
// executing it inside a MicroVM provider with the permission gate applied
// (spec §4.3).
type Registry struct {
	provider    microvm.Provider
	permissions map[string][]string // registry_ref -> allowed capability ids
}

// NewRegistry constructs a Registry executor running programs through
// provider. permissions maps a registry_ref to the capability ids permitted
// to execute under it.
func NewRegistry(provider microvm.Provider, permissions map[string][]string) *Registry {
	if permissions == nil {
		permissions = make(map[string][]string)
	}
	return &Registry{provider: provider, permissions: permissions}
}

func (r *Registry) Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error) {
	if r.provider == nil {
		return value.Value{}, errors.New(errors.RuntimeError, "registry executor has no microvm provider configured")
	}
	ec := microvm.ExecutionContext{
		Program:               provider.RegistryRef,
		CapabilityID:          provider.CapabilityID,
		CapabilityPermissions: r.permissions[provider.RegistryRef],
		Args:                  args,
	}
	res, err := r.provider.ExecuteProgram(ctx, ec)
	if err != nil {
		return value.Value{}, err
	}
	if !res.Success {
		return value.Value{}, errors.Newf(errors.RuntimeError, "registry capability %q execution failed", provider.CapabilityID)
	}
	return res.Value, nil
}
