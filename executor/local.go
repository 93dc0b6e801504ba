// Package executor implements the provider-kind dispatch table (spec §4.3):
// one Executor per ProviderKind, each a pure service object owning its own
// transport state, routed to by the Marketplace via manifest.ProviderKind.
package executor

import (
	"context"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/value"
)

// LocalHandlerFunc is the shape a Local capability's handler must satisfy.
type LocalHandlerFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// Local invokes a capability's handler directly within the host process.
type Local struct{}

// NewLocal constructs a Local executor.
func NewLocal() *Local { return &Local{} }

// Execute dispatches to provider.Handler, which must be a LocalHandlerFunc.
func (l *Local) Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error) {
	fn, ok := provider.Handler.(LocalHandlerFunc)
	if !ok || fn == nil {
		return value.Value{}, errors.New(errors.RuntimeError, "local capability has no valid handler")
	}
	return fn(ctx, args)
}
