package executor

import (
	"context"

	"github.com/cos-systems/cos/a2a"
	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/value"
)

// A2A dispatches a capability call to another agent via the agent-to-agent
// protocol (spec §4.3), delegating the wire transport to the a2a package.
// Only the HTTP transport is functional; grpc is a documented-unimplemented
// placeholder matching the spec's own framing of A2A as "HTTP or
// placeholder for websocket/grpc".
type A2A struct {
	http *a2a.HTTPCaller
	grpc *a2a.GRPCCaller
	now  func() int64
}

// NewA2A constructs an A2A executor. now supplies the request timestamp
// (injectable for deterministic tests).
func NewA2A(now func() int64) *A2A {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &A2A{http: a2a.NewHTTPCaller(nil), grpc: a2a.NewGRPCCaller(), now: now}
}

// Execute wraps args as an a2a.Request and dispatches it to provider.Endpoint
// via the transport named by provider.Protocol.
func (a *A2A) Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error) {
	var caller a2a.Caller
	switch provider.Protocol {
	case "", "http", "https":
		caller = a.http
	case "grpc":
		caller = a.grpc
	default:
		return value.Value{}, errors.Newf(errors.RuntimeError, "a2a protocol %q is not implemented; only http/https/grpc are recognized", provider.Protocol)
	}

	inputs := value.Vector(args...)
	inputsJSON, err := value.ToJSON(inputs)
	if err != nil {
		return value.Value{}, errors.Wrap(errors.RuntimeError, "encode a2a inputs", err)
	}

	resp, err := caller.Call(ctx, provider.Endpoint, a2a.Request{
		AgentID:    provider.AgentID,
		Capability: "execute",
		Inputs:     inputsJSON,
		Timestamp:  a.now(),
	})
	if err != nil {
		if aerr, ok := err.(*a2a.Error); ok {
			return value.Value{}, errors.Newf(errors.RuntimeError, "a2a agent %q returned error: %s", provider.AgentID, aerr.Message)
		}
		return value.Value{}, errors.Wrap(errors.NetworkError, "a2a call failed", err)
	}
	return value.FromJSON(resp.Result)
}
