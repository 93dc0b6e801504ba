// Package a2a implements the Agent-to-Agent transport (spec §4.3): an HTTP
// JSON-RPC caller as the primary path, with a documented-unimplemented grpc
// placeholder mirroring the original's own unimplemented branch rather than
// silently dropping the protocol. executor.A2A (the capability-call
// dispatcher) delegates to the Caller interface here, grounded on the
// teacher's runtime/a2a/httpclient.Client — the same caller/provider split
// the teacher uses between transport and capability dispatch.
package a2a

import "context"

// Request is one agent invocation.
type Request struct {
	AgentID    string
	Capability string
	Inputs     any
	Timestamp  int64
}

// Response is an agent invocation's result.
type Response struct {
	Result any
}

// Error is a transport-level A2A error, exported so callers can distinguish
// a remote agent's reported error from a local network failure.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Caller dispatches a Request to an agent at a given endpoint.
type Caller interface {
	Call(ctx context.Context, endpoint string, req Request) (Response, error)
}
