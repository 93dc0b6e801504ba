package executor

import (
	"context"
	"encoding/json"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/mcpclient"
	"github.com/cos-systems/cos/value"
)

// MCP dispatches a capability call as a JSON-RPC 2.0 request to an MCP
// server over HTTP (spec §4.3), via the shared mcpclient transport. An
// empty or "*" tool_name is documented policy (not a bug, see DESIGN.md):
// the executor lists the server's tools and calls the first one.
type MCP struct {
	opts mcpclient.Options
}

// NewMCP constructs an MCP executor.
func NewMCP() *MCP { return &MCP{} }

// Execute invokes a single MCP tool. args is interpreted as a single Map of
// named arguments, per spec §4.3 and §6 ("MCP named args (single Map) -> JSON
// object with keyword colons stripped").
func (m *MCP) Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error) {
	client := mcpclient.New(provider.ServerURL, m.opts)

	toolName := provider.ToolName
	if toolName == "" || toolName == "*" {
		tools, err := client.ListTools(ctx)
		if err != nil {
			return value.Value{}, err
		}
		if len(tools) == 0 {
			return value.Value{}, errors.New(errors.MissingCapability, "mcp server exposes no tools")
		}
		toolName = tools[0].Name
	}

	var namedArgs value.Value
	if len(args) > 0 {
		namedArgs = args[0]
	} else {
		namedArgs = value.EmptyMap()
	}
	argsJSON, err := value.ToJSON(namedArgs)
	if err != nil {
		return value.Value{}, errors.Wrap(errors.RuntimeError, "encode mcp tool arguments", err)
	}

	resp, err := client.CallTool(ctx, toolName, argsJSON)
	if err != nil {
		return value.Value{}, err
	}
	if resp.IsError {
		return value.Value{}, errors.Newf(errors.NetworkError, "mcp tool %q returned an error result", toolName)
	}
	var raw any
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return value.Value{}, errors.Wrap(errors.RuntimeError, "decode mcp tool result", err)
	}
	return value.FromJSON(raw)
}
