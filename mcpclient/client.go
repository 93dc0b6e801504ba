// Package mcpclient implements the JSON-RPC 2.0 HTTP caller used to reach
// external MCP servers (spec §4.3: an MCP provider dispatches a capability
// call as tools/call against a server URL). It is the single JSON-RPC
// transport shared by executor.MCP (capability-call dispatch) and
// resolver's MCPRegistry discovery sub-stage (spec §4.4 stage 3c), grounded
// on the teacher's features/mcp/runtime/{httpcaller,rpc}.go transport.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cos-systems/cos/errors"
)

// DefaultProtocolVersion is the MCP protocol version advertised during
// initialize when Options.ProtocolVersion is unset.
const DefaultProtocolVersion = "2024-11-05"

// Options configures a Client.
type Options struct {
	HTTPClient      *http.Client
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
}

// Client is a JSON-RPC 2.0 caller over HTTP, one per MCP server URL.
type Client struct {
	serverURL string
	http      *http.Client
	id        uint64
	// session holds the Mcp-Session-Id the server returned, sent on every
	// later request.
	session atomic.Value
}

// New constructs a Client bound to serverURL. Unlike the teacher's
// NewHTTPCaller, this constructor does not perform the initialize handshake
// eagerly: executor.MCP and resolver's discovery sub-stage both call a
// single server URL at a time and do not hold a long-lived session, so
// Initialize is exposed as an explicit method instead.
func New(serverURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{serverURL: serverURL, http: httpClient}
}

// Tool is one entry from a tools/list response.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Initialize performs the MCP initialize handshake.
func (c *Client) Initialize(ctx context.Context, opts Options) error {
	protocol := opts.ProtocolVersion
	if protocol == "" {
		protocol = DefaultProtocolVersion
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = "cos"
	}
	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = "dev"
	}
	payload := map[string]any{
		"protocolVersion": protocol,
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
	}
	return c.call(ctx, "initialize", payload, nil)
}

// ListTools invokes tools/list.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallResponse is a normalized tools/call result.
type CallResponse struct {
	Result  json.RawMessage
	IsError bool
}

// CallTool invokes tools/call with the given tool name and named arguments.
func (c *Client) CallTool(ctx context.Context, tool string, arguments any) (CallResponse, error) {
	params := map[string]any{"name": tool, "arguments": arguments}
	var result struct {
		Content []struct {
			Type string          `json:"type"`
			Text *string         `json:"text"`
			JSON json.RawMessage `json:"json,omitempty"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return CallResponse{}, err
	}
	if len(result.Content) == 0 {
		return CallResponse{}, errors.New(errors.NetworkError, "mcp tools/call returned no content")
	}
	item := result.Content[0]
	var raw json.RawMessage
	switch {
	case item.JSON != nil:
		raw = item.JSON
	case item.Text != nil && json.Valid([]byte(*item.Text)):
		raw = json.RawMessage(*item.Text)
	case item.Text != nil:
		marshaled, err := json.Marshal(*item.Text)
		if err != nil {
			return CallResponse{}, err
		}
		raw = marshaled
	default:
		return CallResponse{}, errors.New(errors.NetworkError, "mcp tool returned no text/json content")
	}
	return CallResponse{Result: raw, IsError: result.IsError}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func (c *Client) nextID() uint64 { return atomic.AddUint64(&c.id, 1) }

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params})
	if err != nil {
		return errors.Wrap(errors.RuntimeError, "encode mcp json-rpc request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.NetworkError, "build mcp request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sid, _ := c.session.Load().(string); sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.NetworkError, "mcp request failed", err)
	}
	defer resp.Body.Close()
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.session.Store(sid)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.NetworkError, "read mcp response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.NetworkError, "mcp server returned status %d: %s", resp.StatusCode, string(raw))
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return errors.Wrap(errors.RuntimeError, "decode mcp json-rpc response", err)
	}
	if rpcResp.Error != nil {
		return errors.Wrap(errors.NetworkError, "mcp rpc error", rpcResp.Error)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrap(errors.RuntimeError, "decode mcp result", err)
		}
	}
	return nil
}
