package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPCaller implements Caller over JSON-RPC 2.0 HTTP, grounded on the
// teacher's runtime/a2a/httpclient.Client request-id counter and envelope
// shape.
type HTTPCaller struct {
	http *http.Client
	id   uint64
}

// NewHTTPCaller constructs an HTTPCaller. client may be nil to use a
// default client with a 30s timeout.
func NewHTTPCaller(client *http.Client) *HTTPCaller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPCaller{http: client}
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

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, endpoint string, req Request) (Response, error) {
	id := atomic.AddUint64(&c.id, 1)
	params := map[string]any{
		"agent_id":   req.AgentID,
		"capability": req.Capability,
		"inputs":     req.Inputs,
		"timestamp":  req.Timestamp,
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: "execute", ID: id, Params: params})
	if err != nil {
		return Response{}, fmt.Errorf("a2a: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("a2a: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("a2a: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("a2a: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("a2a: agent %q returned status %d: %s", req.AgentID, resp.StatusCode, string(raw))
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return Response{}, fmt.Errorf("a2a: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return Response{}, &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	var result any
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			return Response{}, fmt.Errorf("a2a: decode result: %w", err)
		}
	}
	return Response{Result: result}, nil
}
