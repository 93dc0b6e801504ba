package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/resolver"
)

// Registry implements resolver.MCPRegistry by querying a well-known MCP
// server registry's HTTP search endpoint and introspecting candidates via
// the shared JSON-RPC Client (spec §4.4 stage 3c).
type Registry struct {
	registryURL string
	http        *http.Client
}

// NewRegistry constructs a Registry against registryURL (a GET
// {registryURL}?q=<query> search endpoint returning a JSON array of
// servers).
func NewRegistry(registryURL string) *Registry {
	return &Registry{registryURL: registryURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// registryServer is one hit from the registry's search response.
type registryServer struct {
	ServerURL   string `json:"server_url"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SearchServers implements resolver.MCPRegistry.
func (r *Registry) SearchServers(ctx context.Context, query string) ([]resolver.MCPServerCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.registryURL+"?q="+query, nil)
	if err != nil {
		return nil, errors.Wrap(errors.NetworkError, "build mcp registry search request", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.NetworkError, "mcp registry search failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.NetworkError, "mcp registry returned status %d", resp.StatusCode)
	}
	var servers []registryServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, errors.Wrap(errors.RuntimeError, "decode mcp registry response", err)
	}
	out := make([]resolver.MCPServerCandidate, len(servers))
	for i, s := range servers {
		out[i] = resolver.MCPServerCandidate{ServerURL: s.ServerURL, Name: s.Name, Description: s.Description}
	}
	return out, nil
}

// ListTools implements resolver.MCPRegistry by introspecting serverURL
// directly through the shared JSON-RPC Client.
func (r *Registry) ListTools(ctx context.Context, serverURL string) ([]string, error) {
	client := New(serverURL, Options{})
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names, nil
}
