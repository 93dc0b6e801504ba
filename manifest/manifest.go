// Package manifest implements the CapabilityManifest entity and the
// ProviderType tagged sum (spec §3). The Marketplace is the sole owner of
// the manifest registry; this package only defines the shapes it stores.
package manifest

import "time"

// ProviderKind discriminates the ProviderType tagged sum. Executor dispatch
// is keyed on this tag (spec §4.2); an unknown tag is a fatal registration
// error.
type ProviderKind string

const (
	ProviderLocal    ProviderKind = "Local"
	ProviderHTTP     ProviderKind = "Http"
	ProviderMCP      ProviderKind = "MCP"
	ProviderA2A      ProviderKind = "A2A"
	ProviderRegistry ProviderKind = "Registry"
)

// LocalHandler is invoked directly by the Local executor with the
// capability's arguments, encoded as value.Value but kept as `any` here to
// avoid a value<->manifest import cycle; the marketplace package narrows it.
type LocalHandler = any

// ProviderType is the tagged union of capability backends. Exactly one of
// the kind-specific fields is populated according to Kind.
type ProviderType struct {
	Kind ProviderKind

	// Local
	Handler LocalHandler

	// Http
	BaseURL    string
	AuthBearer string
	Timeout    time.Duration

	// MCP
	ServerURL string
	ToolName  string
	// Timeout shared with Http

	// A2A
	AgentID  string
	Endpoint string
	Protocol string // "http", "https", "websocket", "ws", "wss", "grpc"
	// Timeout shared with Http

	// Registry
	RegistryRef  string
	CapabilityID string
}

// Provenance records where a manifest came from and its custody chain, for
// audit and attestation.
type Provenance struct {
	Source       string
	Version      string
	ContentHash  string
	CustodyChain []string
	RegisteredAt time.Time
}

// CapabilityManifest is the complete registration record for a capability.
type CapabilityManifest struct {
	ID           string
	Name         string
	Description  string
	Version      string
	Provider     ProviderType
	InputSchema  any // *schema.Schema
	OutputSchema any
	Attestation  string
	Provenance   Provenance
	Permissions  []string
	Metadata     map[string]string
}
