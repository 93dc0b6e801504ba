// Package marketplace implements the Capability Marketplace (spec §4.2): the
// sole owner of the CapabilityManifest registry, and the dispatch point that
// routes execute() calls to the Executor matching a capability's provider
// type.
package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/schema"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

// Executor routes one provider kind's execute requests to its backing
// transport. Implementations must be safe for concurrent use and must not
// assume the caller holds any Marketplace lock (spec §4.2).
type Executor interface {
	Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error)
}

// Hook lets the Orchestrator observe every execute() call as a (before,
// after) pair without the Marketplace knowing anything about the Causal
// Chain (spec §4.2's "must record... via Orchestrator hook if installed").
type Hook interface {
	BeforeExecute(ctx context.Context, capabilityID string, args []value.Value)
	AfterExecute(ctx context.Context, capabilityID string, result value.Value, err error)
}

// Marketplace owns the capability registry and dispatch table.
type Marketplace struct {
	mu        sync.RWMutex
	manifests map[string]manifest.CapabilityManifest
	executors map[manifest.ProviderKind]Executor
	hook      Hook
	logger    telemetry.Logger
}

// New constructs an empty Marketplace. Register executors with
// RegisterExecutor before calling Execute for the corresponding provider kind.
func New(logger telemetry.Logger) *Marketplace {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Marketplace{
		manifests: make(map[string]manifest.CapabilityManifest),
		executors: make(map[manifest.ProviderKind]Executor),
		logger:    logger,
	}
}

// SetHook installs the Orchestrator's Causal Chain recording hook.
func (m *Marketplace) SetHook(h Hook) { m.hook = h }

// RegisterExecutor wires an Executor for provider kind k.
func (m *Marketplace) RegisterExecutor(k manifest.ProviderKind, e Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[k] = e
}

func supportedProviderKind(k manifest.ProviderKind) bool {
	switch k {
	case manifest.ProviderLocal, manifest.ProviderHTTP, manifest.ProviderMCP, manifest.ProviderA2A, manifest.ProviderRegistry:
		return true
	default:
		return false
	}
}

// Register adds man to the registry. It fails on a duplicate id unless
// force is set, and rejects manifests whose provider tag this Marketplace
// does not recognize (spec §4.2).
func (m *Marketplace) Register(man manifest.CapabilityManifest, force bool) error {
	if man.ID == "" {
		return errors.New(errors.RuntimeError, "capability manifest requires a non-empty id")
	}
	if !supportedProviderKind(man.Provider.Kind) {
		return errors.Newf(errors.RuntimeError, "capability %q: unsupported provider kind %q", man.ID, man.Provider.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.manifests[man.ID]; exists && !force {
		return errors.Newf(errors.RuntimeError, "capability %q already registered", man.ID)
	}
	m.manifests[man.ID] = man
	return nil
}

// RegisterLocal is a convenience wrapper for registering an in-process
// handler capability.
func (m *Marketplace) RegisterLocal(id, name, description string, handler manifest.LocalHandler) error {
	return m.Register(manifest.CapabilityManifest{
		ID:          id,
		Name:        name,
		Description: description,
		Provider:    manifest.ProviderType{Kind: manifest.ProviderLocal, Handler: handler},
	}, false)
}

// RegisterWithSchema registers a capability that validates its inputs before
// dispatch and its outputs before returning.
func (m *Marketplace) RegisterWithSchema(man manifest.CapabilityManifest, input, output *schema.Schema) error {
	man.InputSchema = input
	man.OutputSchema = output
	return m.Register(man, false)
}

// List returns every registered manifest in id order, for determinism.
func (m *Marketplace) List() []manifest.CapabilityManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]manifest.CapabilityManifest, 0, len(m.manifests))
	for _, man := range m.manifests {
		out = append(out, man)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up a manifest by id.
func (m *Marketplace) Get(id string) (manifest.CapabilityManifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	man, ok := m.manifests[id]
	return man, ok
}

// SearchByKeyword scores manifests whose name or description contains
// query (case-insensitive), used by the missing-capability resolver's
// discovery stage (spec §4.4). Results are ordered by descending score then
// ascending id for determinism; only scores >= threshold are returned.
func (m *Marketplace) SearchByKeyword(query string, threshold int) []manifest.CapabilityManifest {
	q := strings.ToLower(query)
	type scored struct {
		man   manifest.CapabilityManifest
		score int
	}
	m.mu.RLock()
	candidates := make([]scored, 0)
	for _, man := range m.manifests {
		score := 0
		if strings.Contains(strings.ToLower(man.Name), q) {
			score += 2
		}
		if strings.Contains(strings.ToLower(man.Description), q) {
			score++
		}
		if score >= threshold {
			candidates = append(candidates, scored{man, score})
		}
	}
	m.mu.RUnlock()
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].man.ID < candidates[j].man.ID
	})
	out := make([]manifest.CapabilityManifest, len(candidates))
	for i, c := range candidates {
		out[i] = c.man
	}
	return out
}

// Execute resolves id's provider, validates schemas, and dispatches through
// the matching Executor (spec §4.2).
func (m *Marketplace) Execute(ctx context.Context, id string, args []value.Value) (value.Value, error) {
	man, ok := m.Get(id)
	if !ok {
		return value.Value{}, errors.Newf(errors.MissingCapability, "capability %q is not registered", id)
	}

	if inputSchema, ok := man.InputSchema.(*schema.Schema); ok && inputSchema != nil {
		inputVec := value.Vector(args...)
		if issues := schema.Validate(inputSchema, inputVec); !schema.Admits(issues) {
			return value.Value{}, errors.Newf(errors.SchemaError, "capability %q input validation failed: %v", id, issues)
		}
	}

	m.mu.RLock()
	exec, ok := m.executors[man.Provider.Kind]
	m.mu.RUnlock()
	if !ok {
		return value.Value{}, errors.Newf(errors.RuntimeError, "no executor registered for provider kind %q", man.Provider.Kind)
	}

	if m.hook != nil {
		m.hook.BeforeExecute(ctx, id, args)
	}
	result, err := exec.Execute(ctx, man.Provider, args)
	if m.hook != nil {
		m.hook.AfterExecute(ctx, id, result, err)
	}
	if err != nil {
		return value.Value{}, fmt.Errorf("execute capability %q: %w", id, err)
	}

	if outputSchema, ok := man.OutputSchema.(*schema.Schema); ok && outputSchema != nil {
		if issues := schema.Validate(outputSchema, result); !schema.Admits(issues) {
			return value.Value{}, errors.Newf(errors.SchemaError, "capability %q output validation failed: %v", id, issues)
		}
	}
	return result, nil
}
