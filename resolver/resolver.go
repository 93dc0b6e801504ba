// Package resolver implements the Missing-Capability Resolver (spec §4.4):
// given a MissingCapabilityRequest, produce a ResolutionResult while
// emitting a structured, flat-appended timeline of ResolutionEvents. The
// pipeline is ordered and short-circuits on the first stage that succeeds:
// start, alias lookup, discovery (marketplace, local manifests, MCP
// registry + introspection), heuristic match, tool selector, LLM selection,
// LLM synthesis, result.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/validate"
)

// MissingCapabilityRequest is the resolver's input (spec §4.4).
type MissingCapabilityRequest struct {
	CapabilityID string
	// Context carries free-form hints (intent goal, keywords); also the
	// extension point for a future planner's coverage/signal hints (spec
	// SPEC_FULL.md §4 "Coverage / signal hints for planning" — documented,
	// not consumed by the core pipeline today).
	Context map[string]string
}

// Status discriminates a ResolutionResult's outcome.
type Status string

const (
	StatusResolved          Status = "Resolved"
	StatusFailed            Status = "Failed"
	StatusPermanentlyFailed Status = "PermanentlyFailed"
)

// Result is the resolver's output (spec §4.4's three-way ResolutionResult).
type Result struct {
	Status       Status
	CapabilityID string            // set when Status == StatusResolved
	Method       string            // "already_registered", "alias", "discovery", "llm_selection", "llm_synthesis"
	ProviderInfo map[string]string // set when Status == StatusResolved
	Reason       string            // set when Status != StatusResolved
	Retryable    bool              // set when Status == StatusFailed
}

// Event is one entry in the resolution timeline (spec §4.4: "Every stage
// emits at least one event... nesting is conveyed by the declared depth
// only").
type Event struct {
	Stage    string
	Depth    int
	Detail   map[string]string
	Sequence int64
}

// Observer receives Events in order as the pipeline runs.
type Observer interface {
	OnEvent(ev Event)
}

type noopObserver struct{}

func (noopObserver) OnEvent(Event) {}

// Marketplace is the discovery surface the resolver needs from the
// Capability Marketplace (spec §4.4 stage 3a). Kept narrow and structural so
// this package does not import the marketplace package's Executor/Hook
// machinery it has no use for.
type Marketplace interface {
	Get(id string) (manifest.CapabilityManifest, bool)
	SearchByKeyword(query string, threshold int) []manifest.CapabilityManifest
	Register(man manifest.CapabilityManifest, force bool) error
}

// LocalManifestSource scans a configured directory of serialized manifests
// (spec §4.4 stage 3b).
type LocalManifestSource interface {
	Scan(ctx context.Context) ([]manifest.CapabilityManifest, error)
}

// MCPServerCandidate is one hit from an MCP registry search.
type MCPServerCandidate struct {
	ServerURL   string
	Name        string
	Description string
}

// MCPRegistry searches an external MCP registry for servers whose tools
// might satisfy the request, and introspects a candidate server's tool list
// (spec §4.4 stage 3c).
type MCPRegistry interface {
	SearchServers(ctx context.Context, query string) ([]MCPServerCandidate, error)
	ListTools(ctx context.Context, serverURL string) ([]string, error)
}

// LLMRanking is one LLM-scored candidate (spec §4.4 stage 6's "structured
// JSON response").
type LLMRanking struct {
	CapabilityID string
	Score        float64
}

// LLMSelector ranks discovery candidates with an LLM (spec §4.4 stage 6).
// Satisfied structurally by an llm.Producer-backed adapter; this package
// does not import llm to avoid coupling the pipeline to a specific model
// vendor surface.
type LLMSelector interface {
	Rank(ctx context.Context, request MissingCapabilityRequest, candidateIDs []string) ([]LLMRanking, error)
}

// LLMSynthesizer asks an LLM to produce a `(capability "id" { ... })` form
// satisfying request (spec §4.4 stage 7, last resort).
type LLMSynthesizer interface {
	Synthesize(ctx context.Context, request MissingCapabilityRequest, schemaHint string) (source string, err error)
}

// candidate is a scored discovery hit threaded through heuristic match and
// tool selection.
type candidate struct {
	man            manifest.CapabilityManifest
	score          float64
	schemaComplete bool
}

// Resolver runs the missing-capability pipeline.
type Resolver struct {
	marketplace    Marketplace
	localManifests LocalManifestSource
	mcpRegistry    MCPRegistry
	llmSelector    LLMSelector
	llmSynthesizer LLMSynthesizer
	harness        *validate.Harness
	audit          *approval.Queue
	aliases        *AliasCache
	observer       Observer
	logger         telemetry.Logger

	maxAttempts int
	keywordGate int

	mu       sync.Mutex
	inFlight map[string]*inFlightCall
	seq      int64
}

type inFlightCall struct {
	done   chan struct{}
	result Result
	err    error
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLocalManifests(s LocalManifestSource) Option { return func(r *Resolver) { r.localManifests = s } }
func WithMCPRegistry(m MCPRegistry) Option            { return func(r *Resolver) { r.mcpRegistry = m } }
func WithLLMSelector(s LLMSelector) Option            { return func(r *Resolver) { r.llmSelector = s } }
func WithLLMSynthesizer(s LLMSynthesizer) Option      { return func(r *Resolver) { r.llmSynthesizer = s } }
func WithValidationHarness(h *validate.Harness) Option { return func(r *Resolver) { r.harness = h } }
func WithAuditQueue(q *approval.Queue) Option         { return func(r *Resolver) { r.audit = q } }
func WithObserver(o Observer) Option                  { return func(r *Resolver) { r.observer = o } }
func WithLogger(l telemetry.Logger) Option            { return func(r *Resolver) { r.logger = l } }
func WithMaxAttempts(n int) Option                    { return func(r *Resolver) { r.maxAttempts = n } }
func WithKeywordThreshold(n int) Option               { return func(r *Resolver) { r.keywordGate = n } }

// New constructs a Resolver over a Marketplace and a persistent AliasCache
// (spec §4.4's alias lookup and its demotion heuristic both require a
// durable cache, not an in-process map).
func New(mp Marketplace, aliases *AliasCache, opts ...Option) *Resolver {
	r := &Resolver{
		marketplace: mp,
		aliases:     aliases,
		harness:     validate.NewHarness(10, nil, nil),
		observer:    noopObserver{},
		logger:      telemetry.NewNoopLogger(),
		maxAttempts: 5,
		keywordGate: 1,
		inFlight:    make(map[string]*inFlightCall),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the pipeline for req, coalescing concurrent requests for the
// same capability id (spec §4.4's "Concurrency": "the second caller attaches
// to the first's in-flight resolution and receives the same result").
func (r *Resolver) Resolve(ctx context.Context, req MissingCapabilityRequest) (Result, error) {
	r.mu.Lock()
	if call, ok := r.inFlight[req.CapabilityID]; ok {
		r.mu.Unlock()
		<-call.done
		return call.result, call.err
	}
	call := &inFlightCall{done: make(chan struct{})}
	r.inFlight[req.CapabilityID] = call
	r.mu.Unlock()

	call.result, call.err = r.resolveOnce(ctx, req)

	r.mu.Lock()
	delete(r.inFlight, req.CapabilityID)
	r.mu.Unlock()
	close(call.done)
	return call.result, call.err
}

func (r *Resolver) emit(stage string, depth int, detail map[string]string) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()
	r.observer.OnEvent(Event{Stage: stage, Depth: depth, Detail: detail, Sequence: seq})
}

func (r *Resolver) resolveOnce(ctx context.Context, req MissingCapabilityRequest) (Result, error) {
	// --- 1. Start (depth 0) ---
	r.emit("start", 0, map[string]string{"capability_id": req.CapabilityID})

	if man, ok := r.marketplace.Get(req.CapabilityID); ok {
		r.emit("result", 1, map[string]string{"method": "already_registered"})
		return resolved(man.ID, "already_registered", nil), nil
	}

	// --- 2. Alias lookup (depth 1) ---
	if r.aliases != nil {
		if target, ok, err := r.aliases.Lookup(ctx, req.CapabilityID); err != nil {
			r.logger.Warn(ctx, "alias lookup failed", "error", err)
		} else if ok {
			if _, exists := r.marketplace.Get(target); exists {
				r.emit("alias_lookup", 1, map[string]string{"target": target, "hit": "true"})
				r.emit("result", 1, map[string]string{"method": "alias", "capability_id": target})
				return resolved(target, "alias", nil), nil
			}
			// Alias points at a capability no longer registered: dismiss it
			// so readers never observe an alias referencing a missing
			// capability (spec §4.4's persistence invariant).
			_ = r.aliases.Dismiss(ctx, req.CapabilityID)
		}
		r.emit("alias_lookup", 1, map[string]string{"hit": "false"})
	}

	// --- 3. Discovery (depth 1, sub-stages depth 2) ---
	candidates := r.discover(ctx, req)

	// --- 4. Heuristic match (depth 2) ---
	ranked := r.heuristicMatch(req, candidates)

	// --- 5. Tool selector (depth 3) ---
	if len(ranked) > 0 {
		chosen := r.selectTool(ranked)
		r.emit("tool_selector", 3, map[string]string{"chosen": chosen.man.ID, "score": fmt.Sprintf("%.2f", chosen.score)})
		r.emit("result", 1, map[string]string{"method": "discovery", "capability_id": chosen.man.ID})
		return resolved(chosen.man.ID, "discovery", map[string]string{"provider_kind": string(chosen.man.Provider.Kind)}), nil
	}

	// --- 6. LLM selection (depth 3) ---
	if r.llmSelector != nil {
		if id, ok := r.llmSelect(ctx, req, candidates); ok {
			r.emit("result", 1, map[string]string{"method": "llm_selection", "capability_id": id})
			return resolved(id, "llm_selection", nil), nil
		}
	}

	// --- 7. LLM synthesis (depth 3, last resort) ---
	if r.llmSynthesizer != nil {
		if res, synthesized := r.llmSynthesize(ctx, req); synthesized {
			r.emit("result", 1, map[string]string{"method": res.Method, "capability_id": res.CapabilityID})
			return res, nil
		}
	}

	// --- 8. Result: failure ---
	reason := fmt.Sprintf("no capability found or synthesized for %q", req.CapabilityID)
	r.emit("result", 1, map[string]string{"outcome": "permanently_failed", "reason": reason})
	return Result{Status: StatusPermanentlyFailed, Reason: reason}, nil
}

func resolved(id, method string, providerInfo map[string]string) Result {
	return Result{Status: StatusResolved, CapabilityID: id, Method: method, ProviderInfo: providerInfo}
}

// discover runs stage 3's marketplace/local-manifest/MCP-registry sub-stages
// (depth 2), returning every candidate manifest surfaced.
func (r *Resolver) discover(ctx context.Context, req MissingCapabilityRequest) []candidate {
	var out []candidate

	keyword := req.CapabilityID
	if goal, ok := req.Context["goal"]; ok && goal != "" {
		keyword = goal
	}
	hits := r.marketplace.SearchByKeyword(lastSegment(keyword), r.keywordGate)
	r.emit("discovery.marketplace", 2, map[string]string{"hits": fmt.Sprintf("%d", len(hits))})
	for _, h := range hits {
		out = append(out, candidate{man: h, schemaComplete: h.InputSchema != nil && h.OutputSchema != nil})
	}

	if r.localManifests != nil {
		manifests, err := r.localManifests.Scan(ctx)
		if err != nil {
			r.logger.Warn(ctx, "local manifest scan failed", "error", err)
		}
		matched := 0
		for _, m := range manifests {
			if matchesKeyword(m, keyword) {
				out = append(out, candidate{man: m, schemaComplete: m.InputSchema != nil && m.OutputSchema != nil})
				matched++
			}
		}
		r.emit("discovery.local_manifests", 2, map[string]string{"hits": fmt.Sprintf("%d", matched)})
	}

	if r.mcpRegistry != nil {
		servers, err := r.mcpRegistry.SearchServers(ctx, keyword)
		if err != nil {
			r.logger.Warn(ctx, "mcp registry search failed", "error", err)
		}
		r.emit("discovery.mcp_registry", 2, map[string]string{"servers": fmt.Sprintf("%d", len(servers))})
		for _, s := range servers {
			tools, err := r.mcpRegistry.ListTools(ctx, s.ServerURL)
			if err != nil {
				continue
			}
			r.emit("discovery.mcp_introspection", 3, map[string]string{"server": s.ServerURL, "tools": fmt.Sprintf("%d", len(tools))})
			for _, tool := range tools {
				out = append(out, candidate{man: manifest.CapabilityManifest{
					ID:          s.ServerURL + "#" + tool,
					Name:        tool,
					Description: s.Description,
					Provider:    manifest.ProviderType{Kind: manifest.ProviderMCP, ServerURL: s.ServerURL, ToolName: tool},
				}})
			}
		}
	}

	return out
}

func lastSegment(id string) string {
	if idx := strings.LastIndex(id, "."); idx >= 0 && idx+1 < len(id) {
		return id[idx+1:]
	}
	return id
}

func matchesKeyword(m manifest.CapabilityManifest, keyword string) bool {
	k := strings.ToLower(lastSegment(keyword))
	return strings.Contains(strings.ToLower(m.Name), k) || strings.Contains(strings.ToLower(m.Description), k) || strings.Contains(strings.ToLower(m.ID), k)
}

// heuristicMatch ranks discovery hits lexically against the request's
// keywords/goal (spec §4.4 stage 4).
func (r *Resolver) heuristicMatch(req MissingCapabilityRequest, candidates []candidate) []candidate {
	if len(candidates) == 0 {
		return nil
	}
	target := strings.ToLower(lastSegment(req.CapabilityID))
	for i := range candidates {
		score := 0.0
		if strings.Contains(strings.ToLower(candidates[i].man.ID), target) {
			score += 3
		}
		if strings.Contains(strings.ToLower(candidates[i].man.Name), target) {
			score += 2
		}
		if strings.Contains(strings.ToLower(candidates[i].man.Description), target) {
			score += 1
		}
		candidates[i].score = score
	}
	r.emit("heuristic_match", 2, map[string]string{"candidates": fmt.Sprintf("%d", len(candidates))})
	return candidates
}

// selectTool deterministically picks one viable candidate when several
// exist (spec §4.4 stage 5): higher score first, ties broken by
// schema-completeness, then shorter id, then earliest registered_at.
func (r *Resolver) selectTool(candidates []candidate) candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.schemaComplete != b.schemaComplete {
			return a.schemaComplete
		}
		if len(a.man.ID) != len(b.man.ID) {
			return len(a.man.ID) < len(b.man.ID)
		}
		return a.man.Provenance.RegisteredAt.Before(b.man.Provenance.RegisteredAt)
	})
	return candidates[0]
}

// llmSelect asks the configured LLMSelector to rank candidates and merges
// its scores with the deterministic heuristic scores by max (spec §4.4
// stage 6).
func (r *Resolver) llmSelect(ctx context.Context, req MissingCapabilityRequest, candidates []candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.man.ID
	}
	rankings, err := r.llmSelector.Rank(ctx, req, ids)
	if err != nil || len(rankings) == 0 {
		r.emit("llm_selection", 3, map[string]string{"outcome": "no_ranking"})
		return "", false
	}
	heuristic := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		heuristic[c.man.ID] = c.score
	}
	for i := range rankings {
		if h := heuristic[rankings[i].CapabilityID]; h > rankings[i].Score {
			rankings[i].Score = h
		}
	}
	best := rankings[0]
	for _, rk := range rankings[1:] {
		if rk.Score > best.Score {
			best = rk
		}
	}
	r.emit("llm_selection", 3, map[string]string{"chosen": best.CapabilityID, "score": fmt.Sprintf("%.2f", best.Score)})
	return best.CapabilityID, true
}

// llmSynthesize asks the LLM to produce a capability form, validates it
// through the Harness, and on admission registers it in the Marketplace and
// persists an alias + audit entry atomically with respect to readers (spec
// §4.4 stage 7 and "Persistence").
func (r *Resolver) llmSynthesize(ctx context.Context, req MissingCapabilityRequest) (Result, bool) {
	schemaHint := fmt.Sprintf("capability id must equal %q", req.CapabilityID)
	source, err := r.llmSynthesizer.Synthesize(ctx, req, schemaHint)
	if err != nil {
		r.emit("llm_synthesis", 3, map[string]string{"outcome": "error", "detail": err.Error()})
		return Result{}, false
	}

	man := manifest.CapabilityManifest{
		ID:          req.CapabilityID,
		Name:        req.CapabilityID,
		Description: "synthesized capability",
		Provider:    manifest.ProviderType{Kind: manifest.ProviderLocal},
	}
	// Count the :input map's top-level elements (two per key) for MaxParameterCountPolicy.
	elems := 0
	if i := strings.Index(source, ":input"); i >= 0 {
		depth, prev := 0, ' '
		for _, ch := range source[i+len(":input"):] {
			if depth == 1 && !strings.ContainsRune(" \t\n,}", ch) && strings.ContainsRune(" \t\n,{", prev) {
				elems++
			}
			if depth += strings.Count("{[(", string(ch)) - strings.Count("}])", string(ch)); depth == 0 && ch == '}' {
				break
			}
			prev = ch
		}
	}
	man.Metadata = map[string]string{"input_param_count": fmt.Sprint(elems / 2)}
	result := r.harness.Validate(validate.Candidate{Manifest: man, Source: source})
	if !result.Admit {
		r.emit("llm_synthesis", 3, map[string]string{"outcome": "rejected", "detail": summarizeIssues(result.Issues)})
		return Result{}, false
	}

	if err := r.marketplace.Register(man, false); err != nil {
		r.emit("llm_synthesis", 3, map[string]string{"outcome": "register_failed", "detail": err.Error()})
		return Result{}, false
	}
	if r.aliases != nil {
		// The capability is registered before the alias is persisted (this
		// call ordering), so no reader can ever observe the alias pointing
		// at a missing capability (spec §4.4's persistence invariant).
		_ = r.aliases.Put(ctx, req.CapabilityID, man.ID)
	}
	if r.audit != nil {
		_, _ = r.audit.Enqueue(ctx, approval.Request{
			ApprovalID:   "synth-" + man.ID,
			Category:     approval.CategoryCapabilityWrite,
			Status:       approval.StatusApproved,
			CapabilityID: man.ID,
			Reason:       "synthesized via llm_synthesis",
		})
	}

	r.emit("llm_synthesis", 3, map[string]string{"outcome": "admitted", "capability_id": man.ID})
	return resolved(man.ID, "llm_synthesis", nil), true
}

func summarizeIssues(issues []validate.Issue) string {
	var errs []string
	for _, iss := range issues {
		if iss.Severity == validate.Error {
			errs = append(errs, iss.Message)
		}
	}
	return strings.Join(errs, "; ")
}

// AttemptsExceeded reports whether n prior attempts at the same capability id
// should be treated as permanently failed rather than retried (spec §5
// "Backpressure").
func (r *Resolver) AttemptsExceeded(n int) bool { return n > r.maxAttempts }
