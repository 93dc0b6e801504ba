package resolver_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/marketplace"
	"github.com/cos-systems/cos/resolver"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/validate"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []resolver.Event
}

func (o *recordingObserver) OnEvent(ev resolver.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) stages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	for i, ev := range o.events {
		out[i] = ev.Stage
	}
	return out
}

// TestResolveViaAlias grounds spec §8 scenario 3: an aliased capability
// resolves without touching discovery.
func TestResolveViaAlias(t *testing.T) {
	mp := marketplace.New(telemetry.NewNoopLogger())
	require.NoError(t, mp.RegisterLocal("ccos.demo.weather", "weather", "demo weather lookup", nil))

	kv := newMemKV()
	aliases := resolver.NewAliasCache(kv)
	require.NoError(t, aliases.Put(context.Background(), "external.api.weather", "ccos.demo.weather"))

	obs := &recordingObserver{}
	r := resolver.New(mp, aliases, resolver.WithObserver(obs))

	res, err := r.Resolve(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "external.api.weather"})
	require.NoError(t, err)
	assert.Equal(t, resolver.StatusResolved, res.Status)
	assert.Equal(t, "ccos.demo.weather", res.CapabilityID)
	assert.Equal(t, "alias", res.Method)

	stages := obs.stages()
	require.Len(t, stages, 3)
	assert.Equal(t, []string{"start", "alias_lookup", "result"}, stages)
	for _, s := range stages {
		assert.NotContains(t, s, "discovery")
	}
}

// TestResolveSynthesisRejectedByPolicy grounds spec §8 scenario 4: a
// synthesized 6-parameter capability is rejected by MaxParameterCountPolicy(5)
// and the pipeline falls through to PermanentlyFailed.
func TestResolveSynthesisRejectedByPolicy(t *testing.T) {
	mp := marketplace.New(telemetry.NewNoopLogger())
	kv := newMemKV()
	aliases := resolver.NewAliasCache(kv)

	harness := validate.NewHarness(5, nil, nil)
	synth := synthFunc(func(ctx context.Context, req resolver.MissingCapabilityRequest, hint string) (string, error) {
		return `(capability "ccos.demo.synth" {:input {:a 1 :b 2 :c 3 :d 4 :e 5 :f 6}})`, nil
	})

	obs := &recordingObserver{}
	r := resolver.New(mp, aliases,
		resolver.WithValidationHarness(harness),
		resolver.WithLLMSynthesizer(synth),
		resolver.WithObserver(obs),
	)

	res, err := r.Resolve(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "ccos.demo.synth"})
	require.NoError(t, err)
	assert.Equal(t, resolver.StatusPermanentlyFailed, res.Status)

	_, registered := mp.Get("ccos.demo.synth")
	assert.False(t, registered, "rejected synthesis must not register the capability")

	foundRejection := false
	for _, ev := range obs.events {
		if ev.Stage == "llm_synthesis" && ev.Detail["outcome"] == "rejected" {
			foundRejection = true
		}
	}
	assert.True(t, foundRejection, "expected an llm_synthesis rejection event")
}

type synthFunc func(ctx context.Context, req resolver.MissingCapabilityRequest, schemaHint string) (string, error)

func (f synthFunc) Synthesize(ctx context.Context, req resolver.MissingCapabilityRequest, schemaHint string) (string, error) {
	return f(ctx, req, schemaHint)
}

func TestResolveAlreadyRegisteredShortCircuits(t *testing.T) {
	mp := marketplace.New(telemetry.NewNoopLogger())
	require.NoError(t, mp.RegisterLocal("ccos.math.add", "add", "adds two numbers", nil))
	r := resolver.New(mp, resolver.NewAliasCache(newMemKV()))

	res, err := r.Resolve(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "ccos.math.add"})
	require.NoError(t, err)
	assert.Equal(t, resolver.StatusResolved, res.Status)
	assert.Equal(t, "already_registered", res.Method)
}

func TestResolvePermanentlyFailedWithNoStrategies(t *testing.T) {
	mp := marketplace.New(telemetry.NewNoopLogger())
	r := resolver.New(mp, resolver.NewAliasCache(newMemKV()))

	res, err := r.Resolve(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "ccos.nonexistent.thing"})
	require.NoError(t, err)
	assert.Equal(t, resolver.StatusPermanentlyFailed, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestAliasCacheDemotesAfterConsecutiveFailures(t *testing.T) {
	kv := newMemKV()
	aliases := resolver.NewAliasCache(kv)
	ctx := context.Background()
	require.NoError(t, aliases.Put(ctx, "flaky.alias", "ccos.flaky.target"))

	for i := 0; i < 5; i++ {
		require.NoError(t, aliases.RecordOutcome(ctx, "flaky.alias", false))
	}

	_, ok, err := aliases.Lookup(ctx, "flaky.alias")
	require.NoError(t, err)
	assert.False(t, ok, "alias should be dismissed after 5 consecutive failures")
}

func TestResolveCoalescesConcurrentRequests(t *testing.T) {
	mp := marketplace.New(telemetry.NewNoopLogger())
	require.NoError(t, mp.RegisterLocal("ccos.demo.weather", "weather", "demo", nil))
	aliases := resolver.NewAliasCache(newMemKV())
	require.NoError(t, aliases.Put(context.Background(), "external.api.weather", "ccos.demo.weather"))

	r := resolver.New(mp, aliases)

	var wg sync.WaitGroup
	results := make([]resolver.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), resolver.MissingCapabilityRequest{CapabilityID: "external.api.weather"})
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, resolver.StatusResolved, res.Status)
		assert.Equal(t, "ccos.demo.weather", res.CapabilityID)
	}
}
