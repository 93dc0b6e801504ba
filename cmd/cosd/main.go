// Command cosd wires the substrate together: stores, the Capability
// Marketplace, the Governance Kernel, and the Orchestrator, then runs a
// one-shot plan the way spec §8 scenario 1 describes ("what is 2 plus 3"
// resolved entirely through a host math capability, no LLM involved).
//
// This replaces the teacher's cmd/demo, which drove goa-ai's conversational
// agent runtime directly; cosd drives the Orchestrator instead, following
// the Orchestrator-first / Kernel-second / SetSecurityPolicy-third
// construction order documented in DESIGN.md's orchestrator section.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/causalchain"
	"github.com/cos-systems/cos/config"
	"github.com/cos-systems/cos/executor"
	"github.com/cos-systems/cos/governance"
	"github.com/cos-systems/cos/hel"
	"github.com/cos-systems/cos/intent"
	"github.com/cos-systems/cos/llm"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/marketplace"
	"github.com/cos-systems/cos/mcpserver"
	"github.com/cos-systems/cos/orchestrator"
	"github.com/cos-systems/cos/plan"
	"github.com/cos-systems/cos/resolver"
	"github.com/cos-systems/cos/store/memory"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

func main() {
	configPath := flag.String("config", "", "path to a cos.yaml config file (optional)")
	envPath := flag.String("env", ".env", "path to a .env file of local overrides (optional)")
	serve := flag.Bool("serve", false, "after running the scenario-1 demo plan, start the MCP HTTP server and block")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cosd: loading config:", err)
		os.Exit(1)
	}

	logger := telemetry.NewNoopLogger()
	if err := run(context.Background(), cfg, logger, *serve); err != nil {
		fmt.Fprintln(os.Stderr, "cosd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger telemetry.Logger, serve bool) error {
	mp := marketplace.New(logger)
	mp.RegisterExecutor(manifest.ProviderLocal, executor.NewLocal())
	mp.RegisterExecutor(manifest.ProviderMCP, executor.NewMCP())
	mp.RegisterExecutor(manifest.ProviderA2A, executor.NewA2A(func() int64 { return time.Now().Unix() }))
	if err := mp.RegisterLocal("ccos.math.add", "add", "adds two integers", executor.LocalHandlerFunc(addHandler)); err != nil {
		return fmt.Errorf("registering ccos.math.add: %w", err)
	}

	chain := causalchain.NewWithWallClock()
	intents := orchestrator.NewMemIntentStore()

	orch := orchestrator.New(mp, chain, intents,
		orchestrator.WithLogger(logger),
		orchestrator.WithPollInterval(time.Duration(cfg.Execution.ApprovalPollIntervalMS)*time.Millisecond),
		orchestrator.WithApprovalTimeout(time.Duration(cfg.Execution.ApprovalTimeoutSeconds)*time.Second),
	)
	mp.SetHook(orch)
	kernel := governance.NewKernel(orch, intents)
	orch.SetSecurityPolicy(kernel)

	in := intent.New("i-demo-1", "what is 2 plus 3", "perform arithmetic", time.Now())
	intents.Put(in)

	body := hel.Do(hel.Step("add-two-and-three", hel.Call("ccos.math.add", hel.Lit(value.Int(2)), hel.Lit(value.Int(3)))))
	p := plan.New("p-demo-1", []string{in.IntentID}, body, `(do (step "add-two-and-three" (call :ccos.math.add 2 3)))`)

	result, err := kernel.ValidateAndExecute(ctx, p, in)
	if err != nil {
		return fmt.Errorf("executing plan: %w", err)
	}

	fmt.Println("plan status:", p.Status)
	fmt.Println("intent status:", in.Status)
	fmt.Println("result:", result.AsInt())

	producer, err := newProducer(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("building llm producer: %w", err)
	}
	if err := runAliasResolutionDemo(ctx, mp, logger, producer); err != nil {
		return fmt.Errorf("alias resolution demo: %w", err)
	}

	if !serve {
		return nil
	}

	approvalKV, err := newKV(ctx, cfg.Approvals)
	if err != nil {
		return fmt.Errorf("building approval store: %w", err)
	}
	approvals := approval.New(approvalKV)
	srv := mcpserver.New(mp, approvals, mcpserver.WithLogger(logger),
		mcpserver.WithSessionTTL(time.Duration(cfg.Server.SessionTTLSeconds)*time.Second))

	fmt.Println("mcpserver listening on", cfg.Server.Addr)
	return http.ListenAndServe(cfg.Server.Addr, srv.Handler())
}

// runAliasResolutionDemo exercises spec §8 scenario 3 ("missing capability
// resolution via alias"): a pre-seeded alias pointing a vendor-shaped id at
// a capability already registered under the substrate's own naming, with no
// LLM stage needed since the alias lookup short-circuits the pipeline.
func runAliasResolutionDemo(ctx context.Context, mp *marketplace.Marketplace, logger telemetry.Logger, producer llm.Producer) error {
	if err := mp.RegisterLocal("ccos.demo.weather", "weather", "returns canned demo weather", executor.LocalHandlerFunc(
		func(ctx context.Context, args []value.Value) (value.Value, error) {
			return value.Str("sunny"), nil
		},
	)); err != nil {
		return fmt.Errorf("registering ccos.demo.weather: %w", err)
	}

	aliases := resolver.NewAliasCache(memory.New())
	if err := aliases.Put(ctx, "external.api.weather", "ccos.demo.weather"); err != nil {
		return fmt.Errorf("seeding alias: %w", err)
	}

	opts := []resolver.Option{resolver.WithLogger(logger)}
	if producer != nil {
		opts = append(opts,
			resolver.WithLLMSelector(llm.NewSelector(producer, "")),
			resolver.WithLLMSynthesizer(llm.NewSynthesizer(producer, "")),
		)
	}
	r := resolver.New(mp, aliases, opts...)
	res, err := r.Resolve(ctx, resolver.MissingCapabilityRequest{CapabilityID: "external.api.weather"})
	if err != nil {
		return fmt.Errorf("resolving external.api.weather: %w", err)
	}

	fmt.Println("resolution status:", res.Status)
	fmt.Println("resolution method:", res.Method)
	fmt.Println("resolved capability:", res.CapabilityID)
	return nil
}

func addHandler(ctx context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil(), fmt.Errorf("ccos.math.add: expected 2 arguments, got %d", len(args))
	}
	return value.Int(args[0].AsInt() + args[1].AsInt()), nil
}
