// Package config loads the single Config struct cmd/cosd wires everything
// from (SPEC_FULL.md §2 "Configuration"): storage backends, resolver
// thresholds, execution-mode defaults, and provider credentials. Config
// files are YAML (github.com/cos-systems/cos already carries
// gopkg.in/yaml.v3 from the teacher's dependency set); local development
// overrides come from a .env file loaded with github.com/joho/godotenv,
// the way the pack's codeready-toolchain-tarsy example loads local secrets.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and configures a store.KV backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "mongo".
	Backend string `yaml:"backend"`
	// Addr is the backend's connection string (Redis address or Mongo URI);
	// unused for "memory".
	Addr string `yaml:"addr"`
	// Namespace prefixes keys/collections so several Config instances can
	// share one backend.
	Namespace string `yaml:"namespace"`
}

// ResolverConfig configures the Missing-Capability Resolver (spec §4.4).
// cmd/cosd does not read this section: its resolver runs with the resolver
// package's own defaults (5 attempts, keyword threshold 1, a 10-parameter
// synthesis limit) and no local manifest directory.
type ResolverConfig struct {
	// MaxAttempts is the retry ceiling before a capability id is treated as
	// permanently failed (spec §5 "Backpressure").
	MaxAttempts int `yaml:"max_attempts"`
	// KeywordThreshold is the minimum keyword-match score the Marketplace's
	// SearchByKeyword must clear to surface a discovery hit.
	KeywordThreshold int `yaml:"keyword_threshold"`
	// LocalManifestDir is scanned by DirManifestSource for checked-in
	// capability descriptors (spec §4.4 stage 3b).
	LocalManifestDir string `yaml:"local_manifest_dir"`
	// MaxSynthesisParameters bounds MaxParameterCountPolicy for synthesized
	// capabilities (spec §4.5, §8 scenario 4).
	MaxSynthesisParameters int `yaml:"max_synthesis_parameters"`
}

// ExecutionConfig sets orchestrator defaults (spec §4.7).
type ExecutionConfig struct {
	// DefaultMode names the execution mode for a plan that declares no
	// execution-mode policy ("full", "dry-run", "safe-only", or
	// "require-approval"). cmd/cosd does not pass it to the Governance
	// Kernel, which falls back to "full" on its own.
	DefaultMode string `yaml:"default_mode"`
	// ApprovalPollIntervalMS is how often the orchestrator polls the
	// approval queue while a require-approval call is pending.
	ApprovalPollIntervalMS int `yaml:"approval_poll_interval_ms"`
	// ApprovalTimeoutSeconds bounds how long a pending approval is awaited
	// before the call fails with errors.TimeoutError.
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`
}

// ProviderConfig holds credentials/model selection for one LLM vendor.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	Region       string `yaml:"region"` // bedrock only
}

// LLMConfig selects which llm.Producer backs resolver LLM stages 6-7.
type LLMConfig struct {
	// Active is one of "anthropic", "openai", "bedrock", or "" (disabled,
	// LLM selection/synthesis stages are skipped).
	Active    string         `yaml:"active"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Bedrock   ProviderConfig `yaml:"bedrock"`
}

// ServerConfig configures the MCP HTTP transport (spec §6).
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
}

// Config is the root configuration document.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Approvals StoreConfig     `yaml:"approvals"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Execution ExecutionConfig `yaml:"execution"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns a Config usable with no YAML file at all: in-memory
// stores, conservative resolver/execution defaults, and LLM stages disabled.
func Default() Config {
	return Config{
		Store:     StoreConfig{Backend: "memory"},
		Approvals: StoreConfig{Backend: "memory"},
		Resolver: ResolverConfig{
			MaxAttempts:            5,
			KeywordThreshold:       1,
			MaxSynthesisParameters: 5,
		},
		Execution: ExecutionConfig{
			DefaultMode:            "execute",
			ApprovalPollIntervalMS: 200,
			ApprovalTimeoutSeconds: 300,
		},
		Server: ServerConfig{Addr: ":8443", SessionTTLSeconds: 3600},
	}
}

// Load reads path as YAML over Default(), then applies a .env file at
// envPath if present (missing .env is not an error; local dev convenience
// only). Environment variables already set take precedence over .env
// entries, matching godotenv.Load's own behavior.
func Load(path, envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: loading %s: %w", envPath, err)
		}
	}

	cfg := Default()
	if path == "" {
		return applyEnvOverrides(cfg), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides lets deployment secrets override YAML-committed
// defaults without writing API keys to disk.
func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("COS_ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("COS_OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("COS_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	return cfg
}
