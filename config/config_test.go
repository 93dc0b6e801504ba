package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/config"
)

func TestLoadNoPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Resolver.MaxAttempts)
	assert.Equal(t, "execute", cfg.Execution.DefaultMode)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: redis
  addr: "localhost:6379"
resolver:
  max_attempts: 9
llm:
  active: anthropic
  anthropic:
    default_model: claude-sonnet-4-5
`), 0o600))

	cfg, err := config.Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Addr)
	assert.Equal(t, 9, cfg.Resolver.MaxAttempts)
	assert.Equal(t, "anthropic", cfg.LLM.Active)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Anthropic.DefaultModel)
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("COS_ANTHROPIC_API_KEY", "sk-test-key")
	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key", cfg.LLM.Anthropic.APIKey)
}
