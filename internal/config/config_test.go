package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyscan/airouter/internal/provider"
	"github.com/complyscan/airouter/internal/routing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 1000.0, cfg.MonthlyLimit, 1e-9)
	assert.Equal(t, []float64{0.5, 0.8, 0.95}, cfg.AlertThresholds)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, routing.PriorityCost, cfg.Priority)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "airouter.yaml")
	data := `
monthly_limit: 250
priority: speed
failure_threshold: 3
api_keys:
  kimi: sk-kimi-from-yaml-1234
ledger_path: /tmp/usage.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 250.0, cfg.MonthlyLimit, 1e-9)
	assert.Equal(t, routing.PrioritySpeed, cfg.Priority)
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, "sk-kimi-from-yaml-1234", cfg.APIKeys[provider.Kimi])
	assert.Equal(t, "/tmp/usage.db", cfg.LedgerPath)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, cfg.MonthlyLimit, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AIROUTER_MONTHLY_LIMIT", "42.5")
	t.Setenv("AIROUTER_KIMI_API_KEY", "sk-kimi-from-env-12345")
	t.Setenv("AIROUTER_PRIORITY", "reliability")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 42.5, cfg.MonthlyLimit, 1e-9)
	assert.Equal(t, "sk-kimi-from-env-12345", cfg.APIKeys[provider.Kimi])
	assert.Equal(t, routing.PriorityReliability, cfg.Priority)
}

func TestConventionalEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai-conventional-123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-openai-conventional-123", cfg.APIKeys[provider.OpenAI])
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative limit", func(c *Config) { c.MonthlyLimit = -1 }},
		{"threshold above one", func(c *Config) { c.AlertThresholds = []float64{1.5} }},
		{"unknown override", func(c *Config) { c.Override = "nope" }},
		{"unknown priority", func(c *Config) { c.Priority = "vibes" }},
		{"zero retries", func(c *Config) { c.MaxRetriesPerProvider = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuildRegistryInjectsKeys(t *testing.T) {
	cfg := Default()
	cfg.APIKeys[provider.Kimi] = "sk-kimi-test-key-1234"
	cfg.Override = provider.Kimi

	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)

	p, err := reg.GetProvider(provider.TaskScan)
	require.NoError(t, err)
	assert.Equal(t, provider.Kimi, p.ID)
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.FailureThreshold = 7
	cfg.CircuitTimeoutSeconds = 90
	cfg.AlertCooldownHours = 6
	cfg.CallTimeoutSeconds = 15

	hc := cfg.HealthConfig()
	assert.Equal(t, 7, hc.FailureThreshold)
	assert.Equal(t, 90*time.Second, hc.CircuitTimeout)

	bc := cfg.BudgetConfig()
	assert.Equal(t, 6*time.Hour, bc.Cooldown)

	fc := cfg.FailoverConfig()
	assert.Equal(t, 15*time.Second, fc.CallTimeout)
}
