package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/complyscan/airouter/internal/budget"
	"github.com/complyscan/airouter/internal/failover"
	"github.com/complyscan/airouter/internal/health"
	"github.com/complyscan/airouter/internal/provider"
	"github.com/complyscan/airouter/internal/routing"
)

// Config is the whole routing core's configuration: provider keys,
// budget limits, circuit breaker settings, and failover behavior.
// Values load from an optional YAML file, then AIROUTER_* environment
// variables override.
type Config struct {
	// APIKeys maps provider ids to API keys.
	APIKeys map[provider.ID]string `yaml:"api_keys"`

	// Override forces all tasks to prefer one provider when set.
	Override provider.ID `yaml:"override"`

	// Priority is the default routing priority mode.
	Priority routing.PriorityMode `yaml:"priority"`

	// MonthlyLimit is the budget ceiling in currency-agnostic units.
	MonthlyLimit float64 `yaml:"monthly_limit"`

	// AlertThresholds are monthly-limit fractions that raise alerts.
	AlertThresholds []float64 `yaml:"alert_thresholds"`

	// AlertCooldownHours suppresses repeat alerts of one kind.
	AlertCooldownHours int `yaml:"alert_cooldown_hours"`

	// FailureThreshold is the consecutive-failure count that opens a
	// provider's circuit breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// CircuitTimeoutSeconds is how long an open breaker excludes a
	// provider.
	CircuitTimeoutSeconds int `yaml:"circuit_timeout_seconds"`

	// HealthCheckSeconds is the background probe interval.
	HealthCheckSeconds int `yaml:"health_check_seconds"`

	// CallTimeoutSeconds bounds each provider attempt.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`

	// MaxRetriesPerProvider is the failover retry budget per provider.
	MaxRetriesPerProvider int `yaml:"max_retries_per_provider"`

	// MaxConcurrentCalls caps in-flight provider calls. 0 = unlimited.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// LedgerPath is the SQLite file for usage history. Empty disables
	// persistence.
	LedgerPath string `yaml:"ledger_path"`

	// LedgerMaxEntries bounds the in-memory usage history.
	LedgerMaxEntries int `yaml:"ledger_max_entries"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		APIKeys:               map[provider.ID]string{},
		Priority:              routing.PriorityCost,
		MonthlyLimit:          1000,
		AlertThresholds:       []float64{0.5, 0.8, 0.95},
		AlertCooldownHours:    24,
		FailureThreshold:      5,
		CircuitTimeoutSeconds: 60,
		HealthCheckSeconds:    30,
		CallTimeoutSeconds:    30,
		MaxRetriesPerProvider: 3,
		MaxConcurrentCalls:    0,
		LedgerPath:            "",
		LedgerMaxEntries:      5000,
	}
}

// Load reads configuration: defaults, then the YAML file at path (if
// path is non-empty and exists), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays AIROUTER_* environment variables. Per-provider keys
// use AIROUTER_<PROVIDER>_API_KEY, with the providers' conventional
// variables (OPENAI_API_KEY etc.) as a further fallback.
func (c *Config) applyEnv() {
	if c.APIKeys == nil {
		c.APIKeys = map[provider.ID]string{}
	}

	conventional := map[provider.ID]string{
		provider.SiliconFlow: "SILICONFLOW_API_KEY",
		provider.Kimi:        "MOONSHOT_API_KEY",
		provider.OpenAI:      "OPENAI_API_KEY",
		provider.Anthropic:   "ANTHROPIC_API_KEY",
		provider.OpenRouter:  "OPENROUTER_API_KEY",
	}

	for _, id := range provider.IDs {
		envName := "AIROUTER_" + strings.ToUpper(string(id)) + "_API_KEY"
		if v := os.Getenv(envName); v != "" {
			c.APIKeys[id] = v
			continue
		}
		if c.APIKeys[id] == "" {
			if v := os.Getenv(conventional[id]); v != "" {
				c.APIKeys[id] = v
			}
		}
	}

	if v := os.Getenv("AIROUTER_OVERRIDE"); v != "" {
		c.Override = provider.ID(v)
	}
	if v := os.Getenv("AIROUTER_PRIORITY"); v != "" {
		c.Priority = routing.PriorityMode(v)
	}
	if v := os.Getenv("AIROUTER_MONTHLY_LIMIT"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil && limit > 0 {
			c.MonthlyLimit = limit
		}
	}
	if v := os.Getenv("AIROUTER_ALERT_COOLDOWN_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			c.AlertCooldownHours = hours
		}
	}
	if v := os.Getenv("AIROUTER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.FailureThreshold = n
		}
	}
	if v := os.Getenv("AIROUTER_CIRCUIT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CircuitTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AIROUTER_CALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CallTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AIROUTER_LEDGER_PATH"); v != "" {
		c.LedgerPath = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.MonthlyLimit <= 0 {
		return fmt.Errorf("monthly_limit must be positive, got %v", c.MonthlyLimit)
	}
	for _, th := range c.AlertThresholds {
		if th <= 0 || th > 1 {
			return fmt.Errorf("alert threshold %v out of range (0, 1]", th)
		}
	}
	if c.Override != "" && !c.Override.Valid() {
		return fmt.Errorf("unknown override provider %q", c.Override)
	}
	if c.Priority != "" && !c.Priority.Valid() {
		return fmt.Errorf("unknown priority mode %q", c.Priority)
	}
	if c.MaxRetriesPerProvider <= 0 {
		return fmt.Errorf("max_retries_per_provider must be positive, got %d", c.MaxRetriesPerProvider)
	}
	return nil
}

// HealthConfig converts to the health tracker's settings.
func (c *Config) HealthConfig() health.Config {
	cfg := health.DefaultConfig()
	cfg.FailureThreshold = c.FailureThreshold
	cfg.CircuitTimeout = time.Duration(c.CircuitTimeoutSeconds) * time.Second
	cfg.CheckInterval = time.Duration(c.HealthCheckSeconds) * time.Second
	return cfg
}

// BudgetConfig converts to the budget monitor's settings.
func (c *Config) BudgetConfig() budget.Config {
	cfg := budget.DefaultConfig()
	cfg.MonthlyLimit = c.MonthlyLimit
	if len(c.AlertThresholds) > 0 {
		cfg.Thresholds = append([]float64(nil), c.AlertThresholds...)
	}
	cfg.Cooldown = time.Duration(c.AlertCooldownHours) * time.Hour
	return cfg
}

// FailoverConfig converts to the failover executor's settings.
func (c *Config) FailoverConfig() failover.Config {
	cfg := failover.DefaultConfig()
	cfg.MaxRetriesPerProvider = c.MaxRetriesPerProvider
	cfg.CallTimeout = time.Duration(c.CallTimeoutSeconds) * time.Second
	cfg.MaxConcurrentCalls = c.MaxConcurrentCalls
	if c.Priority != "" {
		cfg.Priority = c.Priority
	}
	return cfg
}

// BuildRegistry creates a provider registry with keys and override
// applied.
func (c *Config) BuildRegistry() (*provider.Registry, error) {
	reg := provider.NewDefaultRegistry()

	for id, key := range c.APIKeys {
		if key == "" {
			continue
		}
		if err := reg.SetAPIKey(id, key); err != nil {
			return nil, err
		}
	}
	if c.Override != "" {
		if err := reg.SetOverride(c.Override); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
