package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/complyscan/airouter/internal/budget"
	"github.com/complyscan/airouter/internal/client"
	"github.com/complyscan/airouter/internal/config"
	"github.com/complyscan/airouter/internal/events"
	"github.com/complyscan/airouter/internal/failover"
	"github.com/complyscan/airouter/internal/health"
	"github.com/complyscan/airouter/internal/ledger"
	"github.com/complyscan/airouter/internal/provider"
	"github.com/complyscan/airouter/internal/routing"
	"github.com/complyscan/airouter/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Shared application state, wired once in loadApp and used by every
// subcommand.
var (
	cfgPath string

	cfg       *config.Config
	registry  *provider.Registry
	emitter   *events.Emitter
	tracker   *health.Tracker
	router    *routing.Router
	usage     *ledger.Ledger
	monitor   *budget.Monitor
	apiClient *client.Client
	store     *storage.SQLiteStore
)

var rootCmd = &cobra.Command{
	Use:   "airouter",
	Short: "Multi-provider AI request routing and cost governance",
	Long: `airouter routes AI workloads (scan, patch, embeddings, explain) across
multiple providers, picking the best one per task by cost, speed, or
reliability, with automatic failover, circuit breaking, usage tracking,
and budget alerts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadApp()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// loadApp builds the full component graph from configuration:
// registry -> health tracker -> router -> ledger -> budget monitor.
func loadApp() error {
	path := cfgPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".airouter.yaml")
		}
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, err = cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	emitter = events.NewEmitter()
	tracker = health.NewTracker(cfg.HealthConfig(), provider.IDs, emitter)
	router = routing.New(registry, tracker, emitter)
	apiClient = client.New(registry)

	usage = ledger.New(cfg.LedgerMaxEntries, nil)
	if cfg.LedgerPath != "" {
		store, err = storage.New(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("open usage ledger at %s: %w", cfg.LedgerPath, err)
		}
		entries, err := store.LoadRecent(cfg.LedgerMaxEntries)
		if err != nil {
			return fmt.Errorf("load usage history: %w", err)
		}
		usage = ledger.New(cfg.LedgerMaxEntries, store)
		usage.Load(entries)
	}

	monitor = budget.NewMonitor(cfg.BudgetConfig(), emitter)
	monitor.UpdateSpend(usage.MonthlyTotal())
	return nil
}

// newExecutor builds a failover executor on the shared component graph.
func newExecutor() *failover.Executor {
	return failover.New(cfg.FailoverConfig(), router, tracker, usage, emitter)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.airouter.yaml)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
