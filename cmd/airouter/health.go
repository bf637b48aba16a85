package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider health and circuit breaker state",
	Long: `Display per-provider health: average latency, error rate, consecutive
failures, and circuit breaker state.

With --probe, each configured provider is pinged first so the report
reflects live reachability rather than only recorded call history.`,
	Run: func(cmd *cobra.Command, args []string) {
		probe, _ := cmd.Flags().GetBool("probe")

		if probe {
			probeAll()
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Provider Health ==="))
		fmt.Printf("  %-12s %-10s %-10s %-10s %s\n", "PROVIDER", "STATUS", "LATENCY", "ERR RATE", "CIRCUIT")

		for _, s := range tracker.SnapshotAll() {
			status := color.GreenString("healthy")
			if !s.Healthy {
				status = color.RedString("unhealthy")
			}

			circuit := "closed"
			if s.CircuitOpen {
				circuit = color.RedString(fmt.Sprintf("open (resets %s)", s.ResetAt.Format("15:04:05")))
			}

			latency := "-"
			if s.AvgLatency > 0 {
				latency = s.AvgLatency.Round(time.Millisecond).String()
			}

			fmt.Printf("  %-12s %-19s %-10s %-9.1f%% %s\n",
				s.Provider, status, latency, s.ErrorRate, circuit)
		}
		fmt.Println()
	},
}

// probeAll hits every configured provider's liveness endpoint and feeds
// the results into the tracker.
func probeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, prof := range registry.All() {
		if !prof.HasValidKey() {
			continue
		}
		start := time.Now()
		if err := apiClient.Probe(ctx, prof.ID); err != nil {
			fmt.Fprintf(os.Stderr, "probe %s failed: %v\n", prof.ID, err)
			tracker.RecordFailure(prof.ID)
			continue
		}
		tracker.RecordSuccess(prof.ID, time.Since(start))
	}
}

func init() {
	healthCmd.Flags().Bool("probe", false, "ping each configured provider before reporting")
	rootCmd.AddCommand(healthCmd)
}
