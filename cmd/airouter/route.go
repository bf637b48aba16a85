package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/complyscan/airouter/internal/provider"
	"github.com/complyscan/airouter/internal/routing"
)

var routeCmd = &cobra.Command{
	Use:   "route <task>",
	Short: "Show which provider would serve a task",
	Long: `Decide which provider and model would serve a task without making any
API call. Task is one of: scan, patch, embeddings, explain.

Examples:
  # Default cost-optimized routing for a scan
  airouter route scan

  # Speed-optimized routing for a large context
  airouter route patch --priority speed --context-tokens 100000`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetString("priority")
		contextTokens, _ := cmd.Flags().GetInt("context-tokens")
		if priority == "" {
			priority = string(cfg.Priority)
		}

		task := provider.Task(args[0])
		decision, err := router.Route(task, contextTokens, routing.PriorityMode(priority))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Routing Decision ==="))
		fmt.Printf("  Task:      %s\n", task)
		fmt.Printf("  Provider:  %s\n", green(decision.Provider))
		fmt.Printf("  Model:     %s\n", decision.Model)
		fmt.Printf("  Est. cost: $%.6f\n", decision.EstimatedCost)
		fmt.Printf("  Reason:    %s\n", decision.Reason)

		if len(decision.FallbackChain) > 0 {
			fmt.Printf("  Fallbacks: ")
			for i, id := range decision.FallbackChain {
				if i > 0 {
					fmt.Printf(", ")
				}
				fmt.Printf("%s", id)
			}
			fmt.Println()
		}
		if decision.Warning != "" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("  %s %s\n", yellow("Warning:"), decision.Warning)
		}
		fmt.Println()
	},
}

func init() {
	routeCmd.Flags().String("priority", "", "routing priority: cost, speed, or reliability (default from config)")
	routeCmd.Flags().Int("context-tokens", 0, "estimated input context size in tokens")
	rootCmd.AddCommand(routeCmd)
}
