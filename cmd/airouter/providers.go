package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/complyscan/airouter/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers, pricing, and routing policy",
	Run: func(cmd *cobra.Command, args []string) {
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Providers ==="))
		fmt.Printf("  %-12s %-8s %-22s %-12s %s\n", "PROVIDER", "KEY", "PRICE ($/1M in/out)", "CONTEXT", "ENDPOINT")

		for _, p := range registry.All() {
			key := color.RedString("missing")
			if p.HasValidKey() {
				key = color.GreenString("set")
			}
			fmt.Printf("  %-12s %-17s $%.2f / $%.2f %8s %-12s %s\n",
				p.ID, key, p.InputPricePer1M, p.OutputPricePer1M, "",
				formatTokens(int64(p.ContextWindow)), p.BaseURL)
		}
		fmt.Println()

		policy := registry.Policy()
		fmt.Printf("%s\n", yellow("Routing Policy:"))
		for _, task := range provider.Tasks {
			primary := policy.Primary[task]
			fmt.Printf("  %-12s %s", task, primary)
			if fallbacks := policy.Fallbacks[task]; len(fallbacks) > 0 {
				fmt.Printf("  ->")
				for _, id := range fallbacks {
					fmt.Printf(" %s", id)
				}
			}
			fmt.Println()
		}

		if cfg.Override != "" {
			fmt.Printf("\n  %s all tasks forced to %s\n", yellow("Override:"), cfg.Override)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
