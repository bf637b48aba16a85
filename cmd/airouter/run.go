package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/complyscan/airouter/internal/provider"
)

var runCmd = &cobra.Command{
	Use:   "run <task> <prompt>",
	Short: "Execute a prompt through the routed provider chain",
	Long: `Send a prompt to the best provider for the task, failing over down the
chain on errors. Usage and cost are recorded in the ledger.

Examples:
  airouter run scan "review this diff for license violations: ..."
  airouter run explain "why is SELECT * flagged here" --max-tokens 1024`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		contextTokens, _ := cmd.Flags().GetInt("context-tokens")

		task := provider.Task(args[0])
		prompt := args[1]

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec := newExecutor()
		res, err := exec.Execute(ctx, task, contextTokens, apiClient.CompletionOperation(prompt, maxTokens))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(res.Content)

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s\n", gray(fmt.Sprintf("tokens: %d in / %d out",
			res.InputTokens, res.OutputTokens)))

		// Refresh budget state with the new spend and surface any
		// alerts it raises.
		for _, a := range monitor.UpdateSpend(usage.MonthlyTotal()) {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("Alert:"), a.Message)
		}
	},
}

func init() {
	runCmd.Flags().Int("max-tokens", 4096, "maximum completion tokens")
	runCmd.Flags().Int("context-tokens", 0, "estimated input context size in tokens")
	rootCmd.AddCommand(runCmd)
}
