package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show AI spend, savings, and budget forecast",
	Long:  `Display usage totals by provider and task, estimated savings, budget status, and the end-of-month spend forecast.`,
	Run: func(cmd *cobra.Command, args []string) {
		summary := usage.Summary()
		forecast := monitor.GetForecast()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== AI Spend ==="))
		fmt.Printf("  Today:       $%.4f\n", summary.Today)
		fmt.Printf("  This month:  $%.4f / $%.2f (%.1f%%)\n",
			summary.ThisMonth, cfg.MonthlyLimit, percentOf(summary.ThisMonth, cfg.MonthlyLimit))
		fmt.Printf("               %s\n", renderProgressBar(percentOf(summary.ThisMonth, cfg.MonthlyLimit), 40))
		fmt.Printf("  Total calls: %d\n", summary.TotalCalls)
		fmt.Println()

		if len(summary.ByProvider) > 0 {
			fmt.Printf("%s\n", yellow("By Provider:"))
			for _, p := range summary.ByProvider {
				fmt.Printf("  %-12s $%.4f  (%d calls, %d failed, %s tokens)\n",
					p.Provider, p.Cost, p.Calls, p.Failures, formatTokens(p.Tokens))
			}
			fmt.Println()
		}

		if len(summary.ByTask) > 0 {
			fmt.Printf("%s\n", yellow("By Task:"))
			for _, t := range summary.ByTask {
				fmt.Printf("  %-12s $%.4f  (%d calls)\n", t.Task, t.Cost, t.Calls)
			}
			fmt.Println()
		}

		fmt.Printf("%s\n", yellow("Estimated Savings:"))
		fmt.Printf("  Actual:      $%.4f\n", summary.Savings.ActualCost)
		fmt.Printf("  Baseline:    $%.4f (single premium provider, estimated)\n", summary.Savings.VsBaseline)
		fmt.Printf("  Saved:       $%.4f\n", summary.Savings.Saved)
		fmt.Println()

		fmt.Printf("%s\n", yellow("Forecast:"))
		fmt.Printf("  Daily avg:   $%.4f\n", forecast.DailyAverage)
		fmt.Printf("  Projected:   $%.2f end of month (confidence: %s)\n",
			forecast.ProjectedMonthly, forecast.Confidence)
		if forecast.TrendRatio != 1.0 {
			fmt.Printf("  Trend:       %.2fx week over week\n", forecast.TrendRatio)
		}
		if forecast.DaysUntilLimit >= 0 {
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			fmt.Printf("  %s\n", red(fmt.Sprintf("Limit reached in ~%d days at current pace", forecast.DaysUntilLimit)))
		}
		fmt.Println()

		alerts := monitor.Alerts()
		unacked := 0
		for _, a := range alerts {
			if !a.Acknowledged {
				unacked++
			}
		}
		if unacked > 0 {
			fmt.Printf("%s\n", yellow("Active Alerts:"))
			for _, a := range alerts {
				if a.Acknowledged {
					continue
				}
				sevColor := color.New(color.FgYellow)
				if a.Severity == "critical" {
					sevColor = color.New(color.FgRed, color.Bold)
				}
				fmt.Printf("  [%s] %s\n", sevColor.Sprint(a.Severity), a.Message)
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(costCmd)
}

func percentOf(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return value / limit * 100
}

// formatTokens renders a token count with a K/M suffix.
func formatTokens(tokens int64) string {
	switch {
	case tokens >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
	case tokens >= 1000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}

// renderProgressBar renders budget usage as a colored bar, shifting
// through the same green/yellow/red bands the alert thresholds use.
func renderProgressBar(percent float64, width int) string {
	percent = math.Max(0, math.Min(100, percent))
	filled := int(percent / 100.0 * float64(width))

	band := color.New(color.FgGreen)
	switch {
	case percent >= 95:
		band = color.New(color.FgRed, color.Bold)
	case percent >= 80:
		band = color.New(color.FgYellow)
	}

	return fmt.Sprintf("[%s%s]",
		band.Sprint(strings.Repeat("█", filled)),
		color.New(color.FgHiBlack).Sprint(strings.Repeat("░", width-filled)))
}
