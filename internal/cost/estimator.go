package cost

import (
	"github.com/complyscan/airouter/internal/provider"
)

// TokenEstimate is a default input/output token budget for a task,
// used when the caller cannot supply real counts up front.
type TokenEstimate struct {
	Input  int64
	Output int64
}

// defaultEstimates are conservative per-task token budgets; a scan
// sends a whole file plus the rule prompt, a patch returns more output,
// embeddings are input-only.
var defaultEstimates = map[provider.Task]TokenEstimate{
	provider.TaskScan:       {Input: 4000, Output: 800},
	provider.TaskPatch:      {Input: 6000, Output: 2000},
	provider.TaskEmbeddings: {Input: 8000, Output: 0},
	provider.TaskExplain:    {Input: 2000, Output: 600},
}

// DefaultEstimate returns the default token budget for a task.
func DefaultEstimate(task provider.Task) TokenEstimate {
	if e, ok := defaultEstimates[task]; ok {
		return e
	}
	return TokenEstimate{Input: 2000, Output: 500}
}

// Estimate computes the USD cost of a call against a provider's price
// table. Pure: prices are per 1M tokens and the result is linear in
// both token counts and both prices.
func Estimate(p provider.Profile, inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * p.InputPricePer1M / 1_000_000
	outputCost := float64(outputTokens) * p.OutputPricePer1M / 1_000_000
	return inputCost + outputCost
}

// EstimateTask computes the estimated cost of a task using the default
// token budget, or the supplied override when non-nil.
func EstimateTask(task provider.Task, p provider.Profile, override *TokenEstimate) float64 {
	est := DefaultEstimate(task)
	if override != nil {
		est = *override
	}
	return Estimate(p, est.Input, est.Output)
}

// taskCeilings are advisory per-call cost ceilings in USD. Crossing one
// attaches a warning to the routing decision; it never blocks the call.
var taskCeilings = map[provider.Task]float64{
	provider.TaskScan:       0.05,
	provider.TaskPatch:      0.25,
	provider.TaskEmbeddings: 0.02,
	provider.TaskExplain:    0.03,
}

// Ceiling returns the advisory cost ceiling for a task.
func Ceiling(task provider.Task) float64 {
	if c, ok := taskCeilings[task]; ok {
		return c
	}
	return 0.10
}

// WithinLimit reports whether an estimated cost is under the task's
// advisory ceiling.
func WithinLimit(task provider.Task, estimated float64) bool {
	return estimated <= Ceiling(task)
}

// baselineMultipliers approximate how much more a reference-expensive
// provider (OpenAI's full-size models) would have cost for the same
// tokens. These are marketing-grade estimates baked in from product,
// not measured A/B numbers; savings figures derived from them must be
// labeled as estimates.
var baselineMultipliers = map[provider.ID]float64{
	provider.SiliconFlow: 10.0,
	provider.Kimi:        4.0,
	provider.OpenAI:      1.0,
	provider.Anthropic:   0.8,
	provider.OpenRouter:  3.0,
}

// BaselineMultiplier returns the savings multiplier for a provider.
func BaselineMultiplier(id provider.ID) float64 {
	if m, ok := baselineMultipliers[id]; ok {
		return m
	}
	return 1.0
}
