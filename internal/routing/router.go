package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/complyscan/airouter/internal/cost"
	"github.com/complyscan/airouter/internal/events"
	"github.com/complyscan/airouter/internal/health"
	"github.com/complyscan/airouter/internal/provider"
)

// PriorityMode selects which scoring weights the router applies.
type PriorityMode string

const (
	// PriorityCost favors the cheapest provider
	PriorityCost PriorityMode = "cost"
	// PrioritySpeed favors the lowest observed latency
	PrioritySpeed PriorityMode = "speed"
	// PriorityReliability favors the lowest error rate and best recent
	// success rate
	PriorityReliability PriorityMode = "reliability"
)

// Valid reports whether m is a known priority mode.
func (m PriorityMode) Valid() bool {
	switch m {
	case PriorityCost, PrioritySpeed, PriorityReliability:
		return true
	}
	return false
}

// Decision is the transient result of one routing request. It is
// advisory: warnings never block the caller from proceeding.
type Decision struct {
	Provider      provider.ID   `json:"provider"`
	Model         string        `json:"model"`
	EstimatedCost float64       `json:"estimated_cost"`
	Reason        string        `json:"reason"`
	FallbackChain []provider.ID `json:"fallback_chain"`
	Warning       string        `json:"warning,omitempty"`
}

// ErrNoProviderAvailable is returned when every candidate for a task is
// circuit-open or unhealthy. Callers may retry later once circuits
// reset.
var ErrNoProviderAvailable = errors.New("no provider available")

// Long-context scoring constants: requests above the threshold earn a
// bonus for providers whose window exceeds the large-window floor.
const (
	longContextThreshold = 64000
	largeWindowFloor     = 128000
	longContextBonus     = 0.3
)

// recentWindow is how many history entries feed the recent-success-rate
// component of reliability scoring.
const recentWindow = 10

// Router scores eligible providers for a task and returns an ordered
// primary-plus-fallback chain.
type Router struct {
	registry *provider.Registry
	tracker  *health.Tracker
	emitter  *events.Emitter

	// forceUnhealthy, when true, lets unhealthy (but not circuit-open)
	// providers back into the candidate set. Escape hatch for
	// single-provider deployments.
	forceUnhealthy bool
}

// New creates a router. The emitter may be nil.
func New(registry *provider.Registry, tracker *health.Tracker, emitter *events.Emitter) *Router {
	return &Router{
		registry: registry,
		tracker:  tracker,
		emitter:  emitter,
	}
}

// ForceUnhealthy toggles whether unhealthy providers stay candidates.
func (r *Router) ForceUnhealthy(v bool) {
	r.forceUnhealthy = v
}

// Registry returns the provider registry this router consults.
func (r *Router) Registry() *provider.Registry {
	return r.registry
}

// scored pairs a candidate profile with its computed score.
type scored struct {
	profile provider.Profile
	score   float64
}

// Route picks a provider for a task. contextTokens may be 0 when the
// request size is unknown; mode defaults to cost priority.
func (r *Router) Route(task provider.Task, contextTokens int, mode PriorityMode) (Decision, error) {
	if !task.Valid() {
		return Decision{}, fmt.Errorf("unknown task %q", task)
	}
	if mode == "" {
		mode = PriorityCost
	}
	if !mode.Valid() {
		return Decision{}, fmt.Errorf("unknown priority mode %q", mode)
	}

	candidates := r.candidates(task)
	if len(candidates) == 0 {
		return Decision{}, fmt.Errorf("task %s: %w", task, ErrNoProviderAvailable)
	}

	primary := r.registry.Policy().Primary[task]

	ranked := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		ranked = append(ranked, scored{profile: p, score: r.score(p, primary, contextTokens, mode)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].profile.Priority < ranked[j].profile.Priority
	})

	best := ranked[0].profile

	chain := make([]provider.ID, 0, 2)
	for _, s := range ranked[1:] {
		if len(chain) == 2 {
			break
		}
		chain = append(chain, s.profile.ID)
	}

	estimated := cost.EstimateTask(task, best, nil)

	d := Decision{
		Provider:      best.ID,
		Model:         best.ModelFor(task),
		EstimatedCost: estimated,
		Reason:        r.reason(best, task, mode),
		FallbackChain: chain,
	}

	var warnings []string
	if !cost.WithinLimit(task, estimated) {
		warnings = append(warnings, fmt.Sprintf("estimated cost $%.4f exceeds the $%.2f ceiling for %s (advisory)",
			estimated, cost.Ceiling(task), task))
	}
	if contextTokens > best.ContextWindow {
		warnings = append(warnings, fmt.Sprintf("request context of %d tokens exceeds %s's %d-token window (advisory)",
			contextTokens, best.ID, best.ContextWindow))
	}
	d.Warning = strings.Join(warnings, "; ")

	r.emitRoute(d, task, mode)
	return d, nil
}

// candidates builds the eligible provider set for a task: the declared
// chain minus circuit-open providers and, unless forced, minus
// unhealthy ones.
func (r *Router) candidates(task provider.Task) []provider.Profile {
	var out []provider.Profile
	for _, p := range r.registry.Chain(task) {
		if !r.tracker.Available(p.ID) {
			continue
		}
		if !r.forceUnhealthy && !r.tracker.Healthy(p.ID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// primaryBonus keeps the task's declared primary on top under cost
// priority as long as it is healthy. Task primaries are picked for
// cost by policy; speed and reliability modes are explicit requests to
// deviate from policy based on live telemetry, so the bonus does not
// apply there.
const primaryBonus = 0.5

// score computes the weighted score for one candidate.
func (r *Router) score(p provider.Profile, primary provider.ID, contextTokens int, mode PriorityMode) float64 {
	st := r.tracker.Snapshot(p.ID)

	const epsilon = 1e-6
	costScore := 1.0 / (p.InputPricePer1M + p.OutputPricePer1M + epsilon)

	latencyMs := float64(st.AvgLatency) / float64(time.Millisecond)
	if latencyMs < 100 {
		latencyMs = 100
	}
	speedScore := 1.0 / latencyMs

	reliabilityScore := 1.0 - st.ErrorRate/100

	var total float64
	switch mode {
	case PrioritySpeed:
		total = speedScore*0.5 + reliabilityScore*0.3 + costScore*0.1
	case PriorityReliability:
		recent := r.tracker.RecentSuccessRate(p.ID, recentWindow)
		total = reliabilityScore*0.5 + recent*0.3 + costScore*0.1
	default: // PriorityCost
		total = costScore*0.5 + reliabilityScore*0.3 + speedScore*0.1
		if p.ID == primary {
			total += primaryBonus
		}
	}

	if contextTokens > longContextThreshold && p.ContextWindow > largeWindowFloor {
		total += longContextBonus
	}
	return total
}

// reason builds the human-readable explanation attached to a decision.
func (r *Router) reason(p provider.Profile, task provider.Task, mode PriorityMode) string {
	st := r.tracker.Snapshot(p.ID)
	switch mode {
	case PrioritySpeed:
		return fmt.Sprintf("%s selected for %s: fastest available (avg latency %v, error rate %.1f%%)",
			p.DisplayName, task, st.AvgLatency.Round(time.Millisecond), st.ErrorRate)
	case PriorityReliability:
		return fmt.Sprintf("%s selected for %s: most reliable (error rate %.1f%%, recent success %.0f%%)",
			p.DisplayName, task, st.ErrorRate, r.tracker.RecentSuccessRate(p.ID, recentWindow)*100)
	default:
		return fmt.Sprintf("%s selected for %s: cheapest healthy option ($%.2f/$%.2f per 1M tokens)",
			p.DisplayName, task, p.InputPricePer1M, p.OutputPricePer1M)
	}
}

func (r *Router) emitRoute(d Decision, task provider.Task, mode PriorityMode) {
	if r.emitter == nil {
		return
	}
	ev := events.New(events.TypeRoute, events.SeverityInfo, d.Reason)
	ev.Provider = d.Provider
	ev.Task = task
	ev.Data = map[string]interface{}{
		"model":          d.Model,
		"estimated_cost": d.EstimatedCost,
		"priority":       string(mode),
		"fallback_chain": d.FallbackChain,
	}
	if d.Warning != "" {
		ev.Data["warning"] = d.Warning
	}
	r.emitter.Emit(ev)
}
