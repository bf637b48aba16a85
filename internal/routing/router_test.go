package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyscan/airouter/internal/events"
	"github.com/complyscan/airouter/internal/health"
	"github.com/complyscan/airouter/internal/provider"
)

// twoProviderRegistry returns a registry with kimi and openai configured
// with valid keys, kimi as the scan primary.
func twoProviderRegistry(t *testing.T) *provider.Registry {
	t.Helper()

	profiles := []provider.Profile{
		{
			ID:               provider.Kimi,
			DisplayName:      "Kimi (Moonshot)",
			BaseURL:          "https://api.moonshot.ai/v1",
			APIKey:           "sk-kimi-test-key-1234",
			Models:           map[provider.Task]string{provider.TaskScan: "kimi-k2-0905-preview"},
			InputPricePer1M:  0.15,
			OutputPricePer1M: 2.50,
			ContextWindow:    262144,
			MaxRetries:       3,
			Priority:         1,
		},
		{
			ID:               provider.OpenAI,
			DisplayName:      "OpenAI",
			BaseURL:          "https://api.openai.com/v1",
			APIKey:           "sk-openai-test-key-1234",
			Models:           map[provider.Task]string{provider.TaskScan: "gpt-4o-mini"},
			InputPricePer1M:  0.15,
			OutputPricePer1M: 0.60,
			ContextWindow:    128000,
			MaxRetries:       3,
			Priority:         2,
		},
	}
	policy := provider.RoutingPolicy{
		Primary:   map[provider.Task]provider.ID{provider.TaskScan: provider.Kimi},
		Fallbacks: map[provider.Task][]provider.ID{provider.TaskScan: {provider.OpenAI}},
	}

	r, err := provider.NewRegistry(profiles, policy)
	require.NoError(t, err)
	return r
}

func newTestRouter(t *testing.T) (*Router, *health.Tracker) {
	t.Helper()
	reg := twoProviderRegistry(t)
	tr := health.NewTracker(health.DefaultConfig(), []provider.ID{provider.Kimi, provider.OpenAI}, nil)
	return New(reg, tr, nil), tr
}

func TestRoutePrefersPolicyPrimary(t *testing.T) {
	r, _ := newTestRouter(t)

	d, err := r.Route(provider.TaskScan, 5000, PriorityCost)
	require.NoError(t, err)

	assert.Equal(t, provider.Kimi, d.Provider)
	assert.Equal(t, "kimi-k2-0905-preview", d.Model)
	assert.Equal(t, []provider.ID{provider.OpenAI}, d.FallbackChain)
	assert.NotEmpty(t, d.Reason)
}

func TestRouteDeterministic(t *testing.T) {
	r, _ := newTestRouter(t)

	first, err := r.Route(provider.TaskScan, 0, PriorityCost)
	require.NoError(t, err)
	second, err := r.Route(provider.TaskScan, 0, PriorityCost)
	require.NoError(t, err)

	assert.Equal(t, first.Provider, second.Provider)
	assert.Equal(t, first.FallbackChain, second.FallbackChain)
}

func TestRouteOpenCircuitExcluded(t *testing.T) {
	r, tr := newTestRouter(t)

	for i := 0; i < 5; i++ {
		tr.RecordFailure(provider.Kimi)
	}

	d, err := r.Route(provider.TaskScan, 0, PriorityCost)
	require.NoError(t, err)

	assert.Equal(t, provider.OpenAI, d.Provider)
	assert.NotContains(t, d.FallbackChain, provider.Kimi)
}

func TestRouteNoProviderAvailable(t *testing.T) {
	r, tr := newTestRouter(t)

	for i := 0; i < 5; i++ {
		tr.RecordFailure(provider.Kimi)
		tr.RecordFailure(provider.OpenAI)
	}

	_, err := r.Route(provider.TaskScan, 0, PriorityCost)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProviderAvailable))
}

func TestRouteLongContextBonus(t *testing.T) {
	// Declared primary has no usable key, so kimi and openai compete on
	// score alone: openai's cheaper output wins small-context cost
	// routing, while above 64k tokens only kimi's 262k window earns the
	// long-context bonus.
	profiles := []provider.Profile{
		{ID: provider.SiliconFlow, DisplayName: "SiliconFlow", APIKey: "", InputPricePer1M: 0.07, OutputPricePer1M: 0.28, ContextWindow: 131072, MaxRetries: 3},
		{ID: provider.Kimi, DisplayName: "Kimi", APIKey: "sk-kimi-test-key-1234", Models: map[provider.Task]string{provider.TaskScan: "kimi-k2-0905-preview"}, InputPricePer1M: 0.15, OutputPricePer1M: 2.50, ContextWindow: 262144, MaxRetries: 3},
		{ID: provider.OpenAI, DisplayName: "OpenAI", APIKey: "sk-openai-test-key-1234", Models: map[provider.Task]string{provider.TaskScan: "gpt-4o-mini"}, InputPricePer1M: 0.15, OutputPricePer1M: 0.60, ContextWindow: 128000, MaxRetries: 3},
	}
	policy := provider.RoutingPolicy{
		Primary:   map[provider.Task]provider.ID{provider.TaskScan: provider.SiliconFlow},
		Fallbacks: map[provider.Task][]provider.ID{provider.TaskScan: {provider.Kimi, provider.OpenAI}},
	}
	reg, err := provider.NewRegistry(profiles, policy)
	require.NoError(t, err)

	tr := health.NewTracker(health.DefaultConfig(), []provider.ID{provider.Kimi, provider.OpenAI}, nil)
	r := New(reg, tr, nil)

	small, err := r.Route(provider.TaskScan, 5000, PriorityCost)
	require.NoError(t, err)
	assert.Equal(t, provider.OpenAI, small.Provider)

	large, err := r.Route(provider.TaskScan, 100000, PriorityCost)
	require.NoError(t, err)
	assert.Equal(t, provider.Kimi, large.Provider)
}

func TestRouteSpeedPriority(t *testing.T) {
	r, tr := newTestRouter(t)

	// kimi is consistently fast, openai slow.
	for i := 0; i < 10; i++ {
		tr.RecordSuccess(provider.Kimi, 120*time.Millisecond)
		tr.RecordSuccess(provider.OpenAI, 2*time.Second)
	}

	d, err := r.Route(provider.TaskScan, 0, PrioritySpeed)
	require.NoError(t, err)
	assert.Equal(t, provider.Kimi, d.Provider)
}

func TestRouteReliabilityPriority(t *testing.T) {
	r, tr := newTestRouter(t)

	// kimi flaky (but below the breaker threshold), openai clean.
	for i := 0; i < 10; i++ {
		tr.RecordSuccess(provider.OpenAI, 500*time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		tr.RecordFailure(provider.Kimi)
		tr.RecordSuccess(provider.Kimi, 100*time.Millisecond)
	}

	d, err := r.Route(provider.TaskScan, 0, PriorityReliability)
	require.NoError(t, err)
	assert.Equal(t, provider.OpenAI, d.Provider)
}

func TestRouteContextWindowWarningAdvisory(t *testing.T) {
	r, _ := newTestRouter(t)

	d, err := r.Route(provider.TaskScan, 300000, PriorityCost)
	require.NoError(t, err, "context overflow is advisory, not fatal")
	assert.NotEmpty(t, d.Warning)
	assert.Contains(t, d.Warning, "window")
}

func TestRouteWarningsCombine(t *testing.T) {
	// A priced-out provider with an overflowing context must surface
	// both advisories, not just the last one computed.
	profiles := []provider.Profile{
		{
			ID:               provider.Kimi,
			DisplayName:      "Kimi (Moonshot)",
			BaseURL:          "https://api.moonshot.ai/v1",
			APIKey:           "sk-kimi-test-key-1234",
			Models:           map[provider.Task]string{provider.TaskScan: "kimi-k2-0905-preview"},
			InputPricePer1M:  100,
			OutputPricePer1M: 100,
			ContextWindow:    262144,
			MaxRetries:       3,
			Priority:         1,
		},
	}
	policy := provider.RoutingPolicy{
		Primary:   map[provider.Task]provider.ID{provider.TaskScan: provider.Kimi},
		Fallbacks: map[provider.Task][]provider.ID{},
	}
	reg, err := provider.NewRegistry(profiles, policy)
	require.NoError(t, err)
	tr := health.NewTracker(health.DefaultConfig(), []provider.ID{provider.Kimi}, nil)
	r := New(reg, tr, nil)

	d, err := r.Route(provider.TaskScan, 300000, PriorityCost)
	require.NoError(t, err)
	assert.Contains(t, d.Warning, "ceiling")
	assert.Contains(t, d.Warning, "window")
	assert.Contains(t, d.Warning, "; ")
}

func TestRouteUnknownInputs(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := r.Route(provider.Task("transcode"), 0, PriorityCost)
	assert.Error(t, err)

	_, err = r.Route(provider.TaskScan, 0, PriorityMode("vibes"))
	assert.Error(t, err)
}

func TestRouteEmitsEvent(t *testing.T) {
	reg := twoProviderRegistry(t)
	tr := health.NewTracker(health.DefaultConfig(), []provider.ID{provider.Kimi, provider.OpenAI}, nil)
	emitter := events.NewEmitter()

	var got []events.Event
	emitter.Subscribe(func(ev events.Event) { got = append(got, ev) })

	r := New(reg, tr, emitter)
	_, err := r.Route(provider.TaskScan, 0, PriorityCost)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, events.TypeRoute, got[0].Type)
	assert.Equal(t, provider.TaskScan, got[0].Task)
}

func TestRouteDefaultsToCostMode(t *testing.T) {
	r, _ := newTestRouter(t)

	d, err := r.Route(provider.TaskScan, 0, "")
	require.NoError(t, err)
	assert.NotEmpty(t, d.Provider)
}
