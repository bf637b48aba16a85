package provider

import (
	"errors"
	"fmt"
	"sync"
)

// Task identifies the kind of AI workload being routed.
type Task string

const (
	// TaskScan is a compliance scan of a source file or diff
	TaskScan Task = "scan"
	// TaskPatch is auto-generation of a remediation patch
	TaskPatch Task = "patch"
	// TaskEmbeddings is vector embedding of code chunks
	TaskEmbeddings Task = "embeddings"
	// TaskExplain is a human-readable explanation of a flagged violation
	TaskExplain Task = "explain"
)

// Tasks lists every routable task type.
var Tasks = []Task{TaskScan, TaskPatch, TaskEmbeddings, TaskExplain}

// Valid reports whether t is a known task type.
func (t Task) Valid() bool {
	switch t {
	case TaskScan, TaskPatch, TaskEmbeddings, TaskExplain:
		return true
	}
	return false
}

// ID identifies an AI provider. The set is closed: routing policy,
// pricing, and health state are all keyed by these values.
type ID string

const (
	SiliconFlow ID = "siliconflow"
	Kimi        ID = "kimi"
	OpenAI      ID = "openai"
	Anthropic   ID = "anthropic"
	// OpenRouter is the universal last-resort gateway: it can serve any
	// task if nothing else has a usable key.
	OpenRouter ID = "openrouter"
)

// IDs lists every known provider in priority-rank order.
var IDs = []ID{SiliconFlow, Kimi, OpenAI, Anthropic, OpenRouter}

// Valid reports whether id is a known provider.
func (id ID) Valid() bool {
	switch id {
	case SiliconFlow, Kimi, OpenAI, Anthropic, OpenRouter:
		return true
	}
	return false
}

// Profile describes one provider: endpoint, per-task models, pricing,
// and limits. Profiles are immutable once loaded except for API key
// injection, which replaces the whole record under the registry lock so
// a concurrent reader never observes a half-updated profile.
type Profile struct {
	ID          ID              `yaml:"id" json:"id"`
	DisplayName string          `yaml:"display_name" json:"display_name"`
	BaseURL     string          `yaml:"base_url" json:"base_url"`
	APIKey      string          `yaml:"api_key" json:"-"`
	Models      map[Task]string `yaml:"models" json:"models"`

	// InputPricePer1M and OutputPricePer1M are USD per million tokens.
	InputPricePer1M  float64 `yaml:"input_price_per_1m" json:"input_price_per_1m"`
	OutputPricePer1M float64 `yaml:"output_price_per_1m" json:"output_price_per_1m"`

	// ContextWindow is the provider's maximum context size in tokens.
	ContextWindow int `yaml:"context_window" json:"context_window"`

	// MaxRetries is the per-provider retry budget used by failover.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Priority ranks providers for tie-breaking; lower is preferred.
	Priority int `yaml:"priority" json:"priority"`
}

// HasValidKey reports whether the profile's API key looks usable.
// Anything longer than 10 characters is treated as a real key; shorter
// values are placeholders ("", "TODO", "xxx") left in settings files.
func (p *Profile) HasValidKey() bool {
	return len(p.APIKey) > 10
}

// ModelFor returns the model name configured for a task, or the scan
// model as a fallback when the task has no explicit mapping.
func (p *Profile) ModelFor(task Task) string {
	if m, ok := p.Models[task]; ok && m != "" {
		return m
	}
	return p.Models[TaskScan]
}

// RoutingPolicy declares, per task, the primary provider and the
// ordered fallbacks that Router and GetProvider consult. Keeping the
// policy as data lets tests exercise routing without touching the
// built-in defaults.
type RoutingPolicy struct {
	Primary   map[Task]ID   `yaml:"primary"`
	Fallbacks map[Task][]ID `yaml:"fallbacks"`
}

// DefaultPolicy returns the built-in routing policy: cheap bulk
// providers first for scan/embeddings, stronger models first for patch
// generation, with the gateway absorbing whatever is left.
func DefaultPolicy() RoutingPolicy {
	return RoutingPolicy{
		Primary: map[Task]ID{
			TaskScan:       Kimi,
			TaskPatch:      Anthropic,
			TaskEmbeddings: SiliconFlow,
			TaskExplain:    OpenAI,
		},
		Fallbacks: map[Task][]ID{
			TaskScan:       {OpenAI, SiliconFlow, OpenRouter},
			TaskPatch:      {Kimi, OpenAI, OpenRouter},
			TaskEmbeddings: {OpenAI, OpenRouter},
			TaskExplain:    {Kimi, SiliconFlow, OpenRouter},
		},
	}
}

// OverrideTargets are the providers a user override may select. The
// gateway is excluded: it is a fallback of last resort, not a choice.
var OverrideTargets = map[ID]bool{
	SiliconFlow: true,
	Kimi:        true,
	OpenAI:      true,
	Anthropic:   true,
}

// ErrNoProviderConfigured is returned when no provider has a usable
// API key for the requested task. It is fatal to the calling
// operation and is never retried.
var ErrNoProviderConfigured = errors.New("no provider configured")

// Registry holds the provider table and routing policy. Reads vastly
// outnumber writes (key injection on settings reload), so it is guarded
// by a single RWMutex.
type Registry struct {
	mu       sync.RWMutex
	profiles map[ID]*Profile
	policy   RoutingPolicy

	// override, when set, is consulted first by GetProvider.
	override ID
}

// NewRegistry creates a registry from the given profiles and policy.
// Profiles are copied so later mutation of the caller's slice cannot
// race with route lookups.
func NewRegistry(profiles []Profile, policy RoutingPolicy) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one provider profile is required")
	}

	m := make(map[ID]*Profile, len(profiles))
	for i := range profiles {
		p := profiles[i]
		if !p.ID.Valid() {
			return nil, fmt.Errorf("unknown provider id %q", p.ID)
		}
		if _, dup := m[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider profile %q", p.ID)
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = 3
		}
		m[p.ID] = &p
	}

	for task, primary := range policy.Primary {
		if _, ok := m[primary]; !ok {
			return nil, fmt.Errorf("routing policy: primary %q for task %q has no profile", primary, task)
		}
	}

	return &Registry{profiles: m, policy: policy}, nil
}

// NewDefaultRegistry creates a registry with the built-in provider
// table and routing policy. API keys start empty and are injected from
// configuration via SetAPIKey.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinProfiles(), DefaultPolicy())
	if err != nil {
		// Builtin table is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// Get returns a copy of the profile for id.
func (r *Registry) Get(id ID) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// All returns copies of every registered profile in priority order.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.profiles))
	for _, id := range IDs {
		if p, ok := r.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// SetAPIKey injects an API key for a provider, replacing the whole
// profile record atomically.
func (r *Registry) SetAPIKey(id ID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("unknown provider %q", id)
	}
	updated := *old
	updated.APIKey = key
	r.profiles[id] = &updated
	return nil
}

// SetOverride forces GetProvider to prefer the given provider for every
// task, provided it is an allowed override target with a valid key.
// Passing an empty ID clears the override.
func (r *Registry) SetOverride(id ID) error {
	if id != "" && !OverrideTargets[id] {
		return fmt.Errorf("provider %q cannot be used as an override", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = id
	return nil
}

// Policy returns the active routing policy.
func (r *Registry) Policy() RoutingPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// GetProvider selects a provider for a task using the fixed priority
// order: user override, task primary, each declared fallback in order,
// then the gateway. Only providers with usable keys qualify.
func (r *Registry) GetProvider(task Task) (Profile, error) {
	if !task.Valid() {
		return Profile{}, fmt.Errorf("unknown task %q", task)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.override != "" {
		if p, ok := r.profiles[r.override]; ok && p.HasValidKey() {
			return *p, nil
		}
	}

	if primary, ok := r.policy.Primary[task]; ok {
		if p, ok := r.profiles[primary]; ok && p.HasValidKey() {
			return *p, nil
		}
	}

	for _, id := range r.policy.Fallbacks[task] {
		if id == OpenRouter {
			continue // gateway is the universal last resort, checked below
		}
		if p, ok := r.profiles[id]; ok && p.HasValidKey() {
			return *p, nil
		}
	}

	if p, ok := r.profiles[OpenRouter]; ok && p.HasValidKey() {
		return *p, nil
	}

	return Profile{}, fmt.Errorf("task %s: %w", task, ErrNoProviderConfigured)
}

// Chain returns the task's primary followed by its declared fallbacks,
// deduplicated, restricted to registered profiles. This is the raw
// candidate list the router filters by health.
func (r *Registry) Chain(task Task) []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ID]bool, 4)
	var out []Profile

	add := func(id ID) {
		if seen[id] {
			return
		}
		if p, ok := r.profiles[id]; ok && p.HasValidKey() {
			seen[id] = true
			out = append(out, *p)
		}
	}

	if primary, ok := r.policy.Primary[task]; ok {
		add(primary)
	}
	for _, id := range r.policy.Fallbacks[task] {
		add(id)
	}
	return out
}
