package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/complyscan/airouter/internal/events"
	"github.com/complyscan/airouter/internal/provider"
)

// Config holds health tracking and circuit breaker settings.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// provider's circuit breaker (default: 5).
	FailureThreshold int

	// CircuitTimeout is how long an open breaker excludes a provider
	// before it becomes eligible for a probe (default: 60s).
	CircuitTimeout time.Duration

	// LatencyWindow is how many recent latency samples feed the rolling
	// average (default: 10).
	LatencyWindow int

	// HistorySize bounds the per-provider outcome history used for
	// error-rate and recent-success-rate calculations (default: 50).
	HistorySize int

	// CheckInterval is how often the background tick probes providers
	// with expired breakers (default: 30s).
	CheckInterval time.Duration
}

// DefaultConfig returns the default health tracking configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		CircuitTimeout:   60 * time.Second,
		LatencyWindow:    10,
		HistorySize:      50,
		CheckInterval:    30 * time.Second,
	}
}

// State is a point-in-time snapshot of one provider's health.
type State struct {
	Provider            provider.ID   `json:"provider"`
	Healthy             bool          `json:"healthy"`
	AvgLatency          time.Duration `json:"avg_latency"`
	ErrorRate           float64       `json:"error_rate"` // 0-100 over the history window
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastChecked         time.Time     `json:"last_checked"`
	CircuitOpen         bool          `json:"circuit_open"`
	ResetAt             time.Time     `json:"reset_at,omitempty"`
}

// outcome is one completed call in the performance history.
type outcome struct {
	ok bool
	at time.Time
}

// entry holds mutable health state for one provider. Each entry has
// its own mutex so concurrent failover paths against different
// providers never serialize on each other.
type entry struct {
	mu sync.Mutex

	healthy             bool
	latencies           []time.Duration
	history             []outcome
	consecutiveFailures int
	lastChecked         time.Time

	circuitOpen bool
	resetAt     time.Time
}

// Tracker maintains rolling health state and a circuit breaker per
// provider. All methods are safe for concurrent use.
type Tracker struct {
	cfg     Config
	emitter *events.Emitter

	mu        sync.RWMutex
	providers map[provider.ID]*entry

	// now is swappable for tests.
	now func() time.Time
}

// NewTracker creates a tracker for the given provider set. The emitter
// may be nil; circuit transitions are then unobserved.
func NewTracker(cfg Config, ids []provider.ID, emitter *events.Emitter) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = 60 * time.Second
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 10
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}

	providers := make(map[provider.ID]*entry, len(ids))
	for _, id := range ids {
		providers[id] = &entry{healthy: true}
	}

	return &Tracker{
		cfg:       cfg,
		emitter:   emitter,
		providers: providers,
		now:       time.Now,
	}
}

// get returns the entry for id, creating one for providers registered
// after construction.
func (t *Tracker) get(id provider.ID) *entry {
	t.mu.RLock()
	e, ok := t.providers[id]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.providers[id]; ok {
		return e
	}
	e = &entry{healthy: true}
	t.providers[id] = e
	return e
}

// RecordSuccess records a successful call with its observed latency.
// Any success zeroes the consecutive-failure counter; a success while
// the breaker is past its reset window closes the breaker.
func (t *Tracker) RecordSuccess(id provider.ID, latency time.Duration) {
	e := t.get(id)
	now := t.now()

	e.mu.Lock()

	e.latencies = append(e.latencies, latency)
	if len(e.latencies) > t.cfg.LatencyWindow {
		e.latencies = e.latencies[len(e.latencies)-t.cfg.LatencyWindow:]
	}
	e.appendHistory(outcome{ok: true, at: now}, t.cfg.HistorySize)

	e.consecutiveFailures = 0
	e.healthy = true
	e.lastChecked = now

	closed := false
	if e.circuitOpen && !now.Before(e.resetAt) {
		e.circuitOpen = false
		e.resetAt = time.Time{}
		closed = true
	}

	e.mu.Unlock()

	if closed {
		t.emitTransition(events.TypeCircuitClose, events.SeverityInfo, id,
			fmt.Sprintf("circuit closed for %s after successful probe", id))
	}
}

// RecordFailure records a failed call. Reaching the failure threshold
// opens the breaker; a failure during a post-timeout probe re-opens it
// with a fresh timeout.
func (t *Tracker) RecordFailure(id provider.ID) {
	e := t.get(id)
	now := t.now()

	e.mu.Lock()

	e.appendHistory(outcome{ok: false, at: now}, t.cfg.HistorySize)
	e.consecutiveFailures++
	e.lastChecked = now

	opened := false
	switch {
	case e.circuitOpen && !now.Before(e.resetAt):
		// Failed probe: re-open with a fresh timeout, no new event.
		e.resetAt = now.Add(t.cfg.CircuitTimeout)
	case !e.circuitOpen && e.consecutiveFailures >= t.cfg.FailureThreshold:
		e.circuitOpen = true
		e.healthy = false
		e.resetAt = now.Add(t.cfg.CircuitTimeout)
		opened = true
	}

	e.mu.Unlock()

	if opened {
		t.emitTransition(events.TypeCircuitOpen, events.SeverityWarning, id,
			fmt.Sprintf("circuit opened for %s after %d consecutive failures", id, t.cfg.FailureThreshold))
	}
}

// TripBreaker force-opens a provider's breaker, as failover does after
// exhausting a provider's retries. Idempotent: an already-open breaker
// is left alone and no duplicate event is emitted.
func (t *Tracker) TripBreaker(id provider.ID) {
	e := t.get(id)
	now := t.now()

	e.mu.Lock()
	if e.circuitOpen {
		e.mu.Unlock()
		return
	}
	e.circuitOpen = true
	e.healthy = false
	e.resetAt = now.Add(t.cfg.CircuitTimeout)
	e.mu.Unlock()

	t.emitTransition(events.TypeCircuitOpen, events.SeverityWarning, id,
		fmt.Sprintf("circuit opened for %s by failover", id))
}

// Reset manually closes a provider's breaker and clears its failure
// counter. Used by operators after fixing a key or quota problem.
func (t *Tracker) Reset(id provider.ID) {
	e := t.get(id)

	e.mu.Lock()
	wasOpen := e.circuitOpen
	e.circuitOpen = false
	e.resetAt = time.Time{}
	e.consecutiveFailures = 0
	e.healthy = true
	e.mu.Unlock()

	if wasOpen {
		t.emitTransition(events.TypeCircuitClose, events.SeverityInfo, id,
			fmt.Sprintf("circuit closed for %s by manual reset", id))
	}
}

// Available reports whether a provider may receive traffic: its breaker
// is closed, or open but past the reset window (probe-eligible).
func (t *Tracker) Available(id provider.ID) bool {
	e := t.get(id)
	now := t.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.circuitOpen {
		return true
	}
	return !now.Before(e.resetAt)
}

// Healthy reports the provider's healthy flag.
func (t *Tracker) Healthy(id provider.ID) bool {
	e := t.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// Snapshot returns a point-in-time copy of one provider's health.
func (t *Tracker) Snapshot(id provider.ID) State {
	e := t.get(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	return State{
		Provider:            id,
		Healthy:             e.healthy,
		AvgLatency:          e.avgLatencyLocked(),
		ErrorRate:           e.errorRateLocked(),
		ConsecutiveFailures: e.consecutiveFailures,
		LastChecked:         e.lastChecked,
		CircuitOpen:         e.circuitOpen,
		ResetAt:             e.resetAt,
	}
}

// SnapshotAll returns snapshots for every tracked provider.
func (t *Tracker) SnapshotAll() []State {
	t.mu.RLock()
	ids := make([]provider.ID, 0, len(t.providers))
	for id := range t.providers {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make([]State, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Snapshot(id))
	}
	return out
}

// RecentSuccessRate returns the success fraction (0.0-1.0) over the
// last n history entries, or 1.0 when there is no history yet.
func (t *Tracker) RecentSuccessRate(id provider.ID, n int) float64 {
	e := t.get(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	hist := e.history
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	if len(hist) == 0 {
		return 1.0
	}

	ok := 0
	for _, o := range hist {
		if o.ok {
			ok++
		}
	}
	return float64(ok) / float64(len(hist))
}

// ProbeFunc performs a nominal health check against a provider and
// returns nil if it responds.
type ProbeFunc func(ctx context.Context, id provider.ID) error

// Start runs the background health-check tick until ctx is canceled.
// Each tick probes providers whose breaker has passed its reset window
// and closes breakers whose probe succeeds. Returns a stop function
// that is safe to call more than once.
func (t *Tracker) Start(ctx context.Context, probe ProbeFunc) (stop func()) {
	tickCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(t.cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				t.probeExpired(tickCtx, probe)
			}
		}
	}()

	return cancel
}

// probeExpired probes every provider whose breaker is open but past
// its reset window.
func (t *Tracker) probeExpired(ctx context.Context, probe ProbeFunc) {
	if probe == nil {
		return
	}

	for _, st := range t.SnapshotAll() {
		if !st.CircuitOpen || t.now().Before(st.ResetAt) {
			continue
		}
		if err := probe(ctx, st.Provider); err != nil {
			t.RecordFailure(st.Provider)
		} else {
			t.RecordSuccess(st.Provider, 0)
		}
	}
}

func (t *Tracker) emitTransition(eventType events.Type, severity events.Severity, id provider.ID, msg string) {
	if t.emitter == nil {
		return
	}
	ev := events.New(eventType, severity, msg)
	ev.Provider = id
	t.emitter.Emit(ev)
}

// appendHistory appends an outcome and trims to max entries.
// Must be called with e.mu held.
func (e *entry) appendHistory(o outcome, max int) {
	e.history = append(e.history, o)
	if len(e.history) > max {
		e.history = e.history[len(e.history)-max:]
	}
}

// avgLatencyLocked returns the mean of the latency window.
// Must be called with e.mu held.
func (e *entry) avgLatencyLocked() time.Duration {
	if len(e.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range e.latencies {
		sum += l
	}
	return sum / time.Duration(len(e.latencies))
}

// errorRateLocked returns the failure percentage (0-100) over the
// history window. Must be called with e.mu held.
func (e *entry) errorRateLocked() float64 {
	if len(e.history) == 0 {
		return 0
	}
	failures := 0
	for _, o := range e.history {
		if !o.ok {
			failures++
		}
	}
	return float64(failures) / float64(len(e.history)) * 100
}

// SetClock overrides the tracker's time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
