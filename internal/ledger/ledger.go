package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complyscan/airouter/internal/cost"
	"github.com/complyscan/airouter/internal/provider"
)

// Entry is one completed provider call, successful or not. Entries are
// immutable once recorded and ordered by call completion time.
type Entry struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Task         provider.Task `json:"task"`
	Provider     provider.ID   `json:"provider"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Latency      time.Duration `json:"latency"`
	Success      bool          `json:"success"`
}

// ProviderSummary aggregates spend and call counts for one provider.
type ProviderSummary struct {
	Provider provider.ID `json:"provider"`
	Calls    int         `json:"calls"`
	Failures int         `json:"failures"`
	Tokens   int64       `json:"tokens"`
	Cost     float64     `json:"cost"`
}

// TaskSummary aggregates spend and call counts for one task type.
type TaskSummary struct {
	Task  provider.Task `json:"task"`
	Calls int           `json:"calls"`
	Cost  float64       `json:"cost"`
}

// Savings estimates what the recorded spend would have been on the
// reference-expensive baseline provider. VsBaseline comes from fixed
// per-provider multipliers, not from measured A/B pricing: treat it as
// a labeled estimate, never as billing ground truth.
type Savings struct {
	ActualCost float64 `json:"actual_cost"`
	VsBaseline float64 `json:"vs_baseline"`
	Saved      float64 `json:"saved"`
}

// Summary is the derived rollup over the retained history.
type Summary struct {
	Today      float64           `json:"today"`
	ThisMonth  float64           `json:"this_month"`
	TotalCalls int               `json:"total_calls"`
	ByProvider []ProviderSummary `json:"by_provider"`
	ByTask     []TaskSummary     `json:"by_task"`
	Savings    Savings           `json:"savings"`
}

// Store persists entries outside the process. Appends are
// fire-and-forget: the ledger never depends on the store's result.
type Store interface {
	Append(e Entry) error
}

// DefaultMaxEntries bounds the in-memory ring buffer.
const DefaultMaxEntries = 5000

// Ledger is an append-only, bounded history of completed calls with
// derived aggregates. Day and month boundaries use UTC consistently.
type Ledger struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	store      Store

	// now is swappable for tests.
	now func() time.Time
}

// New creates a ledger retaining at most maxEntries records. The store
// may be nil for in-memory-only operation.
func New(maxEntries int, store Store) *Ledger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Ledger{
		maxEntries: maxEntries,
		store:      store,
		now:        time.Now,
	}
}

// Record appends an entry, evicting oldest-first past the retention
// bound, and forwards it to the store best-effort.
func (l *Ledger) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	l.mu.Unlock()

	if l.store != nil {
		// Persistence failures are invisible to callers: the ledger is
		// an accounting aid, not a system of record.
		_ = l.store.Append(e)
	}
}

// Load seeds the ledger with historical entries, oldest first. Used at
// startup to restore recent history from the store.
func (l *Ledger) Load(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entries...)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// MonthlyTotal returns the summed cost of entries in the current UTC
// calendar month. This feeds the budget monitor.
func (l *Ledger) MonthlyTotal() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	monthStart := startOfMonth(l.now().UTC())
	var total float64
	for _, e := range l.entries {
		if !e.Timestamp.UTC().Before(monthStart) {
			total += e.Cost
		}
	}
	return total
}

// Summary aggregates the retained history.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := startOfMonth(now)

	byProvider := make(map[provider.ID]*ProviderSummary)
	byTask := make(map[provider.Task]*TaskSummary)

	var s Summary
	for _, e := range l.entries {
		ts := e.Timestamp.UTC()

		if !ts.Before(dayStart) {
			s.Today += e.Cost
		}
		if !ts.Before(monthStart) {
			s.ThisMonth += e.Cost
		}
		s.TotalCalls++

		ps, ok := byProvider[e.Provider]
		if !ok {
			ps = &ProviderSummary{Provider: e.Provider}
			byProvider[e.Provider] = ps
		}
		ps.Calls++
		if !e.Success {
			ps.Failures++
		}
		ps.Tokens += e.InputTokens + e.OutputTokens
		ps.Cost += e.Cost

		tsum, ok := byTask[e.Task]
		if !ok {
			tsum = &TaskSummary{Task: e.Task}
			byTask[e.Task] = tsum
		}
		tsum.Calls++
		tsum.Cost += e.Cost

		s.Savings.ActualCost += e.Cost
		s.Savings.VsBaseline += e.Cost * cost.BaselineMultiplier(e.Provider)
	}
	s.Savings.Saved = s.Savings.VsBaseline - s.Savings.ActualCost

	for _, id := range provider.IDs {
		if ps, ok := byProvider[id]; ok {
			s.ByProvider = append(s.ByProvider, *ps)
		}
	}
	for _, task := range provider.Tasks {
		if tsum, ok := byTask[task]; ok {
			s.ByTask = append(s.ByTask, *tsum)
		}
	}
	return s
}

// Recent returns up to n most recent entries, newest last.
func (l *Ledger) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// SetClock overrides the ledger's time source. Tests only.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
