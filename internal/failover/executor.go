package failover

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/complyscan/airouter/internal/cost"
	"github.com/complyscan/airouter/internal/events"
	"github.com/complyscan/airouter/internal/health"
	"github.com/complyscan/airouter/internal/ledger"
	"github.com/complyscan/airouter/internal/provider"
	"github.com/complyscan/airouter/internal/routing"
)

// Config holds failover execution settings.
type Config struct {
	// MaxRetriesPerProvider is how many attempts each provider gets
	// before failover moves on (default: 3).
	MaxRetriesPerProvider int

	// InitialBackoff is the delay before the second attempt; it doubles
	// per attempt (1s, 2s, 4s by default).
	InitialBackoff time.Duration

	// CallTimeout bounds each individual provider attempt (default: 30s).
	CallTimeout time.Duration

	// MaxConcurrentCalls caps in-flight operations across all providers.
	// 0 means unlimited.
	MaxConcurrentCalls int

	// Priority is the routing mode used to build chains.
	Priority routing.PriorityMode
}

// DefaultConfig returns the default failover configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetriesPerProvider: 3,
		InitialBackoff:        time.Second,
		CallTimeout:           30 * time.Second,
		MaxConcurrentCalls:    0,
		Priority:              routing.PriorityCost,
	}
}

// Result describes a completed call so the executor can account for it.
// Operations fill in token counts; the executor measures latency.
type Result struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Operation performs the actual provider call. It receives the chosen
// provider's id and resolved model; ctx carries the per-attempt
// timeout.
type Operation func(ctx context.Context, id provider.ID, model string) (Result, error)

// ExhaustedError is the single terminal failure mode: every provider in
// the chain failed all of its attempts. Last holds the final underlying
// provider error.
type ExhaustedError struct {
	Task      provider.Task
	Providers []provider.ID
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers failed for task %s (last error from %s: %v)",
		len(e.Providers), e.Task, e.Providers[len(e.Providers)-1], e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Executor runs operations against a routed provider chain with
// per-provider retry, exponential backoff, and circuit breaking.
type Executor struct {
	cfg     Config
	router  *routing.Router
	tracker *health.Tracker
	ledger  *ledger.Ledger
	emitter *events.Emitter
	sem     *semaphore.Weighted

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor. The ledger and emitter may be nil.
func New(cfg Config, router *routing.Router, tracker *health.Tracker, led *ledger.Ledger, emitter *events.Emitter) *Executor {
	if cfg.MaxRetriesPerProvider <= 0 {
		cfg.MaxRetriesPerProvider = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Priority == "" {
		cfg.Priority = routing.PriorityCost
	}

	var sem *semaphore.Weighted
	if cfg.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}

	return &Executor{
		cfg:     cfg,
		router:  router,
		tracker: tracker,
		ledger:  led,
		emitter: emitter,
		sem:     sem,
		sleep:   sleepCtx,
	}
}

// Execute routes the task, then tries each provider in the decision
// chain in order. A success is returned immediately with no further
// providers tried; exhausting the whole chain returns *ExhaustedError.
func (e *Executor) Execute(ctx context.Context, task provider.Task, contextTokens int, op Operation) (Result, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("acquiring concurrency slot for %s: %w", task, err)
		}
		defer e.sem.Release(1)
	}

	decision, err := e.router.Route(task, contextTokens, e.cfg.Priority)
	if err != nil {
		return Result{}, err
	}

	chain := append([]provider.ID{decision.Provider}, decision.FallbackChain...)

	var lastErr error
	for _, id := range chain {
		res, err := e.tryProvider(ctx, task, id, op)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("task %s canceled: %w", task, ctx.Err())
		}
	}

	return Result{}, &ExhaustedError{Task: task, Providers: chain, Last: lastErr}
}

// tryProvider attempts one provider up to the retry budget, with
// exponential backoff between attempts. All attempts failing records
// the failure, trips the breaker, and reports the last error.
func (e *Executor) tryProvider(ctx context.Context, task provider.Task, id provider.ID, op Operation) (Result, error) {
	model := e.resolveModel(task, id)

	var lastErr error
	backoff := e.cfg.InitialBackoff

	for attempt := 0; attempt < e.cfg.MaxRetriesPerProvider; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, backoff); err != nil {
				return Result{}, err
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		start := time.Now()
		res, err := op(attemptCtx, id, model)
		latency := time.Since(start)
		cancel()

		if err == nil {
			e.recordSuccess(task, id, res, latency)
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("task %s canceled: %w", task, ctx.Err())
		}
	}

	e.recordExhausted(task, id, lastErr)
	return Result{}, fmt.Errorf("provider %s exhausted %d attempts: %w", id, e.cfg.MaxRetriesPerProvider, lastErr)
}

func (e *Executor) resolveModel(task provider.Task, id provider.ID) string {
	if p, err := e.routerProfile(id); err == nil {
		return p.ModelFor(task)
	}
	return ""
}

// routerProfile looks the profile up through the router's registry.
func (e *Executor) routerProfile(id provider.ID) (provider.Profile, error) {
	p, ok := e.router.Registry().Get(id)
	if !ok {
		return provider.Profile{}, fmt.Errorf("unknown provider %q", id)
	}
	return p, nil
}

func (e *Executor) recordSuccess(task provider.Task, id provider.ID, res Result, latency time.Duration) {
	e.tracker.RecordSuccess(id, latency)

	if e.ledger != nil {
		p, _ := e.routerProfile(id)
		e.ledger.Record(ledger.Entry{
			Task:         task,
			Provider:     id,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			Cost:         cost.Estimate(p, res.InputTokens, res.OutputTokens),
			Latency:      latency,
			Success:      true,
		})
	}

	if e.emitter != nil {
		ev := events.New(events.TypeProviderSuccess, events.SeverityInfo,
			fmt.Sprintf("%s completed %s in %v", id, task, latency.Round(time.Millisecond)))
		ev.Provider = id
		ev.Task = task
		e.emitter.Emit(ev)
	}
}

func (e *Executor) recordExhausted(task provider.Task, id provider.ID, cause error) {
	e.tracker.RecordFailure(id)
	e.tracker.TripBreaker(id)

	if e.ledger != nil {
		e.ledger.Record(ledger.Entry{
			Task:     task,
			Provider: id,
			Success:  false,
		})
	}

	if e.emitter != nil {
		ev := events.New(events.TypeProviderFailure, events.SeverityWarning,
			fmt.Sprintf("%s failed %s after %d attempts: %v", id, task, e.cfg.MaxRetriesPerProvider, cause))
		ev.Provider = id
		ev.Task = task
		e.emitter.Emit(ev)
	}
}

// sleepCtx sleeps for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSleep overrides the backoff sleeper. Tests only.
func (e *Executor) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
}
