package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complyscan/airouter/internal/provider"
)

// Type identifies the kind of routing event that occurred.
type Type string

const (
	// TypeRoute indicates a routing decision was made
	TypeRoute Type = "route"
	// TypeProviderSuccess indicates a provider call completed successfully
	TypeProviderSuccess Type = "provider_success"
	// TypeProviderFailure indicates a provider call failed all retries
	TypeProviderFailure Type = "provider_failure"
	// TypeCircuitOpen indicates a provider's circuit breaker opened
	TypeCircuitOpen Type = "circuit_open"
	// TypeCircuitClose indicates a provider's circuit breaker closed
	TypeCircuitClose Type = "circuit_close"
	// TypeAlert indicates a budget/spike/anomaly alert was raised
	TypeAlert Type = "alert"
)

// Severity ranks how urgent an event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an immutable notification produced by the routing core.
// External subscribers (logging, UI, webhooks) receive it via an
// Emitter; the core makes no assumption about subscriber presence.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Provider  provider.ID            `json:"provider,omitempty"`
	Task      provider.Task          `json:"task,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType Type, severity Severity, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Severity:  severity,
		Timestamp: time.Now(),
		Message:   message,
	}
}

// Subscriber receives events. Subscribers must not block: Emit calls
// them synchronously on the emitting goroutine.
type Subscriber func(Event)

// Emitter fans events out to an explicit subscriber list. The zero
// value is unusable; create one with NewEmitter. A nil *Emitter is
// safe to emit on (events are dropped), which lets components treat
// the alert sink as optional.
type Emitter struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers fn for all future events.
func (e *Emitter) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Emit delivers ev to every subscriber in registration order.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
