package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToAllSubscribers(t *testing.T) {
	e := NewEmitter()

	var got []string
	e.Subscribe(func(ev Event) { got = append(got, "a:"+string(ev.Type)) })
	e.Subscribe(func(ev Event) { got = append(got, "b:"+string(ev.Type)) })

	e.Emit(New(TypeCircuitOpen, SeverityWarning, "breaker opened"))

	require.Len(t, got, 2)
	assert.Equal(t, "a:circuit_open", got[0])
	assert.Equal(t, "b:circuit_open", got[1])
}

func TestEmitOnNilEmitter(t *testing.T) {
	var e *Emitter
	// Must not panic: the alert sink is optional.
	e.Emit(New(TypeAlert, SeverityCritical, "no one is listening"))
}

func TestNewPopulatesIDAndTimestamp(t *testing.T) {
	ev := New(TypeRoute, SeverityInfo, "routed")
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, TypeRoute, ev.Type)
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	count := 0
	e.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(New(TypeProviderSuccess, SeverityInfo, "ok"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
