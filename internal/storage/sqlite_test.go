package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyscan/airouter/internal/ledger"
	"github.com/complyscan/airouter/internal/provider"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndLoadRecent(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ledger.Entry{
			ID:           string(rune('a' + i)),
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			Task:         provider.TaskScan,
			Provider:     provider.Kimi,
			InputTokens:  2000,
			OutputTokens: 500,
			Cost:         0.00155,
			Latency:      350 * time.Millisecond,
			Success:      true,
		}))
	}

	entries, err := store.LoadRecent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Oldest first of the two most recent.
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "c", entries[1].ID)
	assert.Equal(t, provider.Kimi, entries[0].Provider)
	assert.Equal(t, 350*time.Millisecond, entries[0].Latency)
	assert.True(t, entries[0].Success)
	assert.InDelta(t, 0.00155, entries[0].Cost, 1e-9)
}

func TestMonthlyTotal(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(ledger.Entry{
		ID: "feb", Timestamp: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), Cost: 5.0,
		Task: provider.TaskScan, Provider: provider.OpenAI, Success: true,
	}))
	require.NoError(t, store.Append(ledger.Entry{
		ID: "mar1", Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Cost: 1.5,
		Task: provider.TaskScan, Provider: provider.OpenAI, Success: true,
	}))
	require.NoError(t, store.Append(ledger.Entry{
		ID: "mar2", Timestamp: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), Cost: 2.5,
		Task: provider.TaskPatch, Provider: provider.Kimi, Success: true,
	}))

	total, err := store.MonthlyTotal(2026, time.March)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, total, 1e-9)

	empty, err := store.MonthlyTotal(2026, time.January)
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(ledger.Entry{
		ID: "old", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Task: provider.TaskScan, Provider: provider.Kimi, Success: true,
	}))
	require.NoError(t, store.Append(ledger.Entry{
		ID: "new", Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Task: provider.TaskScan, Provider: provider.Kimi, Success: true,
	}))

	n, err := store.Prune(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := store.LoadRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}
