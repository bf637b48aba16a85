package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyscan/airouter/internal/provider"
)

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	l := New(10, nil)
	l.Record(Entry{Task: provider.TaskScan, Provider: provider.Kimi, Cost: 0.01, Success: true})

	recent := l.Recent(1)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestRingBufferEvictsOldestFirst(t *testing.T) {
	l := New(3, nil)
	for i := 0; i < 5; i++ {
		l.Record(Entry{ID: string(rune('a' + i)), Task: provider.TaskScan, Provider: provider.Kimi})
	}

	assert.Equal(t, 3, l.Len())
	recent := l.Recent(3)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "e", recent[2].ID)
}

func TestMonthlyTotalUsesUTCCalendarMonth(t *testing.T) {
	l := New(100, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	l.Record(Entry{Timestamp: time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC), Cost: 5.0})
	l.Record(Entry{Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Cost: 1.5})
	l.Record(Entry{Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), Cost: 2.5})

	assert.InDelta(t, 4.0, l.MonthlyTotal(), 1e-9)
}

func TestSummaryRollups(t *testing.T) {
	l := New(100, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	l.Record(Entry{
		Timestamp: now.Add(-time.Hour), Task: provider.TaskScan,
		Provider: provider.SiliconFlow, InputTokens: 4000, OutputTokens: 800,
		Cost: 0.10, Success: true,
	})
	l.Record(Entry{
		Timestamp: now.Add(-48 * time.Hour), Task: provider.TaskPatch,
		Provider: provider.OpenAI, InputTokens: 6000, OutputTokens: 2000,
		Cost: 0.30, Success: true,
	})
	l.Record(Entry{
		Timestamp: now.Add(-2 * time.Hour), Task: provider.TaskScan,
		Provider: provider.SiliconFlow, Success: false,
	})

	s := l.Summary()

	assert.InDelta(t, 0.10, s.Today, 1e-9)
	assert.InDelta(t, 0.40, s.ThisMonth, 1e-9)
	assert.Equal(t, 3, s.TotalCalls)

	require.Len(t, s.ByProvider, 2)
	assert.Equal(t, provider.SiliconFlow, s.ByProvider[0].Provider)
	assert.Equal(t, 2, s.ByProvider[0].Calls)
	assert.Equal(t, 1, s.ByProvider[0].Failures)
	assert.Equal(t, int64(4800), s.ByProvider[0].Tokens)

	require.Len(t, s.ByTask, 2)
	assert.Equal(t, provider.TaskScan, s.ByTask[0].Task)
	assert.Equal(t, 2, s.ByTask[0].Calls)
}

func TestSavingsUsesBaselineMultipliers(t *testing.T) {
	l := New(100, nil)

	// siliconflow carries a 10x baseline multiplier.
	l.Record(Entry{Task: provider.TaskScan, Provider: provider.SiliconFlow, Cost: 1.0, Success: true})

	s := l.Summary()
	assert.InDelta(t, 1.0, s.Savings.ActualCost, 1e-9)
	assert.InDelta(t, 10.0, s.Savings.VsBaseline, 1e-9)
	assert.InDelta(t, 9.0, s.Savings.Saved, 1e-9)
}

type captureStore struct {
	entries []Entry
}

func (c *captureStore) Append(e Entry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestRecordForwardsToStore(t *testing.T) {
	store := &captureStore{}
	l := New(10, store)

	l.Record(Entry{Task: provider.TaskScan, Provider: provider.Kimi, Cost: 0.02})

	require.Len(t, store.entries, 1)
	assert.Equal(t, provider.Kimi, store.entries[0].Provider)
}

func TestLoadRespectsRetentionBound(t *testing.T) {
	l := New(2, nil)

	l.Load([]Entry{{ID: "1"}, {ID: "2"}, {ID: "3"}})
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "2", l.Recent(2)[0].ID)
}
