package metrics

import (
	"testing"
	"time"

	"dinnerplan/internal/database"
	"dinnerplan/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(database.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStore_DailyUsage(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Record(ExecutionMetric{AgentName: "planner", Model: "m", PromptTokens: 100, CompletionTokens: 50, Timestamp: now}))
	require.NoError(t, s.Record(ExecutionMetric{AgentName: "recipe", Model: "m", PromptTokens: 10, CompletionTokens: 5, Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, s.Record(ExecutionMetric{AgentName: "planner", Model: "m", PromptTokens: 1, CompletionTokens: 1, Timestamp: now.AddDate(0, 0, -1)}))
	require.NoError(t, s.Record(ExecutionMetric{AgentName: "planner", Model: "m", PromptTokens: 9, CompletionTokens: 9, Timestamp: now.AddDate(0, 0, -30)}))

	usage, err := s.GetDailyUsage(7)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, DailyUsage{Date: "2026-03-10", TotalPrompt: 110, TotalCompletion: 55, TotalExecution: 2}, usage[0])
	assert.Equal(t, "2026-03-09", usage[1].Date)
}

func TestStore_RecordMetaSkipsEmptyUsage(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordMeta(shared.AgentMeta{AgentName: "planner"}))
	require.NoError(t, s.RecordMeta(shared.AgentMeta{
		AgentName: "planner",
		Usage:     shared.TokenUsage{PromptTokens: 5, CompletionTokens: 7, Model: "gemini"},
		Latency:   1500 * time.Millisecond,
	}))

	var count int
	var latency int64
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*), MAX(latency_ms) FROM execution_metrics`).Scan(&count, &latency))
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(1500), latency)
}

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Record(ExecutionMetric{AgentName: "a", Model: "m", Timestamp: now.AddDate(0, 0, -40)}))
	require.NoError(t, s.Record(ExecutionMetric{AgentName: "a", Model: "m", Timestamp: now.AddDate(0, 0, -31)}))
	require.NoError(t, s.Record(ExecutionMetric{AgentName: "a", Model: "m", Timestamp: now}))

	removed, err := s.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = s.Cleanup(30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMapUsage(t *testing.T) {
	m := MapUsage("recipe", shared.TokenUsage{PromptTokens: 3, CompletionTokens: 4, Model: "x"}, 250*time.Millisecond)
	assert.Equal(t, "recipe", m.AgentName)
	assert.Equal(t, "x", m.Model)
	assert.Equal(t, int64(250), m.LatencyMS)
	assert.False(t, m.Timestamp.IsZero())
}
