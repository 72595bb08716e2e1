package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(e Event) error {
	args := m.Called(e)
	return args.Error(0)
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestSnapshotCountsByType(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		m.Record("A", nil, "")
	}
	for i := 0; i < 2; i++ {
		m.Record("B", map[string]interface{}{"n": i}, "p1")
	}

	snap := m.Snapshot()
	assert.Len(t, snap.Events, 5)
	assert.Equal(t, 5, snap.Statistics.TotalEvents)
	assert.Equal(t, map[string]int{"A": 3, "B": 2}, snap.Statistics.EventsByType)
}

func TestStatisticsPerPresetAndParticipant(t *testing.T) {
	m := New()
	m.RecordSessionStart("alice", "job_interview", "preview")
	m.RecordSessionStart("bob", "job_interview", "preview")
	m.RecordSessionStart("carol", "custom", "preview")
	m.Record(EventSessionStarted, map[string]interface{}{}, "dave")
	m.RecordReinforcement("alice", 16, "Stay")
	m.RecordReinforcement("alice", 32, "Stay")
	m.RecordReinforcement("bob", 16, "Stay")
	m.Record(EventReinforcementAdded, nil, "")

	stats := m.Statistics()
	assert.Equal(t, map[string]int{"job_interview": 2, "custom": 1, "unknown": 1}, stats.SessionsByPreset)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, stats.ReinforcementsPerSession)
	assert.Equal(t, 4, stats.EventsByType[EventReinforcementAdded])
}

func TestSnapshotReturnsCopies(t *testing.T) {
	m := New()
	details := map[string]interface{}{"preset": "custom"}
	m.Record(EventSessionStarted, details, "p1")

	details["preset"] = "mutated"
	snap := m.Snapshot()
	snap.Events[0].Details["preset"] = "changed"
	snap.Events = append(snap.Events, Event{EventType: "extra"})

	again := m.Snapshot()
	require.Len(t, again.Events, 1)
	assert.Equal(t, "custom", again.Events[0].Details["preset"])
}

func TestRecordSurvivesSinkFailure(t *testing.T) {
	sink := new(MockSink)
	sink.On("Write", mock.Anything).Return(errors.New("disk full"))

	m := New(WithSink(sink), WithClock(fixedClock()))
	event := m.RecordConfigChange("p1", "custom", "sales_mindset", []string{"voice"})

	assert.Equal(t, EventConfigChanged, event.EventType)
	assert.Equal(t, 1, m.Statistics().TotalEvents)
	sink.AssertNumberOfCalls(t, "Write", 1)
}

func TestConcurrentRecord(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSessionEnd("p", "disconnect", 0, 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.Statistics().EventsByType[EventSessionEnded])
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	m := New(WithClock(fixedClock()))
	m.RecordSessionStart("p1", "custom", "preview")
	m.RecordReinforcement("p1", 16, "Stay")

	path, err := m.Export(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "instruction_events_20250115_093000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "events")
	assert.Contains(t, doc, "statistics")
	assert.Contains(t, doc, "export_timestamp")

	stats := doc["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total_events"])
	events := doc["events"].([]interface{})
	first := events[0].(map[string]interface{})
	assert.Equal(t, "session_started", first["event_type"])
	assert.Equal(t, "p1", first["participant_id"])
}

func TestFileSinkWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "instruction_adherence.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	m := New(WithSink(sink))
	m.RecordReinforcement("p1", 16, "Stay")
	m.RecordSessionStart("p2", "job_interview", "preview")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Instruction reinforcement added for participant p1 at message 16")
	assert.Contains(t, string(data), "Session started for participant p2 with preset job_interview")

	assert.ErrorIs(t, sink.Write(Event{}), os.ErrClosed)
}
