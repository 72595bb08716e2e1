package monitor

import (
	"sync"
	"time"

	"github.com/neo/interview_agent/internal/logging"
)

// Event types recorded by the monitor
const (
	EventSessionStarted     = "session_started"
	EventReinforcementAdded = "reinforcement_added"
	EventConfigChanged      = "config_changed"
	EventSessionEnded       = "session_ended"
)

// Event is one append-only monitor entry
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	EventType     string                 `json:"event_type"`
	Details       map[string]interface{} `json:"details"`
	ParticipantID string                 `json:"participant_id,omitempty"`
}

func (e Event) clone() Event {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	return e
}

// Statistics are derived from the event list on every call
type Statistics struct {
	TotalEvents              int            `json:"total_events"`
	EventsByType             map[string]int `json:"events_by_type"`
	SessionsByPreset         map[string]int `json:"sessions_by_preset"`
	ReinforcementsPerSession map[string]int `json:"reinforcements_per_session"`
}

// Snapshot is a detached copy of the monitor state
type Snapshot struct {
	Events     []Event    `json:"events"`
	Statistics Statistics `json:"statistics"`
}

// Monitor records session lifecycle and reinforcement events for the
// lifetime of the process. It is safe for concurrent use.
type Monitor struct {
	mu     sync.Mutex
	events []Event
	sink   Sink
	now    func() time.Time
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSink sets the durable sink every event is mirrored to
func WithSink(s Sink) Option {
	return func(m *Monitor) {
		m.sink = s
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates an empty monitor
func New(opts ...Option) *Monitor {
	m := &Monitor{
		sink: NopSink{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record appends an event. It never fails: sink errors are logged and
// the in-memory record is kept.
func (m *Monitor) Record(eventType string, details map[string]interface{}, participantID string) Event {
	event := Event{
		EventType:     eventType,
		Details:       details,
		ParticipantID: participantID,
	}
	if event.Details == nil {
		event.Details = map[string]interface{}{}
	}

	m.mu.Lock()
	event.Timestamp = m.now()
	event = event.clone()
	m.events = append(m.events, event)
	sink := m.sink
	m.mu.Unlock()

	if err := sink.Write(event); err != nil {
		logging.Warn("Failed to persist monitor event", map[string]interface{}{
			"event_type":     eventType,
			"participant_id": participantID,
			"error":          err.Error(),
		})
	}
	return event.clone()
}

// RecordSessionStart records a session start with the active preset
func (m *Monitor) RecordSessionStart(participantID, preset, instructionsPreview string) Event {
	return m.Record(EventSessionStarted, map[string]interface{}{
		"preset":               preset,
		"instructions_preview": instructionsPreview,
	}, participantID)
}

// RecordReinforcement records a reinforcement injected at messageCount
func (m *Monitor) RecordReinforcement(participantID string, messageCount int, instructionPreview string) Event {
	return m.Record(EventReinforcementAdded, map[string]interface{}{
		"message_count":       messageCount,
		"instruction_preview": instructionPreview,
	}, participantID)
}

// RecordConfigChange records a live reconfiguration
func (m *Monitor) RecordConfigChange(participantID, oldPreset, newPreset string, changed []string) Event {
	fields := make([]string, len(changed))
	copy(fields, changed)
	return m.Record(EventConfigChanged, map[string]interface{}{
		"old_preset":     oldPreset,
		"new_preset":     newPreset,
		"changed_fields": fields,
	}, participantID)
}

// RecordSessionEnd records a session termination with the number of user
// and assistant items the conversation reached
func (m *Monitor) RecordSessionEnd(participantID, reason string, userTurns, assistantTurns int) Event {
	return m.Record(EventSessionEnded, map[string]interface{}{
		"reason":          reason,
		"user_turns":      userTurns,
		"assistant_turns": assistantTurns,
	}, participantID)
}

// Events returns a copy of every recorded event
func (m *Monitor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyEventsLocked()
}

// Statistics derives aggregate counts from the current event list
func (m *Monitor) Statistics() Statistics {
	return computeStatistics(m.Events())
}

// Snapshot returns the events and the statistics derived from exactly
// those events
func (m *Monitor) Snapshot() Snapshot {
	events := m.Events()
	return Snapshot{
		Events:     events,
		Statistics: computeStatistics(events),
	}
}

func (m *Monitor) copyEventsLocked() []Event {
	out := make([]Event, len(m.events))
	for i, e := range m.events {
		out[i] = e.clone()
	}
	return out
}

func computeStatistics(events []Event) Statistics {
	stats := Statistics{
		TotalEvents:              len(events),
		EventsByType:             map[string]int{},
		SessionsByPreset:         map[string]int{},
		ReinforcementsPerSession: map[string]int{},
	}

	for _, e := range events {
		stats.EventsByType[e.EventType]++

		switch e.EventType {
		case EventSessionStarted:
			preset, ok := e.Details["preset"].(string)
			if !ok {
				preset = "unknown"
			}
			stats.SessionsByPreset[preset]++
		case EventReinforcementAdded:
			if e.ParticipantID != "" {
				stats.ReinforcementsPerSession[e.ParticipantID]++
			}
		}
	}
	return stats
}
