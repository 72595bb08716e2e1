package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Sink persists monitor events. Write errors never affect the in-memory log.
type Sink interface {
	Write(Event) error
}

// NopSink discards events
type NopSink struct{}

func (NopSink) Write(Event) error { return nil }

// FileSink appends one JSON log line per event to a file
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

// NewFileSink opens (or creates) the log file in append mode
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create monitor log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open monitor log file: %w", err)
	}

	return &FileSink{
		file:   file,
		logger: zerolog.New(file).With().Timestamp().Str("logger", "instruction_monitor").Logger(),
	}, nil
}

func (s *FileSink) Write(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}

	s.logger.Info().
		Str("event_type", e.EventType).
		Str("participant_id", e.ParticipantID).
		Time("event_time", e.Timestamp).
		Fields(e.Details).
		Msg(describe(e))
	return nil
}

// Close closes the underlying file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func describe(e Event) string {
	switch e.EventType {
	case EventSessionStarted:
		return fmt.Sprintf("Session started for participant %s with preset %v", e.ParticipantID, e.Details["preset"])
	case EventReinforcementAdded:
		return fmt.Sprintf("Instruction reinforcement added for participant %s at message %v", e.ParticipantID, e.Details["message_count"])
	case EventConfigChanged:
		return fmt.Sprintf("Instruction preset changed from %v to %v for participant %s", e.Details["old_preset"], e.Details["new_preset"], e.ParticipantID)
	case EventSessionEnded:
		return fmt.Sprintf("Session ended for participant %s", e.ParticipantID)
	default:
		return e.EventType
	}
}
