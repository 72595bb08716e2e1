package agent

import (
	"context"
	"errors"

	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/types"
)

var (
	// ErrSessionClosed is returned when work is pushed to a session whose
	// processing task is not running
	ErrSessionClosed = errors.New("realtime session closed")
	// ErrAudioUnsupported is returned by backends that only handle text
	ErrAudioUnsupported = errors.New("audio input not supported by this model")
)

// ReplyMode controls how a reply request interacts with a reply in flight
type ReplyMode string

const (
	ReplyCancelExisting ReplyMode = "cancel_existing"
	ReplyAuto           ReplyMode = "auto"
)

// ModelOptions are the generation parameters a realtime model is built with
type ModelOptions struct {
	APIKey       string
	Instructions string
	Modalities   types.Modalities
	Voice        types.Voice
	Temperature  float64
	// MaxOutputTokens is nil when output is unbounded
	MaxOutputTokens  *int
	PresencePenalty  float64
	FrequencyPenalty float64

	EnableUserAudioTranscription  bool
	EnableAgentAudioTranscription bool
}

// Framework builds realtime models
type Framework interface {
	NewModel(ctx context.Context, opts ModelOptions) (RealtimeModel, error)
}

// RealtimeModel owns the sessions opened against one model configuration
type RealtimeModel interface {
	NewSession(chat *conversation.ChatContext) (RealtimeSession, error)
	Sessions() []RealtimeSession
	Options() ModelOptions
	Close(ctx context.Context) error
}

// EventType classifies session events
type EventType string

const (
	EventAudio         EventType = "audio"
	EventTranscript    EventType = "transcript"
	EventItemCommitted EventType = "item_committed"
	EventTurnComplete  EventType = "turn_complete"
	EventInterrupted   EventType = "interrupted"
	EventError         EventType = "error"
)

// Event is emitted by a session's processing task
type Event struct {
	Type    EventType
	Audio   []byte
	Text    string
	Final   bool
	Message conversation.Message
	Err     error
}

// RealtimeSession is one live connection to a model. Its processing task
// is started by Start, cancelled gracefully by Cancel and re-opened by
// Reopen. Start sends the seeded history; Reopen does not, so the caller
// pushes the history to the new connection with SetChatContext.
type RealtimeSession interface {
	Start(ctx context.Context) error
	Reopen(ctx context.Context) error
	Cancel(ctx context.Context) error
	Running() bool

	ChatContextCopy() *conversation.ChatContext
	SetChatContext(ctx context.Context, chat *conversation.ChatContext) error
	AppendMessage(m conversation.Message)

	PushAudio(ctx context.Context, frame []byte) error
	PushText(ctx context.Context, text string) error
	GenerateReply(ctx context.Context, mode ReplyMode) error

	OnEvent(fn func(Event))
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}
