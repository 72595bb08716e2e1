package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/types"
)

// ItemHook is invoked after every conversation item the session commits
type ItemHook func(ctx context.Context, s RealtimeSession, m conversation.Message)

// MultimodalAgent binds one realtime model session to one participant in
// a room. Participant audio and text flow into the session; model audio
// and transcripts flow back to the room.
type MultimodalAgent struct {
	model RealtimeModel
	chat  *conversation.ChatContext

	mu          sync.Mutex
	ctx         context.Context
	session     RealtimeSession
	room        Room
	participant Participant
	hooks       []ItemHook
	unsubscribe []func()
	started     bool
	closed      bool
}

// NewMultimodalAgent creates an agent that will open a session on model
// seeded with chat
func NewMultimodalAgent(model RealtimeModel, chat *conversation.ChatContext) *MultimodalAgent {
	if chat == nil {
		chat = conversation.NewChatContext()
	}
	return &MultimodalAgent{
		model: model,
		chat:  chat,
	}
}

// OnConversationItem registers a hook. Hooks must be registered before Start.
func (a *MultimodalAgent) OnConversationItem(h ItemHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, h)
}

// Model returns the model the agent was built on
func (a *MultimodalAgent) Model() RealtimeModel {
	return a.model
}

// Session returns the live session, nil before Start
func (a *MultimodalAgent) Session() RealtimeSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Start opens a model session and wires it to the participant
func (a *MultimodalAgent) Start(ctx context.Context, room Room, participant Participant) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("agent already started")
	}
	a.started = true
	a.ctx = ctx
	a.room = room
	a.participant = participant
	a.mu.Unlock()

	session, err := a.model.NewSession(a.chat)
	if err != nil {
		return fmt.Errorf("failed to create realtime session: %w", err)
	}
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	session.OnEvent(a.handleEvent)

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start realtime session: %w", err)
	}

	unsubAudio := room.SubscribeAudio(participant.Identity, func(frame []byte) {
		if err := session.PushAudio(ctx, frame); err != nil && !errors.Is(err, ErrSessionClosed) {
			logging.Debug("Dropped participant audio", map[string]interface{}{
				"participant_id": participant.Identity,
				"error":          err.Error(),
			})
		}
	})
	unsubText := room.SubscribeText(participant.Identity, func(text string) {
		if err := session.PushText(ctx, text); err != nil {
			logging.Warn("Failed to forward participant text", map[string]interface{}{
				"participant_id": participant.Identity,
				"error":          err.Error(),
			})
		}
	})

	a.mu.Lock()
	a.unsubscribe = append(a.unsubscribe, unsubAudio, unsubText)
	a.mu.Unlock()

	logging.LogSessionEvent("agent_started", participant.Identity, map[string]interface{}{
		"room": room.Name(),
	})
	return nil
}

// GenerateReply asks the model to respond now
func (a *MultimodalAgent) GenerateReply(ctx context.Context, mode ReplyMode) error {
	s := a.Session()
	if s == nil {
		return ErrSessionClosed
	}
	return s.GenerateReply(ctx, mode)
}

// Close detaches the agent from the room. The session itself is owned by
// the model and cancelled separately.
func (a *MultimodalAgent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil
}

func (a *MultimodalAgent) handleEvent(ev Event) {
	a.mu.Lock()
	ctx, room, session, closed := a.ctx, a.room, a.session, a.closed
	hooks := make([]ItemHook, len(a.hooks))
	copy(hooks, a.hooks)
	identity := a.participant.Identity
	a.mu.Unlock()

	if closed || room == nil {
		return
	}

	switch ev.Type {
	case EventAudio:
		if err := room.PublishAudio(ctx, ev.Audio); err != nil {
			logging.Debug("Failed to publish agent audio", map[string]interface{}{
				"participant_id": identity,
				"error":          err.Error(),
			})
		}
	case EventTranscript:
		t := Transcript{Role: types.RoleAssistant, Text: ev.Text, Final: ev.Final}
		if err := room.PublishTranscript(ctx, t); err != nil {
			logging.Debug("Failed to publish transcript", map[string]interface{}{
				"participant_id": identity,
				"error":          err.Error(),
			})
		}
	case EventItemCommitted:
		if session == nil {
			return
		}
		for _, h := range hooks {
			h(ctx, session, ev.Message)
		}
	case EventError:
		logging.Error("Realtime session error", map[string]interface{}{
			"participant_id": identity,
			"error":          fmt.Sprint(ev.Err),
		})
	}
}
