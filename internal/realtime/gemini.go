package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/types"
	"google.golang.org/genai"
)

const (
	backendGeminiLive = "gemini_live"
	setupTimeout      = 10 * time.Second
	closeGrace        = 2 * time.Second
	outboundBuffer    = 64
)

// GeminiModel opens Gemini Live sessions with fixed generation options
type GeminiModel struct {
	client *genai.Client
	model  string
	opts   agent.ModelOptions

	mu       sync.Mutex
	sessions []*GeminiSession
	closed   bool
}

func newGeminiModel(client *genai.Client, model string, opts agent.ModelOptions) *GeminiModel {
	return &GeminiModel{
		client: client,
		model:  model,
		opts:   opts,
	}
}

func (m *GeminiModel) NewSession(chat *conversation.ChatContext) (agent.RealtimeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("gemini model closed")
	}
	s := &GeminiSession{model: m}
	s.init(chat)
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *GeminiModel) Sessions() []agent.RealtimeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.RealtimeSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s
	}
	return out
}

func (m *GeminiModel) Options() agent.ModelOptions {
	return m.opts
}

// Close cancels every session and refuses new ones
func (m *GeminiModel) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*GeminiSession, len(m.sessions))
	copy(sessions, m.sessions)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Cancel(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GeminiSession is one Gemini Live connection. All writes go through the
// processing task; the reader runs alongside it.
type GeminiSession struct {
	baseSession
	model *GeminiModel

	outMu    sync.RWMutex
	outbound chan liveMessage

	turnMu       sync.Mutex
	pendingText  strings.Builder
	userTurnOpen bool
}

// Start connects, completes the setup handshake, sends the seeded history
// and launches the processing task
func (s *GeminiSession) Start(ctx context.Context) error {
	return s.open(ctx, true)
}

// Reopen drains the current connection, if any, and opens a new one. The
// history is not replayed; SetChatContext sends it to the new connection.
func (s *GeminiSession) Reopen(ctx context.Context) error {
	if err := s.Cancel(ctx); err != nil {
		return fmt.Errorf("failed to close previous connection: %w", err)
	}
	return s.open(ctx, false)
}

func (s *GeminiSession) open(ctx context.Context, replay bool) error {
	if s.Running() {
		return errAlreadyRunning
	}

	live, err := s.connect(ctx)
	if err != nil {
		return err
	}

	outbound := make(chan liveMessage, outboundBuffer)
	if replay {
		if turns := historyTurns(s.history().Messages()); len(turns) > 0 {
			outbound <- contextMessage(turns)
		}
	}

	s.outMu.Lock()
	s.outbound = outbound
	s.outMu.Unlock()

	err = s.launch(ctx, func(taskCtx context.Context) error {
		return s.run(taskCtx, live, outbound)
	})
	if err != nil {
		live.Close()
		return err
	}

	logging.LogModelEvent("session_started", backendGeminiLive, map[string]interface{}{
		"model":    s.model.model,
		"messages": s.history().Len(),
		"replay":   replay,
	})
	return nil
}

func (s *GeminiSession) connect(ctx context.Context) (*genai.Session, error) {
	live, err := s.model.client.Live.Connect(ctx, s.model.model, liveConnectConfig(s.model.opts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gemini live: %w", err)
	}
	if err := awaitSetup(ctx, live); err != nil {
		live.Close()
		return nil, err
	}
	return live, nil
}

// awaitSetup reads the first server message, which must acknowledge the
// setup sent by Connect
func awaitSetup(ctx context.Context, live *genai.Session) error {
	type reply struct {
		msg *genai.LiveServerMessage
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		msg, err := live.Receive()
		replies <- reply{msg, err}
	}()

	timer := time.NewTimer(setupTimeout)
	defer timer.Stop()

	select {
	case r := <-replies:
		if r.err != nil {
			return fmt.Errorf("failed to read setup reply: %w", r.err)
		}
		if r.msg.SetupComplete == nil {
			return errors.New("gemini live: setup was not acknowledged")
		}
		return nil
	case <-timer.C:
		return errors.New("gemini live: setup timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GeminiSession) run(ctx context.Context, live *genai.Session, outbound chan liveMessage) error {
	defer live.Close()

	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop(live)
	}()

	for {
		select {
		case <-ctx.Done():
			s.drain(live, outbound)
			live.Close()
			select {
			case <-readErr:
			case <-time.After(closeGrace):
			}
			return nil
		case msg := <-outbound:
			if err := msg.send(live); err != nil {
				return fmt.Errorf("gemini live write failed: %w", err)
			}
		case err := <-readErr:
			if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("gemini live read failed: %w", err)
		}
	}
}

// drain flushes messages queued before cancellation
func (s *GeminiSession) drain(live *genai.Session, outbound chan liveMessage) {
	for {
		select {
		case msg := <-outbound:
			if err := msg.send(live); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readLoop ends on the first receive error. A failed websocket read cannot
// be retried, and genai reports undecodable frames the same way.
func (s *GeminiSession) readLoop(live *genai.Session) error {
	for {
		msg, err := live.Receive()
		if err != nil {
			return err
		}
		if msg.ServerContent != nil {
			s.handleServerContent(msg.ServerContent)
		}
		if msg.GoAway != nil {
			logging.LogModelEvent("go_away", backendGeminiLive, map[string]interface{}{
				"model": s.model.model,
			})
		}
	}
}

func (s *GeminiSession) handleServerContent(sc *genai.LiveServerContent) {
	if sc.ModelTurn != nil {
		s.closeUserTurn()
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				continue
			}
			if p.Text != "" {
				s.appendModelText(p.Text)
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				s.emit(agent.Event{Type: agent.EventAudio, Audio: p.InlineData.Data})
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		s.closeUserTurn()
		s.appendModelText(sc.OutputTranscription.Text)
	}

	if sc.Interrupted {
		s.emit(agent.Event{Type: agent.EventInterrupted})
		s.commitModelTurn()
	}
	if sc.TurnComplete {
		s.commitModelTurn()
		s.emit(agent.Event{Type: agent.EventTurnComplete})
	}
}

func (s *GeminiSession) closeUserTurn() {
	s.turnMu.Lock()
	s.userTurnOpen = false
	s.turnMu.Unlock()
}

func (s *GeminiSession) appendModelText(text string) {
	s.turnMu.Lock()
	s.pendingText.WriteString(text)
	s.turnMu.Unlock()
	s.emit(agent.Event{Type: agent.EventTranscript, Text: text})
}

// commitModelTurn records the finished model turn. With transcription off
// an audio reply leaves an item with no text.
func (s *GeminiSession) commitModelTurn() {
	s.turnMu.Lock()
	text := s.pendingText.String()
	s.pendingText.Reset()
	s.turnMu.Unlock()

	if text != "" {
		s.emit(agent.Event{Type: agent.EventTranscript, Text: text, Final: true})
	}
	s.commit(conversation.NewMessage(types.RoleAssistant, text))
}

func (s *GeminiSession) enqueue(ctx context.Context, msg liveMessage) error {
	task := s.currentTask()
	if task == nil || !task.Running() {
		return agent.ErrSessionClosed
	}
	s.outMu.RLock()
	outbound := s.outbound
	s.outMu.RUnlock()

	select {
	case outbound <- msg:
		return nil
	case <-task.Done():
		return agent.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushAudio streams a 16kHz PCM frame. The first frame of a user turn
// opens a user item in the history.
func (s *GeminiSession) PushAudio(ctx context.Context, frame []byte) error {
	if !s.model.opts.Modalities.Has(types.ModalityAudio) {
		return agent.ErrAudioUnsupported
	}
	if err := s.enqueue(ctx, audioMessage(frame)); err != nil {
		return err
	}

	s.turnMu.Lock()
	opened := !s.userTurnOpen
	s.userTurnOpen = true
	s.turnMu.Unlock()
	if opened {
		s.commit(conversation.NewMessage(types.RoleUser, ""))
	}
	return nil
}

func (s *GeminiSession) PushText(ctx context.Context, text string) error {
	m := conversation.NewMessage(types.RoleUser, text)
	if err := s.enqueue(ctx, turnMessage(historyTurns([]conversation.Message{m}))); err != nil {
		return err
	}
	s.commit(m)
	return nil
}

func (s *GeminiSession) GenerateReply(ctx context.Context, mode agent.ReplyMode) error {
	if mode == agent.ReplyCancelExisting {
		s.turnMu.Lock()
		s.pendingText.Reset()
		s.turnMu.Unlock()
	}
	return s.enqueue(ctx, turnMessage(nil))
}

// SetChatContext replaces the local history and pushes it to the model
func (s *GeminiSession) SetChatContext(ctx context.Context, chat *conversation.ChatContext) error {
	turns := historyTurns(chat.Messages())
	if len(turns) > 0 {
		if err := s.enqueue(ctx, contextMessage(turns)); err != nil {
			return err
		}
	}
	s.replaceHistory(chat)
	return nil
}

// AppendMessage adds m to the history and, while connected, forwards it
// to the model as context for the next turn
func (s *GeminiSession) AppendMessage(m conversation.Message) {
	s.history().Append(m)

	turns := historyTurns([]conversation.Message{m})
	if len(turns) == 0 || !s.Running() {
		return
	}
	s.outMu.RLock()
	outbound := s.outbound
	s.outMu.RUnlock()

	select {
	case outbound <- contextMessage(turns):
	default:
		logging.Warn("Outbound queue full, message kept locally only", map[string]interface{}{
			"role": string(m.Role),
		})
	}
}
