package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/types"
	"github.com/tmc/langchaingo/llms"
)

const backendTextChat = "text_chat"

// TextModel serves text-only sessions through a langchaingo chat model
type TextModel struct {
	llm  llms.Model
	opts agent.ModelOptions

	mu       sync.Mutex
	sessions []*TextSession
	closed   bool
}

func newTextModel(llm llms.Model, opts agent.ModelOptions) *TextModel {
	return &TextModel{llm: llm, opts: opts}
}

func (m *TextModel) NewSession(chat *conversation.ChatContext) (agent.RealtimeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("text model closed")
	}
	s := &TextSession{model: m}
	s.init(chat)
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *TextModel) Sessions() []agent.RealtimeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.RealtimeSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s
	}
	return out
}

func (m *TextModel) Options() agent.ModelOptions {
	return m.opts
}

func (m *TextModel) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*TextSession, len(m.sessions))
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

func (m *TextModel) callOptions() []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(m.opts.Temperature),
		llms.WithPresencePenalty(m.opts.PresencePenalty),
		llms.WithFrequencyPenalty(m.opts.FrequencyPenalty),
	}
	if m.opts.MaxOutputTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*m.opts.MaxOutputTokens))
	}
	return opts
}

// TextSession generates one reply per request on its processing task.
// A generation in flight when the task is cancelled runs to completion.
type TextSession struct {
	baseSession
	model *TextModel

	reqMu    sync.RWMutex
	requests chan struct{}
}

func (s *TextSession) Start(ctx context.Context) error {
	requests := make(chan struct{}, 1)
	err := s.launch(ctx, func(taskCtx context.Context) error {
		return s.run(taskCtx, requests)
	})
	if err != nil {
		return err
	}

	s.reqMu.Lock()
	s.requests = requests
	s.reqMu.Unlock()

	logging.LogModelEvent("session_started", backendTextChat, map[string]interface{}{
		"messages": s.history().Len(),
	})
	return nil
}

func (s *TextSession) Reopen(ctx context.Context) error {
	if err := s.Cancel(ctx); err != nil {
		return fmt.Errorf("failed to stop previous task: %w", err)
	}
	return s.Start(ctx)
}

func (s *TextSession) run(ctx context.Context, requests chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requests:
			s.respond(context.WithoutCancel(ctx))
		}
	}
}

func (s *TextSession) respond(ctx context.Context) {
	msgs := toMessageContent(s.model.opts.Instructions, s.history().Messages())
	resp, err := s.model.llm.GenerateContent(ctx, msgs, s.model.callOptions()...)
	if err != nil {
		s.emit(agent.Event{Type: agent.EventError, Err: fmt.Errorf("text generation failed: %w", err)})
		return
	}
	if resp == nil || len(resp.Choices) == 0 {
		s.emit(agent.Event{Type: agent.EventError, Err: errors.New("text generation returned no choices")})
		return
	}

	text := resp.Choices[0].Content
	s.emit(agent.Event{Type: agent.EventTranscript, Text: text, Final: true})
	s.commit(conversation.NewMessage(types.RoleAssistant, text))
	s.emit(agent.Event{Type: agent.EventTurnComplete})
}

func (s *TextSession) request() error {
	if !s.Running() {
		return agent.ErrSessionClosed
	}
	s.reqMu.RLock()
	requests := s.requests
	s.reqMu.RUnlock()

	select {
	case requests <- struct{}{}:
	default:
		// a reply is already pending and will see the latest history
	}
	return nil
}

func (s *TextSession) PushAudio(ctx context.Context, frame []byte) error {
	return agent.ErrAudioUnsupported
}

func (s *TextSession) PushText(ctx context.Context, text string) error {
	if !s.Running() {
		return agent.ErrSessionClosed
	}
	s.commit(conversation.NewMessage(types.RoleUser, text))
	return s.request()
}

func (s *TextSession) GenerateReply(ctx context.Context, mode agent.ReplyMode) error {
	return s.request()
}

func (s *TextSession) SetChatContext(ctx context.Context, chat *conversation.ChatContext) error {
	s.replaceHistory(chat)
	return nil
}

func (s *TextSession) AppendMessage(m conversation.Message) {
	s.history().Append(m)
}

// toMessageContent maps history to langchaingo messages. Instructions and
// the leading system items form the system message; later system items are
// sent as human turns since the chat API accepts one system message.
func toMessageContent(instructions string, msgs []conversation.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs)+1)

	system := instructions
	i := 0
	for ; i < len(msgs) && msgs[i].Role == types.RoleSystem; i++ {
		if msgs[i].Content == "" {
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msgs[i].Content
	}
	if system != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, m := range msgs[i:] {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case types.RoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case types.RoleUser, types.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out
}
