// Package agenttest provides in-memory implementations of the agent
// framework interfaces for tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/types"
)

// Framework builds Models and remembers them
type Framework struct {
	mu     sync.Mutex
	models []*Model

	// NewModelErr fails every NewModel call while set
	NewModelErr error
	// ConfigureSession runs on every session a model creates
	ConfigureSession func(*Session)
}

func (f *Framework) NewModel(ctx context.Context, opts agent.ModelOptions) (agent.RealtimeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewModelErr != nil {
		return nil, f.NewModelErr
	}
	m := &Model{opts: opts, configure: f.ConfigureSession}
	f.models = append(f.models, m)
	return m, nil
}

// Models returns every model built so far
func (f *Framework) Models() []*Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Model, len(f.models))
	copy(out, f.models)
	return out
}

// LastModel returns the most recently built model
func (f *Framework) LastModel() *Model {
	models := f.Models()
	if len(models) == 0 {
		return nil
	}
	return models[len(models)-1]
}

// RunningSessions counts sessions whose processing task is live
func (f *Framework) RunningSessions() int {
	n := 0
	for _, m := range f.Models() {
		for _, s := range m.Sessions() {
			if s.Running() {
				n++
			}
		}
	}
	return n
}

// Model is an in-memory realtime model
type Model struct {
	mu        sync.Mutex
	opts      agent.ModelOptions
	sessions  []*Session
	configure func(*Session)
	closed    bool
}

func (m *Model) NewSession(chat *conversation.ChatContext) (agent.RealtimeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("model closed")
	}
	s := &Session{chat: chat.Copy()}
	if m.configure != nil {
		m.configure(s)
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *Model) Sessions() []agent.RealtimeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.RealtimeSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s
	}
	return out
}

// FakeSessions returns the concrete sessions
func (m *Model) FakeSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

func (m *Model) Options() agent.ModelOptions {
	return m.opts
}

func (m *Model) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Session is an in-memory realtime session that records what it was asked
// to do
type Session struct {
	mu       sync.Mutex
	chat     *conversation.ChatContext
	handlers []func(agent.Event)
	running  bool

	Starts  int
	Reopens int
	Cancels int
	Replies []agent.ReplyMode
	Audio   [][]byte
	Texts   []string
	Pushed  []*conversation.ChatContext

	// Connections holds, per Start or Reopen, the history items that
	// connection was sent
	Connections [][]conversation.Message

	StartErr  error
	CancelErr error
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Starts++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.running = true
	s.Connections = append(s.Connections, s.chat.Messages())
	return nil
}

func (s *Session) Reopen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reopens++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.running = true
	s.Connections = append(s.Connections, nil)
	return nil
}

func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancels++
	if s.CancelErr != nil {
		return s.CancelErr
	}
	s.running = false
	return nil
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) ChatContextCopy() *conversation.ChatContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Copy()
}

func (s *Session) SetChatContext(ctx context.Context, chat *conversation.ChatContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return agent.ErrSessionClosed
	}
	s.chat = chat.Copy()
	s.Pushed = append(s.Pushed, chat.Copy())
	if n := len(s.Connections); n > 0 {
		s.Connections[n-1] = append(s.Connections[n-1], chat.Messages()...)
	}
	return nil
}

func (s *Session) AppendMessage(m conversation.Message) {
	s.mu.Lock()
	chat := s.chat
	s.mu.Unlock()
	chat.Append(m)
}

func (s *Session) PushAudio(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return agent.ErrSessionClosed
	}
	s.Audio = append(s.Audio, frame)
	return nil
}

func (s *Session) PushText(ctx context.Context, text string) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return agent.ErrSessionClosed
	}
	s.Texts = append(s.Texts, text)
	s.mu.Unlock()
	s.Commit(types.RoleUser, text)
	return nil
}

func (s *Session) GenerateReply(ctx context.Context, mode agent.ReplyMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return agent.ErrSessionClosed
	}
	s.Replies = append(s.Replies, mode)
	return nil
}

func (s *Session) OnEvent(fn func(agent.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Emit delivers ev to every registered handler
func (s *Session) Emit(ev agent.Event) {
	s.mu.Lock()
	handlers := make([]func(agent.Event), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Commit appends a message to the session history and emits the
// item-committed event the way a live model does
func (s *Session) Commit(role types.Role, content string) conversation.Message {
	m := conversation.NewMessage(role, content)
	s.AppendMessage(m)
	s.Emit(agent.Event{Type: agent.EventItemCommitted, Message: m})
	return m
}

// Len returns the session history length
func (s *Session) Len() int {
	s.mu.Lock()
	chat := s.chat
	s.mu.Unlock()
	return chat.Len()
}

// Room is an in-memory transport
type Room struct {
	mu          sync.Mutex
	name        string
	audioSubs   map[string]map[int]func([]byte)
	textSubs    map[string]map[int]func(string)
	rpc         map[string]agent.RPCHandler
	nextID      int
	Audio       [][]byte
	Transcripts []agent.Transcript
}

// NewRoom creates an empty room
func NewRoom(name string) *Room {
	return &Room{
		name:      name,
		audioSubs: map[string]map[int]func([]byte){},
		textSubs:  map[string]map[int]func(string){},
		rpc:       map[string]agent.RPCHandler{},
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) PublishAudio(ctx context.Context, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audio = append(r.Audio, frame)
	return nil
}

func (r *Room) PublishTranscript(ctx context.Context, t agent.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transcripts = append(r.Transcripts, t)
	return nil
}

func (r *Room) SubscribeAudio(identity string, fn func([]byte)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	if r.audioSubs[identity] == nil {
		r.audioSubs[identity] = map[int]func([]byte){}
	}
	r.audioSubs[identity][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.audioSubs[identity], id)
	}
}

func (r *Room) SubscribeText(identity string, fn func(string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	if r.textSubs[identity] == nil {
		r.textSubs[identity] = map[int]func(string){}
	}
	r.textSubs[identity][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.textSubs[identity], id)
	}
}

func (r *Room) RegisterRPCMethod(method string, h agent.RPCHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpc[method] = h
}

// DeliverAudio sends a participant audio frame to every subscriber
func (r *Room) DeliverAudio(identity string, frame []byte) {
	r.mu.Lock()
	subs := make([]func([]byte), 0, len(r.audioSubs[identity]))
	for _, fn := range r.audioSubs[identity] {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(frame)
	}
}

// DeliverText sends participant text to every subscriber
func (r *Room) DeliverText(identity, text string) {
	r.mu.Lock()
	subs := make([]func(string), 0, len(r.textSubs[identity]))
	for _, fn := range r.textSubs[identity] {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(text)
	}
}

// Subscribers counts live audio and text subscriptions for identity
func (r *Room) Subscribers(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audioSubs[identity]) + len(r.textSubs[identity])
}

// CallRPC invokes a registered method
func (r *Room) CallRPC(ctx context.Context, method string, inv agent.RPCInvocation) (string, error) {
	r.mu.Lock()
	h, ok := r.rpc[method]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("method %s not registered", method)
	}
	return h(ctx, inv)
}
