package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
)

var errAlreadyRunning = errors.New("realtime session already running")

// baseSession holds the state every backend shares: the chat history, the
// event handlers and the processing task
type baseSession struct {
	mu       sync.RWMutex
	chat     *conversation.ChatContext
	handlers []func(agent.Event)
	task     *agent.Task
}

func (b *baseSession) init(chat *conversation.ChatContext) {
	if chat == nil {
		chat = conversation.NewChatContext()
	}
	b.chat = chat.Copy()
}

func (b *baseSession) OnEvent(fn func(agent.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

func (b *baseSession) emit(ev agent.Event) {
	b.mu.RLock()
	handlers := make([]func(agent.Event), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (b *baseSession) history() *conversation.ChatContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chat
}

func (b *baseSession) ChatContextCopy() *conversation.ChatContext {
	return b.history().Copy()
}

func (b *baseSession) replaceHistory(chat *conversation.ChatContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chat = chat.Copy()
}

// commit appends m and announces it
func (b *baseSession) commit(m conversation.Message) {
	b.history().Append(m)
	b.emit(agent.Event{Type: agent.EventItemCommitted, Message: m})
}

func (b *baseSession) currentTask() *agent.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.task
}

func (b *baseSession) Running() bool {
	t := b.currentTask()
	return t != nil && t.Running()
}

// launch installs a new processing task unless one is still running
func (b *baseSession) launch(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil && b.task.Running() {
		return errAlreadyRunning
	}
	b.task = agent.Go(ctx, func(taskCtx context.Context) error {
		err := fn(taskCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.emit(agent.Event{Type: agent.EventError, Err: err})
		}
		return err
	})
	return nil
}

func (b *baseSession) Cancel(ctx context.Context) error {
	t := b.currentTask()
	if t == nil {
		return nil
	}
	return t.Cancel(ctx)
}
