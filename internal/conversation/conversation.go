package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo/interview_agent/internal/types"
)

// Message is a single role-tagged conversation item
type Message struct {
	ID         string     `json:"id"`
	Role       types.Role `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewMessage creates a text message with a fresh id
func NewMessage(role types.Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Empty reports whether the message carries neither text nor a pending
// tool call. Realtime transports reject such items.
func (m Message) Empty() bool {
	return m.Content == "" && m.ToolCallID == ""
}

// ChatContext is an ordered, append-only conversation history. It is
// safe for concurrent use; every read returns a copy.
type ChatContext struct {
	mu       sync.RWMutex
	messages []Message
}

// NewChatContext creates a context holding a copy of msgs
func NewChatContext(msgs ...Message) *ChatContext {
	c := &ChatContext{messages: make([]Message, 0, len(msgs))}
	c.messages = append(c.messages, msgs...)
	return c
}

// Append adds messages to the end of the history
func (c *ChatContext) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		c.messages = append(c.messages, m)
	}
}

// AppendText appends a text message and returns it
func (c *ChatContext) AppendText(role types.Role, text string) Message {
	m := NewMessage(role, text)
	c.Append(m)
	return m
}

// Len returns the number of messages
func (c *ChatContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Messages returns a copy of the full history
func (c *ChatContext) Messages() []Message {
	return c.Tail(-1)
}

// Tail returns a copy of the last n messages; n < 0 means all
func (c *ChatContext) Tail(n int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := 0
	if n >= 0 && n < len(c.messages) {
		start = len(c.messages) - n
	}
	out := make([]Message, len(c.messages[start:]))
	copy(out, c.messages[start:])
	return out
}

// Last returns the most recent message
func (c *ChatContext) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Copy returns an independent context with the same history
func (c *ChatContext) Copy() *ChatContext {
	return NewChatContext(c.Messages()...)
}

// PruneEmpty drops every message with no content and no tool-call id and
// returns how many were removed
func (c *ChatContext) PruneEmpty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0]
	removed := 0
	for _, m := range c.messages {
		if m.Empty() {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(c.messages); i++ {
		c.messages[i] = Message{}
	}
	c.messages = kept
	return removed
}

// CountRole returns how many messages have the given role
func (c *ChatContext) CountRole(role types.Role) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.messages {
		if m.Role == role {
			n++
		}
	}
	return n
}
