package llm

import (
	"strings"
	"sync"
)

// Role defines message roles in a conversation.
type Role string

const (
	// RoleSystem is for persona instructions.
	RoleSystem Role = "system"

	// RoleUser is for transcribed user speech.
	RoleUser Role = "user"

	// RoleAssistant is for agent replies.
	RoleAssistant Role = "assistant"
)

// Message is one chat entry.
type Message struct {
	Role    Role
	Content string

	// Interrupted marks an assistant reply cut short by the user.
	Interrupted bool
}

// ChatContext is the ordered conversation history shared between the
// session bootstrapper and the agent. It is safe for concurrent use.
type ChatContext struct {
	mu       sync.RWMutex
	messages []Message
}

// NewChatContext returns an empty context.
func NewChatContext() *ChatContext {
	return &ChatContext{}
}

// Append adds a message and returns the context for chaining.
func (c *ChatContext) Append(role Role, text string) *ChatContext {
	return c.AppendMessage(Message{Role: role, Content: text})
}

// AppendMessage adds a fully specified message.
func (c *ChatContext) AppendMessage(m Message) *ChatContext {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return c
}

// Messages returns a snapshot of the history.
func (c *ChatContext) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Copy returns an independent context with the same messages.
func (c *ChatContext) Copy() *ChatContext {
	return &ChatContext{messages: c.Messages()}
}

// Count returns how many messages have the given role.
func (c *ChatContext) Count(role Role) int {
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

// LastUserText returns the content of the most recent user message.
func (c *ChatContext) LastUserText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleUser {
			return c.messages[i].Content
		}
	}
	return ""
}

// Tail returns a context holding the system messages plus the last n
// non-system messages. Used to bound prompts sent to the model.
func (c *ChatContext) Tail(n int) *ChatContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var system, rest []Message
	for _, m := range c.messages {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if n >= 0 && len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	return &ChatContext{messages: append(system, rest...)}
}

// String renders the history one message per line, for debugging.
func (c *ChatContext) String() string {
	var b strings.Builder
	for _, m := range c.Messages() {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
