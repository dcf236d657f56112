package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Chat is a conversation container owned by one user.
type Chat struct {
	ID        uuid.UUID `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MessagePart is one structured segment of a message: plain text, extracted
// reasoning, or a tool invocation and its result. Parts are persisted as
// JSONB alongside the flat content.
type MessagePart struct {
	Type       string `json:"type"` // text | reasoning | tool-call | tool-result
	Text       string `json:"text,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Result     string `json:"result,omitempty"`
}

const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// Message is one conversational turn.
type Message struct {
	ID        uuid.UUID     `db:"id"`
	ChatID    uuid.UUID     `db:"chat_id"`
	Role      MessageRole   `db:"role"`
	Content   string        `db:"content"`
	Parts     []MessagePart `db:"parts"`
	CreatedAt time.Time     `db:"created_at"`
}

// Vote is a per-message up/down vote.
type Vote struct {
	ChatID    uuid.UUID `db:"chat_id"`
	MessageID uuid.UUID `db:"message_id"`
	IsUpvoted bool      `db:"is_upvoted"`
}
