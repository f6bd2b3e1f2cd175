// Package conversation holds per-conversation message history.
//
// The store is keyed by conversation id with per-conversation locking,
// so turns on different conversations never contend. History reads
// return a bounded trailing window: when a conversation outgrows the
// window the oldest messages are dropped from the view (never
// summarized), a deliberately lossy policy the model must tolerate.
package conversation

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	// RoleUser marks messages typed by the end user.
	RoleUser Role = "user"

	// RoleModel marks the model's natural-language replies.
	RoleModel Role = "model"

	// RoleFunction marks function-result messages folded back into
	// the model's context.
	RoleFunction Role = "function"
)

// Message is one entry in a conversation. Immutable once appended:
// the store assigns Ordinal and Timestamp and never touches it again.
type Message struct {
	Role Role `json:"role"`

	// Text carries user input and model replies.
	Text string `json:"text,omitempty"`

	// Function and Payload are set on RoleFunction messages: the
	// function name and its structured result (or error description).
	Function string         `json:"function,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`

	Ordinal   int       `json:"ordinal"`
	Timestamp time.Time `json:"timestamp"`
}

// Info is the conversation metadata snapshot returned by GetOrCreate.
type Info struct {
	ID           string    `json:"conversation_id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// NewUserMessage builds a user-role message. Ordinal and Timestamp are
// assigned by the store on append.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// NewModelMessage builds a model-role message.
func NewModelMessage(text string) Message {
	return Message{Role: RoleModel, Text: text}
}

// NewFunctionMessage builds a function-result message.
func NewFunctionMessage(function string, payload map[string]any) Message {
	return Message{Role: RoleFunction, Function: function, Payload: payload}
}
