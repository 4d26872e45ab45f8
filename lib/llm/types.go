// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package llm

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	// Model is the service's model identifier.
	Model string

	// Messages is the full conversation, oldest first.
	Messages []Message

	// Temperature is sent when non-nil.
	Temperature *float64

	// MaxTokens is sent when positive.
	MaxTokens int
}

// Response is the first choice of a completion.
type Response struct {
	// Model is the model that actually answered, as reported by the
	// service.
	Model string

	// Content is the assistant's text.
	Content string

	// FinishReason is the service's stop reason, e.g. "stop".
	FinishReason string

	Usage Usage
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Model is one entry of the service's model catalog.
type Model struct {
	// ID is what goes in Request.Model.
	ID string
	// Name is the human-facing name users type in chat.
	Name string
}
