package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the router
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InboundMessage is a single message delivered by the chat transport.
type InboundMessage struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	PushName  string    `json:"pushName,omitempty"`
	IsGroup   bool      `json:"isGroup,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
