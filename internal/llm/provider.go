// Package llm talks to interchangeable chat-completion providers and keeps
// the engine answering when some of them fail.
package llm

import (
	"context"
	"fmt"

	"hostel-agent/internal/domain"
)

// ChatRequest is the normalized request every provider accepts.
type ChatRequest struct {
	System      string
	Messages    []domain.ChatMessage
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Provider is one chat-completion backend.
type Provider interface {
	ID() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	Provider   string
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: %s: unexpected status %d from %s: %s", e.Provider, e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}
