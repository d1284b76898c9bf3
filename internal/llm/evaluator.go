package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hostel-agent/internal/domain"
)

// ErrUnavailable is returned when no provider produced an answer.
var ErrUnavailable = errors.New("llm: all providers unavailable")

const evaluatorSystem = `You classify a guest reply for a hostel workflow.
%s

Collected so far:
%s

Answer with a JSON object {"result": "<category>"} using one short lowercase category.`

// Evaluator maps a free-form guest reply to a category using the chain.
type Evaluator struct {
	chain *Chain
}

// NewEvaluator creates an Evaluator backed by chain.
func NewEvaluator(chain *Chain) *Evaluator {
	return &Evaluator{chain: chain}
}

// Evaluate returns the lowercase category the model picked for input.
func (e *Evaluator) Evaluate(ctx context.Context, prompt, collected, input string) (string, error) {
	res := e.chain.Chat(ctx, ChatRequest{
		System:      fmt.Sprintf(evaluatorSystem, prompt, collected),
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: input}},
		MaxTokens:   64,
		Temperature: 0,
		JSONMode:    true,
	})
	if res.Unavailable {
		return "", ErrUnavailable
	}
	result := parseResult(res.Text)
	if result == "" {
		return "", fmt.Errorf("llm: evaluator: no result in %q", res.Text)
	}
	return result, nil
}

func parseResult(raw string) string {
	var out struct {
		Result string `json:"result"`
	}
	text := strings.TrimSpace(raw)
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &out); err == nil {
			return normalize(out.Result)
		}
		return ""
	}
	return normalize(text)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, `"'.`)
}
