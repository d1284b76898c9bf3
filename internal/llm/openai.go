package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"hostel-agent/internal/domain"
)

const defaultMaxTokens = 512

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible
// endpoints (Groq, OpenRouter, Ollama).
type OpenAIProvider struct {
	id     string
	model  string
	client *openai.Client
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openai.ClientConfig)

// WithOpenAIBaseURL points the client at a compatible endpoint.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *openai.ClientConfig) {
		if baseURL != "" {
			c.BaseURL = baseURL
		}
	}
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openai.ClientConfig) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// NewOpenAIProvider creates a provider identified by id.
func NewOpenAIProvider(id, apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OpenAIProvider{id: id, model: model, client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: roleOf(m.Role), Content: m.Content})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return "", &HTTPStatusError{Provider: p.id, StatusCode: apiErr.HTTPStatusCode, URL: "chat/completions", Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return "", &HTTPStatusError{Provider: p.id, StatusCode: reqErr.HTTPStatusCode, URL: "chat/completions", Body: reqErr.Error()}
		}
		return "", fmt.Errorf("llm: %s: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: %s: no choices in response", p.id)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAIProvider)(nil)

// roleOf keeps unknown roles from reaching providers that reject them.
func roleOf(role string) string {
	switch role {
	case domain.RoleAssistant, domain.RoleSystem:
		return role
	default:
		return domain.RoleUser
	}
}
