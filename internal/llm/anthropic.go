package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hostel-agent/internal/domain"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnthropicProvider is a focused client for the Anthropic Messages API.
type AnthropicProvider struct {
	id         string
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if s := strings.TrimSpace(baseURL); s != "" {
			p.baseURL = s
		}
	}
}

func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.httpClient = hc
	}
}

// NewAnthropicProvider creates a provider identified by id.
func NewAnthropicProvider(id, apiKey, model string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: anthropic api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("llm: anthropic model must not be empty")
	}
	p := &AnthropicProvider{
		id:         id,
		model:      model,
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *AnthropicProvider) ID() string { return p.id }

func messagesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages"
	}
	return base + "/v1/messages"
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	system := req.System
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: roleOf(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("llm: %s: marshal request: %w", p.id, err)
	}

	url := messagesURL(p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: %s: create request: %w", p.id, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	raw, err := p.doJSONRequest(httpReq, url)
	if err != nil {
		return "", err
	}

	var payload anthropicResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("llm: %s: decode response: %w", p.id, err)
	}
	if payload.Error != nil {
		return "", fmt.Errorf("llm: %s: api error (%s): %s", p.id, payload.Error.Type, payload.Error.Message)
	}
	var out strings.Builder
	for _, c := range payload.Content {
		if c.Type == "text" {
			out.WriteString(c.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("llm: %s: no text content in response", p.id)
	}
	return out.String(), nil
}

func (p *AnthropicProvider) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	hc := p.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: request failed: %w", p.id, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{Provider: p.id, StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: %s: read response body: %w", p.id, err)
	}
	return buf, nil
}

var _ Provider = (*AnthropicProvider)(nil)
