// Package bookingapi calls the hostel's reservation backend.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SecretResolver resolves a secret reference such as "env:NAME" or "ssm:/path".
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	Method     string
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bookingapi: unexpected status %d from %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a JSON client for the reservation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secrets    SecretResolver
	tokenRef   string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sends a bearer token resolved from ref on every request.
func WithToken(secrets SecretResolver, ref string) Option {
	return func(c *Client) {
		c.secrets = secrets
		c.tokenRef = strings.TrimSpace(ref)
	}
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("bookingapi: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken resolves the bearer token once per process lifetime.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if c.tokenRef == "" {
		return "", nil
	}
	c.tokenOnce.Do(func() {
		if c.secrets == nil {
			c.token = c.tokenRef
			return
		}
		c.token, c.tokenErr = c.secrets.Resolve(ctx, c.tokenRef)
		if c.tokenErr == nil && c.token == "" {
			c.tokenErr = errors.New("bookingapi: API token is empty")
		}
	})
	return c.token, c.tokenErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// CallAPI sends body as JSON (nil sends no body) and returns the raw JSON
// response. An empty response body yields nil.
func (c *Client) CallAPI(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bookingapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	url := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("bookingapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("bookingapi: %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("bookingapi: %s %s: response is not JSON", method, path)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			Method:     req.Method,
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
