// Package paramstore resolves secrets such as provider API keys from AWS SSM
// Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	ssmPrefix = "ssm:"
	envPrefix = "env:"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// tokenPayload is the JSON shape some parameters are stored in.
type tokenPayload struct {
	Token string `json:"token"`
}

// Client wraps an AWS SSM API for parameter retrieval and caches resolved
// secrets for the lifetime of the process.
type Client struct {
	api ssmAPI

	mu    sync.Mutex
	cache map[string]string
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, cache: make(map[string]string)}, nil
}

// GetParameter fetches and decrypts one parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Resolve turns a secret reference into its value. "ssm:/path" reads the
// parameter (unwrapping a {"token": "..."} payload), "env:NAME" reads the
// environment, anything else is returned as a literal. Only successful SSM
// reads are cached.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		v := os.Getenv(name)
		if v == "" {
			return "", fmt.Errorf("paramstore: environment variable %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(ref, ssmPrefix):
		return c.resolveSSM(ctx, strings.TrimPrefix(ref, ssmPrefix))
	default:
		return ref, nil
	}
}

func (c *Client) resolveSSM(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("paramstore: cannot resolve %q: ssm is not configured", name)
	}
	c.mu.Lock()
	v, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	raw, err := c.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	v = unwrapToken(raw)
	if v == "" {
		return "", fmt.Errorf("paramstore: parameter %q is empty", name)
	}

	c.mu.Lock()
	c.cache[name] = v
	c.mu.Unlock()
	return v, nil
}

func unwrapToken(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(trimmed), &tp); err == nil {
			return tp.Token
		}
	}
	return trimmed
}
