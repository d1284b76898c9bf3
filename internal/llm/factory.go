package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Default base URLs for OpenAI-compatible kinds.
var compatibleBaseURLs = map[string]string{
	"openai":     "",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// ProviderConfig describes one configured provider.
type ProviderConfig struct {
	ID       string `koanf:"id"`
	Kind     string `koanf:"kind"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"` // literal, "env:NAME" or "ssm:/path"
	Priority int    `koanf:"priority"`
	Smart    bool   `koanf:"smart"`
	Enabled  *bool  `koanf:"enabled"`
}

// IsEnabled reports whether the provider should be built. Unset means enabled.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SecretResolver turns an API key reference into the key.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// NewProvider creates a provider for cfg.Kind.
// Supported kinds: "openai", "groq", "openrouter", "ollama", "anthropic".
func NewProvider(ctx context.Context, cfg ProviderConfig, secrets SecretResolver) (Provider, error) {
	id := cfg.ID
	if id == "" {
		id = cfg.Kind
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: provider %q: model is required", id)
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	apiKey, err := resolveKey(ctx, kind, cfg.APIKey, secrets)
	if err != nil {
		return nil, fmt.Errorf("llm: provider %q: %w", id, err)
	}

	switch kind {
	case "anthropic":
		return NewAnthropicProvider(id, apiKey, cfg.Model, WithAnthropicBaseURL(cfg.BaseURL))
	case "openai", "groq", "openrouter", "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = compatibleBaseURLs[kind]
		}
		return NewOpenAIProvider(id, apiKey, cfg.Model, WithOpenAIBaseURL(base)), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider kind: %s", cfg.Kind)
	}
}

func resolveKey(ctx context.Context, kind, ref string, secrets SecretResolver) (string, error) {
	if ref == "" {
		if kind == "ollama" {
			return "ollama", nil
		}
		return "", fmt.Errorf("api key is required for kind %q", kind)
	}
	if secrets == nil {
		return ref, nil
	}
	return secrets.Resolve(ctx, ref)
}

// BuildProviders creates every enabled provider, sorted by ascending priority
// (ties keep configuration order), and returns the ids marked smart.
func BuildProviders(ctx context.Context, cfgs []ProviderConfig, secrets SecretResolver) ([]Provider, []string, error) {
	enabled := make([]ProviderConfig, 0, len(cfgs))
	for _, c := range cfgs {
		if c.IsEnabled() {
			enabled = append(enabled, c)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })

	providers := make([]Provider, 0, len(enabled))
	var smart []string
	for _, c := range enabled {
		p, err := NewProvider(ctx, c, secrets)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, p)
		if c.Smart {
			smart = append(smart, p.ID())
		}
	}
	return providers, smart, nil
}
