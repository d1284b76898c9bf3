// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: HOSTEL_SERVER__ADDR sets server.addr.
const EnvPrefix = "HOSTEL_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validDrivers = map[StoreDriver]bool{
	StoreMemory:   true,
	StoreDynamoDB: true,
	StoreRedis:    true,
	StorePostgres: true,
	StoreSQLite:   true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Conversation.TTL <= 0 {
		return fmt.Errorf("conversation.ttl must be positive")
	}
	if c.Conversation.HistoryLimit < 0 {
		return fmt.Errorf("conversation.history_limit must be non-negative")
	}

	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("invalid store.driver %q: must be one of memory, dynamodb, redis, postgres, sqlite", c.Store.Driver)
	}
	switch c.Store.Driver {
	case StoreDynamoDB:
		if c.Store.Table == "" {
			return fmt.Errorf("store.table is required for dynamodb")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for redis")
		}
	case StorePostgres, StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for %s", c.Store.Driver)
		}
	}

	if c.LLM.SmartThreshold < 0 || c.LLM.SmartThreshold > 1 {
		return fmt.Errorf("llm.smart_threshold must be within [0, 1]")
	}
	seen := make(map[string]bool)
	for i, p := range c.LLM.Providers {
		if p.ID == "" {
			return fmt.Errorf("llm.providers[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate llm provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Kind == "" {
			return fmt.Errorf("llm provider %q: kind is required", p.ID)
		}
	}

	for i, op := range c.Escalation.Operators {
		if op.Phone == "" {
			return fmt.Errorf("escalation.operators[%d].phone is required", i)
		}
	}
	if c.Escalation.UnknownThreshold < 1 {
		return fmt.Errorf("escalation.unknown_threshold must be at least 1")
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	return nil
}
