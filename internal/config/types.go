package config

import (
	"time"

	"hostel-agent/internal/breaker"
	"hostel-agent/internal/escalation"
	"hostel-agent/internal/llm"
	"hostel-agent/internal/pricing"
)

// StoreDriver selects the durable write-behind store.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StoreDynamoDB StoreDriver = "dynamodb"
	StoreRedis    StoreDriver = "redis"
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

// Config is the top-level service configuration, corresponding to hostel-agent.yaml.
type Config struct {
	Hostel       HostelConfig       `yaml:"hostel" koanf:"hostel"`
	Log          LogConfig          `yaml:"log" koanf:"log"`
	Server       ServerConfig       `yaml:"server" koanf:"server"`
	Conversation ConversationConfig `yaml:"conversation" koanf:"conversation"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" koanf:"rate_limit"`
	Store        StoreConfig        `yaml:"store" koanf:"store"`
	LLM          LLMConfig          `yaml:"llm" koanf:"llm"`
	Escalation   EscalationConfig   `yaml:"escalation" koanf:"escalation"`
	Booking      BookingConfig      `yaml:"booking" koanf:"booking"`
	Gateway      GatewayConfig      `yaml:"gateway" koanf:"gateway"`
	Content      ContentConfig      `yaml:"content" koanf:"content"`
	AWS          AWSConfig          `yaml:"aws" koanf:"aws"`
}

type HostelConfig struct {
	Name string `yaml:"name" koanf:"name"`
}

type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" koanf:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" koanf:"shutdown_timeout"`

	// WebhookSecretRef is a literal, "env:NAME" or "ssm:/path". Empty disables the check.
	WebhookSecretRef string `yaml:"webhook_secret_ref" koanf:"webhook_secret_ref"`
}

// ConversationConfig controls in-memory conversation state.
type ConversationConfig struct {
	TTL             time.Duration `yaml:"ttl" koanf:"ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
	HistoryLimit    int           `yaml:"history_limit" koanf:"history_limit"`
	PersistDebounce time.Duration `yaml:"persist_debounce" koanf:"persist_debounce"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit" koanf:"limit"`
	Window time.Duration `yaml:"window" koanf:"window"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	Driver        StoreDriver   `yaml:"driver" koanf:"driver"`
	Table         string        `yaml:"table" koanf:"table"`
	RedisAddr     string        `yaml:"redis_addr" koanf:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" koanf:"redis_password"`
	RedisDB       int           `yaml:"redis_db" koanf:"redis_db"`
	DSN           string        `yaml:"dsn" koanf:"dsn"`
	Retention     time.Duration `yaml:"retention" koanf:"retention"`
}

// LLMConfig lists providers and the chain's tuning.
type LLMConfig struct {
	Providers          []llm.ProviderConfig      `yaml:"providers" koanf:"providers"`
	Timeout            time.Duration             `yaml:"timeout" koanf:"timeout"`
	ContextWindow      int                       `yaml:"context_window" koanf:"context_window"`
	SmartContextWindow int                       `yaml:"smart_context_window" koanf:"smart_context_window"`
	SmartThreshold     float64                   `yaml:"smart_threshold" koanf:"smart_threshold"`
	Breaker            breaker.Config            `yaml:"breaker" koanf:"breaker"`
	BreakerOverrides   map[string]breaker.Config `yaml:"breaker_overrides" koanf:"breaker_overrides"`
}

type EscalationConfig struct {
	Operators        []escalation.Operator `yaml:"operators" koanf:"operators"`
	UnknownThreshold int                   `yaml:"unknown_threshold" koanf:"unknown_threshold"`
}

type BookingConfig struct {
	APIURL   string         `yaml:"api_url" koanf:"api_url"`
	TokenRef string         `yaml:"token_ref" koanf:"token_ref"`
	Pricing  pricing.Config `yaml:"pricing" koanf:"pricing"`
}

type GatewayConfig struct {
	URL      string `yaml:"url" koanf:"url"`
	TokenRef string `yaml:"token_ref" koanf:"token_ref"`
	SendPath string `yaml:"send_path" koanf:"send_path"`
}

// ContentConfig points at admin-authored content.
type ContentConfig struct {
	WorkflowsDir  string `yaml:"workflows_dir" koanf:"workflows_dir"`
	KnowledgeFile string `yaml:"knowledge_file" koanf:"knowledge_file"`
}

type AWSConfig struct {
	Region string `yaml:"region" koanf:"region"`
}
