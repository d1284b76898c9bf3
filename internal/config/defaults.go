package config

import (
	"time"

	"hostel-agent/internal/breaker"
	"hostel-agent/internal/llm"
	"hostel-agent/internal/persistence"
	"hostel-agent/internal/pricing"
	"hostel-agent/internal/ratelimit"
	"hostel-agent/internal/statestore"
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Hostel: HostelConfig{Name: "our hostel"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Conversation: ConversationConfig{
			TTL:             statestore.DefaultTTL,
			SweepInterval:   statestore.DefaultSweepInterval,
			HistoryLimit:    40,
			PersistDebounce: persistence.DefaultDebounce,
		},
		RateLimit: RateLimitConfig{
			Limit:  ratelimit.DefaultLimit,
			Window: ratelimit.DefaultWindow,
		},
		Store: StoreConfig{
			Driver:    StoreMemory,
			Table:     "hostel-agent-conversations",
			RedisAddr: "localhost:6379",
			Retention: 24 * time.Hour,
		},
		LLM: LLMConfig{
			Timeout:            llm.DefaultTimeout,
			ContextWindow:      llm.DefaultContextWindow,
			SmartContextWindow: llm.DefaultSmartContextWindow,
			SmartThreshold:     0.6,
			Breaker:            breaker.DefaultConfig(),
		},
		Escalation: EscalationConfig{UnknownThreshold: 3},
		Booking: BookingConfig{
			Pricing: pricing.Config{
				NightlyRate: 45,
				WeekendRate: 55,
				DepositRate: 0.3,
				Currency:    "MYR",
			},
		},
	}
}
