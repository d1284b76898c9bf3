package llm

import (
	"context"
	"log/slog"
	"time"

	"hostel-agent/internal/breaker"
	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
)

const (
	DefaultTimeout            = 15 * time.Second
	DefaultContextWindow      = 10
	DefaultSmartContextWindow = 30
)

// Outcomes reported to an Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
)

// Result is the normalized outcome of a chain call. Unavailable is set when
// every provider was skipped or failed.
type Result struct {
	Text        string
	ProviderID  string
	Elapsed     time.Duration
	Unavailable bool
}

// Observer receives per-provider outcomes, e.g. for metrics.
type Observer interface {
	ProviderResult(provider, outcome string, elapsed time.Duration)
}

// Chain tries providers in priority order, gated by their circuit breakers.
type Chain struct {
	providers   []Provider
	smart       map[string]bool
	breakers    *breaker.Registry
	timeout     time.Duration
	window      int
	smartWindow int
	now         func() time.Time
	logger      *slog.Logger
	observer    Observer
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithSmartProviders names the higher-capability subset used by SmartChat.
func WithSmartProviders(ids ...string) ChainOption {
	return func(c *Chain) {
		for _, id := range ids {
			c.smart[id] = true
		}
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContextWindow sets how many history messages Chat and SmartChat send.
func WithContextWindow(primary, smart int) ChainOption {
	return func(c *Chain) {
		if primary > 0 {
			c.window = primary
		}
		if smart > 0 {
			c.smartWindow = smart
		}
	}
}

// WithChainClock overrides the time source used to measure provider latency.
func WithChainClock(now func() time.Time) ChainOption {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// WithChainLogger sets the logger.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a per-provider outcome observer.
func WithObserver(o Observer) ChainOption {
	return func(c *Chain) {
		c.observer = o
	}
}

// NewChain creates a chain over providers, which must already be in priority
// order. A nil registry gets a default one.
func NewChain(providers []Provider, breakers *breaker.Registry, opts ...ChainOption) *Chain {
	if breakers == nil {
		breakers = breaker.NewRegistry(breaker.DefaultConfig())
	}
	c := &Chain{
		providers:   providers,
		smart:       make(map[string]bool),
		breakers:    breakers,
		timeout:     DefaultTimeout,
		window:      DefaultContextWindow,
		smartWindow: DefaultSmartContextWindow,
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the provider ids in priority order.
func (c *Chain) Providers() []string {
	ids := make([]string, len(c.providers))
	for i, p := range c.providers {
		ids[i] = p.ID()
	}
	return ids
}

// Chat walks every provider with the primary context window.
func (c *Chain) Chat(ctx context.Context, req ChatRequest) Result {
	req.Messages = tail(req.Messages, c.window)
	return c.run(ctx, c.providers, req)
}

// SmartChat walks only the smart providers with the expanded context window
// and forced JSON output.
func (c *Chain) SmartChat(ctx context.Context, req ChatRequest) Result {
	var smart []Provider
	for _, p := range c.providers {
		if c.smart[p.ID()] {
			smart = append(smart, p)
		}
	}
	if len(smart) == 0 {
		return Result{Unavailable: true}
	}
	req.Messages = tail(req.Messages, c.smartWindow)
	req.JSONMode = true
	return c.run(ctx, smart, req)
}

func (c *Chain) run(ctx context.Context, providers []Provider, req ChatRequest) Result {
	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		br := c.breakers.Get(p.ID())
		if br.IsOpen() {
			c.report(p.ID(), OutcomeSkipped, 0)
			c.logger.Debug("llm: provider skipped, breaker open", "provider", p.ID())
			continue
		}

		start := c.now()
		text, err := c.call(ctx, p, req)
		elapsed := c.now().Sub(start)
		if err != nil && ctx.Err() != nil {
			// The caller went away; the provider gets no verdict.
			br.Release()
			c.report(p.ID(), OutcomeCancelled, elapsed)
			c.logger.Info("llm: call abandoned by caller", "provider", p.ID(), "elapsed", elapsed, "err", ctx.Err())
			return Result{Unavailable: true}
		}
		if err != nil {
			br.RecordFailure()
			c.report(p.ID(), OutcomeFailure, elapsed)
			c.logger.Warn("llm: provider failed, trying next", "provider", p.ID(), "elapsed", elapsed, "err", err)
			continue
		}

		br.RecordSuccess()
		c.report(p.ID(), OutcomeSuccess, elapsed)
		return Result{Text: text, ProviderID: p.ID(), Elapsed: elapsed}
	}
	c.logger.Warn("llm: all providers unavailable", "providers", len(providers))
	return Result{Unavailable: true}
}

func (c *Chain) call(ctx context.Context, p Provider, req ChatRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return p.Chat(callCtx, req)
}

func (c *Chain) report(provider, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ProviderResult(provider, outcome, elapsed)
	}
}

func tail(msgs []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
