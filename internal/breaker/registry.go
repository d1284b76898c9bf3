package breaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hostel-agent/internal/logging"
)

// Registry lazily creates one breaker per provider id.
type Registry struct {
	cfg       Config
	overrides map[string]Config
	now       func() time.Time
	hooks     []TransitionHook
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTransitionHook adds a mode-change observer.
func WithTransitionHook(hook TransitionHook) RegistryOption {
	return func(r *Registry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// WithOverride sets thresholds for one provider id.
func WithOverride(id string, cfg Config) RegistryOption {
	return func(r *Registry) {
		r.overrides[id] = cfg
	}
}

// WithLogger sets the logger used for transition logs.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:       cfg.withDefaults(),
		overrides: make(map[string]Config),
		now:       time.Now,
		logger:    logging.NewNop(),
		breakers:  make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for id, creating it on first use.
func (r *Registry) Get(id string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	if !ok {
		cfg := r.cfg
		if o, ok := r.overrides[id]; ok {
			cfg = o
		}
		b = New(id, cfg, r.now, r.onTransition)
		r.breakers[id] = b
	}
	return b
}

// Status returns snapshots of every known breaker, sorted by id.
func (r *Registry) Status() []Status {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, b := range list {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset forces the breaker for id closed. It reports whether id was known.
func (r *Registry) Reset(id string) bool {
	r.mu.Lock()
	b, ok := r.breakers[id]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
	return ok
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()
	for _, b := range list {
		b.Reset()
	}
}

func (r *Registry) onTransition(id string, from, to Mode) {
	level := slog.LevelInfo
	if to == Open {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "breaker: transition", "provider", id, "from", string(from), "to", string(to))
	for _, h := range r.hooks {
		h(id, from, to)
	}
}
