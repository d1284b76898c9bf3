// Package statestore is a keyed, expiring, in-memory store of per-conversation
// state. Expiry is lazy on every access; a background sweep only reclaims
// memory for keys nobody touches again.
package statestore

import (
	"log/slog"
	"sync"
	"time"

	"hostel-agent/internal/logging"
)

const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

type entry[T any] struct {
	value      T
	lastActive time.Time
}

type config struct {
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	onExpire      func(key string)
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*config)

// WithTTL sets how long an untouched entry stays alive.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepInterval sets the background sweep period. Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		c.sweepInterval = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithOnExpire registers a hook called (outside the store lock) for every key
// removed because its TTL elapsed.
func WithOnExpire(fn func(key string)) Option {
	return func(c *config) {
		c.onExpire = fn
	}
}

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Store maps a key to a mutable value with a sliding TTL. The lock guards the
// map only; values are owned by their key and mutated by their single owner.
type Store[T any] struct {
	cfg config

	mu      sync.Mutex
	entries map[string]*entry[T]

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a store and starts the background sweep if enabled.
func New[T any](opts ...Option) *Store[T] {
	cfg := config{
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store[T]{
		cfg:     cfg,
		entries: make(map[string]*entry[T]),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if cfg.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.doneCh)
	}
	return s
}

// TTL returns the configured time-to-live.
func (s *Store[T]) TTL() time.Duration {
	return s.cfg.ttl
}

func (s *Store[T]) expired(e *entry[T], now time.Time) bool {
	return now.Sub(e.lastActive) > s.cfg.ttl
}

// lookup returns the live entry for key, dropping it if expired. Caller holds mu.
func (s *Store[T]) lookup(key string, now time.Time) (*entry[T], bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.expired(e, now) {
		delete(s.entries, key)
		return nil, true
	}
	return e, false
}

// GetOrCreate returns the live value for key, or stores and returns factory().
func (s *Store[T]) GetOrCreate(key string, factory func() T) T {
	now := s.cfg.now()
	s.mu.Lock()
	e, dropped := s.lookup(key, now)
	if e == nil {
		e = &entry[T]{value: factory()}
		s.entries[key] = e
	}
	e.lastActive = now
	v := e.value
	s.mu.Unlock()

	if dropped {
		s.notifyExpired(key)
	}
	return v
}

// Get returns the live value for key without creating one.
func (s *Store[T]) Get(key string) (T, bool) {
	now := s.cfg.now()
	s.mu.Lock()
	e, dropped := s.lookup(key, now)
	var v T
	if e != nil {
		e.lastActive = now
		v = e.value
	}
	s.mu.Unlock()

	if dropped {
		s.notifyExpired(key)
	}
	return v, e != nil
}

// Update applies fn to the live value for key. It returns false when the key
// is missing or expired.
func (s *Store[T]) Update(key string, fn func(T)) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	fn(v)
	now := s.cfg.now()
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.lastActive = now
	}
	s.mu.Unlock()
	return true
}

// Restore inserts a value with a known last-activity time, e.g. when
// rehydrating from durable storage. Already-expired values are ignored.
func (s *Store[T]) Restore(key string, value T, lastActive time.Time) bool {
	now := s.cfg.now()
	e := &entry[T]{value: value, lastActive: lastActive}
	if s.expired(e, now) {
		return false
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return true
}

// Delete removes key. It reports whether a live entry was removed.
func (s *Store[T]) Delete(key string) bool {
	now := s.cfg.now()
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return ok && !s.expired(e, now)
}

// Entries returns a snapshot of the live entries.
func (s *Store[T]) Entries() map[string]T {
	now := s.cfg.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]T, len(s.entries))
	for k, e := range s.entries {
		if !s.expired(e, now) {
			out[k] = e.value
		}
	}
	return out
}

// Size returns the number of live entries.
func (s *Store[T]) Size() int {
	now := s.cfg.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !s.expired(e, now) {
			n++
		}
	}
	return n
}

// Sweep removes every expired entry and returns how many were removed.
func (s *Store[T]) Sweep() int {
	now := s.cfg.now()
	s.mu.Lock()
	var removed []string
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
			removed = append(removed, k)
		}
	}
	s.mu.Unlock()

	for _, k := range removed {
		s.notifyExpired(k)
	}
	return len(removed)
}

// Destroy stops the sweep and clears every entry.
func (s *Store[T]) Destroy() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.mu.Lock()
	s.entries = make(map[string]*entry[T])
	s.mu.Unlock()
}

func (s *Store[T]) notifyExpired(key string) {
	if s.cfg.onExpire != nil {
		s.cfg.onExpire(key)
	}
}

func (s *Store[T]) sweepLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.cfg.logger.Debug("statestore: swept expired entries", "count", n)
			}
		}
	}
}
