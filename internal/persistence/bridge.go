// Package persistence writes conversation state behind the in-memory store.
// It is best-effort: every durable failure is logged and swallowed, and the
// in-memory state stays authoritative.
package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
	"hostel-agent/internal/timers"
)

const (
	DefaultDebounce     = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Store is the durable write-behind target.
type Store interface {
	Upsert(ctx context.Context, state *domain.ConversationState) error
	LoadActive(ctx context.Context, since time.Time) ([]*domain.ConversationState, error)
	Delete(ctx context.Context, key string) error
}

// Observer receives persistence outcomes, e.g. for metrics.
type Observer interface {
	PersistResult(op string, err error)
}

// Bridge debounces and sequences durable writes per conversation key.
type Bridge struct {
	store        Store
	timers       *timers.Keyed
	debounce     time.Duration
	writeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	observer     Observer

	mu      sync.Mutex
	keys    map[string]*keyState
	pending map[string]*domain.ConversationState
	wg      sync.WaitGroup
}

// keyState orders the durable operations of one key. It lives while the key
// has a debounced snapshot or an operation in flight.
type keyState struct {
	mu       sync.Mutex // serializes store calls for the key
	seq      uint64     // last scheduled operation
	written  uint64     // last applied operation
	inflight int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDebounce sets the coalescing window for non-immediate writes.
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.debounce = d
		}
	}
}

// WithWriteTimeout bounds each durable call.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.writeTimeout = d
		}
	}
}

// WithAfterFunc overrides timer scheduling (tests).
func WithAfterFunc(after timers.AfterFunc) Option {
	return func(b *Bridge) {
		b.timers = timers.NewKeyed(after)
	}
}

// WithClock overrides the time source used for TTL windows.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		b.observer = o
	}
}

// NewBridge creates a Bridge over store. A nil store behaves like NopStore.
func NewBridge(store Store, opts ...Option) *Bridge {
	if store == nil {
		store = NopStore{}
	}
	b := &Bridge{
		store:        store,
		timers:       timers.NewKeyed(nil),
		debounce:     DefaultDebounce,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
		logger:       logging.NewNop(),
		keys:         make(map[string]*keyState),
		pending:      make(map[string]*domain.ConversationState),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SchedulePersist snapshots state and writes it. Non-immediate calls coalesce
// within the debounce window; immediate calls cancel any pending debounced
// write for the key before writing, so a stale write cannot land afterwards.
func (b *Bridge) SchedulePersist(key string, state *domain.ConversationState, immediate bool) {
	if state == nil {
		return
	}
	snap := state.Clone()

	b.mu.Lock()
	ks, seq := b.next(key)
	if immediate {
		delete(b.pending, key)
		ks.inflight++
	} else {
		b.pending[key] = snap
	}
	b.mu.Unlock()

	if immediate {
		b.timers.Cancel(key)
		b.spawnWrite(ks, key, snap, seq)
		return
	}

	b.timers.Schedule(key, b.debounce, func() {
		b.mu.Lock()
		pendingSnap, ok := b.pending[key]
		delete(b.pending, key)
		ks := b.keys[key]
		if ok {
			ks.inflight++
		}
		b.mu.Unlock()
		if ok {
			b.spawnWrite(ks, key, pendingSnap, seq)
		}
	})
}

// Remove cancels pending work for key and deletes its durable row. The delete
// is sequenced like a write: if a later write for the key has already been
// applied when the delete gets its turn, the delete is skipped.
func (b *Bridge) Remove(key string) {
	b.timers.Cancel(key)

	b.mu.Lock()
	ks, seq := b.next(key)
	delete(b.pending, key)
	ks.inflight++
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ks.mu.Lock()
		defer ks.mu.Unlock()

		if b.superseded(ks, seq) {
			b.logger.Debug("persistence: skipped superseded delete", "key", key, "seq", seq)
			b.finish(key, ks, seq, false)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
		defer cancel()
		err := b.store.Delete(ctx, key)
		b.report("delete", err)
		if err != nil {
			b.logger.Warn("persistence: delete failed", "key", key, "err", err)
		}
		// A failed delete still supersedes older writes queued behind it.
		b.finish(key, ks, seq, true)
	}()
}

// LoadActiveStates returns durable states whose last activity is within ttl.
// Failures are logged and yield no states.
func (b *Bridge) LoadActiveStates(ctx context.Context, ttl time.Duration) []*domain.ConversationState {
	since := b.now().Add(-ttl)
	states, err := b.store.LoadActive(ctx, since)
	b.report("load", err)
	if err != nil {
		b.logger.Warn("persistence: load active states failed; starting empty", "err", err)
		return nil
	}
	out := states[:0]
	for _, s := range states {
		if s != nil && !s.LastActiveAt.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

// Flush writes every pending debounced snapshot now.
func (b *Bridge) Flush() {
	type job struct {
		ks   *keyState
		snap *domain.ConversationState
		seq  uint64
	}
	b.mu.Lock()
	jobs := make(map[string]job, len(b.pending))
	for k, s := range b.pending {
		ks := b.keys[k]
		ks.inflight++
		jobs[k] = job{ks: ks, snap: s, seq: ks.seq}
	}
	b.pending = make(map[string]*domain.ConversationState)
	b.mu.Unlock()

	for k, j := range jobs {
		b.timers.Cancel(k)
		b.spawnWrite(j.ks, k, j.snap, j.seq)
	}
}

// Wait blocks until in-flight writes finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Destroy cancels every pending timer and waits for in-flight writes.
func (b *Bridge) Destroy() {
	b.timers.StopAll()
	b.mu.Lock()
	b.pending = make(map[string]*domain.ConversationState)
	for k, ks := range b.keys {
		if ks.inflight == 0 {
			delete(b.keys, k)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// PendingCount returns the number of keys with a debounced write waiting.
func (b *Bridge) PendingCount() int {
	return b.timers.Len()
}

// next allocates the next sequence number for key. Callers hold b.mu.
func (b *Bridge) next(key string) (*keyState, uint64) {
	ks, ok := b.keys[key]
	if !ok {
		ks = &keyState{}
		b.keys[key] = ks
	}
	ks.seq++
	return ks, ks.seq
}

func (b *Bridge) superseded(ks *keyState, seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return seq <= ks.written
}

// finish records the outcome of one operation and drops the key's state once
// nothing is queued or in flight for it.
func (b *Bridge) finish(key string, ks *keyState, seq uint64, applied bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if applied && seq > ks.written {
		ks.written = seq
	}
	ks.inflight--
	if ks.inflight > 0 {
		return
	}
	if _, queued := b.pending[key]; queued {
		return
	}
	if b.keys[key] == ks {
		delete(b.keys, key)
	}
}

func (b *Bridge) trackedKeys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

func (b *Bridge) spawnWrite(ks *keyState, key string, snap *domain.ConversationState, seq uint64) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.write(ks, key, snap, seq)
	}()
}

func (b *Bridge) write(ks *keyState, key string, snap *domain.ConversationState, seq uint64) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if b.superseded(ks, seq) {
		b.logger.Debug("persistence: skipped superseded write", "key", key, "seq", seq)
		b.finish(key, ks, seq, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
	defer cancel()
	err := b.store.Upsert(ctx, snap)
	b.report("upsert", err)
	if err != nil {
		b.logger.Warn("persistence: upsert failed; continuing in memory", "key", key, "err", err)
	}
	b.finish(key, ks, seq, err == nil)
}

func (b *Bridge) report(op string, err error) {
	if b.observer != nil {
		b.observer.PersistResult(op, err)
	}
}
