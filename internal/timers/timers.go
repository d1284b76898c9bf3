// Package timers provides cancellable scheduled callbacks keyed by an id, so
// that scheduling for a key always supersedes (and stops) the previous one.
package timers

import (
	"sync"
	"time"
)

// Handle is a scheduled callback that can be stopped.
type Handle interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Handle

// Real schedules f on the runtime timer heap.
func Real(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

type slot struct {
	gen    uint64
	handle Handle
}

// Keyed holds at most one pending callback per key.
type Keyed struct {
	mu      sync.Mutex
	after   AfterFunc
	pending map[string]*slot
	gen     uint64
}

// NewKeyed creates a keyed timer set. A nil after uses Real.
func NewKeyed(after AfterFunc) *Keyed {
	if after == nil {
		after = Real
	}
	return &Keyed{
		after:   after,
		pending: make(map[string]*slot),
	}
}

// Schedule stops any pending callback for key and schedules f after d.
// A callback that was already firing when it got superseded is dropped.
func (k *Keyed) Schedule(key string, d time.Duration, f func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if prev, ok := k.pending[key]; ok {
		prev.handle.Stop()
		delete(k.pending, key)
	}

	k.gen++
	gen := k.gen
	s := &slot{gen: gen}
	k.pending[key] = s
	s.handle = k.after(d, func() {
		k.mu.Lock()
		cur, ok := k.pending[key]
		if !ok || cur.gen != gen {
			k.mu.Unlock()
			return
		}
		delete(k.pending, key)
		k.mu.Unlock()
		f()
	})
}

// Cancel stops the pending callback for key. It reports whether one existed.
func (k *Keyed) Cancel(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.pending[key]
	if !ok {
		return false
	}
	s.handle.Stop()
	delete(k.pending, key)
	return true
}

// Pending reports whether key has a scheduled callback.
func (k *Keyed) Pending(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.pending[key]
	return ok
}

// Keys returns the keys that currently have a scheduled callback.
func (k *Keyed) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.pending))
	for key := range k.pending {
		out = append(out, key)
	}
	return out
}

// Len returns the number of pending callbacks.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

// StopAll cancels every pending callback.
func (k *Keyed) StopAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, s := range k.pending {
		s.handle.Stop()
		delete(k.pending, key)
	}
}
