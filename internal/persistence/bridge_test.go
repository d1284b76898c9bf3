package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/timers"
)

type fakeStore struct {
	mu        sync.Mutex
	upserts   []*domain.ConversationState
	deletes   []string
	loadOut   []*domain.ConversationState
	loadErr   error
	upsertErr error
	sinceSeen time.Time
}

func (f *fakeStore) Upsert(_ context.Context, s *domain.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, s)
	return nil
}

func (f *fakeStore) LoadActive(_ context.Context, since time.Time) ([]*domain.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceSeen = since
	return f.loadOut, f.loadErr
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeStore) lastUpsert() *domain.ConversationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.upserts) == 0 {
		return nil
	}
	return f.upserts[len(f.upserts)-1]
}

type countingObserver struct {
	mu     sync.Mutex
	errors int
}

func (o *countingObserver) PersistResult(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errors++
	}
}

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestBridge(t *testing.T, store Store, opts ...Option) (*Bridge, *timers.Manual) {
	t.Helper()
	clock := timers.NewManual(t0)
	opts = append([]Option{WithAfterFunc(clock.AfterFunc), WithClock(clock.Now), WithDebounce(5 * time.Second)}, opts...)
	b := NewBridge(store, opts...)
	t.Cleanup(b.Destroy)
	return b, clock
}

func stateWithTurns(key string, turns int) *domain.ConversationState {
	s := domain.NewConversationState(key, t0)
	for i := 0; i < turns; i++ {
		s.AppendHistory(domain.RoleUser, "hi", t0, 0)
	}
	return s
}

func TestSchedulePersist_DebounceCoalescesToOneWrite(t *testing.T) {
	store := &fakeStore{}
	b, clock := newTestBridge(t, store)

	state := stateWithTurns("60123", 0)
	for i := 0; i < 5; i++ {
		state.AppendHistory(domain.RoleUser, "msg", t0, 0)
		b.SchedulePersist("60123", state, false)
		clock.Advance(time.Second)
	}
	require.Equal(t, 1, b.PendingCount())
	b.Wait()
	require.Zero(t, store.upsertCount())

	clock.Advance(5 * time.Second)
	b.Wait()
	require.Equal(t, 1, store.upsertCount())
	require.Len(t, store.lastUpsert().History, 5)
}

func TestSchedulePersist_ImmediateCancelsPendingDebounce(t *testing.T) {
	store := &fakeStore{}
	b, clock := newTestBridge(t, store)

	state := stateWithTurns("60123", 1)
	b.SchedulePersist("60123", state, false)

	state.Booking = &domain.BookingState{Stage: domain.StageGuests}
	b.SchedulePersist("60123", state, true)
	b.Wait()
	require.Equal(t, 1, store.upsertCount())
	require.Zero(t, b.PendingCount())

	clock.Advance(time.Minute)
	b.Wait()
	require.Equal(t, 1, store.upsertCount(), "stale debounced write must not fire")
	require.Equal(t, domain.StageGuests, store.lastUpsert().Booking.Stage)
}

func TestSchedulePersist_SnapshotIsolatedFromLaterMutation(t *testing.T) {
	store := &fakeStore{}
	b, _ := newTestBridge(t, store)

	state := stateWithTurns("k", 1)
	b.SchedulePersist("k", state, true)
	b.Wait()
	state.AppendHistory(domain.RoleUser, "later", t0, 0)

	require.Len(t, store.lastUpsert().History, 1)
}

func TestSchedulePersist_FailureIsSwallowed(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("db down")}
	obs := &countingObserver{}
	b, _ := newTestBridge(t, store, WithObserver(obs))

	require.NotPanics(t, func() {
		b.SchedulePersist("k", stateWithTurns("k", 1), true)
		b.Wait()
	})
	require.Equal(t, 1, obs.errors)
}

func TestRemove_CancelsPendingAndDeletes(t *testing.T) {
	store := &fakeStore{}
	b, clock := newTestBridge(t, store)

	b.SchedulePersist("k", stateWithTurns("k", 1), false)
	b.Remove("k")
	b.Wait()
	clock.Advance(time.Minute)
	b.Wait()

	require.Zero(t, store.upsertCount())
	require.Equal(t, []string{"k"}, store.deletes)
}

// rowStore keeps the latest durable row per key.
type rowStore struct {
	mu   sync.Mutex
	rows map[string]*domain.ConversationState
}

func newRowStore() *rowStore {
	return &rowStore{rows: make(map[string]*domain.ConversationState)}
}

func (r *rowStore) Upsert(_ context.Context, s *domain.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.Key] = s
	return nil
}

func (r *rowStore) LoadActive(context.Context, time.Time) ([]*domain.ConversationState, error) {
	return nil, nil
}

func (r *rowStore) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, key)
	return nil
}

func (r *rowStore) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[key]
	return ok
}

func TestRemove_LaterImmediateWriteSurvives(t *testing.T) {
	store := newRowStore()
	b, _ := newTestBridge(t, store)

	for i := 0; i < 500; i++ {
		b.Remove("k")
		b.SchedulePersist("k", stateWithTurns("k", 1), true)
		b.Wait()
		require.True(t, store.has("k"), "row missing after remove then write, iteration %d", i)
	}
}

func TestRemove_AfterWriteDeletesRow(t *testing.T) {
	store := newRowStore()
	b, _ := newTestBridge(t, store)

	for i := 0; i < 200; i++ {
		b.SchedulePersist("k", stateWithTurns("k", 1), true)
		b.Remove("k")
		b.Wait()
		require.False(t, store.has("k"), "row present after write then remove, iteration %d", i)
	}
}

func TestRemove_DebouncedWriteAfterRemoveLands(t *testing.T) {
	store := newRowStore()
	b, clock := newTestBridge(t, store)

	b.SchedulePersist("k", stateWithTurns("k", 1), true)
	b.Wait()
	b.Remove("k")
	b.SchedulePersist("k", stateWithTurns("k", 2), false)
	b.Wait()
	require.False(t, store.has("k"))

	clock.Advance(5 * time.Second)
	b.Wait()
	require.True(t, store.has("k"))
}

func TestBridge_KeyStateReleasedWhenIdle(t *testing.T) {
	store := newRowStore()
	b, clock := newTestBridge(t, store)

	b.SchedulePersist("a", stateWithTurns("a", 1), true)
	b.SchedulePersist("b", stateWithTurns("b", 1), false)
	b.Remove("c")
	b.Wait()
	require.Equal(t, 1, b.trackedKeys(), "debounced key stays tracked")

	clock.Advance(5 * time.Second)
	b.Wait()
	require.Zero(t, b.trackedKeys())

	b.Remove("a")
	b.Remove("b")
	b.Wait()
	require.Zero(t, b.trackedKeys())
	require.False(t, store.has("a"))
	require.False(t, store.has("b"))
}

func TestLoadActiveStates_FiltersByTTL(t *testing.T) {
	fresh := stateWithTurns("fresh", 1)
	fresh.LastActiveAt = t0.Add(-10 * time.Minute)
	stale := stateWithTurns("stale", 1)
	stale.LastActiveAt = t0.Add(-3 * time.Hour)

	store := &fakeStore{loadOut: []*domain.ConversationState{fresh, stale}}
	b, _ := newTestBridge(t, store)

	got := b.LoadActiveStates(context.Background(), time.Hour)
	require.Len(t, got, 1)
	require.Equal(t, "fresh", got[0].Key)
	require.Equal(t, t0.Add(-time.Hour), store.sinceSeen)
}

func TestLoadActiveStates_ErrorYieldsEmpty(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("timeout")}
	b, _ := newTestBridge(t, store)
	require.Empty(t, b.LoadActiveStates(context.Background(), time.Hour))
}

func TestFlush_WritesPendingImmediately(t *testing.T) {
	store := &fakeStore{}
	b, _ := newTestBridge(t, store)

	b.SchedulePersist("a", stateWithTurns("a", 1), false)
	b.SchedulePersist("b", stateWithTurns("b", 1), false)
	b.Flush()
	b.Wait()

	require.Equal(t, 2, store.upsertCount())
	require.Zero(t, b.PendingCount())
}

func TestNewBridge_NilStoreIsNop(t *testing.T) {
	b := NewBridge(nil)
	t.Cleanup(b.Destroy)
	b.SchedulePersist("k", stateWithTurns("k", 1), true)
	b.Wait()
	require.Empty(t, b.LoadActiveStates(context.Background(), time.Hour))
}
