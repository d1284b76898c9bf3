package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hostel-agent/internal/timers"
)

type sent struct {
	to, text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]error
}

func (f *fakeSender) SendMessage(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return nil
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s.to)
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) EscalationEvent(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

var operators = []Operator{
	{Name: "P1", Phone: "601111", Window: 5 * time.Minute},
	{Name: "P2", Phone: "602222", Window: 10 * time.Minute},
	{Name: "P3", Phone: "603333", Window: 10 * time.Minute},
}

func newTestCascade(t *testing.T, ops []Operator, sender *fakeSender, opts ...Option) (*Cascade, *timers.Manual, *eventLog) {
	t.Helper()
	clock := timers.NewManual(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	events := &eventLog{}
	opts = append([]Option{
		WithAfterFunc(clock.AfterFunc),
		WithClock(clock.Now),
		WithObserver(events),
	}, opts...)
	c, err := NewCascade(ops, sender, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c, clock, events
}

func TestCascade_EscalatesThroughOperators(t *testing.T) {
	sender := &fakeSender{}
	c, clock, events := newTestCascade(t, operators, sender)

	id, err := c.SendToOperatorWithEscalation(context.Background(), "ABC123", "Guest 60123 needs help", map[string]string{"guest": "60123"})
	require.NoError(t, err)
	require.Equal(t, "ABC123", id)
	require.Equal(t, []string{"601111"}, sender.recipients())
	first := sender.sent[0].text
	require.Contains(t, first, "Guest 60123 needs help")
	require.Contains(t, first, "guest: 60123")
	require.Contains(t, first, `"ACK ABC123"`)
	require.Contains(t, first, "5 min")
	require.NotContains(t, first, "escalated from")

	clock.Advance(4 * time.Minute)
	require.Len(t, sender.recipients(), 1)

	clock.Advance(time.Minute)
	require.Equal(t, []string{"601111", "602222"}, sender.recipients())
	require.Contains(t, sender.sent[1].text, "[escalated from P1]")
	require.Contains(t, sender.sent[1].text, "10 min")

	chain, ok := c.Get("ABC123")
	require.True(t, ok)
	require.Equal(t, 1, chain.Index)
	require.Equal(t, clock.Now(), chain.LastSentAt)

	clock.Advance(10 * time.Minute)
	require.Equal(t, []string{"601111", "602222", "603333"}, sender.recipients())
	require.Contains(t, sender.sent[2].text, "[escalated from P2]")
	require.NotContains(t, sender.sent[2].text, "next contact")

	clock.Advance(10 * time.Minute)
	require.Empty(t, c.Pending())
	require.Zero(t, clock.Pending())
	require.Equal(t, []string{EventSent, EventEscalated, EventEscalated, EventExhausted}, events.events)
}

func TestCascade_AcknowledgePreventsNextOperator(t *testing.T) {
	sender := &fakeSender{}
	c, clock, events := newTestCascade(t, operators, sender)

	id, err := c.SendToOperatorWithEscalation(context.Background(), "", "Lost key at counter", nil)
	require.NoError(t, err)
	require.Len(t, id, 6)
	require.Equal(t, []string{id}, c.Pending())

	clock.Advance(3 * time.Minute)
	require.True(t, c.AcknowledgeMessage(id))
	require.False(t, c.AcknowledgeMessage(id))

	clock.Advance(30 * time.Minute)
	require.Equal(t, []string{"601111"}, sender.recipients())
	require.Empty(t, c.Pending())
	require.Zero(t, clock.Pending())
	require.Equal(t, []string{EventSent, EventAcknowledged}, events.events)
}

func TestCascade_CancelEscalation(t *testing.T) {
	sender := &fakeSender{}
	c, clock, events := newTestCascade(t, operators, sender)

	_, err := c.SendToOperatorWithEscalation(context.Background(), "X1", "msg", nil)
	require.NoError(t, err)
	require.True(t, c.CancelEscalation("X1"))
	require.False(t, c.CancelEscalation("X1"))

	clock.Advance(time.Hour)
	require.Len(t, sender.recipients(), 1)
	require.Equal(t, []string{EventSent, EventCancelled}, events.events)
}

func TestCascade_ReplyDetectionClosesChain(t *testing.T) {
	sender := &fakeSender{}
	var checked []string
	var since time.Time
	detector := func(_ context.Context, op Operator, s time.Time) bool {
		checked = append(checked, op.Name)
		since = s
		return true
	}
	c, clock, events := newTestCascade(t, operators, sender, WithReplyDetector(detector))
	sentAt := clock.Now()

	_, err := c.SendToOperatorWithEscalation(context.Background(), "R1", "msg", nil)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.Equal(t, []string{"P1"}, checked)
	require.Equal(t, sentAt, since)
	require.Equal(t, []string{"601111"}, sender.recipients())
	require.Empty(t, c.Pending())
	require.Equal(t, []string{EventSent, EventReplied}, events.events)
}

func TestCascade_SendErrorAdvancesImmediately(t *testing.T) {
	sender := &fakeSender{fail: map[string]error{"601111": errors.New("device offline")}}
	c, clock, _ := newTestCascade(t, operators, sender)

	_, err := c.SendToOperatorWithEscalation(context.Background(), "E1", "msg", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"602222"}, sender.recipients())
	require.Contains(t, sender.sent[0].text, "[escalated from P1]")

	chain, ok := c.Get("E1")
	require.True(t, ok)
	require.Equal(t, 1, chain.Index)

	clock.Advance(10 * time.Minute)
	require.Equal(t, []string{"602222", "603333"}, sender.recipients())
}

func TestCascade_AllSendsFail(t *testing.T) {
	boom := errors.New("down")
	sender := &fakeSender{fail: map[string]error{"601111": boom, "602222": boom, "603333": boom}}
	c, clock, events := newTestCascade(t, operators, sender)

	_, err := c.SendToOperatorWithEscalation(context.Background(), "F1", "msg", nil)
	require.ErrorIs(t, err, ErrAllFailed)
	require.Empty(t, c.Pending())
	require.Zero(t, clock.Pending())
	require.Equal(t, []string{EventSendFailed, EventSendFailed, EventSendFailed, EventExhausted}, events.events)
}

func TestCascade_SingleOperatorSchedulesNothing(t *testing.T) {
	sender := &fakeSender{}
	c, clock, _ := newTestCascade(t, operators[:1], sender)

	_, err := c.SendToOperatorWithEscalation(context.Background(), "S1", "msg", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"601111"}, sender.recipients())
	require.NotContains(t, sender.sent[0].text, "next contact")
	require.Zero(t, clock.Pending())
	require.Empty(t, c.Pending())
}

func TestCascade_Validation(t *testing.T) {
	_, err := NewCascade(operators, nil)
	require.Error(t, err)

	_, err = NewCascade([]Operator{{Name: "x"}}, &fakeSender{})
	require.ErrorContains(t, err, "no phone")

	c, err := NewCascade([]Operator{{Phone: "1"}, {Phone: "2"}}, &fakeSender{})
	require.NoError(t, err)
	ops := c.Operators()
	require.Equal(t, "P1", ops[0].Name)
	require.Equal(t, DefaultWindow, ops[1].Window)
	require.True(t, c.IsOperator("2"))
	require.False(t, c.IsOperator("3"))

	empty, err := NewCascade(nil, &fakeSender{})
	require.NoError(t, err)
	_, err = empty.SendToOperatorWithEscalation(context.Background(), "", "msg", nil)
	require.ErrorIs(t, err, ErrNoOperators)

	_, err = c.SendToOperatorWithEscalation(context.Background(), "", "  ", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestCascade_DestroyCancelsTimers(t *testing.T) {
	sender := &fakeSender{}
	c, clock, _ := newTestCascade(t, operators, sender)

	for _, id := range []string{"A", "B"} {
		_, err := c.SendToOperatorWithEscalation(context.Background(), id, "msg", nil)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"A", "B"}, c.Pending())

	c.Destroy()
	clock.Advance(time.Hour)
	require.Len(t, sender.recipients(), 2)
	require.Empty(t, c.Pending())
}
