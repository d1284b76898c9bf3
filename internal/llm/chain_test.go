package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hostel-agent/internal/breaker"
	"hostel-agent/internal/domain"
)

func history(n int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, n)
	for i := range out {
		out[i] = domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestChain_SkipsOpenProvider(t *testing.T) {
	a := &fakeProvider{id: "a", text: "from a"}
	b := &fakeProvider{id: "b", text: "from b"}
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1})
	reg.Get("a").RecordFailure()
	obs := &recordingObserver{}

	c := NewChain([]Provider{a, b}, reg, WithObserver(obs))
	res := c.Chat(context.Background(), ChatRequest{Messages: history(1)})

	require.False(t, res.Unavailable)
	require.Equal(t, "b", res.ProviderID)
	require.Equal(t, "from b", res.Text)
	require.Zero(t, a.callCount())
	require.Equal(t, []string{"a:skipped", "b:success"}, obs.outcomes)
}

func TestChain_FailureFallsThroughAndRecords(t *testing.T) {
	a := &fakeProvider{id: "a", err: errors.New("503")}
	b := &fakeProvider{id: "b", text: "ok"}
	reg := breaker.NewRegistry(breaker.DefaultConfig())

	c := NewChain([]Provider{a, b}, reg)
	res := c.Chat(context.Background(), ChatRequest{})

	require.Equal(t, "b", res.ProviderID)
	require.Equal(t, 1, a.callCount())
	require.Equal(t, 1, reg.Get("a").Status().Failures)
}

func TestChain_AllFailIsUnavailable(t *testing.T) {
	a := &fakeProvider{id: "a", err: errors.New("boom")}
	b := &fakeProvider{id: "b", err: errors.New("boom")}
	c := NewChain([]Provider{a, b}, nil)

	res := c.Chat(context.Background(), ChatRequest{})
	require.True(t, res.Unavailable)
	require.Empty(t, res.Text)
}

func TestChain_NoProvidersIsUnavailable(t *testing.T) {
	res := NewChain(nil, nil).Chat(context.Background(), ChatRequest{})
	require.True(t, res.Unavailable)
}

func TestChain_TimeoutCountsAsFailure(t *testing.T) {
	slow := &fakeProvider{id: "slow", block: true}
	fast := &fakeProvider{id: "fast", text: "ok"}
	reg := breaker.NewRegistry(breaker.DefaultConfig())

	c := NewChain([]Provider{slow, fast}, reg, WithTimeout(20*time.Millisecond))
	res := c.Chat(context.Background(), ChatRequest{})

	require.Equal(t, "fast", res.ProviderID)
	require.Equal(t, 1, reg.Get("slow").Status().Failures)
}

func TestChain_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	a := &fakeProvider{id: "a", err: errors.New("boom")}
	b := &fakeProvider{id: "b", text: "ok"}
	c := NewChain([]Provider{a, b}, breaker.NewRegistry(breaker.DefaultConfig()))

	for i := 0; i < 5; i++ {
		c.Chat(context.Background(), ChatRequest{})
	}
	require.Equal(t, 3, a.callCount())
	require.Equal(t, 5, b.callCount())
}

func TestChain_ContextWindow(t *testing.T) {
	a := &fakeProvider{id: "a", text: "ok"}
	c := NewChain([]Provider{a}, nil, WithContextWindow(3, 6), WithSmartProviders("a"))

	c.Chat(context.Background(), ChatRequest{Messages: history(10)})
	require.Len(t, a.lastCall().Messages, 3)
	require.Equal(t, "m9", a.lastCall().Messages[2].Content)
	require.False(t, a.lastCall().JSONMode)

	c.SmartChat(context.Background(), ChatRequest{Messages: history(10)})
	require.Len(t, a.lastCall().Messages, 6)
	require.True(t, a.lastCall().JSONMode)
}

func TestChain_SmartChatUsesOnlySmartProviders(t *testing.T) {
	cheap := &fakeProvider{id: "cheap", text: "cheap"}
	smart := &fakeProvider{id: "smart", text: "smart"}
	c := NewChain([]Provider{cheap, smart}, nil, WithSmartProviders("smart"))

	res := c.SmartChat(context.Background(), ChatRequest{})
	require.Equal(t, "smart", res.ProviderID)
	require.Zero(t, cheap.callCount())

	require.True(t, NewChain([]Provider{cheap}, nil).SmartChat(context.Background(), ChatRequest{}).Unavailable)
}

func TestChain_Elapsed(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	c := NewChain([]Provider{&fakeProvider{id: "a", text: "ok"}}, nil, WithChainClock(clock))
	res := c.Chat(context.Background(), ChatRequest{})
	require.Equal(t, 250*time.Millisecond, res.Elapsed)
	require.Equal(t, []string{"a"}, c.Providers())
}

func TestChain_CallerCancellationIsNotAFailure(t *testing.T) {
	slow := &fakeProvider{id: "slow", block: true}
	next := &fakeProvider{id: "next", text: "ok"}
	reg := breaker.NewRegistry(breaker.DefaultConfig())
	obs := &recordingObserver{}
	c := NewChain([]Provider{slow, next}, reg, WithTimeout(time.Minute), WithObserver(obs))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		res := c.Chat(ctx, ChatRequest{})
		cancel()
		require.True(t, res.Unavailable)
	}

	st := reg.Get("slow").Status()
	require.Equal(t, breaker.Closed, st.Mode)
	require.Zero(t, st.Failures)
	require.Zero(t, next.callCount())
	require.Equal(t, []string{"slow:cancelled", "slow:cancelled", "slow:cancelled"}, obs.outcomes)
}

func TestChain_CallerCancellationReleasesHalfOpenPermit(t *testing.T) {
	now := time.Unix(0, 0)
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Minute}, breaker.WithClock(func() time.Time { return now }))
	reg.Get("a").RecordFailure()
	now = now.Add(time.Minute)

	slow := &fakeProvider{id: "a", block: true}
	c := NewChain([]Provider{slow}, reg, WithTimeout(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.True(t, c.Chat(ctx, ChatRequest{}).Unavailable)

	require.Equal(t, breaker.HalfOpen, reg.Get("a").Status().Mode)
	require.False(t, reg.Get("a").IsOpen(), "permit must be free for the next call")
}
