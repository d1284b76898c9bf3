package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/escalation"
	"hostel-agent/internal/llm"
	"hostel-agent/internal/locale"
	"hostel-agent/internal/statestore"
	"hostel-agent/internal/workflow"
)

type sent struct {
	to, text string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeTransport) SendMessage(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return nil
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type fakeClassifier struct {
	mu         sync.Mutex
	replies    []llm.Result
	smart      llm.Result
	chatCalls  int
	smartCalls int
	lastReq    llm.ChatRequest
}

func reply(raw string) llm.Result {
	return llm.Result{Text: raw, ProviderID: "primary"}
}

func (f *fakeClassifier) Chat(_ context.Context, req llm.ChatRequest) llm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	idx := f.chatCalls
	f.chatCalls++
	if len(f.replies) == 0 {
		return llm.Result{Unavailable: true}
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx]
}

func (f *fakeClassifier) SmartChat(_ context.Context, _ llm.ChatRequest) llm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smartCalls++
	if f.smart.Text == "" {
		return llm.Result{Unavailable: true}
	}
	return f.smart
}

type fakeEscalator struct {
	mu        sync.Mutex
	operators map[string]bool
	messages  []string
	meta      []map[string]string
	open      map[string]bool
	err       error
}

func (f *fakeEscalator) SendToOperatorWithEscalation(_ context.Context, _, message string, meta map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, message)
	f.meta = append(f.meta, meta)
	return fmt.Sprintf("ID%04d", len(f.messages)), nil
}

func (f *fakeEscalator) AcknowledgeMessage(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[id] {
		return false
	}
	delete(f.open, id)
	return true
}

func (f *fakeEscalator) IsOperator(phone string) bool {
	return f.operators[phone]
}

type persistCall struct {
	key       string
	immediate bool
}

type fakePersister struct {
	mu      sync.Mutex
	calls   []persistCall
	removed []string
}

func (f *fakePersister) SchedulePersist(key string, _ *domain.ConversationState, immediate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, persistCall{key: key, immediate: immediate})
}

func (f *fakePersister) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
}

type fakeLimiter struct {
	deny map[string]bool
}

func (f *fakeLimiter) Allow(key string) bool { return !f.deny[key] }

type fakeRecorder struct {
	mu      sync.Mutex
	routes  []string
	limited int
}

func (f *fakeRecorder) MessageHandled(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route)
}

func (f *fakeRecorder) RateLimited() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limited++
}

type fakeBooking struct {
	starts int
	steps  []string
}

func (f *fakeBooking) Start(_ context.Context, _ string, _ string, _ domain.Language) (domain.BookingState, string) {
	f.starts++
	return domain.BookingState{Stage: domain.StageDates}, "Which dates?"
}

func (f *fakeBooking) Step(_ context.Context, _ string, state domain.BookingState, input string, _ domain.Language) (domain.BookingState, string) {
	f.steps = append(f.steps, input)
	if state.Stage == domain.StageDates {
		return domain.BookingState{Stage: domain.StageGuests}, "How many guests?"
	}
	return domain.BookingState{Stage: domain.StageDone, Reference: "BK1"}, "Booked!"
}

type fakeKnowledge struct {
	answers map[string]string
	keyword map[string]string
}

func (f *fakeKnowledge) Answer(topic string, _ domain.Language) (string, error) {
	if a, ok := f.answers[topic]; ok {
		return a, nil
	}
	return "", errors.New("unknown topic")
}

func (f *fakeKnowledge) Match(text string) (string, bool) {
	topic, ok := f.keyword[text]
	return topic, ok
}

func (f *fakeKnowledge) Topics() []string { return []string{"checkin", "wifi"} }

type routerFixture struct {
	router    *Router
	store     *statestore.Store[*domain.ConversationState]
	transport *fakeTransport
	chain     *fakeClassifier
	escalator *fakeEscalator
	persister *fakePersister
	recorder  *fakeRecorder
	booking   *fakeBooking
}

func newRouterFixture(t *testing.T, opts ...Option) *routerFixture {
	t.Helper()
	f := &routerFixture{
		store:     statestore.New[*domain.ConversationState](statestore.WithSweepInterval(0)),
		transport: &fakeTransport{},
		chain:     &fakeClassifier{},
		escalator: &fakeEscalator{operators: map[string]bool{"60100": true}, open: map[string]bool{}},
		persister: &fakePersister{},
		recorder:  &fakeRecorder{},
		booking:   &fakeBooking{},
	}
	t.Cleanup(f.store.Destroy)

	base := []Option{
		WithBooking(f.booking),
		WithEscalator(f.escalator),
		WithPersister(f.persister),
		WithRecorder(f.recorder),
		WithKnowledge(&fakeKnowledge{
			answers: map[string]string{"wifi": "Wifi password: hostel123", "checkin": "Check-in is from 2pm."},
			keyword: map[string]string{"wifi?": "wifi"},
		}),
	}
	r, err := NewRouter(f.store, f.transport, f.chain, append(base, opts...)...)
	require.NoError(t, err)
	f.router = r
	return f
}

func guest(text string) domain.InboundMessage {
	return domain.InboundMessage{From: "60123@s.whatsapp.net", Text: text, PushName: "Aina"}
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	store := statestore.New[*domain.ConversationState](statestore.WithSweepInterval(0))
	t.Cleanup(store.Destroy)

	_, err := NewRouter(nil, &fakeTransport{}, &fakeClassifier{})
	require.Error(t, err)
	_, err = NewRouter(store, nil, &fakeClassifier{})
	require.Error(t, err)
	_, err = NewRouter(store, &fakeTransport{}, nil)
	require.Error(t, err)
}

func TestHandleMessage_IgnoresGroupAndEmpty(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	msg := guest("hello")
	msg.IsGroup = true
	got, err := f.router.HandleMessage(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, RouteIgnored, got.Route)

	got, err = f.router.HandleMessage(ctx, guest("   "))
	require.NoError(t, err)
	require.Equal(t, RouteIgnored, got.Route)

	require.Empty(t, f.transport.texts())
	require.Zero(t, f.store.Size())
	require.Zero(t, f.chain.chatCalls)
}

func TestHandleMessage_OperatorAck(t *testing.T) {
	activity := escalation.NewActivity()
	f := newRouterFixture(t, WithOperatorActivity(activity))
	f.escalator.open["AB12CD"] = true
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	got, err := f.router.HandleMessage(ctx, domain.InboundMessage{From: "+60100", Text: "ack ab12cd"})
	require.NoError(t, err)
	require.Equal(t, RouteOperatorAck, got.Route)
	require.Equal(t, []string{"Acknowledged AB12CD. Escalation stopped."}, f.transport.texts())
	require.Equal(t, "60100", f.transport.sent[0].to)
	require.True(t, activity.RepliedSince(ctx, escalation.Operator{Phone: "60100"}, before))

	got, err = f.router.HandleMessage(ctx, domain.InboundMessage{From: "60100", Text: "ACK AB12CD"})
	require.NoError(t, err)
	require.Equal(t, []string{fmt.Sprintf(locale.AckUnknown, "AB12CD")}, got.Messages)
	require.Zero(t, f.store.Size(), "acks do not create guest conversations")
}

func TestHandleMessage_RateLimited(t *testing.T) {
	f := newRouterFixture(t, WithRateLimiter(&fakeLimiter{deny: map[string]bool{"60123": true}}))

	got, err := f.router.HandleMessage(context.Background(), guest("berapa harga bilik"))
	require.NoError(t, err)
	require.Equal(t, RouteRateLimited, got.Route)
	require.Equal(t, domain.LanguageMalay, got.Language)
	require.Equal(t, []string{locale.SlowDown.Pick(domain.LanguageMalay)}, f.transport.texts())
	require.Equal(t, 1, f.recorder.limited)
	require.Zero(t, f.chain.chatCalls)
	require.Zero(t, f.store.Size())
}

func TestHandleMessage_BookingTriggerThenActiveBooking(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	got, err := f.router.HandleMessage(ctx, guest("I want to book a bed"))
	require.NoError(t, err)
	require.Equal(t, RouteBooking, got.Route)
	require.Equal(t, []string{"Which dates?"}, got.Messages)
	require.Equal(t, "60123", got.To)
	require.Equal(t, 1, f.booking.starts)

	// Follow-ups go to the booking dialog regardless of content.
	got, err = f.router.HandleMessage(ctx, guest("tomorrow"))
	require.NoError(t, err)
	require.Equal(t, RouteBooking, got.Route)
	require.Equal(t, []string{"How many guests?"}, got.Messages)
	require.Equal(t, []string{"tomorrow"}, f.booking.steps)
	require.Zero(t, f.chain.chatCalls)

	state, ok := f.store.Get("60123")
	require.True(t, ok)
	require.Equal(t, domain.StageGuests, state.Booking.Stage)
	require.Equal(t, "Aina", state.Slots["name"])
	require.Len(t, state.History, 4)
	require.Equal(t, []persistCall{{"60123", true}, {"60123", true}}, f.persister.calls)
}

func TestHandleMessage_TerminalBookingIsNotActive(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply(`{"intent":"thanks","action":"llm_reply","response":"You're welcome!","confidence":0.9}`)}
	ctx := context.Background()

	state := f.store.GetOrCreate("60123", func() *domain.ConversationState {
		return domain.NewConversationState("60123", time.Now())
	})
	state.Booking = &domain.BookingState{Stage: domain.StageDone, Reference: "BK1"}

	got, err := f.router.HandleMessage(ctx, guest("thanks"))
	require.NoError(t, err)
	require.Equal(t, RouteLLM, got.Route)
	require.Empty(t, f.booking.steps)
}

func TestHandleMessage_KnowledgeKeyword(t *testing.T) {
	f := newRouterFixture(t)

	got, err := f.router.HandleMessage(context.Background(), guest("wifi?"))
	require.NoError(t, err)
	require.Equal(t, RouteStatic, got.Route)
	require.Equal(t, []string{"Wifi password: hostel123"}, got.Messages)
	require.Zero(t, f.chain.chatCalls)
	require.Equal(t, []persistCall{{"60123", false}}, f.persister.calls)
}

func TestHandleMessage_LLMReply(t *testing.T) {
	f := newRouterFixture(t, WithHostelName("Kampung Hostel"))
	f.chain.replies = []llm.Result{reply(`{"intent":"question","action":"llm_reply","response":"Yes, we have lockers.","confidence":0.92}`)}

	got, err := f.router.HandleMessage(context.Background(), guest("do you have lockers"))
	require.NoError(t, err)
	require.Equal(t, RouteLLM, got.Route)
	require.Equal(t, []string{"Yes, we have lockers."}, f.transport.texts())
	require.Zero(t, f.chain.smartCalls)
	require.True(t, f.chain.lastReq.JSONMode)
	require.Contains(t, f.chain.lastReq.System, "Kampung Hostel")
	require.Contains(t, f.chain.lastReq.System, "checkin, wifi")
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleUser, Content: "do you have lockers"}}, f.chain.lastReq.Messages)

	state, ok := f.store.Get("60123")
	require.True(t, ok)
	require.Equal(t, "question", state.LastIntent)
	require.InDelta(t, 0.92, state.LastConfidence, 1e-9)
	require.Equal(t, domain.RoleAssistant, state.History[1].Role)
	require.Equal(t, []string{RouteLLM}, f.recorder.routes)
}

func TestHandleMessage_LowConfidenceUsesSmartFallback(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply(`{"intent":"question","action":"llm_reply","response":"maybe?","confidence":0.3}`)}
	f.chain.smart = llm.Result{Text: `{"intent":"question","action":"llm_reply","response":"Breakfast is 7-10am.","confidence":0.85}`, ProviderID: "smart"}

	got, err := f.router.HandleMessage(context.Background(), guest("breakfast time"))
	require.NoError(t, err)
	require.Equal(t, 1, f.chain.smartCalls)
	require.Equal(t, []string{"Breakfast is 7-10am."}, got.Messages)
}

func TestHandleMessage_LowConfidenceKeepsPrimaryWhenSmartUnavailable(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply(`{"intent":"question","action":"llm_reply","response":"Around 7am.","confidence":0.4}`)}

	got, err := f.router.HandleMessage(context.Background(), guest("breakfast time"))
	require.NoError(t, err)
	require.Equal(t, 1, f.chain.smartCalls)
	require.Equal(t, []string{"Around 7am."}, got.Messages)
}

func TestHandleMessage_ProvidersUnavailable(t *testing.T) {
	f := newRouterFixture(t)

	got, err := f.router.HandleMessage(context.Background(), guest("什么时候可以入住"))
	require.NoError(t, err)
	require.Equal(t, RouteUnavailable, got.Route)
	require.Equal(t, domain.LanguageChinese, got.Language)
	require.Equal(t, []string{locale.Unavailable.Pick(domain.LanguageChinese)}, got.Messages)
}

func TestHandleMessage_StaticReplyAction(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply(`{"intent":"checkin","action":"static_reply","topic":"checkin","response":"","confidence":0.9}`)}

	got, err := f.router.HandleMessage(context.Background(), guest("when can I arrive"))
	require.NoError(t, err)
	require.Equal(t, RouteStatic, got.Route)
	require.Equal(t, []string{"Check-in is from 2pm."}, got.Messages)
}

func TestHandleMessage_EscalateAction(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply(`{"intent":"complaint","action":"escalate","response":"","confidence":0.95}`)}

	got, err := f.router.HandleMessage(context.Background(), guest("the shower is broken"))
	require.NoError(t, err)
	require.Equal(t, RouteEscalated, got.Route)
	require.Equal(t, []string{locale.Escalated.Pick(domain.LanguageEnglish)}, got.Messages)
	require.Len(t, f.escalator.messages, 1)
	require.Contains(t, f.escalator.messages[0], "the shower is broken")
	require.Equal(t, "Aina", f.escalator.meta[0]["name"])
}

func TestHandleMessage_EscalationFailureFallsBackToUnavailable(t *testing.T) {
	f := newRouterFixture(t)
	f.escalator.err = escalation.ErrAllFailed
	f.chain.replies = []llm.Result{reply(`{"intent":"complaint","action":"escalate","response":"","confidence":0.95}`)}

	got, err := f.router.HandleMessage(context.Background(), guest("the shower is broken"))
	require.NoError(t, err)
	require.Equal(t, RouteUnavailable, got.Route)
}

func TestHandleMessage_RepeatedUnknownEscalates(t *testing.T) {
	f := newRouterFixture(t, WithUnknownThreshold(3))
	f.chain.replies = []llm.Result{reply(`{"intent":"unknown","action":"llm_reply","response":"","confidence":0.9}`)}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := f.router.HandleMessage(ctx, guest("asdfgh"))
		require.NoError(t, err)
		require.Equal(t, RouteNotUnderstood, got.Route)
	}
	state, _ := f.store.Get("60123")
	require.Equal(t, 2, state.UnknownCount)
	require.Equal(t, 1, state.RepeatCount)

	got, err := f.router.HandleMessage(ctx, guest("asdfgh"))
	require.NoError(t, err)
	require.Equal(t, RouteEscalated, got.Route)
	require.Len(t, f.escalator.messages, 1)
	require.Zero(t, state.UnknownCount)
}

func TestHandleMessage_UnusableOutputCountsAsUnknown(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply("   ")}

	got, err := f.router.HandleMessage(context.Background(), guest("hmm"))
	require.NoError(t, err)
	require.Equal(t, RouteNotUnderstood, got.Route)
	require.Equal(t, 1, f.chain.smartCalls)

	state, _ := f.store.Get("60123")
	require.Equal(t, 1, state.UnknownCount)
}

func TestHandleMessage_PlainTextReplyIsChat(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.replies = []llm.Result{reply("Hi there! How can I help?")}

	got, err := f.router.HandleMessage(context.Background(), guest("hi"))
	require.NoError(t, err)
	require.Equal(t, RouteLLM, got.Route)
	require.Equal(t, []string{"Hi there! How can I help?"}, got.Messages)

	state, _ := f.store.Get("60123")
	require.Equal(t, "chat", state.LastIntent)
	require.Zero(t, state.UnknownCount)
}

func TestHandleMessage_Reset(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	_, err := f.router.HandleMessage(ctx, guest("I want to book"))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Size())

	got, err := f.router.HandleMessage(ctx, guest("/reset"))
	require.NoError(t, err)
	require.Equal(t, RouteReset, got.Route)
	require.Equal(t, []string{locale.ResetDone.Pick(domain.LanguageEnglish)}, got.Messages)
	require.Zero(t, f.store.Size())
	require.Equal(t, []string{"60123"}, f.persister.removed)

	require.False(t, f.router.Reset("60123"))
}

func TestHandleMessage_WorkflowRunForwardsSummary(t *testing.T) {
	engine, err := workflow.NewEngine([]domain.Workflow{{
		ID:       "lost_item",
		Triggers: []string{"lost"},
		Steps: []domain.WorkflowStep{
			{ID: "what", Message: domain.Texts{domain.LanguageEnglish: "What did you lose?"}, WaitForReply: true},
			{ID: "where", Message: domain.Texts{domain.LanguageEnglish: "Where did you last see it?"}, WaitForReply: true},
		},
	}}, nil)
	require.NoError(t, err)

	f := newRouterFixture(t, WithWorkflows(engine))
	ctx := context.Background()

	got, err := f.router.HandleMessage(ctx, guest("I lost something"))
	require.NoError(t, err)
	require.Equal(t, RouteWorkflow, got.Route)
	require.Equal(t, []string{"What did you lose?"}, got.Messages)

	_, err = f.router.HandleMessage(ctx, guest("my charger"))
	require.NoError(t, err)

	got, err = f.router.HandleMessage(ctx, guest("common room"))
	require.NoError(t, err)
	require.Equal(t, RouteWorkflow, got.Route)
	require.Equal(t, []string{locale.WorkflowDone.Pick(domain.LanguageEnglish)}, got.Messages)

	state, _ := f.store.Get("60123")
	require.Nil(t, state.Workflow)
	require.Len(t, f.escalator.messages, 1)
	require.Contains(t, f.escalator.messages[0], "- what: my charger")
	require.Contains(t, f.escalator.messages[0], "- where: common room")
	require.Zero(t, f.chain.chatCalls)
	for _, c := range f.persister.calls {
		require.True(t, c.immediate)
	}
}

func TestHandleMessage_AbandonedWorkflowFallsThrough(t *testing.T) {
	engine, err := workflow.NewEngine(nil, nil)
	require.NoError(t, err)
	f := newRouterFixture(t, WithWorkflows(engine))

	state := f.store.GetOrCreate("60123", func() *domain.ConversationState {
		return domain.NewConversationState("60123", time.Now())
	})
	state.Workflow = &domain.WorkflowState{WorkflowID: "removed", Collected: map[string]string{}}

	got, err := f.router.HandleMessage(context.Background(), guest("wifi?"))
	require.NoError(t, err)
	require.Equal(t, RouteStatic, got.Route)
	require.Nil(t, state.Workflow)
}

func TestHandleMessage_SendFailureIsUpstreamError(t *testing.T) {
	f := newRouterFixture(t)
	f.transport.err = errors.New("gateway down")

	got, err := f.router.HandleMessage(context.Background(), guest("wifi?"))
	require.Error(t, err)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrorUpstream, uerr.Code)
	require.Equal(t, "send_failed", uerr.Reason)
	require.Equal(t, RouteStatic, got.Route)

	// State was still updated and persisted.
	state, ok := f.store.Get("60123")
	require.True(t, ok)
	require.Len(t, state.History, 2)
	require.Len(t, f.persister.calls, 1)
}

type slowClassifier struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowClassifier) Chat(_ context.Context, _ llm.ChatRequest) llm.Result {
	n := s.active.Add(1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.active.Add(-1)
	return llm.Result{Text: `{"intent":"chat","action":"llm_reply","response":"ok","confidence":0.9}`}
}

func (s *slowClassifier) SmartChat(ctx context.Context, req llm.ChatRequest) llm.Result {
	return s.Chat(ctx, req)
}

func TestHandleMessage_SerializesPerKey(t *testing.T) {
	store := statestore.New[*domain.ConversationState](statestore.WithSweepInterval(0))
	t.Cleanup(store.Destroy)
	chain := &slowClassifier{}
	r, err := NewRouter(store, &fakeTransport{}, chain)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.HandleMessage(context.Background(), domain.InboundMessage{From: "60123", Text: "hello"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), chain.maxSeen.Load())
	state, ok := store.Get("60123")
	require.True(t, ok)
	require.Len(t, state.History, 16)
	require.Zero(t, r.locks.len())
}

func TestHandleMessage_DifferentKeysRunConcurrently(t *testing.T) {
	store := statestore.New[*domain.ConversationState](statestore.WithSweepInterval(0))
	t.Cleanup(store.Destroy)
	chain := &slowClassifier{}
	r, err := NewRouter(store, &fakeTransport{}, chain)
	require.NoError(t, err)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := r.HandleMessage(context.Background(), domain.InboundMessage{From: fmt.Sprintf("6010%d", i), Text: "hello"})
			require.NoError(t, err)
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 4, store.Size())
}

func TestNormalizeKey(t *testing.T) {
	require.Equal(t, "60123", normalizeKey("+60123@s.whatsapp.net"))
	require.Equal(t, "60123", normalizeKey(" 60123 "))
	require.Equal(t, "", normalizeKey("@c.us"))
}
