package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"hostel-agent/internal/booking"
	"hostel-agent/internal/domain"
	"hostel-agent/internal/escalation"
	"hostel-agent/internal/llm"
	"hostel-agent/internal/locale"
	"hostel-agent/internal/logging"
	"hostel-agent/internal/statestore"
	"hostel-agent/internal/workflow"
)

const (
	defaultHistoryLimit     = 40
	defaultUnknownThreshold = 3
	defaultSmartThreshold   = 0.6
	defaultSendTimeout      = 10 * time.Second
)

// Routes name the path a message took, for replies, logs and metrics.
const (
	RouteIgnored       = "ignored"
	RouteOperatorAck   = "operator_ack"
	RouteRateLimited   = "rate_limited"
	RouteReset         = "reset"
	RouteBooking       = "booking"
	RouteWorkflow      = "workflow"
	RouteStatic        = "static"
	RouteLLM           = "llm"
	RouteEscalated     = "escalated"
	RouteUnavailable   = "unavailable"
	RouteNotUnderstood = "not_understood"
)

var (
	ackRe   = regexp.MustCompile(`(?i)^\s*ack\s+([a-z0-9-]+)\s*$`)
	resetRe = regexp.MustCompile(`(?i)^\s*/(reset|restart)\s*$`)
)

// Transport delivers outbound chat messages.
type Transport interface {
	SendMessage(ctx context.Context, to, text string) error
}

// Classifier is the provider fallback chain.
type Classifier interface {
	Chat(ctx context.Context, req llm.ChatRequest) llm.Result
	SmartChat(ctx context.Context, req llm.ChatRequest) llm.Result
}

// BookingDialog drives booking runs.
type BookingDialog interface {
	Start(ctx context.Context, key, input string, lang domain.Language) (domain.BookingState, string)
	Step(ctx context.Context, key string, state domain.BookingState, input string, lang domain.Language) (domain.BookingState, string)
}

// WorkflowDialog drives workflow runs.
type WorkflowDialog interface {
	Start(ctx context.Context, key, workflowID string, lang domain.Language) (workflow.Turn, error)
	Advance(ctx context.Context, key string, state *domain.WorkflowState, input string, lang domain.Language) workflow.Turn
	Match(text string) (string, bool)
	IDs() []string
}

// KnowledgeSource answers known topics.
type KnowledgeSource interface {
	Answer(topic string, lang domain.Language) (string, error)
	Match(text string) (string, bool)
	Topics() []string
}

// Escalator hands messages to human operators.
type Escalator interface {
	SendToOperatorWithEscalation(ctx context.Context, messageID, message string, meta map[string]string) (string, error)
	AcknowledgeMessage(messageID string) bool
	IsOperator(phone string) bool
}

// Persister writes conversation state behind the store.
type Persister interface {
	SchedulePersist(key string, state *domain.ConversationState, immediate bool)
	Remove(key string)
}

// RateLimiter bounds messages per sender.
type RateLimiter interface {
	Allow(key string) bool
}

// Recorder counts routed messages.
type Recorder interface {
	MessageHandled(route string)
	RateLimited()
}

// Reply is what the router sent back for one inbound message.
type Reply struct {
	To       string
	Messages []string
	Route    string
	Language domain.Language
}

type outcome struct {
	route    string
	messages []string
	// critical marks dialog state changes that must be written immediately.
	critical bool
}

// Router handles one inbound message at a time per conversation key.
type Router struct {
	store     *statestore.Store[*domain.ConversationState]
	transport Transport
	chain     Classifier
	booking   BookingDialog
	workflows WorkflowDialog
	knowledge KnowledgeSource
	escalator Escalator
	persister Persister
	limiter   RateLimiter
	recorder  Recorder
	activity  *escalation.Activity
	locks     *keyedLocks
	now       func() time.Time
	logger    *slog.Logger

	hostelName       string
	historyLimit     int
	unknownThreshold int
	smartThreshold   float64
	sendTimeout      time.Duration
}

// Option configures a Router.
type Option func(*Router)

func WithBooking(b BookingDialog) Option     { return func(r *Router) { r.booking = b } }
func WithWorkflows(w WorkflowDialog) Option  { return func(r *Router) { r.workflows = w } }
func WithKnowledge(k KnowledgeSource) Option { return func(r *Router) { r.knowledge = k } }
func WithEscalator(e Escalator) Option       { return func(r *Router) { r.escalator = e } }
func WithPersister(p Persister) Option       { return func(r *Router) { r.persister = p } }
func WithRateLimiter(l RateLimiter) Option   { return func(r *Router) { r.limiter = l } }
func WithRecorder(rec Recorder) Option       { return func(r *Router) { r.recorder = rec } }
func WithHostelName(name string) Option      { return func(r *Router) { r.hostelName = name } }
func WithSmartThreshold(t float64) Option    { return func(r *Router) { r.smartThreshold = t } }
func WithSendTimeout(d time.Duration) Option { return func(r *Router) { r.sendTimeout = d } }
func WithOperatorActivity(a *escalation.Activity) Option {
	return func(r *Router) { r.activity = a }
}

func WithHistoryLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

func WithUnknownThreshold(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.unknownThreshold = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a Router. store, transport and chain are required.
func NewRouter(store *statestore.Store[*domain.ConversationState], transport Transport, chain Classifier, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if transport == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	if chain == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	r := &Router{
		store:            store,
		transport:        transport,
		chain:            chain,
		locks:            newKeyedLocks(),
		now:              time.Now,
		logger:           logging.NewNop(),
		hostelName:       "the hostel",
		historyLimit:     defaultHistoryLimit,
		unknownThreshold: defaultUnknownThreshold,
		smartThreshold:   defaultSmartThreshold,
		sendTimeout:      defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HandleMessage runs one inbound message through the pipeline and sends the
// reply. Send failures are returned after state has been updated.
func (r *Router) HandleMessage(ctx context.Context, msg domain.InboundMessage) (Reply, error) {
	key := normalizeKey(msg.From)
	text := strings.TrimSpace(msg.Text)
	if msg.IsGroup || text == "" {
		r.count(RouteIgnored)
		return Reply{To: key, Route: RouteIgnored}, nil
	}
	if key == "" {
		return Reply{}, newError(ErrorInvalidInput, "missing_sender", nil)
	}

	if r.escalator != nil && r.escalator.IsOperator(key) {
		if r.activity != nil {
			r.activity.Record(key, r.now())
		}
		if m := ackRe.FindStringSubmatch(text); m != nil {
			return r.acknowledge(ctx, key, strings.ToUpper(m[1]))
		}
	}

	if r.limiter != nil && !r.limiter.Allow(key) {
		if r.recorder != nil {
			r.recorder.RateLimited()
		}
		lang := locale.Detect(text, domain.DefaultLanguage)
		reply := Reply{To: key, Route: RouteRateLimited, Language: lang, Messages: []string{locale.SlowDown.Pick(lang)}}
		r.logger.Info("router: rate limited", "key", key)
		return reply, r.send(ctx, reply)
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	if resetRe.MatchString(text) {
		return r.reset(ctx, key, text)
	}

	now := r.now()
	state := r.store.GetOrCreate(key, func() *domain.ConversationState {
		return domain.NewConversationState(key, now)
	})
	if state.Slots == nil {
		state.Slots = make(map[string]string)
	}
	state.Language = locale.Detect(text, state.Language)
	if name := strings.TrimSpace(msg.PushName); name != "" {
		state.Slots["name"] = name
	}
	state.AppendHistory(domain.RoleUser, text, now, r.historyLimit)
	state.LastActiveAt = now

	out := r.dispatch(ctx, key, state, text)

	at := r.now()
	for _, m := range out.messages {
		state.AppendHistory(domain.RoleAssistant, m, at, r.historyLimit)
	}
	state.LastActiveAt = at
	if r.persister != nil {
		r.persister.SchedulePersist(key, state, out.critical)
	}

	reply := Reply{To: key, Messages: out.messages, Route: out.route, Language: state.Language}
	r.count(out.route)
	r.logger.Info("router: message handled", "key", key, "route", out.route, "lang", state.Language, "replies", len(out.messages))
	return reply, r.send(ctx, reply)
}

// Reset clears the conversation for key from memory and durable storage.
func (r *Router) Reset(key string) bool {
	key = normalizeKey(key)
	unlock := r.locks.Lock(key)
	defer unlock()
	return r.clear(key)
}

func (r *Router) clear(key string) bool {
	existed := r.store.Delete(key)
	if r.persister != nil {
		r.persister.Remove(key)
	}
	return existed
}

func (r *Router) reset(ctx context.Context, key, text string) (Reply, error) {
	lang := domain.DefaultLanguage
	if st, ok := r.store.Get(key); ok {
		lang = st.Language
	}
	lang = locale.Detect(text, lang)
	r.clear(key)
	r.count(RouteReset)
	r.logger.Info("router: conversation reset", "key", key)
	reply := Reply{To: key, Route: RouteReset, Language: lang, Messages: []string{locale.ResetDone.Pick(lang)}}
	return reply, r.send(ctx, reply)
}

func (r *Router) acknowledge(ctx context.Context, key, id string) (Reply, error) {
	text := fmt.Sprintf(locale.AckUnknown, id)
	if r.escalator.AcknowledgeMessage(id) {
		text = fmt.Sprintf(locale.AckConfirmed, id)
	}
	r.count(RouteOperatorAck)
	reply := Reply{To: key, Route: RouteOperatorAck, Language: domain.LanguageEnglish, Messages: []string{text}}
	return reply, r.send(ctx, reply)
}

func (r *Router) dispatch(ctx context.Context, key string, state *domain.ConversationState, text string) outcome {
	if r.booking != nil && state.Booking != nil && !state.Booking.Stage.Terminal() {
		return r.stepBooking(ctx, key, state, text)
	}
	if state.Workflow != nil {
		if out, ok := r.advanceWorkflow(ctx, key, state, text); ok {
			return out
		}
	}

	if r.booking != nil && booking.Triggered(text) {
		r.recordIntent(state, "booking", 1)
		return r.startBooking(ctx, key, state, text)
	}
	if r.workflows != nil {
		if id, ok := r.workflows.Match(text); ok {
			if out, ok := r.startWorkflow(ctx, key, state, id); ok {
				r.recordIntent(state, "workflow:"+id, 1)
				return out
			}
		}
	}
	if r.knowledge != nil {
		if topic, ok := r.knowledge.Match(text); ok {
			if answer, err := r.knowledge.Answer(topic, state.Language); err == nil && answer != "" {
				r.recordIntent(state, "topic:"+topic, 1)
				return outcome{route: RouteStatic, messages: []string{answer}}
			}
		}
	}
	return r.classify(ctx, key, state, text)
}

func (r *Router) stepBooking(ctx context.Context, key string, state *domain.ConversationState, text string) outcome {
	next, reply := r.booking.Step(ctx, key, *state.Booking, text, state.Language)
	state.Booking = &next
	return outcome{route: RouteBooking, messages: nonEmpty(reply), critical: true}
}

func (r *Router) startBooking(ctx context.Context, key string, state *domain.ConversationState, text string) outcome {
	next, reply := r.booking.Start(ctx, key, text, state.Language)
	state.Booking = &next
	state.Workflow = nil
	return outcome{route: RouteBooking, messages: nonEmpty(reply), critical: true}
}

func (r *Router) startWorkflow(ctx context.Context, key string, state *domain.ConversationState, id string) (outcome, bool) {
	turn, err := r.workflows.Start(ctx, key, id, state.Language)
	if err != nil {
		r.logger.Warn("router: workflow start failed", "key", key, "workflow", id, "err", err)
		return outcome{}, false
	}
	state.Booking = nil
	return r.applyWorkflowTurn(ctx, key, state, turn), true
}

// advanceWorkflow returns ok=false when the run was abandoned and the message
// should be routed as if no workflow were active.
func (r *Router) advanceWorkflow(ctx context.Context, key string, state *domain.ConversationState, text string) (outcome, bool) {
	if r.workflows == nil {
		state.Workflow = nil
		return outcome{}, false
	}
	turn := r.workflows.Advance(ctx, key, state.Workflow, text, state.Language)
	if turn.Abandoned {
		state.Workflow = nil
		return outcome{}, false
	}
	return r.applyWorkflowTurn(ctx, key, state, turn), true
}

func (r *Router) applyWorkflowTurn(ctx context.Context, key string, state *domain.ConversationState, turn workflow.Turn) outcome {
	out := outcome{route: RouteWorkflow, messages: turn.Messages, critical: true}
	if !turn.Completed {
		state.Workflow = turn.State
		return out
	}

	state.Workflow = nil
	if len(out.messages) == 0 {
		out.messages = []string{locale.WorkflowDone.Pick(state.Language)}
	}
	if r.escalator != nil && turn.Summary != "" {
		meta := r.meta(key, state)
		if _, err := r.escalator.SendToOperatorWithEscalation(ctx, "", turn.Summary, meta); err != nil {
			r.logger.Warn("router: forwarding workflow summary failed", "key", key, "workflow", turn.WorkflowID, "err", err)
		}
	}
	return out
}

func (r *Router) classify(ctx context.Context, key string, state *domain.ConversationState, text string) outcome {
	req := llm.ChatRequest{
		System: buildClassificationPrompt(promptContext{
			hostelName: r.hostelName,
			topics:     r.topics(),
			workflows:  r.workflowIDs(),
			language:   state.Language,
		}),
		Messages: historyMessages(state, 0),
		JSONMode: true,
	}

	res := r.chain.Chat(ctx, req)
	if res.Unavailable {
		r.logger.Warn("router: no provider available", "key", key)
		return outcome{route: RouteUnavailable, messages: []string{locale.Unavailable.Pick(state.Language)}}
	}
	parsed := llm.ParseStructured(res.Text)

	if parsed.Confidence < r.smartThreshold || !parsed.Usable() {
		if smart := r.chain.SmartChat(ctx, req); !smart.Unavailable {
			better := llm.ParseStructured(smart.Text)
			if better.Usable() && (!parsed.Usable() || better.Confidence >= parsed.Confidence) {
				r.logger.Debug("router: smart fallback used", "key", key, "provider", smart.ProviderID, "confidence", better.Confidence)
				parsed = better
			}
		}
	}

	if !parsed.Usable() {
		r.recordIntent(state, intentUnknown, 0)
		return r.notUnderstood(ctx, key, state, text)
	}

	intent := strings.ToLower(parsed.Intent)
	if intent == "" {
		intent = intentUnknown
		if strings.TrimSpace(parsed.Response) != "" {
			intent = "chat"
		}
	}
	r.recordIntent(state, intent, parsed.Confidence)
	if intent == intentUnknown {
		return r.notUnderstood(ctx, key, state, text)
	}

	switch strings.ToLower(parsed.Action) {
	case ActionStartBooking:
		if r.booking != nil {
			return r.startBooking(ctx, key, state, text)
		}
	case ActionStartWorkflow:
		if r.workflows != nil && parsed.Workflow != "" {
			if out, ok := r.startWorkflow(ctx, key, state, parsed.Workflow); ok {
				return out
			}
		}
	case ActionStaticReply:
		if r.knowledge != nil && parsed.Topic != "" {
			answer, err := r.knowledge.Answer(parsed.Topic, state.Language)
			if err == nil && answer != "" {
				return outcome{route: RouteStatic, messages: []string{answer}}
			}
			r.logger.Debug("router: static topic not answerable", "topic", parsed.Topic, "err", err)
		}
	case ActionEscalate:
		return r.escalate(ctx, key, state, text, "guest asked for staff")
	}

	if resp := strings.TrimSpace(parsed.Response); resp != "" {
		return outcome{route: RouteLLM, messages: []string{resp}}
	}
	return r.notUnderstood(ctx, key, state, text)
}

// notUnderstood escalates once the guest has hit the unknown threshold.
func (r *Router) notUnderstood(ctx context.Context, key string, state *domain.ConversationState, text string) outcome {
	if state.UnknownCount >= r.unknownThreshold {
		state.UnknownCount = 0
		return r.escalate(ctx, key, state, text, "repeated messages not understood")
	}
	return outcome{route: RouteNotUnderstood, messages: []string{locale.NotUnderstood.Pick(state.Language)}}
}

func (r *Router) escalate(ctx context.Context, key string, state *domain.ConversationState, text, reason string) outcome {
	if r.escalator == nil {
		return outcome{route: RouteUnavailable, messages: []string{locale.Unavailable.Pick(state.Language)}}
	}
	body := fmt.Sprintf("Guest %s needs assistance (%s).\nLast message: %s", key, reason, text)
	id, err := r.escalator.SendToOperatorWithEscalation(ctx, "", body, r.meta(key, state))
	if err != nil {
		r.logger.Warn("router: escalation failed", "key", key, "err", err)
		return outcome{route: RouteUnavailable, messages: []string{locale.Unavailable.Pick(state.Language)}}
	}
	r.logger.Info("router: escalated to operators", "key", key, "message_id", id, "reason", reason)
	return outcome{route: RouteEscalated, messages: []string{locale.Escalated.Pick(state.Language)}}
}

func (r *Router) recordIntent(state *domain.ConversationState, intent string, confidence float64) {
	if intent == state.LastIntent {
		state.RepeatCount++
	} else {
		state.RepeatCount = 0
	}
	if intent == intentUnknown {
		state.UnknownCount++
	} else {
		state.UnknownCount = 0
	}
	state.LastIntent = intent
	state.LastConfidence = confidence
	state.LastIntentAt = r.now()
}

func (r *Router) meta(key string, state *domain.ConversationState) map[string]string {
	meta := map[string]string{"guest": key, "language": string(state.Language)}
	if name := state.Slots["name"]; name != "" {
		meta["name"] = name
	}
	return meta
}

func (r *Router) topics() []string {
	if r.knowledge == nil {
		return nil
	}
	return r.knowledge.Topics()
}

func (r *Router) workflowIDs() []string {
	if r.workflows == nil {
		return nil
	}
	return r.workflows.IDs()
}

func (r *Router) send(ctx context.Context, reply Reply) error {
	for _, m := range reply.Messages {
		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		err := r.transport.SendMessage(sendCtx, reply.To, m)
		cancel()
		if err != nil {
			r.logger.Warn("router: send failed", "to", reply.To, "route", reply.Route, "err", err)
			return newError(ErrorUpstream, "send_failed", err)
		}
	}
	return nil
}

func (r *Router) count(route string) {
	if r.recorder != nil {
		r.recorder.MessageHandled(route)
	}
}

// normalizeKey strips transport suffixes such as "@s.whatsapp.net".
func normalizeKey(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.IndexByte(from, '@'); i >= 0 {
		from = from[:i]
	}
	return strings.TrimPrefix(from, "+")
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}
