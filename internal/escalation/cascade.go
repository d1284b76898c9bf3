// Package escalation hands operational messages to a list of human operators,
// moving to the next one when nobody acknowledges in time.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hostel-agent/internal/logging"
	"hostel-agent/internal/timers"
)

const (
	DefaultWindow      = 5 * time.Minute
	DefaultSendTimeout = 10 * time.Second
)

// Chain events reported to the Observer.
const (
	EventSent         = "sent"
	EventEscalated    = "escalated"
	EventSendFailed   = "send_failed"
	EventAcknowledged = "acknowledged"
	EventCancelled    = "cancelled"
	EventReplied      = "replied"
	EventExhausted    = "exhausted"
)

var (
	ErrNoOperators  = errors.New("escalation: no operators configured")
	ErrAllFailed    = errors.New("escalation: every operator send failed")
	ErrEmptyMessage = errors.New("escalation: message is empty")
)

// Operator is one contact in the cascade.
type Operator struct {
	Name   string        `koanf:"name" json:"name"`
	Phone  string        `koanf:"phone" json:"phone"`
	Window time.Duration `koanf:"window" json:"window"`
}

// Sender delivers a message to an operator.
type Sender interface {
	SendMessage(ctx context.Context, to, text string) error
}

// ReplyDetector reports whether op has replied since the given time.
type ReplyDetector func(ctx context.Context, op Operator, since time.Time) bool

// Observer receives chain events, e.g. for metrics.
type Observer interface {
	EscalationEvent(event string)
}

// Chain is an open escalation.
type Chain struct {
	MessageID  string
	Message    string
	Meta       map[string]string
	Index      int
	LastSentAt time.Time
	CreatedAt  time.Time
}

// Cascade tracks open chains. Each chain has at most one pending timer, keyed
// by message id.
type Cascade struct {
	operators   []Operator
	sender      Sender
	detector    ReplyDetector
	timers      *timers.Keyed
	now         func() time.Time
	sendTimeout time.Duration
	logger      *slog.Logger
	observer    Observer

	mu     sync.Mutex
	chains map[string]*Chain
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithReplyDetector lets a pending escalation stop once its operator has replied.
func WithReplyDetector(d ReplyDetector) Option {
	return func(c *Cascade) {
		c.detector = d
	}
}

// WithAfterFunc overrides timer scheduling (tests).
func WithAfterFunc(after timers.AfterFunc) Option {
	return func(c *Cascade) {
		c.timers = timers.NewKeyed(after)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cascade) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSendTimeout bounds each operator send.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Cascade) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cascade) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an escalation observer.
func WithObserver(o Observer) Option {
	return func(c *Cascade) {
		c.observer = o
	}
}

// NewCascade creates a Cascade over operators, in escalation order.
func NewCascade(operators []Operator, sender Sender, opts ...Option) (*Cascade, error) {
	if sender == nil {
		return nil, errors.New("escalation: sender is required")
	}
	ops := make([]Operator, 0, len(operators))
	for i, op := range operators {
		op.Phone = strings.TrimPrefix(strings.TrimSpace(op.Phone), "+")
		if op.Phone == "" {
			return nil, fmt.Errorf("escalation: operator %d has no phone", i)
		}
		if op.Name == "" {
			op.Name = fmt.Sprintf("P%d", i+1)
		}
		if op.Window <= 0 {
			op.Window = DefaultWindow
		}
		ops = append(ops, op)
	}

	c := &Cascade{
		operators:   ops,
		sender:      sender,
		timers:      timers.NewKeyed(nil),
		now:         time.Now,
		sendTimeout: DefaultSendTimeout,
		logger:      logging.NewNop(),
		chains:      make(map[string]*Chain),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Operators returns the configured operators.
func (c *Cascade) Operators() []Operator {
	return append([]Operator(nil), c.operators...)
}

// IsOperator reports whether phone belongs to an operator.
func (c *Cascade) IsOperator(phone string) bool {
	for _, op := range c.operators {
		if op.Phone == phone {
			return true
		}
	}
	return false
}

// NewMessageID returns a short id operators can type back.
func NewMessageID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// SendToOperatorWithEscalation sends message to the first reachable operator
// and, when there is more than one operator, keeps the chain open until it is
// acknowledged or every operator has had their window. An empty messageID
// gets a generated one. It returns the message id.
func (c *Cascade) SendToOperatorWithEscalation(ctx context.Context, messageID, message string, meta map[string]string) (string, error) {
	if len(c.operators) == 0 {
		return "", ErrNoOperators
	}
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if messageID == "" {
		messageID = NewMessageID()
	}

	chain := &Chain{
		MessageID: messageID,
		Message:   message,
		Meta:      meta,
		Index:     -1,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	if prev, ok := c.chains[messageID]; ok {
		c.logger.Warn("escalation: replacing open chain", "message_id", messageID, "index", prev.Index)
	}
	c.timers.Cancel(messageID)
	if len(c.operators) > 1 {
		c.chains[messageID] = chain
	}
	c.mu.Unlock()

	if !c.deliver(ctx, chain, 0, "") {
		return messageID, ErrAllFailed
	}
	return messageID, nil
}

// AcknowledgeMessage closes the chain for messageID. It reports whether an
// open chain existed.
func (c *Cascade) AcknowledgeMessage(messageID string) bool {
	if c.remove(messageID) {
		c.report(EventAcknowledged)
		c.logger.Info("escalation: acknowledged", "message_id", messageID)
		return true
	}
	return false
}

// CancelEscalation closes the chain for messageID without acknowledgement.
func (c *Cascade) CancelEscalation(messageID string) bool {
	if c.remove(messageID) {
		c.report(EventCancelled)
		c.logger.Info("escalation: cancelled", "message_id", messageID)
		return true
	}
	return false
}

// Get returns a copy of the open chain for messageID.
func (c *Cascade) Get(messageID string) (Chain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chains[messageID]
	if !ok {
		return Chain{}, false
	}
	return *ch, true
}

// Pending returns the ids of open chains, sorted.
func (c *Cascade) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.chains))
	for id := range c.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destroy cancels every timer and forgets every chain.
func (c *Cascade) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.StopAll()
	c.chains = make(map[string]*Chain)
}

// remove cancels the pending timer before dropping the chain.
func (c *Cascade) remove(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.Cancel(messageID)
	if _, ok := c.chains[messageID]; !ok {
		return false
	}
	delete(c.chains, messageID)
	return true
}

// live reports whether chain is still the open chain for its id.
func (c *Cascade) live(chain *Chain) bool {
	if len(c.operators) == 1 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains[chain.MessageID] == chain
}

// deliver sends to operators starting at idx until one send succeeds. A
// failed send moves straight to the next operator. It returns false when no
// send succeeded.
func (c *Cascade) deliver(ctx context.Context, chain *Chain, idx int, from string) bool {
	for ; idx < len(c.operators); idx++ {
		if !c.live(chain) {
			return true
		}
		op := c.operators[idx]
		text := c.annotate(chain, idx, from)

		sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		err := c.sender.SendMessage(sendCtx, op.Phone, text)
		cancel()
		if err != nil {
			c.report(EventSendFailed)
			c.logger.Warn("escalation: send failed, trying next operator", "message_id", chain.MessageID, "operator", op.Name, "err", err)
			from = op.Name
			continue
		}

		if idx == 0 {
			c.report(EventSent)
		} else {
			c.report(EventEscalated)
		}
		c.logger.Info("escalation: sent", "message_id", chain.MessageID, "operator", op.Name, "index", idx)

		if len(c.operators) == 1 {
			return true
		}
		c.mu.Lock()
		if c.chains[chain.MessageID] == chain {
			chain.Index = idx
			chain.LastSentAt = c.now()
			id := chain.MessageID
			c.timers.Schedule(id, op.Window, func() { c.escalateToNext(id) })
		}
		c.mu.Unlock()
		return true
	}

	c.mu.Lock()
	if c.chains[chain.MessageID] == chain {
		delete(c.chains, chain.MessageID)
	}
	c.mu.Unlock()
	c.report(EventExhausted)
	c.logger.Warn("escalation: operator list exhausted", "message_id", chain.MessageID)
	return false
}

func (c *Cascade) escalateToNext(messageID string) {
	c.mu.Lock()
	chain, ok := c.chains[messageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	idx := chain.Index
	since := chain.LastSentAt
	c.mu.Unlock()

	op := c.operators[idx]
	ctx := context.Background()
	if c.detector != nil && c.detector(ctx, op, since) {
		c.mu.Lock()
		if c.chains[messageID] == chain {
			delete(c.chains, messageID)
		}
		c.mu.Unlock()
		c.report(EventReplied)
		c.logger.Info("escalation: operator replied, closing chain", "message_id", messageID, "operator", op.Name)
		return
	}

	if idx+1 >= len(c.operators) {
		c.mu.Lock()
		if c.chains[messageID] == chain {
			delete(c.chains, messageID)
		}
		c.mu.Unlock()
		c.report(EventExhausted)
		c.logger.Warn("escalation: no acknowledgement from any operator", "message_id", messageID)
		return
	}

	c.deliver(ctx, chain, idx+1, op.Name)
}

func (c *Cascade) annotate(chain *Chain, idx int, from string) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "[escalated from %s] ", from)
	}
	b.WriteString(chain.Message)

	if len(chain.Meta) > 0 {
		keys := make([]string, 0, len(chain.Meta))
		for k := range chain.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, chain.Meta[k])
		}
	}

	fmt.Fprintf(&b, "\n\nReply \"ACK %s\" to acknowledge.", chain.MessageID)
	if len(c.operators) > 1 && idx < len(c.operators)-1 {
		fmt.Fprintf(&b, " Without a reply in %s this goes to the next contact.", formatWindow(c.operators[idx].Window))
	}
	return b.String()
}

func formatWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}

func (c *Cascade) report(event string) {
	if c.observer != nil {
		c.observer.EscalationEvent(event)
	}
}
