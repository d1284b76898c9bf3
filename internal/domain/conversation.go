package domain

import "time"

// HistoryEntry is a single conversation turn kept in memory.
type HistoryEntry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ConversationState is the mutable per-conversation state owned by the router.
type ConversationState struct {
	Key            string            `json:"key"`
	History        []HistoryEntry    `json:"history"`
	Language       Language          `json:"language"`
	Booking        *BookingState     `json:"booking,omitempty"`
	Workflow       *WorkflowState    `json:"workflow,omitempty"`
	UnknownCount   int               `json:"unknownCount"`
	RepeatCount    int               `json:"repeatCount"`
	LastIntent     string            `json:"lastIntent,omitempty"`
	LastConfidence float64           `json:"lastConfidence,omitempty"`
	LastIntentAt   time.Time         `json:"lastIntentAt,omitempty"`
	Slots          map[string]string `json:"slots,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastActiveAt   time.Time         `json:"lastActiveAt"`
}

// NewConversationState creates an empty state for key.
func NewConversationState(key string, now time.Time) *ConversationState {
	return &ConversationState{
		Key:          key,
		Language:     DefaultLanguage,
		Slots:        make(map[string]string),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// AppendHistory records a turn and keeps at most limit entries (limit <= 0
// keeps everything).
func (s *ConversationState) AppendHistory(role, content string, at time.Time, limit int) {
	s.History = append(s.History, HistoryEntry{Role: role, Content: content, At: at})
	if limit > 0 && len(s.History) > limit {
		trimmed := make([]HistoryEntry, limit)
		copy(trimmed, s.History[len(s.History)-limit:])
		s.History = trimmed
	}
}

// RecentMessages returns the last n history entries as chat messages.
func (s *ConversationState) RecentMessages(n int) []ChatMessage {
	start := 0
	if n > 0 && len(s.History) > n {
		start = len(s.History) - n
	}
	out := make([]ChatMessage, 0, len(s.History)-start)
	for _, h := range s.History[start:] {
		out = append(out, ChatMessage{Role: h.Role, Content: h.Content})
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.History = append([]HistoryEntry(nil), s.History...)
	if s.Slots != nil {
		c.Slots = make(map[string]string, len(s.Slots))
		for k, v := range s.Slots {
			c.Slots[k] = v
		}
	}
	if s.Booking != nil {
		b := s.Booking.Clone()
		c.Booking = &b
	}
	if s.Workflow != nil {
		c.Workflow = s.Workflow.Clone()
	}
	return &c
}
