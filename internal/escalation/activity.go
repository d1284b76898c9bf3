package escalation

import (
	"context"
	"sync"
	"time"
)

// Activity remembers when each operator last messaged in. Its RepliedSince
// method is a ReplyDetector.
type Activity struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewActivity returns an empty Activity.
func NewActivity() *Activity {
	return &Activity{last: make(map[string]time.Time)}
}

// Record notes a message from phone at time at.
func (a *Activity) Record(phone string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[phone]; !ok || at.After(prev) {
		a.last[phone] = at
	}
}

// RepliedSince reports whether op sent anything after since.
func (a *Activity) RepliedSince(_ context.Context, op Operator, since time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.last[op.Phone]
	return ok && at.After(since)
}
