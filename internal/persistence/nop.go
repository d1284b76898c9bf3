package persistence

import (
	"context"
	"time"

	"hostel-agent/internal/domain"
)

// NopStore discards writes; used when persistence is disabled.
type NopStore struct{}

func (NopStore) Upsert(context.Context, *domain.ConversationState) error { return nil }

func (NopStore) LoadActive(context.Context, time.Time) ([]*domain.ConversationState, error) {
	return nil, nil
}

func (NopStore) Delete(context.Context, string) error { return nil }
