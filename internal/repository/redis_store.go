package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
)

// RedisStore keeps one JSON value per conversation plus a ZSET index scored by
// last activity (unix millis).
type RedisStore struct {
	client    *backend.Client
	prefix    string
	retention time.Duration
	logger    *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisRetention sets the key expiration applied on every write.
func WithRedisRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.retention = d
	}
}

// WithRedisLogger sets the logger used for skipped values.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore creates a store on a new client for address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient creates a store from an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		prefix:    "hostel:conv:",
		retention: defaultRetention,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(convKey string) string {
	return s.prefix + convKey
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Upsert stores the state and refreshes its index score.
func (s *RedisStore) Upsert(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.Key == "" {
		return errors.New("repository: redis upsert: state key is required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repository: redis upsert: marshal state: %w", err)
	}
	lastActive := state.LastActiveAt
	if lastActive.IsZero() {
		lastActive = time.Now()
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(state.Key), data, s.retention)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(lastActive.UnixMilli()),
		Member: state.Key,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("repository: redis upsert: %w", err)
	}
	return nil
}

// LoadActive returns every indexed state active at or after since. Index
// members whose value already expired are pruned, and so are values that no
// longer decode.
func (s *RedisStore) LoadActive(ctx context.Context, since time.Time) ([]*domain.ConversationState, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: redis load active: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: redis load active: mget: %w", err)
	}

	var (
		states  []*domain.ConversationState
		stale   []any
		corrupt []string
	)
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var st domain.ConversationState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			s.logger.Warn("repository: skipping undecodable redis state", "key", keys[i], "err", err)
			stale = append(stale, keys[i])
			corrupt = append(corrupt, full[i])
			continue
		}
		st.Key = keys[i]
		states = append(states, &st)
	}

	if len(stale) > 0 {
		pipe := s.client.Pipeline()
		pipe.ZRem(ctx, s.indexKey(), stale...)
		if len(corrupt) > 0 {
			pipe.Del(ctx, corrupt...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("repository: pruning redis index failed", "members", len(stale), "err", err)
		}
	}
	return states, nil
}

// Delete removes the state and its index entry.
func (s *RedisStore) Delete(ctx context.Context, convKey string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(convKey))
	pipe.ZRem(ctx, s.indexKey(), convKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("repository: redis delete: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
