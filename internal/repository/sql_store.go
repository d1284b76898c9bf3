package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"hostel-agent/internal/domain"
)

// SQL dialects supported by SQLStore.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// sqlSchema creates the state table. It is valid for both dialects.
const sqlSchema = `
CREATE TABLE IF NOT EXISTS conversation_states (
    conv_key    TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    last_active BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_states_last_active ON conversation_states (last_active);
`

// SQLStore keeps conversation states in a relational table.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQL opens a database for dialect, pings it and creates the schema.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("repository: unsupported sql dialect %q", dialect)
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: opening database: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: pinging database: %w", err)
	}
	s, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Migrate creates the schema if needed.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("repository: running migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Upsert inserts or replaces the row for state.Key.
func (s *SQLStore) Upsert(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.Key == "" {
		return errors.New("repository: sql upsert: state key is required")
	}
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repository: sql upsert: marshal state: %w", err)
	}
	lastActive := state.LastActiveAt
	if lastActive.IsZero() {
		lastActive = time.Now()
	}
	q := s.rebind(`INSERT INTO conversation_states (conv_key, state, last_active) VALUES (?, ?, ?)
ON CONFLICT (conv_key) DO UPDATE SET state = excluded.state, last_active = excluded.last_active`)
	if _, err := s.db.ExecContext(ctx, q, state.Key, string(body), lastActive.UnixMilli()); err != nil {
		return fmt.Errorf("repository: sql upsert: %w", err)
	}
	return nil
}

// LoadActive returns rows active at or after since, oldest first.
func (s *SQLStore) LoadActive(ctx context.Context, since time.Time) ([]*domain.ConversationState, error) {
	q := s.rebind(`SELECT conv_key, state FROM conversation_states WHERE last_active >= ? ORDER BY last_active`)
	rows, err := s.db.QueryContext(ctx, q, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("repository: sql load active: %w", err)
	}
	defer rows.Close()

	var states []*domain.ConversationState
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("repository: sql load active: scan: %w", err)
		}
		var st domain.ConversationState
		if err := json.Unmarshal([]byte(body), &st); err != nil {
			return nil, fmt.Errorf("repository: sql load active: decode %q: %w", key, err)
		}
		st.Key = key
		states = append(states, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: sql load active: %w", err)
	}
	return states, nil
}

// Delete removes the row for key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM conversation_states WHERE conv_key = ?`), key); err != nil {
		return fmt.Errorf("repository: sql delete: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
