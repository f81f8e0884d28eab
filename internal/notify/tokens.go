package notify

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenStore reads device tokens from ripple.device_tokens.
// Token registration is handled by the account service; this side only reads.
type PostgresTokenStore struct {
	pool   *pgxpool.Pool
	schema string
}

// TokenOption configures PostgresTokenStore behavior.
type TokenOption func(*PostgresTokenStore) error

// WithTokenSchema sets the DB schema used by the store (default: "ripple").
func WithTokenSchema(schema string) TokenOption {
	return func(s *PostgresTokenStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("notify: empty schema")
		}
		if !tokenIdentRE.MatchString(schema) {
			return errors.New("notify: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresTokenStore constructs a Postgres-backed TokenStore.
func NewPostgresTokenStore(pool *pgxpool.Pool, opts ...TokenOption) (*PostgresTokenStore, error) {
	st := &PostgresTokenStore{
		pool:   pool,
		schema: "ripple",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("notify: nil pool")
	}
	return st, nil
}

// TokensFor lists the device tokens registered for userID.
func (s *PostgresTokenStore) TokensFor(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("notify: nil token store")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := pgx.Identifier{s.schema, "device_tokens"}.Sanitize()

	rows, err := s.pool.Query(ctx,
		`SELECT token FROM `+tokens+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryTokenStore is an in-memory TokenStore for dev mode and tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string][]string
}

// NewMemoryTokenStore constructs an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string][]string)}
}

// Register adds a device token for userID.
func (s *MemoryTokenStore) Register(userID, token string) {
	if userID == "" || token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = append(s.tokens[userID], token)
}

// TokensFor returns a copy of userID's tokens.
func (s *MemoryTokenStore) TokensFor(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tokens[userID]...), nil
}

var tokenIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
