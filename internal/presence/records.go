package presence

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordStore persists the user-visible presence record (online flag and
// last-seen timestamp). All writes are best-effort: a failed write must never
// block registry correctness, so callers log and move on.
type RecordStore interface {
	MarkOnline(ctx context.Context, userID string, now time.Time) error
	MarkOffline(ctx context.Context, userID string, now time.Time) error
}

// NopRecordStore discards presence record writes (no-DB dev mode).
type NopRecordStore struct{}

// MarkOnline is a no-op.
func (NopRecordStore) MarkOnline(context.Context, string, time.Time) error { return nil }

// MarkOffline is a no-op.
func (NopRecordStore) MarkOffline(context.Context, string, time.Time) error { return nil }

// PostgresRecordStore upserts ripple.presence_records rows.
//
// Ownership model:
// - PostgresRecordStore does NOT own the pgx pool. The caller must close the pool.
type PostgresRecordStore struct {
	pool   *pgxpool.Pool
	schema string
}

// RecordOption configures PostgresRecordStore behavior.
type RecordOption func(*PostgresRecordStore) error

// WithRecordSchema sets the DB schema used by the store (default: "ripple").
func WithRecordSchema(schema string) RecordOption {
	return func(s *PostgresRecordStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("presence: empty schema")
		}
		if !presenceIdentRE.MatchString(schema) {
			return errors.New("presence: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresRecordStore constructs a Postgres-backed RecordStore.
func NewPostgresRecordStore(pool *pgxpool.Pool, opts ...RecordOption) (*PostgresRecordStore, error) {
	st := &PostgresRecordStore{
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
		return nil, errors.New("presence: nil pool")
	}
	return st, nil
}

// MarkOnline upserts the record with is_online=true.
func (s *PostgresRecordStore) MarkOnline(ctx context.Context, userID string, now time.Time) error {
	return s.upsert(ctx, userID, true, now)
}

// MarkOffline upserts the record with is_online=false and last_seen=now.
func (s *PostgresRecordStore) MarkOffline(ctx context.Context, userID string, now time.Time) error {
	return s.upsert(ctx, userID, false, now)
}

func (s *PostgresRecordStore) upsert(ctx context.Context, userID string, online bool, now time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("presence: nil record store")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("presence: empty user id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	records := pgx.Identifier{s.schema, "presence_records"}.Sanitize()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+records+` (user_id, is_online, last_seen, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE
		    SET is_online = EXCLUDED.is_online,
		        last_seen = EXCLUDED.last_seen,
		        updated_at = EXCLUDED.updated_at`,
		userID, online, now,
	)
	return err
}

var presenceIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
