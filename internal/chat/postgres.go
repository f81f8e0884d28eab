package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/internal/ids"
)

// PostgresStore is a ConversationStore + MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Concurrency model:
//   - FindOrCreate relies on the UNIQUE(user_lo, user_hi) constraint; a lost
//     insert race is resolved by re-reading the winner, never surfaced.
//   - Append takes a per-conversation transactional advisory lock to
//     guarantee strict seq ordering and non-decreasing timestamps.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore behavior.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "ripple").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{
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
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

const conversationCols = `id, user_lo, user_hi, created_at`

// FindOrCreate resolves the normalized pair to exactly one conversation row.
func (s *PostgresStore) FindOrCreate(ctx context.Context, userA, userB string) (Conversation, error) {
	lo, hi, err := NormalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	var c Conversation
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+conversations+` (id, user_lo, user_hi, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_lo, user_hi) DO NOTHING
		 RETURNING `+conversationCols,
		id, lo, hi, now,
	).Scan(&c.ID, &c.UserLo, &c.UserHi, &c.CreatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, err
	}

	// Lost the creation race (or the row already existed): read the winner.
	err = s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM `+conversations+`
		  WHERE user_lo = $1 AND user_hi = $2`,
		lo, hi,
	).Scan(&c.ID, &c.UserLo, &c.UserHi, &c.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// FindByPair looks the normalized pair up without creating.
func (s *PostgresStore) FindByPair(ctx context.Context, userA, userB string) (Conversation, bool, error) {
	lo, hi, err := NormalizePair(userA, userB)
	if err != nil {
		return Conversation{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, false, err
	}

	conversations := pgIdent(s.schema, "conversations")

	var c Conversation
	err = s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM `+conversations+`
		  WHERE user_lo = $1 AND user_hi = $2`,
		lo, hi,
	).Scan(&c.ID, &c.UserLo, &c.UserHi, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, err
	}
	return c, true, nil
}

// Get looks a conversation up by ID.
func (s *PostgresStore) Get(ctx context.Context, conversationID string) (Conversation, bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Conversation{}, false, errors.New("chat: missing conversation_id")
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, false, err
	}

	conversations := pgIdent(s.schema, "conversations")

	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM `+conversations+` WHERE id = $1`,
		conversationID,
	).Scan(&c.ID, &c.UserLo, &c.UserHi, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, err
	}
	return c, true, nil
}

const messageCols = `id, conversation_id, seq, sender_id, recipient_id, text, attachment, created_at`

// Append appends a message with monotonic sequence allocation and a
// non-decreasing store-side timestamp.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	if in.ConversationID == "" || in.SenderID == "" || in.RecipientID == "" {
		return Message{}, errors.New("chat: invalid input")
	}
	if in.Text == "" && in.Attachment == "" {
		return Message{}, errors.New("chat: empty message body")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cursors := pgIdent(s.schema, "conversation_cursors")
	messages := pgIdent(s.schema, "messages")

	// Serialize all writes per conversation to guarantee strict seq ordering
	// and a non-decreasing timestamp without races.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.ConversationID); err != nil {
		return Message{}, fmt.Errorf("advisory lock: %w", err)
	}

	var lastTS *time.Time
	err = tx.QueryRow(ctx,
		`SELECT created_at FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY seq DESC
		  LIMIT 1`,
		in.ConversationID,
	).Scan(&lastTS)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, err
	}
	if lastTS != nil && now.Before(*lastTS) {
		now = *lastTS
	}

	// Cursor row ensures monotonic seq allocation.
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+cursors+` (conversation_id, next_seq)
		 VALUES ($1, 1)
		 ON CONFLICT (conversation_id) DO NOTHING`,
		in.ConversationID,
	); err != nil {
		return Message{}, err
	}

	var seq int64
	if err := tx.QueryRow(ctx,
		`UPDATE `+cursors+`
		    SET next_seq = next_seq + 1,
		        updated_at = now()
		  WHERE conversation_id = $1
		RETURNING (next_seq - 1)`,
		in.ConversationID,
	).Scan(&seq); err != nil {
		return Message{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, conversation_id, seq, sender_id, recipient_id, text, attachment, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, in.ConversationID, seq, in.SenderID, in.RecipientID, in.Text, in.Attachment, now,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	out := Message{
		ID:             id,
		ConversationID: in.ConversationID,
		Seq:            seq,
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		Text:           in.Text,
		Attachment:     in.Attachment,
		CreatedAt:      now,
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return out, nil
}

// ListByConversation returns messages ordered by seq ASC, with optional paging
// by AfterSeq.
func (s *PostgresStore) ListByConversation(ctx context.Context, in ListInput) (ListResult, error) {
	if s == nil || s.pool == nil {
		return ListResult{}, errors.New("chat: nil store")
	}
	if in.ConversationID == "" {
		return ListResult{}, errors.New("chat: missing conversation_id")
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	limit := clampListLimit(in.Limit)
	fetch := limit + 1

	messages := pgIdent(s.schema, "messages")

	var (
		rows pgx.Rows
		err  error
	)

	if in.AfterSeq == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+messageCols+`
			   FROM `+messages+`
			  WHERE conversation_id = $1
			  ORDER BY seq ASC
			  LIMIT $2`,
			in.ConversationID, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+messageCols+`
			   FROM `+messages+`
			  WHERE conversation_id = $1 AND seq > $2
			  ORDER BY seq ASC
			  LIMIT $3`,
			in.ConversationID, *in.AfterSeq, fetch,
		)
	}
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, fetch)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.Seq,
			&m.SenderID,
			&m.RecipientID,
			&m.Text,
			&m.Attachment,
			&m.CreatedAt,
		); err != nil {
			return ListResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	return ListResult{Messages: msgs, HasMore: hasMore}, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
