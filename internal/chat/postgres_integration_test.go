package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/internal/ids"
)

// Integration tests run only when RIPPLE_TEST_DATABASE_URL is set.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := strings.TrimSpace(os.Getenv("RIPPLE_TEST_DATABASE_URL"))
	if url == "" {
		t.Skip("RIPPLE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	suffix, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("schema suffix: %v", err)
	}
	schema := "ripple_test_" + strings.ToLower(suffix)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA %s`, schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE %s.conversations (
			id TEXT PRIMARY KEY,
			user_lo TEXT NOT NULL,
			user_hi TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_lo, user_hi)
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.conversation_cursors (
			conversation_id TEXT PRIMARY KEY,
			next_seq BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.messages (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			sender_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			attachment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`, schema),
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA %s CASCADE`, schema))
	})

	return schema
}

func TestPostgresStore_FindOrCreate_ConcurrentPairRace(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const workers = 16
	out := make([]Conversation, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := store.FindOrCreate(ctx, a, b)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			out[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if out[i].ID != out[0].ID {
			t.Fatalf("worker %d resolved to %q, want %q", i, out[i].ID, out[0].ID)
		}
	}

	var count int
	if err := pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s.conversations`, schema),
	).Scan(&count); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one conversation row, got %d", count)
	}
}

func TestPostgresStore_Append_OrderedUnderConcurrency(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conv, err := store.FindOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}

	const total = 40
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, AppendInput{
				ConversationID: conv.ID,
				SenderID:       "alice",
				RecipientID:    "bob",
				Text:           fmt.Sprintf("msg-%d", i),
			})
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	out, err := store.ListByConversation(ctx, ListInput{ConversationID: conv.ID, Limit: 200})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out.Messages) != total {
		t.Fatalf("expected %d messages, got %d", total, len(out.Messages))
	}

	for i, m := range out.Messages {
		if m.Seq != int64(i+1) {
			t.Fatalf("message %d: seq=%d want=%d (gap or duplicate)", i, m.Seq, i+1)
		}
		if i > 0 && m.CreatedAt.Before(out.Messages[i-1].CreatedAt) {
			t.Fatalf("message %d: created_at regressed", i)
		}
	}
}

func TestPostgresStore_GetAndFindByPair(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, found, err := store.FindByPair(ctx, "alice", "bob"); err != nil || found {
		t.Fatalf("expected no conversation yet, found=%v err=%v", found, err)
	}

	conv, err := store.FindOrCreate(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}

	got, found, err := store.FindByPair(ctx, "alice", "bob")
	if err != nil || !found || got.ID != conv.ID {
		t.Fatalf("find by pair: found=%v err=%v id=%q want=%q", found, err, got.ID, conv.ID)
	}

	byID, found, err := store.Get(ctx, conv.ID)
	if err != nil || !found || byID.UserLo != "alice" || byID.UserHi != "bob" {
		t.Fatalf("get by id: found=%v err=%v pair=%s/%s", found, err, byID.UserLo, byID.UserHi)
	}

	if _, found, err := store.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("get missing: found=%v err=%v", found, err)
	}
}
