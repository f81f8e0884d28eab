package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ripple/internal/ids"
)

const memMaxMessagesPerConversation = 10_000

// MemoryStore is an in-memory ConversationStore + MessageStore for dev mode
// and tests.
type MemoryStore struct {
	mu      sync.Mutex
	byPair  map[[2]string]*memConv
	byIDRef map[string]*memConv
}

type memConv struct {
	conv   Conversation
	seq    int64
	lastTS time.Time
	msgs   []Message
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPair:  make(map[[2]string]*memConv),
		byIDRef: make(map[string]*memConv),
	}
}

// FindOrCreate returns the conversation for the normalized pair, creating it
// on first use.
func (s *MemoryStore) FindOrCreate(ctx context.Context, userA, userB string) (Conversation, error) {
	lo, hi, err := NormalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{lo, hi}
	if c, ok := s.byPair[key]; ok {
		return c.conv, nil
	}

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		return Conversation{}, err
	}

	c := &memConv{
		conv: Conversation{
			ID:        id,
			UserLo:    lo,
			UserHi:    hi,
			CreatedAt: time.Now().UTC(),
		},
		msgs: make([]Message, 0, 64),
	}
	s.byPair[key] = c
	s.byIDRef[id] = c
	return c.conv, nil
}

// FindByPair looks the normalized pair up without creating.
func (s *MemoryStore) FindByPair(ctx context.Context, userA, userB string) (Conversation, bool, error) {
	lo, hi, err := NormalizePair(userA, userB)
	if err != nil {
		return Conversation{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPair[[2]string{lo, hi}]
	if !ok {
		return Conversation{}, false, nil
	}
	return c.conv, true, nil
}

// Get looks a conversation up by ID.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byIDRef[conversationID]
	if !ok {
		return Conversation{}, false, nil
	}
	return c.conv, true, nil
}

// Append persists a message with a strictly increasing seq and a
// non-decreasing creation timestamp.
func (s *MemoryStore) Append(ctx context.Context, in AppendInput) (Message, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byIDRef[in.ConversationID]
	if !ok {
		return Message{}, errors.New("chat: unknown conversation")
	}
	if !c.conv.Has(in.SenderID) || !c.conv.Has(in.RecipientID) {
		return Message{}, errors.New("chat: sender or recipient not a participant")
	}

	// Clamp so display ordering by creation time never regresses even if the
	// wall clock stepped backwards between appends.
	if now.Before(c.lastTS) {
		now = c.lastTS
	}
	c.lastTS = now

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	c.seq++
	msg := Message{
		ID:             id,
		ConversationID: in.ConversationID,
		Seq:            c.seq,
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		Text:           in.Text,
		Attachment:     in.Attachment,
		CreatedAt:      now,
	}
	c.msgs = append(c.msgs, msg)

	// Bound memory to avoid unbounded growth in dev.
	if len(c.msgs) > memMaxMessagesPerConversation {
		c.msgs = c.msgs[len(c.msgs)-memMaxMessagesPerConversation:]
	}

	return msg, nil
}

// ListByConversation returns messages ordered by seq ASC with paging via AfterSeq.
func (s *MemoryStore) ListByConversation(ctx context.Context, in ListInput) (ListResult, error) {
	if in.ConversationID == "" {
		return ListResult{}, errors.New("chat: missing conversation_id")
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	limit := clampListLimit(in.Limit)
	fetch := limit + 1

	s.mu.Lock()
	c := s.byIDRef[in.ConversationID]
	var snap []Message
	if c != nil {
		snap = append([]Message(nil), c.msgs...)
	}
	s.mu.Unlock()

	if len(snap) == 0 {
		return ListResult{}, nil
	}

	start := 0
	if in.AfterSeq != nil {
		after := *in.AfterSeq
		start = sort.Search(len(snap), func(i int) bool { return snap[i].Seq > after })
		if start >= len(snap) {
			return ListResult{}, nil
		}
	}

	end := start + fetch
	if end > len(snap) {
		end = len(snap)
	}
	out := snap[start:end]

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return ListResult{Messages: out, HasMore: hasMore}, nil
}
