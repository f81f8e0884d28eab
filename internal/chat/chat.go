// Package chat contains the durable conversation and message stores backing
// the realtime relay. Conversations group the message history of one
// unordered pair of users; messages are immutable once appended.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrSamePair is returned when both sides of a conversation are the same user.
var ErrSamePair = errors.New("chat: conversation requires two distinct users")

// Conversation is the persistent grouping of one unordered participant pair.
// UserLo < UserHi lexicographically, so (A,B) and (B,A) map to one record.
type Conversation struct {
	ID        string
	UserLo    string
	UserHi    string
	CreatedAt time.Time
}

// Has reports whether userID is a participant.
func (c Conversation) Has(userID string) bool {
	return userID != "" && (userID == c.UserLo || userID == c.UserHi)
}

// Peer returns the other participant, or "" when userID is not one.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.UserLo:
		return c.UserHi
	case c.UserHi:
		return c.UserLo
	default:
		return ""
	}
}

// Message is one immutable persisted message.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	SenderID       string
	RecipientID    string
	Text           string
	Attachment     string
	CreatedAt      time.Time
}

// NormalizePair orders two user IDs into the canonical (lo, hi) key.
func NormalizePair(a, b string) (lo, hi string, err error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return "", "", ErrSamePair
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

// ConversationStore finds or creates conversation records.
//
// FindOrCreate must tolerate concurrent creation attempts for the same pair:
// the loser of the race resolves to the winner's record, never an error.
type ConversationStore interface {
	FindOrCreate(ctx context.Context, userA, userB string) (Conversation, error)
	// FindByPair looks the pair up without creating.
	FindByPair(ctx context.Context, userA, userB string) (Conversation, bool, error)
	// Get looks a conversation up by ID.
	Get(ctx context.Context, conversationID string) (Conversation, bool, error)
}

// MessageStore appends and lists messages within a conversation.
//
// Requirements:
//   - Seq strictly increasing per conversation
//   - CreatedAt non-decreasing per conversation (store-side clock)
//   - List ordered by seq ASC (snapshot read, not a stream)
type MessageStore interface {
	Append(ctx context.Context, in AppendInput) (Message, error)
	ListByConversation(ctx context.Context, in ListInput) (ListResult, error)
}

// AppendInput describes a message append request.
type AppendInput struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Text           string
	Attachment     string
	Now            time.Time
}

// ListInput describes a history query request.
type ListInput struct {
	ConversationID string
	AfterSeq       *int64
	Limit          int
}

// ListResult contains the retrieved history window.
type ListResult struct {
	Messages []Message
	HasMore  bool
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampListLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
