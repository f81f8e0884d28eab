// Package v1 defines the Ripple realtime wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeMessageSend requests relaying a direct message (client -> server).
	TypeMessageSend = "message.send"
	// TypeMessageReceive carries a stored message to the recipient, and is
	// echoed to the sender as the delivery acknowledgment (server -> client).
	TypeMessageReceive = "message.receive"
	// TypeMessageFailed reports a send that was not persisted (server -> client).
	TypeMessageFailed = "message.failed"

	// TypeTypingStart signals the sender began typing (client -> server).
	TypeTypingStart = "typing.start"
	// TypeTypingStop signals the sender stopped typing (client -> server).
	TypeTypingStop = "typing.stop"
	// TypeTypingStatus relays a typing signal to its recipient (server -> client).
	TypeTypingStatus = "typing.status"

	// TypePresenceStatus announces a friend going online or offline (server -> client).
	TypePresenceStatus = "presence.status"

	// TypeHistoryFetch requests a window of conversation history (client -> server).
	TypeHistoryFetch = "history.fetch"
	// TypeHistoryChunk returns a window of history (server -> client).
	TypeHistoryChunk = "history.chunk"

	// TypeSessionReplaced tells a connection it was superseded by a newer one
	// for the same user (server -> client), sent just before the close frame.
	TypeSessionReplaced = "session.replaced"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessageSend,
		TypeMessageReceive,
		TypeMessageFailed,
		TypeTypingStart,
		TypeTypingStop,
		TypeTypingStatus,
		TypePresenceStatus,
		TypeHistoryFetch,
		TypeHistoryChunk,
		TypeSessionReplaced,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// MessageSendPayload requests a direct message to another user.
// At least one of Text and Attachment must be set.
type MessageSendPayload struct {
	RecipientID string `json:"recipient_id"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Attachment  string `json:"attachment,omitempty"`
}

// MessagePayload is the wire form of a stored message. It is the payload of
// both message.receive deliveries and history.chunk entries.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Text           string    `json:"text,omitempty"`
	Attachment     string    `json:"attachment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageFailedPayload reports a send that did not reach the store.
// Distinguishable from a success echo by type alone.
type MessageFailedPayload struct {
	ClientMsgID string `json:"client_msg_id,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// TypingPayload addresses a typing or stop-typing signal.
type TypingPayload struct {
	RecipientID string `json:"recipient_id"`
}

// TypingStatusPayload relays a typing signal to its recipient.
type TypingStatusPayload struct {
	FromUserID string `json:"from_user_id"`
	IsTyping   bool   `json:"is_typing"`
}

// PresenceStatusPayload announces a presence change of an accepted friend.
// LastSeen is set only for offline transitions.
type PresenceStatusPayload struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// HistoryFetchPayload requests a history window. Exactly one of
// ConversationID and WithUserID should be set; WithUserID resolves the
// direct conversation with that user without creating one.
type HistoryFetchPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	WithUserID     string `json:"with_user_id,omitempty"`
	AfterSeq       *int64 `json:"after_seq,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// HistoryChunkPayload returns messages for a history fetch request.
type HistoryChunkPayload struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []MessagePayload `json:"messages"`
	HasMore        bool             `json:"has_more"`
}

// SessionReplacedPayload is intentionally empty; the type is the signal.
type SessionReplacedPayload struct{}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
