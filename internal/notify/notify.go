// Package notify is the push-notification boundary for recipients who are
// not connected. Delivery is fire-and-forget: the realtime path never waits
// on it and never fails because of it; durability comes from persistence.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const excerptMaxRunes = 80

// MessageSummary is the summarized payload pushed for an offline recipient.
// It deliberately carries an excerpt, not the full message body. Display
// names live in the account service; the push transport behind Sender
// resolves the recipient-facing copy from SenderID.
type MessageSummary struct {
	MessageID string
	SenderID  string
	Excerpt   string
}

// Notifier is consumed by the delivery router for offline recipients.
type Notifier interface {
	// NotifyNewMessage pushes a new-message summary to recipientID's devices.
	// No return value is relied upon; failures are the implementation's to log.
	NotifyNewMessage(ctx context.Context, recipientID string, s MessageSummary)
}

// Sender delivers a composed payload to a set of device tokens.
// The real transport (FCM or similar) lives behind this interface.
type Sender interface {
	Send(ctx context.Context, tokens []string, s MessageSummary) error
}

// TokenStore lists the registered device tokens of a user.
type TokenStore interface {
	TokensFor(ctx context.Context, userID string) ([]string, error)
}

// Service implements Notifier by resolving device tokens and handing the
// summary to a Sender. Users with no registered device are skipped silently.
type Service struct {
	log    *slog.Logger
	tokens TokenStore
	sender Sender
}

// NewService constructs a Service. Nil tokens or sender degrade to a no-op
// with a log line per attempt.
func NewService(log *slog.Logger, tokens TokenStore, sender Sender) *Service {
	return &Service{log: log, tokens: tokens, sender: sender}
}

// NotifyNewMessage resolves tokens and sends. Errors are logged and swallowed.
func (s *Service) NotifyNewMessage(ctx context.Context, recipientID string, sum MessageSummary) {
	if s == nil {
		return
	}
	if s.tokens == nil || s.sender == nil {
		s.log.Debug("notify.skip.unconfigured", "recipient", recipientID)
		return
	}

	tokens, err := s.tokens.TokensFor(ctx, recipientID)
	if err != nil {
		s.log.Warn("notify.tokens.fail", "recipient", recipientID, "err", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.sender.Send(ctx, tokens, sum); err != nil {
		s.log.Warn("notify.send.fail", "recipient", recipientID, "tokens", len(tokens), "err", err)
		return
	}
	s.log.Info("notify.sent", "recipient", recipientID, "tokens", len(tokens), "message_id", sum.MessageID)
}

// Excerpt trims and truncates a message body for notification display.
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= excerptMaxRunes {
		return text
	}

	runes := []rune(text)
	return string(runes[:excerptMaxRunes-1]) + "…"
}
