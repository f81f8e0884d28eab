package notify

import (
	"context"
	"log/slog"
)

// LogSender writes the composed payload to the log instead of a push gateway.
// It stands in for the external push collaborator in dev and test.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the payload that would be pushed.
func (s *LogSender) Send(_ context.Context, tokens []string, sum MessageSummary) error {
	s.log.Info("notify.push",
		"tokens", len(tokens),
		"sender", sum.SenderID,
		"message_id", sum.MessageID,
		"excerpt", sum.Excerpt,
	)
	return nil
}
