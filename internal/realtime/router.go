package realtime

import (
	"context"
	"log/slog"

	v1 "ripple/contracts/realtime/v1"
	"ripple/internal/notify"
	"ripple/internal/presence"
)

// Router is the delivery router: given a recipient, it either hands an
// envelope to the recipient's live connection in-process or falls back to the
// push-notification collaborator. An offline recipient is a normal outcome,
// not an error.
type Router struct {
	log      *slog.Logger
	registry *presence.Registry
	notifier notify.Notifier
}

// NewRouter constructs a Router. notifier may be nil; offline recipients are
// then only counted, not pushed to.
func NewRouter(log *slog.Logger, registry *presence.Registry, notifier notify.Notifier) *Router {
	return &Router{log: log, registry: registry, notifier: notifier}
}

// Deliver reports whether env was handed off in-process. When the recipient
// has no live connection (or its queue is saturated) and summary is non-nil,
// the push collaborator is invoked fire-and-forget on its own goroutine; the
// sender never waits on it.
func (r *Router) Deliver(ctx context.Context, recipientID string, env v1.Envelope, summary *notify.MessageSummary) bool {
	if conn, ok := r.registry.Lookup(recipientID); ok {
		if conn.TrySend(env) {
			metricDeliveries.WithLabelValues(deliveryInProcess).Inc()
			return true
		}
		// Queue full or connection tearing down: treat as offline rather than
		// block the sender's event loop.
		r.log.Info("deliver.queue_full", "recipient", recipientID, "session_id", conn.SessionID)
	}

	metricDeliveries.WithLabelValues(deliveryOffline).Inc()

	if r.notifier != nil && summary != nil {
		s := *summary
		// Detached from cancellation: the push outlives the sender's request scope.
		go r.notifier.NotifyNewMessage(context.WithoutCancel(ctx), recipientID, s)
	}
	return false
}
