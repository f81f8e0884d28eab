package presence

import (
	"sync"
	"time"

	v1 "ripple/contracts/realtime/v1"
)

// Conn is the send-handle for one live realtime session. The registry tracks
// it but does not own the underlying transport; the gateway goroutine that
// created the Conn owns the websocket and watches Done to tear it down.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent senders.
// - Close is idempotent and only signals shutdown via done.
type Conn struct {
	UserID      string
	SessionID   string
	ConnectedAt time.Time
	Send        chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn constructs a Conn with a bounded send queue.
func NewConn(userID, sessionID string, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Conn{
		UserID:      userID,
		SessionID:   sessionID,
		ConnectedAt: time.Now().UTC(),
		Send:        make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown (idempotent). It does NOT close Send so concurrent
// TrySend calls stay safe.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// TrySend enqueues env without blocking. It reports false when the connection
// is shutting down or its queue is full; callers treat that as undelivered.
func (c *Conn) TrySend(env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
