package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	v1 "ripple/contracts/realtime/v1"
	"ripple/internal/notify"
	"ripple/internal/presence"
)

type capturingNotifier struct {
	got chan struct {
		recipient string
		summary   notify.MessageSummary
	}
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{got: make(chan struct {
		recipient string
		summary   notify.MessageSummary
	}, 4)}
}

func (n *capturingNotifier) NotifyNewMessage(_ context.Context, recipientID string, s notify.MessageSummary) {
	n.got <- struct {
		recipient string
		summary   notify.MessageSummary
	}{recipient: recipientID, summary: s}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRouter_DeliversInProcess(t *testing.T) {
	t.Parallel()

	reg := presence.NewRegistry()
	conn := presence.NewConn("bob", "s-1", 4)
	reg.Register(conn)

	notifier := newCapturingNotifier()
	router := NewRouter(testLogger(), reg, notifier)

	env := v1.Envelope{V: v1.Version, Type: v1.TypeMessageReceive, ID: "e-1"}
	delivered := router.Deliver(context.Background(), "bob", env, &notify.MessageSummary{MessageID: "m-1"})
	if !delivered {
		t.Fatalf("expected in-process delivery to an online recipient")
	}

	select {
	case got := <-conn.Send:
		if got.ID != "e-1" {
			t.Fatalf("wrong envelope delivered: %+v", got)
		}
	default:
		t.Fatalf("envelope not enqueued on recipient connection")
	}

	select {
	case <-notifier.got:
		t.Fatalf("notifier must not fire for in-process delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_OfflineFallsBackToNotifier(t *testing.T) {
	t.Parallel()

	reg := presence.NewRegistry()
	notifier := newCapturingNotifier()
	router := NewRouter(testLogger(), reg, notifier)

	env := v1.Envelope{V: v1.Version, Type: v1.TypeMessageReceive, ID: "e-1"}
	sum := &notify.MessageSummary{MessageID: "m-1", SenderID: "alice", Excerpt: "hi"}
	if router.Deliver(context.Background(), "bob", env, sum) {
		t.Fatalf("offline recipient must not report in-process delivery")
	}

	select {
	case got := <-notifier.got:
		if got.recipient != "bob" || got.summary.MessageID != "m-1" {
			t.Fatalf("unexpected push: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier not invoked for offline recipient")
	}
}

func TestRouter_FullQueueTreatedAsOffline(t *testing.T) {
	t.Parallel()

	reg := presence.NewRegistry()
	conn := presence.NewConn("bob", "s-1", 1)
	reg.Register(conn)
	if !conn.TrySend(v1.Envelope{V: v1.Version, Type: v1.TypeMessageReceive, ID: "fill"}) {
		t.Fatalf("priming send should succeed")
	}

	notifier := newCapturingNotifier()
	router := NewRouter(testLogger(), reg, notifier)

	env := v1.Envelope{V: v1.Version, Type: v1.TypeMessageReceive, ID: "e-1"}
	if router.Deliver(context.Background(), "bob", env, &notify.MessageSummary{MessageID: "m-1"}) {
		t.Fatalf("saturated queue must not count as delivered")
	}

	select {
	case got := <-notifier.got:
		if got.recipient != "bob" {
			t.Fatalf("unexpected push recipient: %q", got.recipient)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier not invoked for saturated recipient")
	}
}

func TestRouter_NilSummarySkipsNotifier(t *testing.T) {
	t.Parallel()

	reg := presence.NewRegistry()
	notifier := newCapturingNotifier()
	router := NewRouter(testLogger(), reg, notifier)

	env := v1.Envelope{V: v1.Version, Type: v1.TypeTypingStatus, ID: "e-1"}
	if router.Deliver(context.Background(), "bob", env, nil) {
		t.Fatalf("offline recipient must not report delivery")
	}

	select {
	case <-notifier.got:
		t.Fatalf("typing events must not trigger pushes")
	case <-time.After(50 * time.Millisecond):
	}
}
