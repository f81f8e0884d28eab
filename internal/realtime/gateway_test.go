package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "ripple/contracts/realtime/v1"
	"ripple/internal/friends"
	"ripple/internal/identity"
	"ripple/internal/notify"
)

// newTestServer brings up a gateway on in-memory stores behind httptest.
// Static credentials: tok-alice -> alice, tok-bob -> bob.
func newTestServer(t *testing.T, graph friends.Graph, notifier notify.Notifier) *httptest.Server {
	t.Helper()

	// The test clients dial without an Origin header.
	t.Setenv("RIPPLE_WS_ORIGIN_REQUIRED", "false")

	gw := NewGateway(testLogger(), Deps{
		Verifier: identity.NewStaticVerifier(map[string]string{
			"tok-alice": "alice",
			"tok-bob":   "bob",
		}),
		Friends:  graph,
		Notifier: notifier,
	})

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/?token="+token, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ string, payload any) {
	c.t.Helper()

	b, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{V: v1.Version, Type: typ, TS: time.Now().UTC(), Payload: b}
	data, err := json.Marshal(env)
	if err != nil {
		c.t.Fatalf("marshal envelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

func (c *wsClient) recv(timeout time.Duration) (v1.Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

// recvType reads envelopes until one of the wanted type arrives, skipping
// interleaved server pushes such as presence fan-out.
func (c *wsClient) recvType(typ string, timeout time.Duration) v1.Envelope {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", typ)
		}
		env, err := c.recv(remaining)
		if err != nil {
			c.t.Fatalf("read while waiting for %s: %v", typ, err)
		}
		if env.Type == typ {
			return env
		}
	}
}

func decodePayload[T any](t *testing.T, env v1.Envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return out
}

func TestGateway_RejectsUnauthenticatedHandshake(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for name, url := range map[string]string{
		"missing_token": srv.URL,
		"unknown_token": srv.URL + "/?token=tok-nobody",
	} {
		conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			Subprotocols: []string{wsSubprotocolV1},
		})
		if err == nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			t.Fatalf("%s: handshake should fail", name)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %+v", name, resp)
		}
	}
}

func TestGateway_MessageDeliveryAndSenderEcho(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	alice := dialWS(t, srv, "tok-alice")
	bob := dialWS(t, srv, "tok-bob")

	alice.send(v1.TypeMessageSend, v1.MessageSendPayload{
		RecipientID: "bob",
		ClientMsgID: "c-1",
		Text:        "hi bob",
	})

	got := decodePayload[v1.MessagePayload](t, bob.recvType(v1.TypeMessageReceive, 5*time.Second))
	if got.SenderID != "alice" || got.RecipientID != "bob" || got.Text != "hi bob" {
		t.Fatalf("unexpected delivery: %+v", got)
	}
	if got.Seq != 1 {
		t.Fatalf("first message must carry seq 1, got %d", got.Seq)
	}
	if got.ID == "" || got.ConversationID == "" {
		t.Fatalf("stored message must carry server IDs: %+v", got)
	}

	echo := decodePayload[v1.MessagePayload](t, alice.recvType(v1.TypeMessageReceive, 5*time.Second))
	if echo.ID != got.ID || echo.Seq != got.Seq {
		t.Fatalf("sender echo must match the stored message: echo=%+v delivery=%+v", echo, got)
	}
}

func TestGateway_MessageSendValidation(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)
	alice := dialWS(t, srv, "tok-alice")

	alice.send(v1.TypeMessageSend, v1.MessageSendPayload{RecipientID: "alice", ClientMsgID: "c-1", Text: "me"})
	failed := decodePayload[v1.MessageFailedPayload](t, alice.recvType(v1.TypeMessageFailed, 5*time.Second))
	if failed.Code != "invalid_recipient" || failed.ClientMsgID != "c-1" {
		t.Fatalf("self-send: %+v", failed)
	}

	alice.send(v1.TypeMessageSend, v1.MessageSendPayload{RecipientID: "bob", ClientMsgID: "c-2"})
	failed = decodePayload[v1.MessageFailedPayload](t, alice.recvType(v1.TypeMessageFailed, 5*time.Second))
	if failed.Code != "empty_message" || failed.ClientMsgID != "c-2" {
		t.Fatalf("empty body: %+v", failed)
	}
}

func TestGateway_TypingRelay(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	alice := dialWS(t, srv, "tok-alice")
	bob := dialWS(t, srv, "tok-bob")

	alice.send(v1.TypeTypingStart, v1.TypingPayload{RecipientID: "bob"})
	status := decodePayload[v1.TypingStatusPayload](t, bob.recvType(v1.TypeTypingStatus, 5*time.Second))
	if status.FromUserID != "alice" || !status.IsTyping {
		t.Fatalf("typing start relay: %+v", status)
	}

	alice.send(v1.TypeTypingStop, v1.TypingPayload{RecipientID: "bob"})
	status = decodePayload[v1.TypingStatusPayload](t, bob.recvType(v1.TypeTypingStatus, 5*time.Second))
	if status.FromUserID != "alice" || status.IsTyping {
		t.Fatalf("typing stop relay: %+v", status)
	}
}

// assertNoPresence drains c for window and fails if a presence.status about
// userID arrives. Other envelope types pass through unremarked.
func assertNoPresence(t *testing.T, c *wsClient, userID string, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		env, err := c.recv(remaining)
		if err != nil {
			return
		}
		if env.Type != v1.TypePresenceStatus {
			continue
		}
		p := decodePayload[v1.PresenceStatusPayload](t, env)
		if p.UserID == userID {
			t.Fatalf("unexpected presence event for %s: %+v", userID, p)
		}
	}
}

func TestGateway_PresenceFanoutToFriends(t *testing.T) {
	graph := friends.NewMemoryGraph()
	graph.AddAccepted("alice", "bob")
	srv := newTestServer(t, graph, nil)

	alice := dialWS(t, srv, "tok-alice")
	bob := dialWS(t, srv, "tok-bob")

	online := decodePayload[v1.PresenceStatusPayload](t, alice.recvType(v1.TypePresenceStatus, 5*time.Second))
	if online.UserID != "bob" || !online.IsOnline {
		t.Fatalf("online fanout: %+v", online)
	}
	if online.LastSeen != nil {
		t.Fatalf("online transitions must not carry last_seen: %+v", online)
	}

	// A user's own transition is never echoed back to them.
	assertNoPresence(t, bob, "bob", 300*time.Millisecond)

	_ = bob.conn.Close(websocket.StatusNormalClosure, "leaving")

	offline := decodePayload[v1.PresenceStatusPayload](t, alice.recvType(v1.TypePresenceStatus, 5*time.Second))
	if offline.UserID != "bob" || offline.IsOnline {
		t.Fatalf("offline fanout: %+v", offline)
	}
	if offline.LastSeen == nil {
		t.Fatalf("offline transition must carry last_seen")
	}
}

func TestGateway_PresenceNotSentToNonFriends(t *testing.T) {
	// Empty graph: alice and bob are not friends.
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	alice := dialWS(t, srv, "tok-alice")
	bob := dialWS(t, srv, "tok-bob")

	// Neither bob's arrival nor his departure is visible to alice.
	assertNoPresence(t, alice, "bob", 400*time.Millisecond)

	_ = bob.conn.Close(websocket.StatusNormalClosure, "leaving")
	assertNoPresence(t, alice, "bob", 400*time.Millisecond)
}

func TestGateway_HistoryFetch(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	alice := dialWS(t, srv, "tok-alice")
	bob := dialWS(t, srv, "tok-bob")

	for _, text := range []string{"one", "two", "three"} {
		alice.send(v1.TypeMessageSend, v1.MessageSendPayload{RecipientID: "bob", Text: text})
		alice.recvType(v1.TypeMessageReceive, 5*time.Second)
	}

	alice.send(v1.TypeHistoryFetch, v1.HistoryFetchPayload{WithUserID: "bob"})
	chunk := decodePayload[v1.HistoryChunkPayload](t, alice.recvType(v1.TypeHistoryChunk, 5*time.Second))
	if len(chunk.Messages) != 3 || chunk.HasMore {
		t.Fatalf("expected all three messages: %+v", chunk)
	}
	for i, m := range chunk.Messages {
		if m.Seq != int64(i+1) {
			t.Fatalf("history must ascend by seq: %+v", chunk.Messages)
		}
	}

	// The recipient sees the same window.
	bob.send(v1.TypeHistoryFetch, v1.HistoryFetchPayload{ConversationID: chunk.ConversationID})
	chunk2 := decodePayload[v1.HistoryChunkPayload](t, bob.recvType(v1.TypeHistoryChunk, 5*time.Second))
	if len(chunk2.Messages) != 3 {
		t.Fatalf("recipient history: %+v", chunk2)
	}

	// A stranger's conversation is indistinguishable from a missing one.
	alice.send(v1.TypeHistoryFetch, v1.HistoryFetchPayload{ConversationID: "no-such-conversation"})
	empty := decodePayload[v1.HistoryChunkPayload](t, alice.recvType(v1.TypeHistoryChunk, 5*time.Second))
	if len(empty.Messages) != 0 || empty.ConversationID != "" {
		t.Fatalf("unknown conversation must yield an empty chunk: %+v", empty)
	}
}

func TestGateway_OfflineRecipientTriggersPush(t *testing.T) {
	notifier := newCapturingNotifier()
	srv := newTestServer(t, friends.NewMemoryGraph(), notifier)

	alice := dialWS(t, srv, "tok-alice")

	alice.send(v1.TypeMessageSend, v1.MessageSendPayload{RecipientID: "bob", Text: "you there?"})

	// The message is stored and echoed even though bob is offline.
	echo := decodePayload[v1.MessagePayload](t, alice.recvType(v1.TypeMessageReceive, 5*time.Second))
	if echo.Seq != 1 {
		t.Fatalf("echo: %+v", echo)
	}

	select {
	case got := <-notifier.got:
		if got.recipient != "bob" || got.summary.SenderID != "alice" {
			t.Fatalf("push: %+v", got)
		}
		if got.summary.Excerpt != "you there?" {
			t.Fatalf("push excerpt: %q", got.summary.Excerpt)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("offline recipient must trigger a push")
	}
}

func TestGateway_ReplacedFrameAlwaysPrecedesClose(t *testing.T) {
	srv := newTestServer(t, friends.NewMemoryGraph(), nil)

	// Repeated replacement cycles: the superseded side must see the
	// session.replaced frame before its socket closes, every time.
	for i := 0; i < 10; i++ {
		old := dialWS(t, srv, "tok-bob")
		_ = dialWS(t, srv, "tok-bob")

		env := old.recvType(v1.TypeSessionReplaced, 5*time.Second)
		if len(env.Payload) == 0 {
			t.Fatalf("cycle %d: session.replaced must carry its payload", i)
		}
		if _, err := old.recv(5 * time.Second); err == nil {
			t.Fatalf("cycle %d: superseded connection must be closed", i)
		}
	}
}

func TestGateway_LastConnectionWins(t *testing.T) {
	graph := friends.NewMemoryGraph()
	graph.AddAccepted("alice", "bob")
	srv := newTestServer(t, graph, nil)

	alice := dialWS(t, srv, "tok-alice")
	bobOld := dialWS(t, srv, "tok-bob")
	alice.recvType(v1.TypePresenceStatus, 5*time.Second)

	bobNew := dialWS(t, srv, "tok-bob")

	// The superseded connection is told explicitly, then torn down.
	bobOld.recvType(v1.TypeSessionReplaced, 5*time.Second)
	if _, err := bobOld.recv(5 * time.Second); err == nil {
		t.Fatalf("superseded connection must be closed by the server")
	}

	// Routing follows the new connection.
	alice.send(v1.TypeMessageSend, v1.MessageSendPayload{RecipientID: "bob", Text: "still here?"})
	got := decodePayload[v1.MessagePayload](t, bobNew.recvType(v1.TypeMessageReceive, 5*time.Second))
	if got.Text != "still here?" {
		t.Fatalf("delivery to new connection: %+v", got)
	}

	// The stale teardown must not have announced bob as offline; alice sees
	// only the fresh online transition while bob stays connected.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		env, err := alice.recv(time.Until(deadline))
		if err != nil {
			break
		}
		if env.Type != v1.TypePresenceStatus {
			continue
		}
		p := decodePayload[v1.PresenceStatusPayload](t, env)
		if p.UserID == "bob" && !p.IsOnline {
			t.Fatalf("superseded connection must not broadcast offline")
		}
	}
}
