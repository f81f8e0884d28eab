// Package realtime contains Ripple's realtime gateway: the per-connection
// session loop, presence fan-out, and the delivery router.
package realtime

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "ripple/contracts/realtime/v1"
	"ripple/internal/chat"
	"ripple/internal/friends"
	"ripple/internal/identity"
	"ripple/internal/notify"
	"ripple/internal/presence"
)

const (
	wsSubprotocolV1 = "ripple.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second
	wsDisconnectBudget    = 5 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Deps are the collaborators a Gateway needs. Nil stores fall back to
// in-memory implementations for dev; Verifier has no fallback, because a
// connection that cannot be resolved to an identity must not proceed.
type Deps struct {
	Verifier      identity.Verifier
	Registry      *presence.Registry
	Friends       friends.Graph
	Conversations chat.ConversationStore
	Messages      chat.MessageStore
	Records       presence.RecordStore
	Notifier      notify.Notifier
}

// Gateway is the WebSocket entrypoint for Ripple realtime.
//
// It authenticates the handshake, registers the connection as the user's
// single authoritative one, fans presence out to accepted friends, and
// relays messages and typing signals while the session is active.
type Gateway struct {
	log *slog.Logger

	verifier identity.Verifier
	registry *presence.Registry
	friends  friends.Graph
	convs    chat.ConversationStore
	msgs     chat.MessageStore
	records  presence.RecordStore
	router   *Router

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, d Deps) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if d.Registry == nil {
		d.Registry = presence.NewRegistry()
	}
	if d.Friends == nil {
		d.Friends = friends.NewMemoryGraph()
	}
	if d.Conversations == nil || d.Messages == nil {
		mem := chat.NewMemoryStore()
		if d.Conversations == nil {
			d.Conversations = mem
		}
		if d.Messages == nil {
			d.Messages = mem
		}
	}
	if d.Records == nil {
		d.Records = presence.NopRecordStore{}
	}

	g := &Gateway{
		log:      log,
		verifier: d.Verifier,
		registry: d.Registry,
		friends:  d.Friends,
		convs:    d.Conversations,
		msgs:     d.Messages,
		records:  d.Records,
		router:   NewRouter(log, d.Registry, d.Notifier),
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBool("RIPPLE_WS_DEV_INSECURE", false)

	g.originRequired = envBool("RIPPLE_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSV("RIPPLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	g.writeTimeout = envDuration("RIPPLE_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDuration("RIPPLE_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envInt("RIPPLE_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDuration("RIPPLE_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDuration("RIPPLE_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envInt("RIPPLE_WS_RATE_EVENTS", defaultRateEvents)
	g.rateWindow = envDuration("RIPPLE_WS_RATE_WINDOW", defaultRateWindow)

	return g
}

// Router exposes the gateway's delivery router (used by the app wiring).
func (g *Gateway) Router() *Router { return g.router }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the
// realtime loop: Connecting -> Authenticated -> Active -> Closed.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Identity resolution happens before the upgrade completes: a connection
	// that fails authentication never reaches the registry.
	userID, err := g.resolveIdentity(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "authentication error", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID := rand.Text()
	client := presence.NewConn(userID, sessionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown drives the Active -> Closed transition exactly once, whatever
	// signal got there first (peer close, heartbeat failure, replacement,
	// server shutdown). The guarded unregister decides whether this connection
	// still owns the user's presence; a superseded one broadcasts nothing.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if g.registry.Unregister(client) {
				now := time.Now().UTC()

				// Fresh context: the request context is usually gone by now,
				// and in-process unregistration already happened regardless
				// of how the best-effort persistence below fares.
				dctx, dcancel := context.WithTimeout(context.Background(), wsDisconnectBudget)
				defer dcancel()

				if err := g.records.MarkOffline(dctx, userID, now); err != nil {
					g.log.Warn("presence.record.offline.fail", "user", userID, "err", err)
				}
				g.broadcastPresence(dctx, userID, false, &now)
			}

			metricConnectionsActive.Dec()
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// Last-connection-wins: a newer connection for the same user replaces the
	// prior one. The superseded side is told explicitly, then torn down.
	if prev := g.registry.Register(client); prev != nil {
		payload, _ := json.Marshal(v1.SessionReplacedPayload{})
		replaced := g.newEnvelope(v1.TypeSessionReplaced, payload)
		_ = prev.TrySend(replaced)
		prev.Close()
		g.log.Info("ws.session.replaced", "user", userID, "old_session", prev.SessionID, "new_session", sessionID)
	}
	metricConnectionsActive.Inc()
	g.log.Info("ws.connected", "user", userID, "session_id", sessionID)

	if err := g.records.MarkOnline(ctx, userID, time.Now().UTC()); err != nil {
		g.log.Warn("presence.record.online.fail", "user", userID, "err", err)
	}
	g.broadcastPresence(ctx, userID, true, nil)

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Owns the superseded-connection teardown: flush what is
				// already queued (the session.replaced frame in particular)
				// before the socket goes away, so the signal is not lost to
				// the race between enqueue and close.
				flushQueued(ctx, conn, client, g.writeTimeout)
				shutdown(websocket.StatusPolicyViolation, "session superseded")
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow() {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeMessageSend:
			g.onMessageSend(ctx, client, env, now)

		case v1.TypeTypingStart:
			g.onTyping(client, env, true)

		case v1.TypeTypingStop:
			g.onTyping(client, env, false)

		case v1.TypeHistoryFetch:
			if err := g.onHistoryFetch(ctx, client, env); err != nil {
				g.trySendError(client, "history_failed", err.Error())
				continue readLoop
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// resolveIdentity extracts the handshake credential and runs the identity
// resolver. The credential travels as a query parameter (native clients) or
// an Authorization bearer header.
func (g *Gateway) resolveIdentity(r *http.Request) (string, error) {
	if g.verifier == nil {
		return "", identity.ErrAuthentication
	}

	credential := strings.TrimSpace(r.URL.Query().Get("token"))
	if credential == "" {
		if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
			if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
				credential = strings.TrimSpace(rest)
			}
		}
	}
	if credential == "" {
		return "", identity.ErrAuthentication
	}

	return g.verifier.Resolve(r.Context(), credential, time.Now().UTC())
}

// ---- handlers ----

// onMessageSend runs the persist-then-deliver pipeline. Any failure before
// the store append completes yields a message.failed to the sender only;
// a delivered-but-unpersisted state is impossible.
func (g *Gateway) onMessageSend(ctx context.Context, client *presence.Conn, env v1.Envelope, now time.Time) {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.sendMessageFailed(client, "", "bad_payload", "invalid payload")
		return
	}

	recipient := strings.TrimSpace(p.RecipientID)
	if recipient == "" || recipient == client.UserID {
		g.sendMessageFailed(client, p.ClientMsgID, "invalid_recipient", "recipient must be another user")
		return
	}

	text := strings.TrimSpace(p.Text)
	attachment := strings.TrimSpace(p.Attachment)
	if text == "" && attachment == "" {
		g.sendMessageFailed(client, p.ClientMsgID, "empty_message", "text or attachment required")
		return
	}
	if len([]rune(text)) > maxMessageChars {
		g.sendMessageFailed(client, p.ClientMsgID, "message_too_long", fmt.Sprintf("max %d chars", maxMessageChars))
		return
	}

	conv, err := g.convs.FindOrCreate(ctx, client.UserID, recipient)
	if err != nil {
		g.log.Warn("message.conversation.fail", "user", client.UserID, "err", err)
		g.sendMessageFailed(client, p.ClientMsgID, "persistence_failed", "could not resolve conversation")
		return
	}

	msg, err := g.msgs.Append(ctx, chat.AppendInput{
		ConversationID: conv.ID,
		SenderID:       client.UserID,
		RecipientID:    recipient,
		Text:           text,
		Attachment:     attachment,
		Now:            now,
	})
	if err != nil {
		g.log.Warn("message.append.fail", "user", client.UserID, "conversation", conv.ID, "err", err)
		g.sendMessageFailed(client, p.ClientMsgID, "persistence_failed", "could not store message")
		return
	}
	metricMessagesAppended.Inc()

	payload, _ := json.Marshal(messageToWire(msg))
	receive := g.newEnvelope(v1.TypeMessageReceive, payload)

	// Friendship is not a precondition for direct messaging; only presence
	// fan-out is restricted to friends.
	g.router.Deliver(ctx, recipient, receive, &notify.MessageSummary{
		MessageID: msg.ID,
		SenderID:  client.UserID,
		Excerpt:   notify.Excerpt(text),
	})

	// Echo the stored message back to the sender as the send receipt.
	if !client.TrySend(receive) {
		g.log.Info("message.echo.drop", "user", client.UserID, "message_id", msg.ID)
	}
}

// onTyping forwards a perishable typing signal if the recipient is online and
// drops it silently otherwise. No buffering, no error.
func (g *Gateway) onTyping(client *presence.Conn, env v1.Envelope, isTyping bool) {
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(client, "bad_payload", "invalid payload")
		return
	}

	recipient := strings.TrimSpace(p.RecipientID)
	if recipient == "" || recipient == client.UserID {
		g.trySendError(client, "invalid_recipient", "recipient must be another user")
		return
	}

	conn, ok := g.registry.Lookup(recipient)
	if !ok {
		return
	}

	payload, _ := json.Marshal(v1.TypingStatusPayload{FromUserID: client.UserID, IsTyping: isTyping})
	if conn.TrySend(g.newEnvelope(v1.TypeTypingStatus, payload)) {
		metricTypingRelayed.Inc()
	}
}

// onHistoryFetch serves a snapshot window of a conversation the caller
// participates in, ascending by seq.
func (g *Gateway) onHistoryFetch(ctx context.Context, client *presence.Conn, env v1.Envelope) error {
	var p v1.HistoryFetchPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	var (
		conv  chat.Conversation
		found bool
		err   error
	)

	switch {
	case strings.TrimSpace(p.ConversationID) != "":
		conv, found, err = g.convs.Get(ctx, strings.TrimSpace(p.ConversationID))
		if err != nil {
			return err
		}
		if found && !conv.Has(client.UserID) {
			// Do not reveal whether the conversation exists.
			found = false
		}
	case strings.TrimSpace(p.WithUserID) != "":
		conv, found, err = g.convs.FindByPair(ctx, client.UserID, strings.TrimSpace(p.WithUserID))
		if err != nil {
			return err
		}
	default:
		return errors.New("conversation_id or with_user_id required")
	}

	chunk := v1.HistoryChunkPayload{Messages: []v1.MessagePayload{}}
	if found {
		out, err := g.msgs.ListByConversation(ctx, chat.ListInput{
			ConversationID: conv.ID,
			AfterSeq:       p.AfterSeq,
			Limit:          p.Limit,
		})
		if err != nil {
			return err
		}

		chunk.ConversationID = conv.ID
		chunk.HasMore = out.HasMore
		for _, m := range out.Messages {
			chunk.Messages = append(chunk.Messages, messageToWire(m))
		}
	}

	payload, _ := json.Marshal(chunk)
	if !client.TrySend(g.newEnvelope(v1.TypeHistoryChunk, payload)) {
		return errors.New("backpressure: history chunk")
	}
	return nil
}

// broadcastPresence fans a presence change out to the accepted friends that
// are present in the registry right now. Friends not present are skipped;
// presence is best-effort and never failure-critical.
func (g *Gateway) broadcastPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) {
	set, err := g.friends.AcceptedFriendsOf(ctx, userID)
	if err != nil {
		g.log.Warn("presence.fanout.friends.fail", "user", userID, "err", err)
		return
	}
	if len(set) == 0 {
		return
	}

	payload, _ := json.Marshal(v1.PresenceStatusPayload{
		UserID:   userID,
		IsOnline: online,
		LastSeen: lastSeen,
	})

	for friendID := range set {
		conn, ok := g.registry.Lookup(friendID)
		if !ok {
			continue
		}
		if conn.TrySend(g.newEnvelope(v1.TypePresenceStatus, payload)) {
			metricPresenceFanout.Inc()
		}
	}
}

// ---- send helpers ----

func (g *Gateway) trySendError(client *presence.Conn, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = client.TrySend(g.newEnvelope(v1.TypeError, p))
}

func (g *Gateway) sendMessageFailed(client *presence.Conn, clientMsgID, code, msg string) {
	p, _ := json.Marshal(v1.MessageFailedPayload{ClientMsgID: clientMsgID, Code: code, Message: msg})
	_ = client.TrySend(g.newEnvelope(v1.TypeMessageFailed, p))
}

// ---- envelope IO ----

func (g *Gateway) newEnvelope(typ string, payload json.RawMessage) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      rand.Text(),
		TS:      time.Now().UTC(),
		Payload: payload,
	}
}

func messageToWire(m chat.Message) v1.MessagePayload {
	return v1.MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Text:           m.Text,
		Attachment:     m.Attachment,
		CreatedAt:      m.CreatedAt,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

// flushQueued drains whatever is buffered on the send queue and writes it out,
// stopping at the first write failure. Used on the superseded path, where the
// queued frames must reach the peer before the close frame.
func flushQueued(ctx context.Context, conn *websocket.Conn, client *presence.Conn, timeout time.Duration) {
	for {
		select {
		case env := <-client.Send:
			if err := writeEnvelope(ctx, conn, env, timeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep it strict: only allowlisted hosts.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
