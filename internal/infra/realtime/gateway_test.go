package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/infra/security"
)

// loopbackBroker delivers straight into the registry, like a single-process broker.
type loopbackBroker struct {
	registry *Registry

	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	live         map[string]bool
	failDeliver  error

	// when set, Unsubscribe signals unsubscribing and waits for resume
	unsubscribing chan struct{}
	resume        chan struct{}
}

func (b *loopbackBroker) Subscribe(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, userID)
	if b.live == nil {
		b.live = map[string]bool{}
	}
	b.live[userID] = true
	return nil
}

func (b *loopbackBroker) Unsubscribe(ctx context.Context, userID string) error {
	if b.resume != nil {
		b.unsubscribing <- struct{}{}
		<-b.resume
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, userID)
	delete(b.live, userID)
	return nil
}

func (b *loopbackBroker) isLive(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[userID]
}

func (b *loopbackBroker) Deliver(ctx context.Context, userID string, msg dto.OutboundMessage) error {
	b.mu.Lock()
	fail := b.failDeliver
	b.mu.Unlock()
	if fail != nil {
		return fail
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.registry.Push(userID, data)
	return nil
}

func (b *loopbackBroker) unsubscribedUsers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unsubscribed...)
}

type verifierFunc func(ctx context.Context, token string) (security.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (security.Identity, error) {
	return f(ctx, token)
}

type handlerFunc func(ctx context.Context, actorID string, env dto.EventEnvelope) error

func (f handlerFunc) Handle(ctx context.Context, actorID string, env dto.EventEnvelope) error {
	return f(ctx, actorID, env)
}

type harness struct {
	server   *httptest.Server
	registry *Registry
	broker   *loopbackBroker
	gateway  *Gateway
	calls    chan string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{registry: NewRegistry(), calls: make(chan string, 16)}
	h.broker = &loopbackBroker{registry: h.registry}

	echo := handlerFunc(func(ctx context.Context, actorID string, env dto.EventEnvelope) error {
		h.calls <- actorID + ":" + env.Type
		switch env.Type {
		case "FAIL":
			return apperr.Conflict("date already booked")
		case "PANIC":
			panic("boom")
		}
		return h.broker.Deliver(ctx, actorID, dto.OutboundMessage{Type: dto.MessageBooking, Action: env.Type, Payload: json.RawMessage(env.Payload)})
	})

	h.gateway = NewGateway(GatewayDeps{
		Registry: h.registry,
		Broker:   h.broker,
		Verifier: verifierFunc(func(ctx context.Context, token string) (security.Identity, error) {
			if !strings.HasPrefix(token, "tok-") {
				return security.Identity{}, security.ErrTokenInvalid
			}
			return security.Identity{UserID: strings.TrimPrefix(token, "tok-")}, nil
		}),
		Handlers: map[dto.MessageType]FrameHandler{dto.MessageBooking: echo, dto.MessageChat: echo},
		Config:   Config{AllowedOrigins: []string{"http://localhost:3000"}},
	})
	r := gin.New()
	r.GET("/ws", h.gateway.Serve)
	h.server = httptest.NewServer(r)
	t.Cleanup(func() {
		h.gateway.Close()
		h.server.Close()
	})
	return h
}

func (h *harness) url(query string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws" + query
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url("?token=tok-"+user), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) waitRegistered(t *testing.T, user string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup(user)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func send(t *testing.T, conn *websocket.Conn, event, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame := dto.InboundFrame{Event: dto.MessageType(event), Data: dto.EventEnvelope{Type: typ, Payload: raw}}
	require.NoError(t, conn.WriteJSON(frame))
}

type received struct {
	Type    string          `json:"type"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_RejectsBeforeUpgrade(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.url("?token=garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(h.url("?token=tok-u1"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Equal(t, 0, h.registry.Count())
}

func TestGateway_BearerHeaderAndAllowedOrigin(t *testing.T) {
	h := newHarness(t)
	header := http.Header{
		"Origin":        []string{"http://localhost:3000"},
		"Authorization": []string{"Bearer tok-u1"},
	}
	conn, _, err := websocket.DefaultDialer.Dial(h.url(""), header)
	require.NoError(t, err)
	defer conn.Close()
	h.waitRegistered(t, "u1")
}

func TestGateway_RoutesFramesInOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	h.waitRegistered(t, "u1")

	send(t, conn, "BOOKING", "CREATED", map[string]any{"n": 1})
	send(t, conn, "CHAT", "SENT", map[string]any{"n": 2})

	first := read(t, conn)
	assert.Equal(t, "CREATED", first.Action)
	assert.JSONEq(t, `{"n":1}`, string(first.Payload))
	second := read(t, conn)
	assert.Equal(t, "SENT", second.Action)

	assert.Equal(t, "u1:CREATED", <-h.calls)
	assert.Equal(t, "u1:SENT", <-h.calls)
}

func TestGateway_DropsMalformedAndUnknownFrames(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	h.waitRegistered(t, "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, conn, "PAYMENT", "CREATED", map[string]any{})
	send(t, conn, "BOOKING", "CREATED", map[string]any{"n": 3})

	msg := read(t, conn)
	assert.Equal(t, "BOOKING", msg.Type, "nothing was sent back for the dropped frames")
	assert.Equal(t, "u1:CREATED", <-h.calls)
	assert.Empty(t, h.calls)
}

func TestGateway_ErrorBoundary(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	h.waitRegistered(t, "u1")

	send(t, conn, "BOOKING", "FAIL", map[string]any{})
	msg := read(t, conn)
	assert.Equal(t, "ERROR", msg.Type)
	var payload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, http.StatusBadRequest, payload.Status)
	assert.Equal(t, "date already booked", payload.Details)

	send(t, conn, "BOOKING", "PANIC", map[string]any{})
	msg = read(t, conn)
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, http.StatusInternalServerError, payload.Status)
	assert.NotContains(t, payload.Details, "boom")

	send(t, conn, "BOOKING", "CREATED", map[string]any{})
	assert.Equal(t, "CREATED", read(t, conn).Action, "the connection survives a panic")
}

func TestGateway_ErrorFallsBackToDirectWrite(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	h.waitRegistered(t, "u1")

	h.broker.mu.Lock()
	h.broker.failDeliver = errors.New("redis down")
	h.broker.mu.Unlock()

	send(t, conn, "BOOKING", "FAIL", map[string]any{})
	assert.Equal(t, "ERROR", read(t, conn).Type)
}

func TestGateway_DisconnectDeregisters(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	h.waitRegistered(t, "u1")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.broker.unsubscribedUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_ReplacedConnection(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "u1")
	h.waitRegistered(t, "u1")
	old, _ := h.registry.Lookup("u1")

	second := h.dial(t, "u1")
	require.Eventually(t, func() bool {
		cur, _ := h.registry.Lookup("u1")
		return cur != old
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.broker.Deliver(context.Background(), "u1", dto.OutboundMessage{Type: dto.MessageChat, Action: "SENT"}))
	assert.Equal(t, "SENT", read(t, second).Action)

	require.NoError(t, first.Close())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Count(), "closing the replaced socket keeps the new one")
	assert.Empty(t, h.broker.unsubscribedUsers())
}

func TestGateway_ReconnectDuringUnsubscribeStaysSubscribed(t *testing.T) {
	h := newHarness(t)
	h.broker.unsubscribing = make(chan struct{}, 1)
	h.broker.resume = make(chan struct{})

	first := h.dial(t, "u1")
	h.waitRegistered(t, "u1")
	require.NoError(t, first.Close())

	select {
	case <-h.broker.unsubscribing:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe never started")
	}
	second := h.dial(t, "u1")
	// give the reconnect a chance to register while the old unsubscribe is in flight
	time.Sleep(50 * time.Millisecond)
	close(h.broker.resume)

	h.waitRegistered(t, "u1")
	require.Eventually(t, func() bool { return h.broker.isLive("u1") }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, h.broker.isLive("u1"), "live connection must keep its channel")

	require.NoError(t, h.broker.Deliver(context.Background(), "u1", dto.OutboundMessage{Type: dto.MessageChat, Action: "SENT"}))
	assert.Equal(t, "SENT", read(t, second).Action)
}

func TestUserLocks_SerializePerUser(t *testing.T) {
	locks := newUserLocks()
	locks.lock("u1")

	other := make(chan struct{})
	go func() {
		locks.lock("u2")
		locks.unlock("u2")
		close(other)
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("a different user must not wait")
	}

	same := make(chan struct{})
	go func() {
		locks.lock("u1")
		locks.unlock("u1")
		close(same)
	}()
	select {
	case <-same:
		t.Fatal("same user acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}
	locks.unlock("u1")
	<-same
	assert.Empty(t, locks.locks)
}

func TestTokenFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "abc", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, tokenFrom(r))
}
