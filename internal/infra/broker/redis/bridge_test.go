package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/dto"
	"gigsocket/internal/infra/obs"
)

type recordingSink struct {
	mu        sync.Mutex
	connected map[string]bool
	got       map[string][][]byte
}

func newSink(users ...string) *recordingSink {
	s := &recordingSink{connected: map[string]bool{}, got: map[string][][]byte{}}
	for _, u := range users {
		s.connected[u] = true
	}
	return s
}

func (s *recordingSink) Push(userID string, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected[userID] {
		return false
	}
	s.got[userID] = append(s.got[userID], data)
	return true
}

func (s *recordingSink) received(userID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.got[userID]...)
}

type bridgeFixture struct {
	mr      *miniredis.Miniredis
	bridge  *Bridge
	metrics *obs.Metrics
}

func newBridge(t *testing.T, sink Sink) *bridgeFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	client, err := Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	metrics := obs.NewMetrics()
	b := NewBridge(ctx, client, sink, metrics, nil)
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
		_ = client.Close()
	})
	return &bridgeFixture{mr: mr, bridge: b, metrics: metrics}
}

func waitSubscribers(t *testing.T, mr *miniredis.Miniredis, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_DeliverReachesSubscribedUser(t *testing.T) {
	sink := newSink("u1")
	f := newBridge(t, sink)
	ctx := context.Background()

	require.NoError(t, f.bridge.Subscribe(ctx, "u1"))
	waitSubscribers(t, f.mr, "user:u1", 1)

	msg := dto.OutboundMessage{Type: dto.MessageChat, Action: "SENT", Payload: map[string]string{"id": "m1"}}
	require.NoError(t, f.bridge.Deliver(ctx, "u1", msg))

	require.Eventually(t, func() bool { return len(sink.received("u1")) == 1 }, 2*time.Second, 10*time.Millisecond)
	var got map[string]any
	require.NoError(t, json.Unmarshal(sink.received("u1")[0], &got))
	assert.Equal(t, "CHAT", got["type"])
	assert.Equal(t, "SENT", got["action"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Deliveries.WithLabelValues("CHAT", "published")))
}

func TestBridge_UnsubscribeStopsDelivery(t *testing.T) {
	sink := newSink("u1")
	f := newBridge(t, sink)
	ctx := context.Background()

	require.NoError(t, f.bridge.Subscribe(ctx, "u1"))
	waitSubscribers(t, f.mr, "user:u1", 1)
	require.NoError(t, f.bridge.Unsubscribe(ctx, "u1"))
	waitSubscribers(t, f.mr, "user:u1", 0)

	require.NoError(t, f.bridge.Deliver(ctx, "u1", dto.OutboundMessage{Type: dto.MessageChat}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.received("u1"))
}

func TestBridge_MissIsCounted(t *testing.T) {
	sink := newSink()
	f := newBridge(t, sink)
	ctx := context.Background()

	require.NoError(t, f.bridge.Subscribe(ctx, "gone"))
	waitSubscribers(t, f.mr, "user:gone", 1)
	f.mr.Publish("user:gone", `{"type":"CHAT"}`)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.DroppedDelivery) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_PublishFailure(t *testing.T) {
	f := newBridge(t, newSink())
	f.mr.Close()
	err := f.bridge.Deliver(context.Background(), "u1", dto.OutboundMessage{Type: dto.MessageBooking})
	assert.Error(t, err)
}

func TestUserFromChannel(t *testing.T) {
	id, ok := userFromChannel("user:abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = userFromChannel("user:")
	assert.False(t, ok)
	_, ok = userFromChannel("media:abc")
	assert.False(t, ok)
}
