package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(userID string, buffer int) *Client {
	return newClient(userID, nil, Config{SendBuffer: buffer}.withDefaults())
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	r := NewRegistry()
	first := testClient("u1", 1)
	second := testClient("u1", 1)

	assert.Nil(t, r.Register("u1", first))
	assert.Same(t, first, r.Register("u1", second))
	assert.Nil(t, r.Register("u1", second), "re-registering the same client is a no-op")
	assert.Equal(t, 1, r.Count())

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.False(t, r.Deregister("u1", first), "a replaced connection cannot remove its successor")
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Deregister("u1", second))
	assert.False(t, r.Deregister("u1", second))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Push(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Push("nobody", []byte("x")))

	c := testClient("u1", 1)
	r.Register("u1", c)
	assert.True(t, r.Push("u1", []byte("a")))
	assert.False(t, r.Push("u1", []byte("b")), "full queue drops")
	assert.Equal(t, []byte("a"), <-c.send)

	c.Close()
	assert.False(t, r.Push("u1", []byte("c")), "closed client drops")
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	a, b := testClient("a", 1), testClient("b", 1)
	r.Register("a", a)
	r.Register("b", b)
	r.CloseAll()
	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("client %s not closed", c.UserID())
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{PongWait: 10, PingPeriod: 20}.withDefaults()
	assert.Less(t, cfg.PingPeriod, cfg.PongWait)
	assert.Equal(t, defaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, int64(defaultReadLimit), cfg.ReadLimit)
}
