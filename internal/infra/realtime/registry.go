package realtime

import "sync"

// Registry maps a user id to the connection that currently receives that
// user's deliveries on this process. The last registered connection wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register makes c the live connection for userID and returns the one it
// replaced, if any. The replaced connection is not closed.
func (r *Registry) Register(userID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[userID]
	r.clients[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

// Deregister removes userID only while c is still its live connection and
// reports whether it did.
func (r *Registry) Deregister(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[userID]; !ok || cur != c {
		return false
	}
	delete(r.clients, userID)
	return true
}

func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// Push queues data on the user's live connection. It returns false when the
// user has no connection here or its queue is full.
func (r *Registry) Push(userID string, data []byte) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return c.Enqueue(data)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every registered connection.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}
