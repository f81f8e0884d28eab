// Package presence tracks which users are connected right now. The Registry
// is the single source of truth for in-process delivery decisions; the
// persisted record store only backs the best-effort "last seen" feature.
package presence

import "sync"

// Registry maps user IDs to their single authoritative live connection.
// A user appears at most once; a newer connection replaces the older one.
// All operations are atomic with respect to each other.
type Registry struct {
	mu     sync.Mutex
	online map[string]*Conn
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{online: make(map[string]*Conn)}
}

// Register inserts or replaces the entry for conn.UserID and returns the
// superseded connection, if any. The caller decides how to close it.
func (r *Registry) Register(conn *Conn) (prev *Conn) {
	if conn == nil || conn.UserID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.online[conn.UserID]
	if prev == conn {
		prev = nil
	}
	r.online[conn.UserID] = conn
	return prev
}

// Unregister removes the entry for conn.UserID only if conn is still the
// registered connection. A stale disconnect from a superseded connection
// must not clobber the newer registration; the guard makes that race benign.
func (r *Registry) Unregister(conn *Conn) bool {
	if conn == nil || conn.UserID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.online[conn.UserID] != conn {
		return false
	}
	delete(r.online, conn.UserID)
	return true
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.online[userID]
	return c, ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.online)
}
