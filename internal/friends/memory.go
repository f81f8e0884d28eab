package friends

import (
	"context"
	"sync"
)

// MemoryGraph is an in-memory Graph for dev mode and tests.
type MemoryGraph struct {
	mu    sync.RWMutex
	peers map[string]map[string]struct{}
}

// NewMemoryGraph constructs an empty in-memory Graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{peers: make(map[string]map[string]struct{})}
}

// AddAccepted records an accepted friendship between a and b (both directions).
func (g *MemoryGraph) AddAccepted(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		set := g.peers[pair[0]]
		if set == nil {
			set = make(map[string]struct{})
			g.peers[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

// Remove deletes the friendship between a and b, if any.
func (g *MemoryGraph) Remove(a, b string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.peers[a], b)
	delete(g.peers[b], a)
}

// AcceptedFriendsOf returns a copy of userID's accepted-friend set.
func (g *MemoryGraph) AcceptedFriendsOf(_ context.Context, userID string) (map[string]struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]struct{}, len(g.peers[userID]))
	for id := range g.peers[userID] {
		out[id] = struct{}{}
	}
	return out, nil
}
