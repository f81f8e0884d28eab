package friends

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheDefaultSize = 4096
	cacheDefaultTTL  = 30 * time.Second
)

// CachedGraph wraps a Graph with a short-TTL LRU. Presence fan-out tolerates
// brief staleness, so a friendship accepted a moment ago may miss one
// broadcast; it never leaks events to non-friends for longer than the TTL.
type CachedGraph struct {
	next  Graph
	cache *expirable.LRU[string, map[string]struct{}]
}

// NewCachedGraph wraps next with an expiring LRU cache.
func NewCachedGraph(next Graph, size int, ttl time.Duration) *CachedGraph {
	if size <= 0 {
		size = cacheDefaultSize
	}
	if ttl <= 0 {
		ttl = cacheDefaultTTL
	}
	return &CachedGraph{
		next:  next,
		cache: expirable.NewLRU[string, map[string]struct{}](size, nil, ttl),
	}
}

// AcceptedFriendsOf serves from cache when fresh, otherwise queries next.
// Errors are never cached.
func (c *CachedGraph) AcceptedFriendsOf(ctx context.Context, userID string) (map[string]struct{}, error) {
	if set, ok := c.cache.Get(userID); ok {
		return set, nil
	}

	set, err := c.next.AcceptedFriendsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, set)
	return set, nil
}
