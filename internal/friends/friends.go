// Package friends is the read-only accessor over the friendship store.
// The friend-request lifecycle itself lives in the account service; this
// package only answers "who are this user's accepted friends".
package friends

import "context"

// Graph answers accepted-friendship queries.
type Graph interface {
	// AcceptedFriendsOf returns the set of user IDs with an accepted
	// friendship to userID. Callers must not mutate the returned set.
	AcceptedFriendsOf(ctx context.Context, userID string) (map[string]struct{}, error)
}
