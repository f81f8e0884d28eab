// Package identity resolves opaque connection credentials to stable user
// identities. It is the only component that sees raw tokens; everything
// downstream works with resolved user IDs.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrAuthentication is returned for any bad, missing, or expired credential.
// It is fatal to the connection that presented it.
var ErrAuthentication = errors.New("identity: authentication failed")

// Verifier resolves a handshake credential to a user identity.
type Verifier interface {
	// Resolve returns the user ID the credential belongs to, or
	// ErrAuthentication. Implementations must not distinguish failure causes
	// to callers beyond the sentinel; details belong in logs.
	Resolve(ctx context.Context, credential string, now time.Time) (string, error)
}
