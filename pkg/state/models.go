package state

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChannelGlobal is the implicit subscription every connection holds from
// the moment it is registered.
const ChannelGlobal = "global"

// ChannelUser names the private channel a connection joins when it is
// bound to a user identity.
func ChannelUser(userID string) string {
	return "user:" + userID
}

// Link is the transport handle the registry owns for each connection. The
// concrete implementation lives in pkg/transport; tests substitute fakes.
type Link interface {
	ID() uuid.UUID
	// Send queues one outbound frame. It returns an error when the link is
	// no longer writable; delivery itself is best-effort.
	Send(frame []byte) error
	// Ping issues a transport-level liveness probe and blocks until the
	// peer answers or ctx expires.
	Ping(ctx context.Context) error
	// Close tears the link down; safe to call more than once.
	Close(reason error)
}

// Connection is the registry's record of a single live transport session.
// All fields are mutated only under the registry's locks.
type Connection struct {
	ID            uuid.UUID
	RemoteAddr    string
	Transport     Link
	Alive         bool
	Authenticated bool
	UserID        string
	Subscriptions map[string]struct{}
	CreatedAt     time.Time
}
