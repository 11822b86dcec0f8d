package state

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrAlreadyRegistered  = errors.New("connection is already registered")
	ErrAlreadyBound       = errors.New("connection is already bound to a user")
)

// Registry is the authoritative store of live connections, their
// subscription channels and the user-to-connection index.
type Registry interface {
	// --- Connection lifecycle ---
	Register(link Link, remoteAddr string) (*Connection, error)
	// Unregister removes the connection and its user-index entry.
	// Idempotent: unknown ids are a no-op.
	Unregister(connID uuid.UUID)
	Get(connID uuid.UUID) (*Connection, bool)
	Count() int

	// --- Identity binding ---
	// Bind performs the one-time link of a connection to a user identity.
	// A second bind on the same connection returns ErrAlreadyBound.
	Bind(connID uuid.UUID, userID string) (*Connection, error)

	// --- Subscriptions ---
	Subscribe(connID uuid.UUID, channel string) error

	// --- Dispatch resolution (read-only, lock-consistent snapshots) ---
	AllLinks() []Link
	ChannelLinks(channel string) []Link
	UserLinks(userID string) []Link
	Link(connID uuid.UUID) (Link, bool)

	// --- Liveness bookkeeping ---
	// MarkAlive records a pong for the connection.
	MarkAlive(connID uuid.UUID)
	// BeginProbe clears the liveness flag and reports whether the
	// connection had answered since the previous probe cycle.
	BeginProbe(connID uuid.UUID) (wasAlive bool, ok bool)
}
