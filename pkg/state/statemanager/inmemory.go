package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/pkg/state"
)

// InMemoryRegistry owns all connection state for a single process. The
// fan-out design is deliberately in-process only; scaling out means putting
// an external relay in front of each instance, not sharing this store.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*state.Connection
	users map[string]map[uuid.UUID]*state.Connection

	logger *slog.Logger
}

// compile-time check to ensure InMemoryRegistry implements Registry.
var _ state.Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry(logger *slog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]map[uuid.UUID]*state.Connection),
		logger: logger.With(slog.String("component", "registry_inmemory")),
	}
}

func (r *InMemoryRegistry) Register(link state.Link, remoteAddr string) (*state.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := link.ID()
	if _, exists := r.conns[connID]; exists {
		return nil, state.ErrAlreadyRegistered
	}
	conn := &state.Connection{
		ID:            connID,
		RemoteAddr:    remoteAddr,
		Transport:     link,
		Alive:         true,
		Subscriptions: map[string]struct{}{state.ChannelGlobal: {}},
		CreatedAt:     time.Now(),
	}
	r.conns[connID] = conn
	r.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

func (r *InMemoryRegistry) Unregister(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		// already unregistered
		return
	}
	delete(r.conns, connID)

	if conn.Authenticated {
		if index, ok := r.users[conn.UserID]; ok {
			delete(index, connID)
			if len(index) == 0 {
				delete(r.users, conn.UserID)
			}
		}
	}
	r.logger.Debug("Connection unregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", conn.UserID),
	)
}

func (r *InMemoryRegistry) Get(connID uuid.UUID) (*state.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *InMemoryRegistry) Bind(connID uuid.UUID, userID string) (*state.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, state.ErrConnectionNotFound
	}
	if conn.Authenticated {
		return nil, state.ErrAlreadyBound
	}

	conn.Authenticated = true
	conn.UserID = userID
	conn.Subscriptions[state.ChannelUser(userID)] = struct{}{}

	index, exists := r.users[userID]
	if !exists {
		index = make(map[uuid.UUID]*state.Connection)
		r.users[userID] = index
	}
	index[connID] = conn

	r.logger.Debug("Connection bound to user",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
	return conn, nil
}

func (r *InMemoryRegistry) Subscribe(connID uuid.UUID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return state.ErrConnectionNotFound
	}
	conn.Subscriptions[channel] = struct{}{}
	return nil
}

// AllLinks returns a snapshot so a handler unregistering a connection
// mid-broadcast cannot corrupt the caller's iteration.
func (r *InMemoryRegistry) AllLinks() []state.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := make([]state.Link, 0, len(r.conns))
	for _, conn := range r.conns {
		links = append(links, conn.Transport)
	}
	return links
}

func (r *InMemoryRegistry) ChannelLinks(channel string) []state.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var links []state.Link
	for _, conn := range r.conns {
		if _, subscribed := conn.Subscriptions[channel]; subscribed {
			links = append(links, conn.Transport)
		}
	}
	return links
}

func (r *InMemoryRegistry) UserLinks(userID string) []state.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, ok := r.users[userID]
	if !ok {
		return nil
	}
	links := make([]state.Link, 0, len(index))
	for _, conn := range index {
		links = append(links, conn.Transport)
	}
	return links
}

func (r *InMemoryRegistry) Link(connID uuid.UUID) (state.Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return conn.Transport, true
}

func (r *InMemoryRegistry) MarkAlive(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		conn.Alive = true
	}
}

func (r *InMemoryRegistry) BeginProbe(connID uuid.UUID) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false, false
	}
	wasAlive := conn.Alive
	conn.Alive = false
	return wasAlive, true
}
