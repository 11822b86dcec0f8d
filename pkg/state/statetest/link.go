// Package statetest provides an in-memory transport link for tests.
package statetest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/pkg/state"
)

// Link records writes instead of touching a socket. Send, Ping and Close
// behavior are scriptable per test.
type Link struct {
	id uuid.UUID

	mu          sync.Mutex
	frames      [][]byte
	sendErr     error
	pingFn      func(ctx context.Context) error
	closed      bool
	closeReason error
}

var _ state.Link = (*Link)(nil)

func NewLink() *Link {
	return &Link{id: uuid.New()}
}

func (l *Link) ID() uuid.UUID { return l.id }

func (l *Link) Send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.frames = append(l.frames, cp)
	return nil
}

func (l *Link) Ping(ctx context.Context) error {
	l.mu.Lock()
	fn := l.pingFn
	l.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (l *Link) Close(reason error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.closeReason = reason
}

// FailSends makes every subsequent Send return err.
func (l *Link) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// PingFunc overrides the default always-pong probe behavior.
func (l *Link) PingFunc(fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pingFn = fn
}

// Frames returns a copy of everything written so far.
func (l *Link) Frames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.frames))
	copy(out, l.frames)
	return out
}

func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
