package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrClosed is returned by Send once the connection has shut down.
var ErrClosed = errors.New("connection closed")

// ErrSlowConsumer is returned by Send when the outbound queue is full.
var ErrSlowConsumer = errors.New("send queue full")

// MessageHandler is the callback executed for every inbound frame.
type MessageHandler func(ctx context.Context, connID uuid.UUID, frame []byte)

// CloseHandler runs exactly once when the connection terminates.
type CloseHandler func(connID uuid.UUID, err error)

// Socket is the subset of *websocket.Conn the connection drives. Tests
// substitute in-memory fakes.
type Socket interface {
	Reader(ctx context.Context) (websocket.MessageType, io.Reader, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type ConnectionConfig struct {
	// ReadTimeout bounds how long the peer may go without sending a data
	// frame. Zero disables it; heartbeat probes decide liveness then.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Connection wraps one WebSocket session with a fresh id, a buffered
// outbound queue and dedicated read/write pumps. Outbound frames are
// delivered in Send call order.
type Connection struct {
	id     uuid.UUID
	sock   Socket
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, sock Socket, config ConnectionConfig, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	wg.Add(1)
	return &Connection{
		id:     id,
		sock:   sock,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

// Run starts the pumps. Handlers must be set before calling it.
func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Debug("connection established")
}

func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx := c.ctx
		var cancelRead context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancelRead = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		}
		typ, r, err := c.sock.Reader(readCtx)
		if err != nil {
			if cancelRead != nil {
				cancelRead()
			}
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			if cancelRead != nil {
				cancelRead()
			}
			continue
		}
		frame, err := io.ReadAll(r)
		if cancelRead != nil {
			cancelRead()
		}
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, frame)
		}
	}
}

func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.sock.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(c.ctx, c.config.WriteTimeout)
			err := c.sock.Write(writeCtx, websocket.MessageText, frame)
			cancelWrite()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.sock.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}
	}
}

// Send queues one outbound frame without blocking. It fails once the
// connection is closed or its queue is saturated; the caller treats
// either as a dead peer.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Ping probes the peer at the transport level and blocks until the pong
// arrives or ctx expires. Invisible to the envelope protocol.
func (c *Connection) Ping(ctx context.Context) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	return c.sock.Ping(ctx)
}

// Close shuts the connection down exactly once and fires the close handler.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("transport connection closing", slog.Any("reason", err))

		c.cancel()
		c.sock.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done is closed when the connection has fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler CloseHandler) {
	c.onClose = handler
}
