package dispatch

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/pkg/protocol"
	"github.com/qg-furioso/realtime/pkg/state"
)

// Dispatcher resolves a logical target (connection, user, channel,
// everyone) into concrete socket writes. Every operation is fire and
// forget: absence of a recipient is not an error, and a write failure on
// one connection never blocks delivery to the rest.
type Dispatcher struct {
	registry state.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, registry state.Registry, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		metrics:  m,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// SendToConnection writes the envelope to a single connection. Unknown or
// unwritable connections are a silent no-op.
func (d *Dispatcher) SendToConnection(connID uuid.UUID, env protocol.Envelope) {
	link, ok := d.registry.Link(connID)
	if !ok {
		return
	}
	frame, err := env.Encode()
	if err != nil {
		d.logger.Error("Failed to encode envelope", slog.String("event", string(env.Type)), slog.Any("error", err))
		return
	}
	d.write(link, env.Type, frame)
}

// Broadcast writes the envelope to every registered connection,
// authenticated or not.
func (d *Dispatcher) Broadcast(env protocol.Envelope) {
	d.fanOut(d.registry.AllLinks(), env)
}

// SendToChannel writes the envelope to every connection subscribed to the
// channel.
func (d *Dispatcher) SendToChannel(channel string, env protocol.Envelope) {
	d.fanOut(d.registry.ChannelLinks(channel), env)
}

// SendToUser fans the envelope out to all of the user's live connections,
// one write per tab or device.
func (d *Dispatcher) SendToUser(userID string, env protocol.Envelope) {
	d.fanOut(d.registry.UserLinks(userID), env)
}

func (d *Dispatcher) fanOut(links []state.Link, env protocol.Envelope) {
	if len(links) == 0 {
		return
	}
	frame, err := env.Encode()
	if err != nil {
		d.logger.Error("Failed to encode envelope", slog.String("event", string(env.Type)), slog.Any("error", err))
		return
	}
	for _, link := range links {
		d.write(link, env.Type, frame)
	}
}

// write performs one best-effort delivery. A failed write means the peer
// is gone: the connection is evicted and the fault swallowed.
func (d *Dispatcher) write(link state.Link, event protocol.EventType, frame []byte) {
	if err := link.Send(frame); err != nil {
		d.logger.Debug("Evicting connection after failed write",
			slog.String("connID", link.ID().String()),
			slog.Any("error", err),
		)
		d.registry.Unregister(link.ID())
		link.Close(err)
		d.metrics.EvictionsTotal.WithLabelValues("write_failure").Inc()
		return
	}
	d.metrics.EnvelopesSent.WithLabelValues(string(event)).Inc()
}
