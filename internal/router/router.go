package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/internal/dispatch"
	"github.com/qg-furioso/realtime/internal/identity"
	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/pkg/protocol"
	"github.com/tidwall/gjson"
)

// Router handles every inbound frame: envelope decoding, the authenticate
// handshake and application-level ping. Protocol faults are reported back
// to the sender as error envelopes; the connection survives them.
type Router struct {
	binder     *identity.Binder
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewRouter(logger *slog.Logger, binder *identity.Binder, dispatcher *dispatch.Dispatcher, m *metrics.Metrics) *Router {
	return &Router{
		binder:     binder,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With(slog.String("component", "router")),
	}
}

// HandleMessage is wired as the transport's per-frame callback.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, frame []byte) {
	r.metrics.EnvelopesReceived.Inc()

	// cheap peek at the type tag first; only frames carrying a known type
	// are worth a full decode
	tag := gjson.GetBytes(frame, "type").String()
	if !protocol.Known(protocol.EventType(tag)) {
		r.logger.Debug("Rejected inbound frame",
			slog.String("connID", connID.String()),
			slog.String("type", tag),
		)
		r.fault(connID, "bad_envelope", "malformed or unknown envelope")
		return
	}

	env, err := protocol.Decode(frame)
	if err != nil {
		r.logger.Debug("Rejected inbound frame",
			slog.String("connID", connID.String()),
			slog.String("type", tag),
			slog.Any("error", err),
		)
		r.fault(connID, "bad_envelope", "malformed or unknown envelope")
		return
	}

	switch env.Type {
	case protocol.EventAuthenticate:
		var p protocol.AuthenticatePayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				r.fault(connID, "bad_payload", "authenticate payload must be {token}")
				return
			}
		}
		r.binder.Authenticate(connID, p.Token)

	case protocol.EventPing:
		r.dispatcher.SendToConnection(connID, protocol.MustNew(protocol.EventPong, nil))

	default:
		// server-originated events are not accepted from clients
		r.fault(connID, "unsupported_event", "event cannot be sent by clients: "+string(env.Type))
	}
}

func (r *Router) fault(connID uuid.UUID, code, message string) {
	r.metrics.ProtocolFaults.Inc()
	r.dispatcher.SendToConnection(connID, protocol.MustNew(protocol.EventError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
