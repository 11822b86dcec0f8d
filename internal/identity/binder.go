package identity

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/internal/dispatch"
	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/pkg/protocol"
	"github.com/qg-furioso/realtime/pkg/state"
)

// Binder performs the one-time linkage of an anonymous connection to a
// user identity. Connections start anonymous; an authenticate envelope
// carrying a session token promotes them. Failure leaves the connection
// anonymous and fully functional for global broadcasts.
type Binder struct {
	registry   state.Registry
	dispatcher *dispatch.Dispatcher
	verifier   TokenVerifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewBinder(logger *slog.Logger, registry state.Registry, dispatcher *dispatch.Dispatcher, verifier TokenVerifier, m *metrics.Metrics) *Binder {
	return &Binder{
		registry:   registry,
		dispatcher: dispatcher,
		verifier:   verifier,
		metrics:    m,
		logger:     logger.With(slog.String("component", "identity_binder")),
	}
}

// Authenticate resolves the credential and binds the connection. The
// outcome is reported back to that single connection as authSuccess or
// authFailure; the call itself never fails upward.
func (b *Binder) Authenticate(connID uuid.UUID, token string) {
	if token == "" {
		b.reject(connID, "missing credential")
		return
	}

	userID, err := b.verifier.Verify(token)
	if err != nil {
		b.logger.Warn("Credential rejected", slog.String("connID", connID.String()), slog.Any("error", err))
		b.reject(connID, "invalid credential")
		return
	}

	if _, err := b.registry.Bind(connID, userID); err != nil {
		switch {
		case errors.Is(err, state.ErrAlreadyBound):
			// Re-authentication on a live connection is rejected rather
			// than silently re-binding.
			b.reject(connID, "already authenticated")
		case errors.Is(err, state.ErrConnectionNotFound):
			// Connection raced its own close; nothing to report to.
		default:
			b.logger.Error("Bind failed", slog.String("connID", connID.String()), slog.Any("error", err))
			b.reject(connID, "internal error")
		}
		return
	}

	b.metrics.AuthResults.WithLabelValues("success").Inc()
	b.logger.Info("Connection authenticated",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
	b.dispatcher.SendToConnection(connID, protocol.MustNew(protocol.EventAuthSuccess, protocol.AuthSuccessPayload{UserID: userID}))
}

func (b *Binder) reject(connID uuid.UUID, reason string) {
	b.metrics.AuthResults.WithLabelValues("failure").Inc()
	b.dispatcher.SendToConnection(connID, protocol.MustNew(protocol.EventAuthFailure, protocol.AuthFailurePayload{Reason: reason}))
}
