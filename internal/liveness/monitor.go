package liveness

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/pkg/state"
)

const DefaultPeriod = 30 * time.Second

// Monitor detects half-open connections the transport close event never
// reports. Each cycle it clears every connection's liveness flag and sends
// a transport ping; the pong restores the flag. A connection still cleared
// at the next cycle failed one full probe round and is evicted. Two
// strikes, terminal.
type Monitor struct {
	registry    state.Registry
	metrics     *metrics.Metrics
	logger      *slog.Logger
	period      time.Duration
	pingTimeout time.Duration
}

func NewMonitor(logger *slog.Logger, registry state.Registry, m *metrics.Metrics, period time.Duration) *Monitor {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Monitor{
		registry:    registry,
		metrics:     m,
		logger:      logger.With(slog.String("component", "liveness_monitor")),
		period:      period,
		pingTimeout: period,
	}
}

// Start runs probe cycles until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(ctx)
			case <-ctx.Done():
				m.logger.Info("Liveness monitor stopped")
				return
			}
		}
	}()
	m.logger.Info("Liveness monitor started", slog.Duration("period", m.period))
}

// sweep runs one probe cycle over a snapshot of the registry.
func (m *Monitor) sweep(ctx context.Context) {
	for _, link := range m.registry.AllLinks() {
		wasAlive, ok := m.registry.BeginProbe(link.ID())
		if !ok {
			// unregistered between snapshot and probe
			continue
		}
		if !wasAlive {
			m.evict(link, "missed pong")
			continue
		}
		go m.probe(ctx, link)
	}
}

func (m *Monitor) probe(ctx context.Context, link state.Link) {
	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()

	err := link.Ping(pingCtx)
	switch {
	case err == nil:
		m.registry.MarkAlive(link.ID())
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// no pong yet; the flag stays cleared and the next sweep decides
	default:
		// probe could not even be sent
		m.evict(link, "ping failed")
	}
}

func (m *Monitor) evict(link state.Link, cause string) {
	m.logger.Info("Evicting dead connection",
		slog.String("connID", link.ID().String()),
		slog.String("cause", cause),
	)
	m.registry.Unregister(link.ID())
	link.Close(errors.New("liveness probe failed"))
	m.metrics.EvictionsTotal.WithLabelValues("liveness").Inc()
}
