package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qg-furioso/realtime/internal/dispatch"
	"github.com/qg-furioso/realtime/internal/identity"
	"github.com/qg-furioso/realtime/internal/liveness"
	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/internal/router"
	"github.com/qg-furioso/realtime/internal/server/middleware"
	"github.com/qg-furioso/realtime/pkg/config"
	"github.com/qg-furioso/realtime/pkg/state"
	"github.com/qg-furioso/realtime/pkg/state/statemanager"
	"github.com/qg-furioso/realtime/pkg/transport"
)

// App is the realtime fan-out service: one explicitly constructed instance
// per process, handed to the REST layer at startup. No module-level state.
type App struct {
	logger     *slog.Logger
	registry   state.Registry
	dispatcher *dispatch.Dispatcher
	binder     *identity.Binder
	monitor    *liveness.Monitor
	router     *router.Router
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
	http       *http.Server
	config     *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, verifier identity.TokenVerifier) *App {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	registry := statemanager.NewInMemoryRegistry(logger)
	dispatcher := dispatch.NewDispatcher(logger, registry, m)
	binder := identity.NewBinder(logger, registry, dispatcher, verifier, m)
	monitor := liveness.NewMonitor(logger, registry, m, cfg.Heartbeat.Period)
	eventRouter := router.NewRouter(logger, binder, dispatcher, m)

	app := &App{
		logger:     logger,
		registry:   registry,
		dispatcher: dispatcher,
		binder:     binder,
		monitor:    monitor,
		router:     eventRouter,
		metrics:    m,
		config:     cfg,
		ctx:        rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewRateLimiter(logger, middleware.RateLimitConfig{
				PerIPRate:  cfg.Server.RateLimit.PerIPRate,
				PerIPBurst: cfg.Server.RateLimit.PerIPBurst,
			}),
		),
	)
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

// Dispatcher exposes the fan-out API the REST handlers call after business
// mutations.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Run serves until the root context is cancelled, then shuts down.
func (a *App) Run() error {
	a.monitor.Start(a.ctx)

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	var remoteAddr string
	if reqMeta != nil {
		remoteAddr = reqMeta.IP
	}
	connLogger := a.logger.With(slog.String("remoteAddr", remoteAddr))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			WriteTimeout: a.config.Transport.WriteTimeout,
			SendBuffer:   a.config.Transport.SendBuffer,
		},
		a.logger,
	)

	// connections are admitted anonymously; identity arrives in-band
	if _, err := a.registry.Register(conn, remoteAddr); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	a.metrics.ConnectionsTotal.Inc()
	a.metrics.ConnectionsActive.Inc()

	conn.SetOnMessageHandler(a.router.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Debug("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.registry.Unregister(id)
		a.metrics.ConnectionsActive.Dec()
	})

	connLogger.Info("Connection established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful teardown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active connections
	a.logger.Info("Closing all active connections...")
	for _, link := range a.registry.AllLinks() {
		link.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
