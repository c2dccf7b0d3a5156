// Package server provides the service lifecycle runner for the console.
// cmd/console delegates to server.Run for signal handling, config loading,
// observability init, health checks, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/newsdesk/console/internal/config"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/observability"
)

// SetupDeps is what Run hands to a service's Setup hook.
type SetupDeps struct {
	Config *config.Config
	Logger *slog.Logger
	// Router already serves /healthz. Setup mounts the service routes on it.
	Router chi.Router
}

// SetupFunc wires a service into the runner. The returned cleanup runs after
// the HTTP server has drained and before telemetry is flushed.
type SetupFunc func(ctx context.Context, deps SetupDeps) (cleanup func(context.Context) error, err error)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "console").
	Name string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// Setup is optional.
	Setup SetupFunc
}

// Run executes the full service lifecycle: signal handling, config loading,
// observability initialization, HTTP server with health checks, and graceful
// shutdown. If ln is non-nil, it is used instead of creating a new listener
// from config (enables port-0 testing).
func Run(ctx context.Context, p Params, ln net.Listener) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Structured logging with secret redaction
	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: telemetry -> service setup -> HTTP server ---

	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	cleanup := func(context.Context) error { return nil }
	if p.Setup != nil {
		c, setupErr := p.Setup(ctx, SetupDeps{Config: cfg, Logger: logger, Router: router})
		if setupErr != nil {
			flushTelemetry(logger, telemetry)
			return fmt.Errorf("setup %s: %w", p.Name, setupErr)
		}
		if c != nil {
			cleanup = c
		}
	}

	// Bind listener (use injected listener or create from config).
	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			_ = cleanup(context.Background())
			flushTelemetry(logger, telemetry)
			return fmt.Errorf("listen: %w", err)
		}
	}

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: domain.AuthTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	// Goroutine 1: Serve HTTP
	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	// Goroutine 2: shutdown trigger. Waits for context cancellation, then drains.
	// Shutdown order is explicit reverse of startup: HTTP server -> service -> telemetry.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Mark shutting down: health checks return 503
		shuttingDown.Store(true)

		// 2. Drain delay: let load balancer propagate endpoint removal
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Drain HTTP server
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Release service resources
		if cleanupErr := cleanup(httpCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}

		// 5. Flush OTEL
		flushTelemetry(logger, telemetry)

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func flushTelemetry(logger *slog.Logger, t *observability.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		logger.Error("failed to flush telemetry", slog.String("error", err.Error()))
	}
}
