// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/landchain/internal/api"
	"github.com/starford/landchain/internal/hashchain"
	"github.com/starford/landchain/internal/inbox"
	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/mcpserver"
	"github.com/starford/landchain/internal/metrics"
	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/registry"
	"github.com/starford/landchain/internal/sse"
	"github.com/starford/landchain/internal/storage"
)

// Run starts the HTTP server, the SSE broker and the inbox watcher, and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("photos_path", cfg.Photos.Path),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.Bool("seed_samples", cfg.Ledger.SeedSamples),
		slog.String("log_level", cfg.App.LogLevel.String()))

	backend, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	store, err := photos.New(cfg.Photos.Path, cfg.Photos.MaxBytes)
	if err != nil {
		return fmt.Errorf("init photos: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The broker only asks for stats after a registration, by which point
	// svc is set.
	var svc *registry.Service
	broker := sse.NewBroker(2*time.Second, sse.WithStats(func() any { return svc.Stats() }))
	defer broker.Close()

	svc, err = app.openRegistry(ctx, backend, logger,
		registry.WithMetrics(metrics.New(promReg)),
		registry.WithPublisher(broker),
	)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(flushCtx); err != nil {
			logger.Error("ledger flush failed", slog.String("error", err.Error()))
		}
	}()

	apiRouter := api.NewRouter(svc, store, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.VerifyChain(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"chain broken"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	r.Mount("/api", apiRouter)
	r.Get("/photos/{ref}", store.ServeHTTP)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled() {
		in, err := inbox.New(cfg.Inbox.Path, svc, logger, func(name string, outcome inbox.Outcome) {
			logger.Debug("inbox: handled",
				slog.String("file", name),
				slog.String("outcome", string(outcome)))
		})
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		g.Go(func() error {
			return in.Watch(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	backend, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	store, err := photos.New(cfg.Photos.Path, cfg.Photos.MaxBytes)
	if err != nil {
		return fmt.Errorf("init photos: %w", err)
	}

	svc, err := app.openRegistry(ctx, backend, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Error("ledger flush failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc, store).ServeStdio()
}

// ChainReport is the outcome of an offline chain audit.
type ChainReport struct {
	Height int
	Head   string
}

// VerifyChain loads the configured ledger and audits it without seeding,
// backfilling or writing anything.
func VerifyChain(ctx context.Context, opts ...Option) (ChainReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return ChainReport{}, err
	}
	logger := app.logger()

	backend, err := storage.Open(ctx, app.config.Storage.Options())
	if err != nil {
		return ChainReport{}, fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	l, err := ledger.Open(ctx, backend, ledger.WithLogger(logger))
	if err != nil {
		return ChainReport{}, err
	}
	if err := l.VerifyChain(); err != nil {
		return ChainReport{}, err
	}
	report := ChainReport{Height: l.Len(), Head: hashchain.Genesis}
	if all := l.All(); len(all) > 0 {
		report.Head = all[len(all)-1].BlockHash
	}
	return report, nil
}

func (a *application) openRegistry(ctx context.Context, backend storage.Backend, logger *slog.Logger, extra ...registry.Option) (*registry.Service, error) {
	opts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithSeedSamples(a.config.Ledger.SeedSamples),
	}
	if a.now != nil {
		opts = append(opts, registry.WithClock(a.now))
	}
	svc, err := registry.Open(ctx, backend, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}
	logger.Info("Ledger loaded",
		slog.Int("records", svc.Stats().TotalProperties),
		slog.Int("certificates", svc.Stats().TotalCertificates))
	return svc, nil
}
