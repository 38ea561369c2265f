// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/starford/staffreg/internal/api"
	"github.com/starford/staffreg/internal/ingest"
	"github.com/starford/staffreg/internal/mcpserver"
	"github.com/starford/staffreg/internal/record"
	"github.com/starford/staffreg/internal/registry"
	"github.com/starford/staffreg/internal/sse"
	"github.com/starford/staffreg/internal/staffservice"
	"github.com/starford/staffreg/internal/storage"
)

// ErrCheckFailed is returned by Check when any line or file was rejected.
var ErrCheckFailed = errors.New("check failed")

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// newService opens the source directory and loads it into a fresh registry.
func newService(cfg *Config, logger *slog.Logger) (*staffservice.Service, *storage.FS, error) {
	if err := os.MkdirAll(cfg.Source.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create source dir: %w", err)
	}
	store, err := storage.NewOSFS(cfg.Source.Dir, cfg.Source.Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	reg := registry.New(registry.WithLogger(logger))
	svc := staffservice.NewService(store, reg, cfg.Source.Separator(), logger)

	if _, err := svc.Reload(context.Background(), true); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}
	return svc, store, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_dir", cfg.Source.Dir),
		slog.String("source_extension", cfg.Source.Extension),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, store, err := newService(cfg, logger)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(cfg.Watch.ReloadThrottle)
	defer broker.Close()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Sources(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"source directory unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return ingest.Watch(gCtx, store, cfg.Watch.Debounce, logger, func(path string) {
				broker.PublishSourceChanged(path)
				res, err := svc.Reload(gCtx, false)
				if err != nil {
					logger.Warn("reload after change failed", slog.String("path", path), slog.String("error", err.Error()))
					return
				}
				if res.Changed {
					broker.PublishReload(res)
				}
			})
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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
		// Stops the watcher as well.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context once the server has stopped.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to stderr because stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	svc, store, err := newService(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Watch.Enabled {
		go func() {
			err := ingest.Watch(ctx, store, cfg.Watch.Debounce, logger, func(string) {
				if _, err := svc.Reload(ctx, false); err != nil {
					logger.Warn("reload after change failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	return mcpserver.New(svc, app.version).ServeStdio()
}

// Check loads the given files into an empty registry, prints every record as
// a table followed by the problems found, and returns ErrCheckFailed if any
// file or line was rejected.
func Check(_ context.Context, paths []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, slog.LevelError)

	reg := registry.New(registry.WithLogger(logger))
	rep := ingest.LoadFiles(reg, afero.NewOsFs(), paths, cfg.Source.Separator(), logger)

	fmt.Fprintln(app.out, record.Header())
	for _, rec := range reg.Records(reg.All()) {
		fmt.Fprintln(app.out, rec.Render())
	}
	for _, d := range rep.Diagnostics {
		fmt.Fprintln(app.out, d.Error())
	}
	fmt.Fprintf(app.out, "%d loaded, %d rejected, %d unreadable\n",
		rep.Loaded, rep.Failed(), len(rep.Unavailable()))

	if len(rep.Diagnostics) > 0 {
		return ErrCheckFailed
	}
	return nil
}
