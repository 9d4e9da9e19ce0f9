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
	"golang.org/x/sync/errgroup"

	"github.com/starford/notelock/internal/api"
	"github.com/starford/notelock/internal/guard"
	"github.com/starford/notelock/internal/host"
	"github.com/starford/notelock/internal/i18n"
	"github.com/starford/notelock/internal/index"
	"github.com/starford/notelock/internal/mcpserver"
	"github.com/starford/notelock/internal/noteservice"
	"github.com/starford/notelock/internal/protection"
	"github.com/starford/notelock/internal/sse"
	"github.com/starford/notelock/internal/storage"
	"github.com/starford/notelock/internal/verifier"
	"github.com/starford/notelock/internal/workspace"
)

// vault is the storage, index and protection cache every command shares.
type vault struct {
	store   *storage.FS
	db      *index.DB
	checker *protection.Checker
}

func openVault(cfg *Config, logger *slog.Logger) (*vault, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	checker, err := protection.New(store, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init protection cache: %w", err)
	}
	return &vault{store: store, db: db, checker: checker}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Int("idle_minutes", cfg.Lock.IdleMinutes),
		slog.Bool("auto_encrypt_on_close", cfg.Lock.AutoEncryptOnClose),
		slog.Bool("password_configured", cfg.Lock.PasswordHash != ""))

	v, err := openVault(cfg, logger)
	if err != nil {
		return err
	}
	defer v.db.Close()

	pw, err := verifier.New(cfg.Lock.PasswordHash)
	if err != nil {
		return fmt.Errorf("init verifier: %w", err)
	}
	if !pw.Configured() {
		logger.Warn("no password configured, protected notes cannot be unlocked")
	}

	tr, err := i18n.New(cfg.Lock.Locale)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	ws := workspace.New()
	g := guard.New(v.checker, pw, host.New(ws, broker, tr, cfg.Lock.PasswordHint, logger),
		guard.WithLogger(logger),
		guard.WithPolicy(cfg.Lock.Policy()))
	defer g.Close()

	svc := noteservice.NewService(v.store, v.db, g)
	apiRouter := api.NewRouter(api.Deps{
		Notes:       svc,
		Lock:        g,
		Workspace:   ws,
		Events:      broker,
		SSE:         broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	})

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	eg, egCtx := errgroup.WithContext(ctx)

	// File watcher keeps the protection cache current and notifies clients.
	eg.Go(func() error {
		return index.Watch(egCtx, v.db, v.store, cfg.Vault.Path, logger, func(kind, path string, protected bool) {
			v.checker.Refresh(kind, path, protected)
			broker.PublishNoteEvent(kind, path, protected)
		})
	})

	// Relock notes whose last view was closed in the background.
	eg.Go(func() error {
		return g.RunSweeper(egCtx, cfg.Lock.SweepInterval)
	})

	// Start HTTP server.
	eg.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	eg.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-egCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Returning an error cancels egCtx so the watcher and sweeper stop.
		return errShutdown
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. There is no password prompt
// over stdio, so every protected note stays locked.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	v, err := openVault(app.config, logger)
	if err != nil {
		return err
	}
	defer v.db.Close()

	srv := mcpserver.New(v.store, noteservice.NewService(v.store, v.db, nil), v.checker)
	logger.Info("MCP server starting on stdio", slog.String("vault_path", app.config.Vault.Path))
	return srv.ServeStdio()
}

// SetProtection adds or removes the protection marker on each path
// without starting the server. A running server picks the change up from
// its file watcher.
func SetProtection(ctx context.Context, protect bool, paths []string, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.newLogger()

	v, err := openVault(app.config, logger)
	if err != nil {
		return err
	}
	defer v.db.Close()

	for _, p := range paths {
		if protect {
			err = v.checker.MarkProtected(ctx, p)
		} else {
			err = v.checker.RemoveProtection(ctx, p)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		logger.Info("protection updated", slog.String("path", p), slog.Bool("protected", protect))
	}
	return nil
}
