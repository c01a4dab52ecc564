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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/everzim/internal/api"
	"github.com/starford/everzim/internal/assets"
	"github.com/starford/everzim/internal/backup"
	"github.com/starford/everzim/internal/catalog"
	"github.com/starford/everzim/internal/convert"
	"github.com/starford/everzim/internal/layout"
	"github.com/starford/everzim/internal/markup"
	"github.com/starford/everzim/internal/mcpserver"
	"github.com/starford/everzim/internal/sse"
	"github.com/starford/everzim/internal/storage"
	"github.com/starford/everzim/internal/watcher"
)

func newApplication(w io.Writer, opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}
	return app, nil
}

// newService wires the output store, converter and rewriter. withLayout adds
// the export layout step; the returned closer releases the catalog.
func (a *application) newService(withLayout bool, svcOpts ...backup.ServiceOption) (*backup.Service, func(), error) {
	cfg := a.config
	closer := func() {}

	store, err := storage.NewFS(cfg.Export.Output)
	if err != nil {
		return nil, closer, fmt.Errorf("init storage: %w", err)
	}

	rw := markup.New(store.Root(),
		markup.WithAssetDir(cfg.Rewrite.AssetDir),
		markup.WithImageWidth(cfg.Rewrite.ImageWidth))

	if withLayout && !cfg.Export.InPlace() {
		var cat layout.Catalog
		if cfg.Backup.NotebooksToDirs {
			if cfg.Export.Database == "" {
				a.logger.Warn("No notebook database configured, filing every note as uncategorized")
			} else {
				db, err := catalog.Open(cfg.Export.Database)
				if err != nil {
					return nil, closer, fmt.Errorf("open catalog: %w", err)
				}
				closer = func() { _ = db.Close() }
				cat = db
			}
		}
		b := layout.New(cfg.Export.Path, store, cat, a.logger, layout.WithUncategorized(cfg.Rewrite.AssetDir))
		svcOpts = append(svcOpts, backup.WithLayout(b))
	}
	if a.prompter != nil {
		svcOpts = append(svcOpts, backup.WithPrompter(a.prompter))
	}
	if cfg.Rewrite.FetchRemote {
		svcOpts = append(svcOpts, backup.WithFetcher(assets.New(store, cfg.Rewrite.AssetDir)))
	}

	svc := backup.NewService(store, convert.New(), rw, a.logger, backup.Options{
		Convert: cfg.Backup.Convert(),
		Zim:     cfg.Backup.ZimSyntax,
		Workers: cfg.Backup.Workers,
		OnError: backup.Policy(cfg.Backup.OnError),
	}, svcOpts...)
	return svc, closer, nil
}

// Run performs one backup: organize the export into the output tree and
// convert every note.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stdout, opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("export_path", cfg.Export.Path),
		slog.String("database", cfg.Export.Database),
		slog.String("output", cfg.Export.Output),
		slog.Bool("notebooks_to_dirs", cfg.Backup.NotebooksToDirs),
		slog.Bool("to_markdown", cfg.Backup.ToMarkdown),
		slog.Bool("zim_syntax", cfg.Backup.ZimSyntax),
		slog.Bool("fetch_remote", cfg.Rewrite.FetchRemote),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if cfg.Export.InPlace() {
		logger.Warn("Output is the export directory, notes are converted in place")
	}

	svc, closeCatalog, err := app.newService(true)
	if err != nil {
		return err
	}
	defer closeCatalog()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := svc.Run(ctx)
	if err != nil {
		logger.Error("Backup failed",
			slog.Int("converted", stats.Converted),
			slog.Int("failed", stats.Failed),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Serve starts the HTTP API and the inbox watcher.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stdout, opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("output", cfg.Export.Output),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Nobody can answer a prompt behind a server.
	cfg.Backup.OnError = OnErrorSkip
	svc, closeCatalog, err := app.newService(false,
		backup.WithEvents(broker.PublishNoteEvent),
		backup.WithRunObserver(broker))
	if err != nil {
		return err
	}
	defer closeCatalog()

	// Convert whatever is already waiting in the output tree.
	if _, err := svc.Run(ctx); err != nil {
		logger.Warn("initial conversion failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(svc, cfg, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		handle, root, err := inboxHandler(gCtx, svc, cfg.Watch.Path, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Watch(gCtx, root, logger, handle)
		})
	}

	// Start HTTP server.
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

		logger.Info("Shutting down server...")

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

// errShutdown stops the errgroup once the HTTP server has shut down, so the
// watcher exits with it.
var errShutdown = errors.New("shutdown")

func newHTTPHandler(svc *backup.Service, cfg *Config, broker http.Handler) http.Handler {
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
		if _, err := os.Stat(svc.Store().Root()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"output unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	return r
}

// inboxHandler returns the directory to watch and what to do with each note
// that shows up there. Notes in the output root are converted where they
// are; notes in a separate inbox are moved into the output root first.
func inboxHandler(ctx context.Context, svc *backup.Service, inboxPath string, logger *slog.Logger) (watcher.HandleFunc, string, error) {
	root := svc.Store().Root()
	if inboxPath != "" {
		abs, err := filepath.Abs(inboxPath)
		if err != nil {
			return nil, "", fmt.Errorf("resolve inbox: %w", err)
		}
		if abs != root {
			return moveFromInbox(ctx, svc, abs, logger)
		}
	}
	return func(rel string) {
		if _, err := svc.ConvertFile(ctx, rel); err != nil {
			logger.Warn("watcher: convert failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}, root, nil
}

func moveFromInbox(ctx context.Context, svc *backup.Service, inboxPath string, logger *slog.Logger) (watcher.HandleFunc, string, error) {
	inbox, err := storage.NewFS(inboxPath)
	if err != nil {
		return nil, "", fmt.Errorf("init inbox: %w", err)
	}
	return func(rel string) {
		data, err := inbox.Read(rel)
		if err != nil {
			logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if _, err := svc.Import(ctx, rel, data); err != nil {
			logger.Warn("watcher: convert failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if err := inbox.Delete(rel); err != nil {
			logger.Warn("watcher: inbox cleanup failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}, inbox.Root(), nil
}

// ServeMCP serves the conversion tools over stdio. Logs go to stderr since
// stdout carries the protocol.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts)
	if err != nil {
		return err
	}

	svc, closeCatalog, err := app.newService(false)
	if err != nil {
		return err
	}
	defer closeCatalog()

	app.logger.Info("MCP server starting on stdio", slog.String("output", app.config.Export.Output))
	return mcpserver.New(svc, nil).ServeStdio()
}
