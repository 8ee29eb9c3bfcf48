package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevemurr/simple-record-server/config"
	"github.com/stevemurr/simple-record-server/handler"
	"github.com/stevemurr/simple-record-server/lifecycle"
	"github.com/stevemurr/simple-record-server/store"
)

// Serve flags
var (
	serveHost  string
	servePort  string
	serveWatch bool
	logLevel   string
)

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default 0.0.0.0, $HOST)")
	cmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (default 3000, $PORT)")
	cmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the document when it is edited on disk ($WATCH)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error ($LOG_LEVEL)")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	backend, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	engine := lifecycle.New(st, lifecycle.WithLogger(logger.With("component", "lifecycle")))

	if cfg.Watch {
		jb, ok := backend.(*store.JSONFileBackend)
		if !ok {
			return fmt.Errorf("watch requires the json backend")
		}
		w, err := store.NewWatcher(jb.Path(), reloadIfChanged(jb, engine), logger.With("component", "watcher"))
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Close()
	}

	var h http.Handler = handler.New(engine, logger)
	h = handler.WithCORS(h, cfg.AllowedOrigins)
	h = handler.WithRequestLog(h, logger.With("component", "http"))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "backend", cfg.Backend, "data", cfg.DataFile)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// openStore builds the configured backend and loads the store from it.
// A document that cannot be read is fatal.
func openStore(cfg config.Config) (store.Backend, *store.Store, error) {
	backend, err := store.NewBackend(cfg.Backend, cfg.DataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store (backend=%s): %w", cfg.Backend, err)
	}
	st := store.New(backend, store.WithCreateIfMissing(cfg.CreateIfMissing))
	if err := st.Load(); err != nil {
		if c, ok := backend.(io.Closer); ok {
			c.Close()
		}
		return nil, nil, fmt.Errorf("failed to load store from %s: %w", cfg.DataFile, err)
	}
	return backend, st, nil
}

// reloadIfChanged skips the watcher events caused by the server's own writes.
func reloadIfChanged(b *store.JSONFileBackend, e *lifecycle.Engine) store.ReloadFunc {
	return func() error {
		changed, err := b.Changed()
		if err != nil || !changed {
			return err
		}
		return e.Reload()
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
