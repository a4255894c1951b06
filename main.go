package main

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

	"golang.org/x/sync/errgroup"

	"github.com/whisper-darkly/coodo-backend/config"
	"github.com/whisper-darkly/coodo-backend/manager"
	"github.com/whisper-darkly/coodo-backend/router"
	"github.com/whisper-darkly/coodo-backend/session"
	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/store/memory"
	"github.com/whisper-darkly/coodo-backend/store/postgres"
	"github.com/whisper-darkly/coodo-backend/store/redis"
	"github.com/whisper-darkly/coodo-backend/store/sqlite"
	"github.com/whisper-darkly/coodo-backend/telemetry"
	"github.com/whisper-darkly/coodo-backend/user"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("config")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := telemetry.Init(cfg.Log); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	slog.Info("coodo-backend starting", "version", version, "store", cfg.Store.Driver)

	secret, err := session.LoadOrCreateSecret(cfg.Session.SecretFile)
	if err != nil {
		return fmt.Errorf("session secret: %w", err)
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	registry := manager.NewRegistry(st, cfg.TodoHandler.Interval())
	sessions := session.NewManager(st, secret, session.TTL)

	srv := &http.Server{
		Addr: cfg.App.Addr(),
		Handler: router.New(router.Deps{
			Store:    st,
			Registry: registry,
			Sessions: sessions,
			Users:    user.NewHandleGenerator(),
		}),
		// No blanket read/write timeouts: websocket connections are
		// long-lived and manage their own per-frame deadlines.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Backends without native expiry need expired sessions swept; for the
	// rest this is a no-op.
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := st.DeleteExpiredSessions(ctx); err != nil {
					slog.Warn("session sweep", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		// Final flush of every live list happens here.
		registry.Close()
		return nil
	})

	return g.Wait()
}

// openStore selects the persistence backend from configuration.
func openStore(ctx context.Context, cfg config.StoreSettings) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Postgres.URI)
	case "redis":
		return redis.Open(ctx, redis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path)
	case "memory":
		return memory.Open(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
