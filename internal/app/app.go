package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zoner/backend/internal/config"
	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/handlers"
	"github.com/zoner/backend/internal/httpserver"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/middleware"
)

const sweepTimeout = 5 * time.Minute

// Run bootstraps the Zoner backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or cleanup")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "cleanup":
		return runCleanup(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: lvl}))
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error("cleanup dependencies", "error", err)
		}
	}()

	scheduler, err := startSweeper(cfg.CleanupSchedule, deps, logger)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps.HTTP)

	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.AppPort, cfg.HTTP, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "storage", cfg.ObjectStore.Driver, "redis", cfg.Redis.Addr != "")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return srv.Drain(ctx)
}

// startSweeper schedules the expired status and session sweeps.
func startSweeper(schedule string, deps components, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		ctx = logging.WithLogger(ctx, logger.With("job", "expiry-sweep"))
		sweep(ctx, deps)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

func sweep(ctx context.Context, deps components) {
	logger := logging.FromContext(ctx)

	removed, err := deps.Statuses.CleanupExpired(ctx)
	if err != nil {
		logger.Error("delete expired statuses", "error", err)
	} else {
		logger.Info("deleted expired statuses", "count", removed)
	}

	purged, err := deps.Sessions.PurgeExpired(ctx)
	if err != nil {
		logger.Error("purge expired sessions", "error", err)
	} else if purged > 0 {
		logger.Info("purged expired sessions", "count", purged)
	}
}

func runCleanup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup(context.Background()) }()

	removed, err := deps.Statuses.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d expired statuses\n", removed)
	return nil
}
