// Package app provides the top-level application lifecycle of the swap-arb
// bot. It wires together all dependencies (Redis, venues, execution,
// supervision, publishing and the HTTP API) and runs them as one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swaparb/internal/config"
)

// shutdownGrace bounds the final flushes after the workers stop.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app"), slog.String("bot_id", cfg.BotID)),
	}
}

// Run wires all dependencies, takes the bot's lease, loads the strategy
// config and runs every worker until ctx is cancelled or one of them fails.
// A health-triggered halt surfaces as an error wrapping
// domain.ErrTradingHalted.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("venues", len(a.cfg.Venues)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := deps.Lease.Acquire(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, deps.Lease.Release)

	// The first load subscribes the collectors and applies leverage.
	if _, err := deps.Watcher.Reload(ctx); err != nil {
		return fmt.Errorf("app: initial config load: %w", err)
	}
	reconciler, err := deps.reconciler(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Lease.Run(gctx) })
	for _, v := range deps.Venues {
		g.Go(func() error { return ignoreCanceled(v.collector.Run(gctx)) })
		g.Go(func() error { return ignoreCanceled(v.normalizer.Run(gctx, v.collector.Events())) })
		g.Go(func() error { return ignoreCanceled(v.poller.Run(gctx)) })
	}
	g.Go(func() error { return ignoreCanceled(reconciler.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(deps.Dispatcher.RunCleanup(gctx)) })
	g.Go(func() error { return ignoreCanceled(deps.Watcher.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(deps.Publisher.Run(gctx)) })
	if deps.Series != nil {
		g.Go(func() error { return ignoreCanceled(deps.Series.Run(gctx)) })
	}
	if deps.Server != nil {
		g.Go(func() error { return deps.Server.Run(gctx) })
	}
	g.Go(func() error { return ignoreCanceled(deps.Bot.Run(gctx)) })

	err = g.Wait()
	a.drain(deps)
	return err
}

// drain lets in-flight orders report and pushes out buffered state.
func (a *App) drain(deps *Dependencies) {
	deps.Dispatcher.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := deps.Publisher.PublishOnce(ctx); err != nil {
		a.logger.Warn("final state publish failed", slog.String("error", err.Error()))
	}
	deps.Publisher.FlushArchive(ctx)
	if deps.Series != nil {
		if _, err := deps.Series.Flush(ctx); err != nil {
			a.logger.Warn("final series flush failed", slog.String("error", err.Error()))
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
