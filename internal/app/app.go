// Package app provides the top-level application lifecycle for the
// marketplace service. It wires stores, caches, chain collaborators, and the
// HTTP surface together and runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/config"
	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/market"
	"github.com/collect9/c9market/internal/server"
	"github.com/collect9/c9market/internal/server/handler"
	"github.com/collect9/c9market/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// service goroutines, and blocks until the context is cancelled or a
// component fails. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Market core.
	opts := []market.Option{market.WithBank(deps.Bank)}
	if deps.SignalBus != nil {
		opts = append(opts, market.WithSignalBus(deps.SignalBus))
	}
	mkt := market.New(
		market.Config{
			MinFloorCents:   domain.USDCents(a.cfg.Market.MinFloorCents),
			MaxCeilingCents: domain.USDCents(a.cfg.Market.MaxCeilingCents),
		},
		deps.Listings,
		deps.Purchases,
		deps.State,
		deps.Oracle,
		deps.Registry,
		market.StaticAuthorizer{Admin: common.HexToAddress(a.cfg.Market.AdminAddress)},
		a.logger,
		opts...,
	)
	quotes := market.NewQuoteService(mkt, deps.QuoteCache, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub, only meaningful with a signal bus behind it.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})

		// Purchase notifications ride the same bus.
		fanout := newPurchaseFanout(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			return fanout.Run(ctx)
		})
	}

	// HTTP API.
	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:   handler.NewHealthHandler(a.cfg.Mode),
			Listings: handler.NewListingHandler(mkt, quotes, deps.LockManager, a.logger),
			Purchase: handler.NewPurchaseHandler(mkt, deps.LockManager, a.logger),
			Admin:    handler.NewAdminHandler(mkt, deps.LockManager, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, handlers, hub, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Periodic purchase-history archival.
	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps, retention, interval)
		})
	}

	err = g.Wait()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// runArchiveLoop exports and prunes aged purchase rows on a fixed interval.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies, retention, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			n, err := deps.Archiver.ArchiveBefore(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "purchase archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archived purchases",
					slog.Int("count", n),
					slog.Time("cutoff", cutoff),
				)
			}
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
