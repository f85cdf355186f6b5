package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionhouse/internal/server"
	"github.com/alanyoungcy/auctionhouse/internal/server/handler"
	"github.com/alanyoungcy/auctionhouse/internal/server/ws"
)

// archiveInterval is how often the archive loop ships old settlements.
const archiveInterval = 24 * time.Hour

// ServeMode runs the API server, the WebSocket hub, and (when configured) a
// periodic settlement archival loop.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub bridges the event bus to connected clients.
	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Listings:    handler.NewListingHandler(deps.Service, a.logger),
		Credits:     handler.NewCreditHandler(deps.Service, a.logger),
		Settlements: handler.NewSettlementHandler(deps.Service, a.logger),
	}

	if a.cfg.Engine.DevFaucet {
		if deps.MemGateway != nil && deps.MemRegistry != nil {
			handlers.Faucet = handler.NewFaucetHandler(deps.MemGateway, deps.MemRegistry, a.logger)
			a.logger.WarnContext(ctx, "dev faucet enabled; do not expose this server publicly")
		} else {
			a.logger.WarnContext(ctx, "dev faucet requested but unavailable with the eth registry backend")
		}
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	// Periodic archival when enabled alongside serving.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// ArchiveMode runs a single archival pass and exits. Intended for cron-style
// scheduling.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: blob storage is not configured")
	}

	return a.archiveOnce(ctx, deps)
}

// archiveLoop ships old settlements to blob storage on a daily cadence.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archiveOnce(ctx, deps); err != nil {
				a.logger.ErrorContext(ctx, "settlement archival failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetainDays)

	count, err := deps.Archiver.ArchiveSettlements(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive settlements: %w", err)
	}

	a.logger.InfoContext(ctx, "settlements archived",
		slog.Int("count", count),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
