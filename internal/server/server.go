// Package server assembles the HTTP + WebSocket API for the auction house.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/server/handler"
	"github.com/alanyoungcy/auctionhouse/internal/server/middleware"
	"github.com/alanyoungcy/auctionhouse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per second per client IP. Zero disables
	// rate limiting even when a limiter is supplied.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Faucet is nil unless the dev faucet is enabled.
type Handlers struct {
	Health      *handler.HealthHandler
	Listings    *handler.ListingHandler
	Credits     *handler.CreditHandler
	Settlements *handler.SettlementHandler
	Faucet      *handler.FaucetHandler
}

// Server is the headless HTTP + WebSocket API server for the auction house.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS, auth) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listing and bidding endpoints.
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.Unlist)
	mux.HandleFunc("POST /api/listings/{id}/bids", handlers.Listings.PlaceBid)
	mux.HandleFunc("POST /api/listings/{id}/settle", handlers.Listings.Settle)
	mux.HandleFunc("POST /api/listings/{id}/take", handlers.Listings.TakeHighestBid)
	mux.HandleFunc("POST /api/listings/{id}/claim", handlers.Listings.ClaimAsset)

	// Credit ledger endpoints.
	mux.HandleFunc("GET /api/credits/{account}", handlers.Credits.GetCredit)
	mux.HandleFunc("POST /api/credits/withdraw", handlers.Credits.Withdraw)
	mux.HandleFunc("POST /api/fees/withdraw", handlers.Credits.WithdrawFees)

	// Settlement history and status.
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListRecent)
	mux.HandleFunc("GET /api/status", handlers.Settlements.GetStatus)

	// Dev faucet (memory backends only).
	if handlers.Faucet != nil {
		mux.HandleFunc("POST /api/dev/funds", handlers.Faucet.MintFunds)
		mux.HandleFunc("POST /api/dev/assets", handlers.Faucet.MintAsset)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
