// Package service coordinates the auction engine with persistence and event
// fan-out. The engine's in-memory state is authoritative; the service
// serializes mutating operations, writes snapshots through the stores after
// each commit, and publishes the engine's events.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/auction"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

const (
	// engineLockKey is the distributed lock serializing mutating
	// operations across replicas.
	engineLockKey = "auction-engine"
	engineLockTTL = 15 * time.Second
)

// Stores groups the optional persistence backends. Nil fields disable the
// corresponding write-through.
type Stores struct {
	Listings    domain.ListingStore
	Credits     domain.CreditStore
	Settlements domain.SettlementStore
}

// AuctionService exposes the engine's operations with process-level
// serialization, persistence write-through, and event publication.
type AuctionService struct {
	mu        sync.Mutex
	engine    *auction.Engine
	collector *EventCollector
	stores    Stores
	bus       domain.EventBus
	locks     domain.LockManager
	logger    *slog.Logger
}

// NewAuctionService creates the service. The collector must be the sink the
// engine was constructed with. bus and locks may be nil.
func NewAuctionService(engine *auction.Engine, collector *EventCollector, stores Stores, bus domain.EventBus, locks domain.LockManager, logger *slog.Logger) *AuctionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuctionService{
		engine:    engine,
		collector: collector,
		stores:    stores,
		bus:       bus,
		locks:     locks,
		logger:    logger.With(slog.String("component", "service")),
	}
}

// List creates a listing for the asset.
func (s *AuctionService) List(ctx context.Context, asset domain.AssetID, seller common.Address, minPrice, buyNowPrice *big.Int) error {
	return s.mutate(ctx, asset, func() error {
		return s.engine.List(ctx, asset, seller, minPrice, buyNowPrice)
	})
}

// PlaceBid places a bid on the asset. A bid that meets the buy-now price
// settles the sale, and that settlement is persisted like any other.
func (s *AuctionService) PlaceBid(ctx context.Context, asset domain.AssetID, bidder common.Address, amount *big.Int) error {
	return s.mutate(ctx, asset, func() error {
		rec, err := s.engine.PlaceBid(ctx, asset, bidder, amount)
		if err == nil && rec != nil {
			s.persistSettlement(ctx, *rec)
		}
		return err
	})
}

// Unlist withdraws the listing, refunding any outstanding bid.
func (s *AuctionService) Unlist(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	return s.mutate(ctx, asset, func() error {
		return s.engine.Unlist(ctx, asset, caller)
	})
}

// Settle completes a timed auction.
func (s *AuctionService) Settle(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := s.mutate(ctx, asset, func() error {
		var err error
		rec, err = s.engine.Settle(ctx, asset, caller)
		if err == nil {
			s.persistSettlement(ctx, rec)
		}
		return err
	})
	return rec, err
}

// TakeHighestBid settles early at the seller's request.
func (s *AuctionService) TakeHighestBid(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := s.mutate(ctx, asset, func() error {
		var err error
		rec, err = s.engine.TakeHighestBid(ctx, asset, caller)
		if err == nil {
			s.persistSettlement(ctx, rec)
		}
		return err
	})
	return rec, err
}

// ClaimAsset pulls a pending asset claim.
func (s *AuctionService) ClaimAsset(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	return s.mutate(ctx, asset, func() error {
		return s.engine.ClaimAsset(ctx, asset, caller)
	})
}

// Withdraw pays out the caller's pending credit balance.
func (s *AuctionService) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	var amount *big.Int
	err := s.mutate(ctx, 0, func() error {
		var err error
		amount, err = s.engine.Withdraw(ctx, caller)
		return err
	})
	return amount, err
}

// WithdrawFees pays accumulated platform fees to the engine owner.
func (s *AuctionService) WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error) {
	var amount *big.Int
	err := s.mutate(ctx, 0, func() error {
		var err error
		amount, err = s.engine.WithdrawFees(ctx, caller)
		return err
	})
	return amount, err
}

// --- Read side ---

// GetListing returns the live listing and current bid from engine state.
func (s *AuctionService) GetListing(ctx context.Context, asset domain.AssetID) (domain.Listing, *domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.engine.Listing(asset)
	if !ok {
		return domain.Listing{}, nil, fmt.Errorf("service: listing %d: %w", asset, domain.ErrNotFound)
	}
	var bid *domain.Bid
	if b, ok := s.engine.HighestBid(asset); ok {
		bid = &b
	}
	return l, bid, nil
}

// ListActive returns live listings from the store (engine state has no
// ordering).
func (s *AuctionService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	if s.stores.Listings == nil {
		return nil, fmt.Errorf("service: listing store not configured")
	}
	return s.stores.Listings.ListActive(ctx, opts)
}

// CreditOf returns the account's pending credit balance.
func (s *AuctionService) CreditOf(ctx context.Context, account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.CreditOf(account)
}

// PendingClaim returns the account entitled to pull the asset, if any.
func (s *AuctionService) PendingClaim(ctx context.Context, asset domain.AssetID) (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.PendingClaim(asset)
}

// Status reports the engine's fund-accounting position.
type Status struct {
	AccruedFees *big.Int `json:"accruedFees"`
	Obligations *big.Int `json:"obligations"`
	Solvent     bool     `json:"solvent"`
}

// Status returns accrued fees, total obligations, and the solvency check
// against the fund gateway's custody balance.
func (s *AuctionService) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		AccruedFees: s.engine.AccruedFees(),
		Obligations: s.engine.Obligations(),
		Solvent:     s.engine.CheckSolvency(ctx) == nil,
	}
}

// RecentSettlements returns recent settlement history.
func (s *AuctionService) RecentSettlements(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	if s.stores.Settlements == nil {
		return nil, fmt.Errorf("service: settlement store not configured")
	}
	return s.stores.Settlements.ListRecent(ctx, limit)
}

// --- Internals ---

// mutate serializes a state-mutating engine call, then fans out events and
// persists affected state. asset 0 means the operation is not tied to a
// listing (credit withdrawals).
func (s *AuctionService) mutate(ctx context.Context, asset domain.AssetID, op func() error) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, engineLockKey, engineLockTTL)
		if err != nil {
			return fmt.Errorf("service: %w", err)
		}
		defer unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opErr := op()
	events := s.collector.Drain()
	if opErr != nil {
		// Validation failures mutate nothing and emit nothing; a failed
		// buy-now may still have refunded the buyer, so publish whatever
		// was emitted.
		s.fanOut(ctx, events)
		return opErr
	}

	if asset != 0 {
		s.persistListing(ctx, asset)
	}
	s.persistCredits(ctx, events)
	s.fanOut(ctx, events)
	return nil
}

// persistListing writes the asset's current listing snapshot, deleting the
// row once the listing is gone.
func (s *AuctionService) persistListing(ctx context.Context, asset domain.AssetID) {
	if s.stores.Listings == nil {
		return
	}
	l, ok := s.engine.Listing(asset)
	if !ok {
		if err := s.stores.Listings.Delete(ctx, asset); err != nil {
			s.logger.WarnContext(ctx, "listing delete failed", slog.Uint64("asset", uint64(asset)), slog.String("error", err.Error()))
		}
		return
	}
	var bid *domain.Bid
	if b, ok := s.engine.HighestBid(asset); ok {
		bid = &b
	}
	if err := s.stores.Listings.Upsert(ctx, l, bid); err != nil {
		s.logger.WarnContext(ctx, "listing upsert failed", slog.Uint64("asset", uint64(asset)), slog.String("error", err.Error()))
	}
}

// persistCredits writes through the credit balance of every account a credit
// event touched.
func (s *AuctionService) persistCredits(ctx context.Context, events []domain.Event) {
	if s.stores.Credits == nil {
		return
	}
	seen := make(map[common.Address]bool)
	for _, ev := range events {
		if ev.Kind != domain.EventCreditIssued && ev.Kind != domain.EventCreditWithdrawn {
			continue
		}
		if seen[ev.Account] {
			continue
		}
		seen[ev.Account] = true
		if err := s.stores.Credits.Set(ctx, ev.Account, s.engine.CreditOf(ev.Account)); err != nil {
			s.logger.WarnContext(ctx, "credit write failed", slog.String("account", ev.Account.Hex()), slog.String("error", err.Error()))
		}
	}
}

func (s *AuctionService) persistSettlement(ctx context.Context, rec domain.SettlementRecord) {
	if s.stores.Settlements == nil {
		return
	}
	if err := s.stores.Settlements.Insert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "settlement insert failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
	}
}

// fanOut publishes events to the bus, one channel per kind.
func (s *AuctionService) fanOut(ctx context.Context, events []domain.Event) {
	if s.bus == nil || len(events) == 0 {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.WarnContext(ctx, "event marshal failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
			continue
		}
		if err := s.bus.Publish(ctx, EventChannel(ev.Kind), payload); err != nil {
			s.logger.WarnContext(ctx, "event publish failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		}
	}
}

// EventChannel maps an event kind to its bus channel.
func EventChannel(kind domain.EventKind) string {
	switch kind {
	case domain.EventCreditIssued, domain.EventCreditWithdrawn:
		return "ch:credit:" + string(kind)
	default:
		return "ch:auction:" + string(kind)
	}
}
