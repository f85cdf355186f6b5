// Package auction implements the listing/bidding/settlement state machine
// and its fund accounting: escrow of bid funds, budget-bounded payouts with a
// credit fallback, fee distribution, and the pull-claim path for asset
// delivery.
//
// The engine executes one state-mutating operation at a time (the service
// layer serializes callers), but any payout or safe transfer runs the
// recipient's receive hook synchronously, and that hook may reenter the
// engine before the triggering operation returns. Safety therefore relies on
// state-mutation ordering alone: every balance and listing mutation is
// committed before the external call it funds, and no locks are held across
// reentry boundaries.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Clock returns the current time. Injected for deterministic tests.
type Clock func() time.Time

// Config carries the engine's identity and policy.
type Config struct {
	// Custody is the engine's own account in both the asset registry and
	// the fund gateway. Listed assets and escrowed funds are held here.
	Custody common.Address

	// Owner is the only account allowed to withdraw accumulated platform
	// fees.
	Owner common.Address

	Policy Policy
}

// Engine owns the per-asset Listing and Bid records, the credit ledger, and
// the fee accumulator. It is the sole mutator of that state.
type Engine struct {
	registry domain.AssetRegistry
	gateway  domain.FundGateway
	sink     domain.EventSink
	logger   *slog.Logger

	custody common.Address
	owner   common.Address
	policy  Policy

	listings map[domain.AssetID]*domain.Listing
	bids     map[domain.AssetID]*domain.Bid
	credits  map[common.Address]*big.Int
	claims   map[domain.AssetID]common.Address
	fees     *big.Int

	clock Clock
}

// NewEngine constructs an Engine with zeroed state.
func NewEngine(cfg Config, reg domain.AssetRegistry, gw domain.FundGateway, sink domain.EventSink, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || gw == nil {
		return nil, fmt.Errorf("auction: registry and gateway are required")
	}
	if sink == nil {
		sink = domain.EventSinkFunc(func(domain.Event) {})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: reg,
		gateway:  gw,
		sink:     sink,
		logger:   logger.With(slog.String("component", "auction")),
		custody:  cfg.Custody,
		owner:    cfg.Owner,
		policy:   cfg.Policy,
		listings: make(map[domain.AssetID]*domain.Listing),
		bids:     make(map[domain.AssetID]*domain.Bid),
		credits:  make(map[common.Address]*big.Int),
		claims:   make(map[domain.AssetID]common.Address),
		fees:     new(big.Int),
		clock:    time.Now,
	}, nil
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(clock Clock) {
	if clock != nil {
		e.clock = clock
	}
}

// List verifies that seller owns the asset, takes registry custody, and
// creates the listing.
func (e *Engine) List(ctx context.Context, asset domain.AssetID, seller common.Address, minPrice, buyNowPrice *big.Int) error {
	if l, ok := e.listings[asset]; ok && l.Listed {
		return fmt.Errorf("auction: list %d: %w", asset, domain.ErrAlreadyListed)
	}
	if minPrice == nil || minPrice.Sign() <= 0 {
		return fmt.Errorf("auction: list %d: minimum price must be positive: %w", asset, domain.ErrBelowMinPrice)
	}
	owner, err := e.registry.OwnerOf(ctx, asset)
	if err != nil {
		return fmt.Errorf("auction: list %d: %w", asset, err)
	}
	if owner != seller {
		return fmt.Errorf("auction: list %d: %w", asset, domain.ErrNotOwner)
	}

	// Plain transfer into custody: the engine registers no receiver hook,
	// so this cannot reenter.
	if err := e.registry.Transfer(ctx, asset, seller, e.custody); err != nil {
		return fmt.Errorf("auction: list %d: escrow: %w", asset, err)
	}

	now := e.clock()
	l := &domain.Listing{
		AssetID:   asset,
		Seller:    seller,
		MinPrice:  new(big.Int).Set(minPrice),
		Listed:    true,
		CreatedAt: now,
	}
	if buyNowPrice != nil && buyNowPrice.Sign() > 0 {
		l.BuyNowPrice = new(big.Int).Set(buyNowPrice)
	}
	e.listings[asset] = l

	e.emit(domain.Event{
		Kind:        domain.EventListed,
		AssetID:     asset,
		Seller:      seller,
		MinPrice:    new(big.Int).Set(l.MinPrice),
		BuyNowPrice: cloneAmount(l.BuyNowPrice),
		At:          now,
	})
	return nil
}

// PlaceBid escrows amount from bidder and records it as the highest bid.
// When amount meets the buy-now price the sale settles immediately and the
// settlement record is returned; for a regular bid the record is nil. A
// displaced bidder is refunded through the payout engine only after the new
// bid is committed.
func (e *Engine) PlaceBid(ctx context.Context, asset domain.AssetID, bidder common.Address, amount *big.Int) (*domain.SettlementRecord, error) {
	l, ok := e.listings[asset]
	if !ok || !l.Listed {
		return nil, fmt.Errorf("auction: bid on %d: %w", asset, domain.ErrNotListed)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("auction: bid on %d: %w", asset, domain.ErrBidTooLow)
	}
	prev := e.bids[asset]

	// Buy-now short-circuits every other rule, including the same-bidder
	// guard: the highest bidder may still buy outright.
	if l.HasBuyNow() && amount.Cmp(l.BuyNowPrice) >= 0 {
		return e.buyNow(ctx, l, bidder, amount, prev)
	}

	if prev != nil && prev.Bidder == bidder {
		return nil, fmt.Errorf("auction: bid on %d: %w", asset, domain.ErrAlreadyHighestBidder)
	}

	now := e.clock()
	if prev == nil {
		// First bid: inclusive floor, deadline set to the full minimum
		// duration from now.
		if amount.Cmp(l.MinPrice) < 0 {
			return nil, fmt.Errorf("auction: bid on %d: below minimum price: %w", asset, domain.ErrBidTooLow)
		}
		if err := e.gateway.Deposit(ctx, bidder, amount); err != nil {
			return nil, fmt.Errorf("auction: bid on %d: %w", asset, err)
		}
		l.AuctionEnd = now.Add(e.policy.FloorDuration)
		e.bids[asset] = &domain.Bid{
			AssetID:  asset,
			Bidder:   bidder,
			Amount:   new(big.Int).Set(amount),
			PlacedAt: now,
		}
		e.emit(domain.Event{Kind: domain.EventBidPlaced, AssetID: asset, Account: bidder, Amount: new(big.Int).Set(amount), At: now})
		return nil, nil
	}

	required := minNextBid(prev.Amount, e.policy.MinIncrementPct)
	if amount.Cmp(required) < 0 {
		return nil, fmt.Errorf("auction: bid on %d: need at least %s: %w", asset, required, domain.ErrBidTooLow)
	}
	if err := e.gateway.Deposit(ctx, bidder, amount); err != nil {
		return nil, fmt.Errorf("auction: bid on %d: %w", asset, err)
	}

	// Commit the new bid and any deadline extension before refunding the
	// displaced bidder: the refund runs the old bidder's receive hook,
	// which may reenter.
	displaced := *prev
	e.bids[asset] = &domain.Bid{
		AssetID:  asset,
		Bidder:   bidder,
		Amount:   new(big.Int).Set(amount),
		PlacedAt: now,
	}
	if l.AuctionEnd.Sub(now) < e.policy.SnipeWindow {
		l.AuctionEnd = l.AuctionEnd.Add(e.policy.Extension)
		e.emit(domain.Event{Kind: domain.EventAuctionExtended, AssetID: asset, NewEnd: l.AuctionEnd, At: now})
	}
	e.emit(domain.Event{Kind: domain.EventBidPlaced, AssetID: asset, Account: bidder, Amount: new(big.Int).Set(amount), At: now})

	e.payout(ctx, displaced.Bidder, displaced.Amount)
	return nil, nil
}

// buyNow escrows the buyer's funds, then runs the shared settlement
// distribution with the displaced bid refunded inside it, after all state is
// cleared. The custody check is settle's only failure mode, so it runs up
// front: a rejected purchase must not have signalled an accepted bid.
func (e *Engine) buyNow(ctx context.Context, l *domain.Listing, buyer common.Address, amount *big.Int, prev *domain.Bid) (*domain.SettlementRecord, error) {
	holder, err := e.registry.OwnerOf(ctx, l.AssetID)
	if err != nil {
		return nil, fmt.Errorf("auction: buy now %d: %w", l.AssetID, err)
	}
	if holder != e.custody {
		return nil, fmt.Errorf("auction: buy now %d: asset not in custody: %w", l.AssetID, domain.ErrTransferFailed)
	}

	if err := e.gateway.Deposit(ctx, buyer, amount); err != nil {
		return nil, fmt.Errorf("auction: buy now %d: %w", l.AssetID, err)
	}
	e.emit(domain.Event{Kind: domain.EventBidPlaced, AssetID: l.AssetID, Account: buyer, Amount: new(big.Int).Set(amount), At: e.clock()})

	// Deposit runs no hooks, so custody cannot have changed since the check
	// above; settle re-verifies it all the same.
	rec, err := e.settle(ctx, l, buyer, amount, prev, domain.SettlementBuyNow)
	if err != nil {
		e.payout(ctx, buyer, amount)
		return nil, err
	}
	return &rec, nil
}

// Unlist returns the asset to the seller. An outstanding bid is refunded in
// full; unlisting never drops escrowed funds.
func (e *Engine) Unlist(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	l, ok := e.listings[asset]
	if !ok || !l.Listed {
		return fmt.Errorf("auction: unlist %d: %w", asset, domain.ErrNotListed)
	}
	if caller != l.Seller {
		return fmt.Errorf("auction: unlist %d: %w", asset, domain.ErrNotSeller)
	}

	// Clear listing state before any external call, restoring it only if
	// the (hook-free) registry transfer fails.
	displaced := e.bids[asset]
	l.Listed = false
	delete(e.listings, asset)
	delete(e.bids, asset)

	if err := e.registry.Transfer(ctx, asset, e.custody, l.Seller); err != nil {
		l.Listed = true
		e.listings[asset] = l
		if displaced != nil {
			e.bids[asset] = displaced
		}
		return fmt.Errorf("auction: unlist %d: return asset: %w", asset, err)
	}

	e.emit(domain.Event{Kind: domain.EventUnlisted, AssetID: asset, Seller: l.Seller, At: e.clock()})
	if displaced != nil {
		e.payout(ctx, displaced.Bidder, displaced.Amount)
	}
	return nil
}

// Settle completes a timed auction. Callable by anyone once the deadline has
// passed.
func (e *Engine) Settle(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error) {
	l, ok := e.listings[asset]
	if !ok || !l.Listed {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: %w", asset, domain.ErrNotListed)
	}
	bid := e.bids[asset]
	if bid == nil || !l.Started() {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: %w", asset, domain.ErrAuctionNotStarted)
	}
	if e.clock().Before(l.AuctionEnd) {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: ends %s: %w", asset, l.AuctionEnd, domain.ErrAuctionNotEnded)
	}
	if bid.Amount.Cmp(l.MinPrice) < 0 {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: %w", asset, domain.ErrBelowMinPrice)
	}
	return e.settle(ctx, l, bid.Bidder, bid.Amount, nil, domain.SettlementTimed)
}

// TakeHighestBid is seller-only early settlement at the current highest bid,
// bypassing the deadline.
func (e *Engine) TakeHighestBid(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error) {
	l, ok := e.listings[asset]
	if !ok || !l.Listed {
		return domain.SettlementRecord{}, fmt.Errorf("auction: take bid %d: %w", asset, domain.ErrNotListed)
	}
	if caller != l.Seller {
		return domain.SettlementRecord{}, fmt.Errorf("auction: take bid %d: %w", asset, domain.ErrNotSeller)
	}
	bid := e.bids[asset]
	if bid == nil {
		return domain.SettlementRecord{}, fmt.Errorf("auction: take bid %d: %w", asset, domain.ErrAuctionNotStarted)
	}
	if bid.Amount.Cmp(l.MinPrice) < 0 {
		return domain.SettlementRecord{}, fmt.Errorf("auction: take bid %d: %w", asset, domain.ErrBelowMinPrice)
	}
	return e.settle(ctx, l, bid.Bidder, bid.Amount, nil, domain.SettlementSellerTake)
}

// ClaimAsset delivers an asset whose settlement fell back to the pull-claim
// path. Only the recorded winner may claim.
func (e *Engine) ClaimAsset(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	winner, ok := e.claims[asset]
	if !ok {
		return fmt.Errorf("auction: claim %d: %w", asset, domain.ErrNoPendingClaim)
	}
	if caller != winner {
		return fmt.Errorf("auction: claim %d: %w", asset, domain.ErrUnauthorized)
	}

	delete(e.claims, asset)
	// Plain transfer: the claimer initiated this call and explicitly pulls
	// the asset, so no receiver validation is run.
	if err := e.registry.Transfer(ctx, asset, e.custody, caller); err != nil {
		e.claims[asset] = winner
		return fmt.Errorf("auction: claim %d: %w", asset, err)
	}
	e.emit(domain.Event{Kind: domain.EventAssetClaimed, AssetID: asset, Account: caller, At: e.clock()})
	return nil
}

// WithdrawFees pays the accumulated platform fees to the engine owner.
func (e *Engine) WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error) {
	if caller != e.owner {
		return nil, fmt.Errorf("auction: withdraw fees: %w", domain.ErrUnauthorized)
	}
	if e.fees.Sign() == 0 {
		return nil, fmt.Errorf("auction: withdraw fees: %w", domain.ErrNoCredits)
	}
	amount := e.fees
	e.fees = new(big.Int)
	if err := e.gateway.Pay(ctx, caller, amount, domain.GasUnbounded); err != nil {
		e.fees = amount
		return nil, fmt.Errorf("auction: withdraw fees: %w", domain.ErrTransferFailed)
	}
	return amount, nil
}

// minNextBid computes prev * (100 + incrementPct) / 100, multiplying before
// dividing so the increment is never undercut by truncation.
func minNextBid(prev *big.Int, incrementPct int64) *big.Int {
	next := new(big.Int).Mul(prev, big.NewInt(100+incrementPct))
	return next.Div(next, big.NewInt(100))
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func (e *Engine) emit(ev domain.Event) {
	e.sink.Emit(ev)
}

// --- Read-side accessors ---

// Listing returns a copy of the live listing for the asset.
func (e *Engine) Listing(asset domain.AssetID) (domain.Listing, bool) {
	l, ok := e.listings[asset]
	if !ok {
		return domain.Listing{}, false
	}
	out := *l
	out.MinPrice = new(big.Int).Set(l.MinPrice)
	out.BuyNowPrice = cloneAmount(l.BuyNowPrice)
	return out, true
}

// HighestBid returns a copy of the current highest bid for the asset.
func (e *Engine) HighestBid(asset domain.AssetID) (domain.Bid, bool) {
	b, ok := e.bids[asset]
	if !ok {
		return domain.Bid{}, false
	}
	out := *b
	out.Amount = new(big.Int).Set(b.Amount)
	return out, true
}

// PendingClaim returns the recorded claim recipient for the asset, if any.
func (e *Engine) PendingClaim(asset domain.AssetID) (common.Address, bool) {
	winner, ok := e.claims[asset]
	return winner, ok
}

// AccruedFees returns the current fee accumulator value.
func (e *Engine) AccruedFees() *big.Int {
	return new(big.Int).Set(e.fees)
}

// Obligations returns the total the engine currently owes: active bids,
// pending credits, and accrued fees. Custody solvency means the gateway
// balance of the custody account equals this total at every observable
// point.
func (e *Engine) Obligations() *big.Int {
	total := new(big.Int).Set(e.fees)
	for _, b := range e.bids {
		total.Add(total, b.Amount)
	}
	for _, c := range e.credits {
		total.Add(total, c)
	}
	return total
}

// CheckSolvency compares custody funds against obligations.
func (e *Engine) CheckSolvency(ctx context.Context) error {
	held, err := e.gateway.BalanceOf(ctx, e.custody)
	if err != nil {
		return fmt.Errorf("auction: solvency: %w", err)
	}
	owed := e.Obligations()
	if held.Cmp(owed) != 0 {
		return fmt.Errorf("auction: solvency: custody holds %s but owes %s", held, owed)
	}
	return nil
}
