package auction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// feeDenominator converts FeeBps into a fraction of the price.
const feeDenominator = 10_000

// settle runs the settlement distribution shared by the buy-now, timed, and
// seller-take paths: fee split, seller payout, asset delivery, state
// teardown.
//
// Ordering: the custody check is the only failure mode and happens before
// any mutation, so a registry fault rolls back nothing. All listing, bid,
// and fee state is then committed before the first external value transfer.
// The displaced bid refund, the seller payout, and the asset delivery each
// run recipient hooks that may reenter; by that point the listing is cleared
// and the settlement event has been emitted, so reentrant calls observe a
// finished auction.
func (e *Engine) settle(ctx context.Context, l *domain.Listing, winner common.Address, price *big.Int, displaced *domain.Bid, kind domain.SettlementKind) (domain.SettlementRecord, error) {
	asset := l.AssetID

	holder, err := e.registry.OwnerOf(ctx, asset)
	if err != nil {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: %w", asset, err)
	}
	if holder != e.custody {
		return domain.SettlementRecord{}, fmt.Errorf("auction: settle %d: asset not in custody: %w", asset, domain.ErrTransferFailed)
	}

	fee := new(big.Int).Mul(price, big.NewInt(e.policy.FeeBps))
	fee.Div(fee, big.NewInt(feeDenominator))
	proceeds := new(big.Int).Sub(price, fee)

	l.Listed = false
	delete(e.listings, asset)
	delete(e.bids, asset)
	e.fees.Add(e.fees, fee)

	now := e.clock()
	rec := domain.SettlementRecord{
		ID:        uuid.NewString(),
		AssetID:   asset,
		Seller:    l.Seller,
		Winner:    winner,
		Price:     new(big.Int).Set(price),
		Fee:       fee,
		Proceeds:  new(big.Int).Set(proceeds),
		Kind:      kind,
		SettledAt: now,
	}
	e.emit(domain.Event{
		Kind:    domain.EventAuctionSettled,
		AssetID: asset,
		Account: winner,
		Seller:  l.Seller,
		Amount:  new(big.Int).Set(price),
		At:      now,
	})

	if displaced != nil {
		e.payout(ctx, displaced.Bidder, displaced.Amount)
	}
	e.payout(ctx, l.Seller, proceeds)

	if err := e.registry.SafeTransfer(ctx, asset, e.custody, winner); err != nil {
		// Non-cooperative recipient: record the intended recipient and
		// let them pull the asset via ClaimAsset. The asset is never
		// trapped and the settlement stands.
		e.claims[asset] = winner
		rec.ClaimPending = true
		e.logger.WarnContext(ctx, "asset delivery failed, claim recorded",
			slog.Uint64("asset", uint64(asset)),
			slog.String("winner", winner.Hex()),
			slog.String("error", err.Error()),
		)
		e.emit(domain.Event{Kind: domain.EventAssetClaimPending, AssetID: asset, Account: winner, At: now})
	}

	return rec, nil
}
