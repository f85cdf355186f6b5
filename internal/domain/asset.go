// Package domain defines the core types, interfaces, and sentinel errors
// shared across the auction house. Implementations live in sibling packages
// (internal/auction, internal/bank, internal/registry, internal/store,
// internal/cache).
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies a unique, indivisible asset tracked by the asset
// registry. IDs are issued by the registry's at-most-once issuance counter.
type AssetID uint64

// Listing is the per-asset auction record. While Listed is true the engine
// holds the asset in registry custody on behalf of Seller.
type Listing struct {
	AssetID     AssetID        `json:"assetId"`
	Seller      common.Address `json:"seller"`
	MinPrice    *big.Int       `json:"minPrice"`
	BuyNowPrice *big.Int       `json:"buyNowPrice"` // nil or zero disables buy-now
	AuctionEnd  time.Time      `json:"auctionEnd"`  // zero until the first bid is accepted
	Listed      bool           `json:"listed"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// HasBuyNow reports whether the listing has an immediate-purchase price.
func (l Listing) HasBuyNow() bool {
	return l.BuyNowPrice != nil && l.BuyNowPrice.Sign() > 0
}

// Started reports whether at least one bid has been accepted for the current
// listing cycle. AuctionEnd is zero iff no bid has ever been accepted.
func (l Listing) Started() bool {
	return !l.AuctionEnd.IsZero()
}

// Bid is the current highest bid for a listed asset. Amount is held in engine
// custody on behalf of Bidder until refunded or consumed by settlement.
type Bid struct {
	AssetID  AssetID        `json:"assetId"`
	Bidder   common.Address `json:"bidder"`
	Amount   *big.Int       `json:"amount"`
	PlacedAt time.Time      `json:"placedAt"`
}

// SettlementKind distinguishes the three paths that share the settlement
// distribution logic.
type SettlementKind string

const (
	SettlementBuyNow     SettlementKind = "buy_now"
	SettlementTimed      SettlementKind = "timed"
	SettlementSellerTake SettlementKind = "seller_take"
)

// SettlementRecord is the append-only record of a completed auction.
type SettlementRecord struct {
	ID           string         `json:"id"`
	AssetID      AssetID        `json:"assetId"`
	Seller       common.Address `json:"seller"`
	Winner       common.Address `json:"winner"`
	Price        *big.Int       `json:"price"`
	Fee          *big.Int       `json:"fee"`
	Proceeds     *big.Int       `json:"proceeds"`
	Kind         SettlementKind `json:"kind"`
	ClaimPending bool           `json:"claimPending"` // asset awaits a pull-claim by the winner
	SettledAt    time.Time      `json:"settledAt"`
}
