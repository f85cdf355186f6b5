package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names an observable engine signal.
type EventKind string

const (
	// EventListed is emitted when a listing is created.
	EventListed EventKind = "listed"
	// EventBidPlaced is emitted on every accepted bid, including the
	// buy-now path. It is distinct from settlement.
	EventBidPlaced EventKind = "bid_placed"
	// EventAuctionExtended is emitted only when the deadline is actually
	// pushed out by the anti-snipe rule.
	EventAuctionExtended EventKind = "auction_extended"
	// EventUnlisted is emitted when a seller withdraws a listing.
	EventUnlisted EventKind = "unlisted"
	// EventAuctionSettled is emitted exactly once per completed auction,
	// only from the settlement distribution path.
	EventAuctionSettled EventKind = "auction_settled"
	// EventCreditIssued is emitted when a failed delivery is converted to a
	// withdrawable credit.
	EventCreditIssued EventKind = "credit_issued"
	// EventCreditWithdrawn is emitted when an account withdraws its credit
	// balance.
	EventCreditWithdrawn EventKind = "credit_withdrawn"
	// EventAssetClaimPending is emitted when settlement could not deliver
	// the asset and recorded a pull-claim for the winner instead.
	EventAssetClaimPending EventKind = "asset_claim_pending"
	// EventAssetClaimed is emitted when a winner pulls a pending asset
	// claim.
	EventAssetClaimed EventKind = "asset_claimed"
)

// Event is a single observable engine signal. Fields not relevant to a kind
// are left zero and omitted from the JSON encoding.
type Event struct {
	Kind        EventKind      `json:"kind"`
	AssetID     AssetID        `json:"assetId,omitempty"`
	Account     common.Address `json:"account,omitempty"`     // bidder, winner, or credited account
	Seller      common.Address `json:"seller,omitempty"`
	Amount      *big.Int       `json:"amount,omitempty"`      // bid amount, price, or credit amount
	MinPrice    *big.Int       `json:"minPrice,omitempty"`
	BuyNowPrice *big.Int       `json:"buyNowPrice,omitempty"`
	NewEnd      time.Time      `json:"newEnd,omitzero"`
	At          time.Time      `json:"at"`
}

// EventSink receives engine events synchronously, in emission order. Sinks
// must not call back into the engine.
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ev Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev Event) { f(ev) }
