package domain

import "errors"

var (
	// ErrNotOwner is returned when the caller does not currently own the
	// asset it is trying to act on.
	ErrNotOwner = errors.New("caller is not the asset owner")
	// ErrNotSeller is returned when a seller-only operation is invoked by
	// another account.
	ErrNotSeller = errors.New("caller is not the listing seller")
	// ErrAlreadyListed is returned when a live listing already exists.
	ErrAlreadyListed = errors.New("asset already listed")
	// ErrNotListed is returned when no live listing exists for the asset.
	ErrNotListed = errors.New("asset not listed")
	// ErrBidTooLow is returned when a bid does not meet the first-bid floor
	// or the minimum increment over the current highest bid.
	ErrBidTooLow = errors.New("bid below required amount")
	// ErrAlreadyHighestBidder is returned when the current highest bidder
	// tries to outbid itself.
	ErrAlreadyHighestBidder = errors.New("caller already holds the highest bid")
	// ErrAuctionNotStarted is returned when settlement is requested before
	// any bid has been accepted.
	ErrAuctionNotStarted = errors.New("auction has no bids")
	// ErrAuctionNotEnded is returned when timed settlement is requested
	// before the deadline.
	ErrAuctionNotEnded = errors.New("auction deadline not reached")
	// ErrBelowMinPrice is returned when the winning amount would be below
	// the listing's minimum price.
	ErrBelowMinPrice = errors.New("amount below minimum price")
	// ErrNoCredits is returned on withdrawal when the caller has no pending
	// credit balance.
	ErrNoCredits = errors.New("no credits to withdraw")
	// ErrTransferFailed is returned when an asset or fund transfer could not
	// be completed.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrUnauthorized is returned when the caller is not permitted to
	// perform the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInsufficientFunds is returned when a deposit exceeds the caller's
	// gateway balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoPendingClaim is returned when no asset claim is recorded for the
	// caller.
	ErrNoPendingClaim = errors.New("no pending asset claim")
	// ErrOutOfGas is returned by the fund gateway when a delivery exceeds
	// its gas budget.
	ErrOutOfGas = errors.New("delivery gas budget exhausted")
	// ErrUnknownAsset is returned when the registry has no record of the
	// asset.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrLockHeld is returned when a distributed lock is already held by
	// another party.
	ErrLockHeld = errors.New("lock already held")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
