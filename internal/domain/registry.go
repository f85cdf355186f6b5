package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the external ownership registry for unique assets. The
// engine calls into it and never assumes a transfer succeeded without
// checking the returned error.
//
// Every method that moves an asset is a potential reentry boundary:
// SafeTransfer runs the recipient's receive hook synchronously, and that hook
// may call back into the engine.
type AssetRegistry interface {
	// Mint issues a new asset to owner using an at-most-once issuance
	// counter and returns its id.
	Mint(ctx context.Context, owner common.Address) (AssetID, error)

	// OwnerOf returns the current holder of the asset. It returns
	// ErrUnknownAsset if the asset was never minted or was burned.
	OwnerOf(ctx context.Context, asset AssetID) (common.Address, error)

	// Transfer moves the asset from from to to without recipient
	// validation. It fails loudly with ErrNotOwner if from is not the
	// current holder.
	Transfer(ctx context.Context, asset AssetID, from, to common.Address) error

	// SafeTransfer moves the asset and additionally validates that the
	// recipient can handle it, running its receive hook when one is
	// registered. A rejecting or misbehaving recipient fails the transfer
	// with no state change.
	SafeTransfer(ctx context.Context, asset AssetID, from, to common.Address) error

	// Burn destroys the asset. Only the current holder may burn.
	Burn(ctx context.Context, asset AssetID, caller common.Address) error
}
