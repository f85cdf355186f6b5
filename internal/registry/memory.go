// Package registry provides asset-ownership registry implementations: an
// in-process registry for tests and the standalone server mode, and an
// EVM-backed adapter for deployments where ownership lives on chain.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// ReceiverHook is an account's asset-receipt handler, run during
// SafeTransfer. A non-nil error rejects the transfer and rolls it back.
type ReceiverHook func(ctx context.Context, asset domain.AssetID, from common.Address) error

// Memory is an in-process domain.AssetRegistry. Like the memory fund
// gateway it assumes the single-writer execution model and takes no locks;
// receiver hooks reenter on the same goroutine.
type Memory struct {
	owners    map[domain.AssetID]common.Address
	receivers map[common.Address]ReceiverHook
	nextID    domain.AssetID
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		owners:    make(map[domain.AssetID]common.Address),
		receivers: make(map[common.Address]ReceiverHook),
	}
}

// SetReceiver registers account's asset-receipt hook. A nil hook removes it.
// Accounts without a hook accept safe transfers unconditionally.
func (r *Memory) SetReceiver(account common.Address, hook ReceiverHook) {
	if hook == nil {
		delete(r.receivers, account)
		return
	}
	r.receivers[account] = hook
}

// Mint issues a new asset to owner. IDs come from a strictly increasing
// counter, so an id is issued at most once.
func (r *Memory) Mint(ctx context.Context, owner common.Address) (domain.AssetID, error) {
	r.nextID++
	r.owners[r.nextID] = owner
	return r.nextID, nil
}

// OwnerOf returns the current holder of the asset.
func (r *Memory) OwnerOf(ctx context.Context, asset domain.AssetID) (common.Address, error) {
	owner, ok := r.owners[asset]
	if !ok {
		return common.Address{}, fmt.Errorf("registry: asset %d: %w", asset, domain.ErrUnknownAsset)
	}
	return owner, nil
}

// Transfer moves the asset without recipient validation.
func (r *Memory) Transfer(ctx context.Context, asset domain.AssetID, from, to common.Address) error {
	if err := r.checkHolder(asset, from); err != nil {
		return err
	}
	r.owners[asset] = to
	return nil
}

// SafeTransfer moves the asset and runs the recipient's receiver hook when
// one is registered. A rejecting hook fails the transfer with no state
// change.
func (r *Memory) SafeTransfer(ctx context.Context, asset domain.AssetID, from, to common.Address) error {
	if err := r.checkHolder(asset, from); err != nil {
		return err
	}
	r.owners[asset] = to
	if hook, ok := r.receivers[to]; ok {
		if err := hook(ctx, asset, from); err != nil {
			r.owners[asset] = from
			return fmt.Errorf("registry: safe transfer of %d to %s rejected: %w", asset, to, err)
		}
	}
	return nil
}

// Burn destroys the asset. Only the current holder may burn.
func (r *Memory) Burn(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	if err := r.checkHolder(asset, caller); err != nil {
		return err
	}
	delete(r.owners, asset)
	return nil
}

func (r *Memory) checkHolder(asset domain.AssetID, from common.Address) error {
	owner, ok := r.owners[asset]
	if !ok {
		return fmt.Errorf("registry: asset %d: %w", asset, domain.ErrUnknownAsset)
	}
	if owner != from {
		return fmt.Errorf("registry: asset %d held by %s, not %s: %w", asset, owner, from, domain.ErrNotOwner)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*Memory)(nil)
