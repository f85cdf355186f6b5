package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestMintIssuesSequentialIDs(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()

	first, err := r.Mint(ctx, alice)
	require.NoError(t, err)
	second, err := r.Mint(ctx, alice)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, first+1, second)

	owner, err := r.OwnerOf(ctx, first)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
}

func TestOwnerOfUnknownAsset(t *testing.T) {
	r := NewMemory()
	_, err := r.OwnerOf(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()
	asset, err := r.Mint(ctx, alice)
	require.NoError(t, err)

	err = r.Transfer(ctx, asset, bob, alice)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	require.NoError(t, r.Transfer(ctx, asset, alice, bob))
	owner, err := r.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
}

func TestSafeTransferHook(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()
	asset, err := r.Mint(ctx, alice)
	require.NoError(t, err)

	// A rejecting receiver rolls the transfer back entirely.
	r.SetReceiver(bob, func(ctx context.Context, asset domain.AssetID, from common.Address) error {
		return errors.New("rejected")
	})
	err = r.SafeTransfer(ctx, asset, alice, bob)
	require.Error(t, err)
	owner, err := r.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	// The hook observes the asset as already delivered.
	var seen common.Address
	r.SetReceiver(bob, func(ctx context.Context, id domain.AssetID, from common.Address) error {
		seen = r.owners[id]
		return nil
	})
	require.NoError(t, r.SafeTransfer(ctx, asset, alice, bob))
	require.Equal(t, bob, seen)
}

func TestSafeTransferWrongHolder(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()
	asset, err := r.Mint(ctx, alice)
	require.NoError(t, err)

	err = r.SafeTransfer(ctx, asset, bob, alice)
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestBurn(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()
	asset, err := r.Mint(ctx, alice)
	require.NoError(t, err)

	err = r.Burn(ctx, asset, bob)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	require.NoError(t, r.Burn(ctx, asset, alice))
	_, err = r.OwnerOf(ctx, asset)
	require.ErrorIs(t, err, domain.ErrUnknownAsset)
}
