package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore mirrors engine listing and bid state for queries and recovery.
// The engine's in-memory state is authoritative; the service layer writes
// through after each committed operation.
type ListingStore interface {
	Upsert(ctx context.Context, listing Listing, bid *Bid) error
	Get(ctx context.Context, asset AssetID) (Listing, *Bid, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
	Delete(ctx context.Context, asset AssetID) error
}

// CreditStore mirrors pending credit balances.
type CreditStore interface {
	Set(ctx context.Context, account common.Address, amount *big.Int) error
	Get(ctx context.Context, account common.Address) (*big.Int, error)
	List(ctx context.Context, opts ListOpts) (map[common.Address]*big.Int, error)
}

// SettlementStore persists the append-only settlement history.
type SettlementStore interface {
	Insert(ctx context.Context, rec SettlementRecord) error
	GetByID(ctx context.Context, id string) (SettlementRecord, error)
	ListRecent(ctx context.Context, limit int) ([]SettlementRecord, error)
	// ListBefore returns settlements completed strictly before the cutoff,
	// for archival.
	ListBefore(ctx context.Context, before time.Time) ([]SettlementRecord, error)
}
