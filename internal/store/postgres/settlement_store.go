package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert appends a settlement record.
func (s *SettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	const query = `
		INSERT INTO settlements (
			id, asset_id, seller, winner, price, fee, proceeds,
			kind, claim_pending, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, int64(rec.AssetID), rec.Seller.Hex(), rec.Winner.Hex(),
		rec.Price.String(), rec.Fee.String(), rec.Proceeds.String(),
		string(rec.Kind), rec.ClaimPending, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns a single settlement record.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.SettlementRecord, error) {
	rec, err := scanSettlement(s.pool.QueryRow(ctx, selectSettlement+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SettlementRecord{}, fmt.Errorf("postgres: settlement %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SettlementRecord{}, fmt.Errorf("postgres: get settlement %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recent settlements.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx, selectSettlement+` ORDER BY settled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent settlements: %w", err)
	}
	return collectSettlements(rows)
}

// ListBefore returns settlements completed strictly before the cutoff, for
// archival.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx, selectSettlement+` WHERE settled_at < $1 ORDER BY settled_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before, err)
	}
	return collectSettlements(rows)
}

const selectSettlement = `
	SELECT id, asset_id, seller, winner, price, fee, proceeds,
	       kind, claim_pending, settled_at
	FROM settlements`

func collectSettlements(rows pgx.Rows) ([]domain.SettlementRecord, error) {
	defer rows.Close()
	var out []domain.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSettlement(row pgx.Row) (domain.SettlementRecord, error) {
	var (
		rec            domain.SettlementRecord
		assetID        int64
		seller, winner string
		price          string
		fee            string
		proceeds       string
		kind           string
	)
	err := row.Scan(
		&rec.ID, &assetID, &seller, &winner, &price, &fee, &proceeds,
		&kind, &rec.ClaimPending, &rec.SettledAt,
	)
	if err != nil {
		return domain.SettlementRecord{}, err
	}

	rec.AssetID = domain.AssetID(assetID)
	rec.Seller = common.HexToAddress(seller)
	rec.Winner = common.HexToAddress(winner)
	rec.Kind = domain.SettlementKind(kind)
	if rec.Price, err = parseAmount(price); err != nil {
		return domain.SettlementRecord{}, err
	}
	if rec.Fee, err = parseAmount(fee); err != nil {
		return domain.SettlementRecord{}, err
	}
	if rec.Proceeds, err = parseAmount(proceeds); err != nil {
		return domain.SettlementRecord{}, err
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
