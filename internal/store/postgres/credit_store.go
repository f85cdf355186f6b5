package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// CreditStore implements domain.CreditStore using PostgreSQL.
type CreditStore struct {
	pool *pgxpool.Pool
}

// NewCreditStore creates a CreditStore backed by the given connection pool.
func NewCreditStore(pool *pgxpool.Pool) *CreditStore {
	return &CreditStore{pool: pool}
}

// Set writes the account's pending credit balance. A zero amount deletes the
// row.
func (s *CreditStore) Set(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		if _, err := s.pool.Exec(ctx, `DELETE FROM credits WHERE account = $1`, account.Hex()); err != nil {
			return fmt.Errorf("postgres: clear credit for %s: %w", account, err)
		}
		return nil
	}

	const query = `
		INSERT INTO credits (account, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, account.Hex(), amount.String()); err != nil {
		return fmt.Errorf("postgres: set credit for %s: %w", account, err)
	}
	return nil
}

// Get returns the account's pending credit balance, zero if none.
func (s *CreditStore) Get(ctx context.Context, account common.Address) (*big.Int, error) {
	var amount string
	err := s.pool.QueryRow(ctx, `SELECT amount FROM credits WHERE account = $1`, account.Hex()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get credit for %s: %w", account, err)
	}
	return parseAmount(amount)
}

// List returns pending credit balances ordered by most recently updated.
func (s *CreditStore) List(ctx context.Context, opts domain.ListOpts) (map[common.Address]*big.Int, error) {
	const query = `
		SELECT account, amount FROM credits
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list credits: %w", err)
	}
	defer rows.Close()

	out := make(map[common.Address]*big.Int)
	for rows.Next() {
		var account, amount string
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan credit: %w", err)
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}
		out[common.HexToAddress(account)] = v
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.CreditStore = (*CreditStore)(nil)
