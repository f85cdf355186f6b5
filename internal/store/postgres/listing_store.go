package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. The current
// highest bid is folded into the listing row; a listing has at most one.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Upsert inserts or updates a listing together with its current bid (nil
// clears the bid columns).
func (s *ListingStore) Upsert(ctx context.Context, l domain.Listing, b *domain.Bid) error {
	const query = `
		INSERT INTO listings (
			asset_id, seller, min_price, buy_now_price, auction_end,
			listed, bidder, bid_amount, bid_placed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (asset_id) DO UPDATE SET
			seller        = EXCLUDED.seller,
			min_price     = EXCLUDED.min_price,
			buy_now_price = EXCLUDED.buy_now_price,
			auction_end   = EXCLUDED.auction_end,
			listed        = EXCLUDED.listed,
			bidder        = EXCLUDED.bidder,
			bid_amount    = EXCLUDED.bid_amount,
			bid_placed_at = EXCLUDED.bid_placed_at,
			updated_at    = NOW()`

	var bidder, bidAmount *string
	var bidPlacedAt *time.Time
	if b != nil {
		bidder = ptr(b.Bidder.Hex())
		bidAmount = ptr(b.Amount.String())
		bidPlacedAt = &b.PlacedAt
	}

	_, err := s.pool.Exec(ctx, query,
		int64(l.AssetID), l.Seller.Hex(), l.MinPrice.String(), amountText(l.BuyNowPrice),
		nullableTime(l.AuctionEnd), l.Listed, bidder, bidAmount, bidPlacedAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %d: %w", l.AssetID, err)
	}
	return nil
}

// Get returns the listing and its current bid, if any.
func (s *ListingStore) Get(ctx context.Context, asset domain.AssetID) (domain.Listing, *domain.Bid, error) {
	const query = `
		SELECT asset_id, seller, min_price, buy_now_price, auction_end,
		       listed, bidder, bid_amount, bid_placed_at, created_at
		FROM listings WHERE asset_id = $1`

	l, b, err := scanListing(s.pool.QueryRow(ctx, query, int64(asset)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, nil, fmt.Errorf("postgres: listing %d: %w", asset, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Listing{}, nil, fmt.Errorf("postgres: get listing %d: %w", asset, err)
	}
	return l, b, nil
}

// ListActive returns live listings ordered by creation time.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	const query = `
		SELECT asset_id, seller, min_price, buy_now_price, auction_end,
		       listed, bidder, bid_amount, bid_placed_at, created_at
		FROM listings
		WHERE listed
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, _, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Delete removes a listing row entirely.
func (s *ListingStore) Delete(ctx context.Context, asset domain.AssetID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE asset_id = $1`, int64(asset)); err != nil {
		return fmt.Errorf("postgres: delete listing %d: %w", asset, err)
	}
	return nil
}

func scanListing(row pgx.Row) (domain.Listing, *domain.Bid, error) {
	var (
		l           domain.Listing
		assetID     int64
		seller      string
		minPrice    string
		buyNow      *string
		auctionEnd  *time.Time
		bidder      *string
		bidAmount   *string
		bidPlacedAt *time.Time
	)
	err := row.Scan(
		&assetID, &seller, &minPrice, &buyNow, &auctionEnd,
		&l.Listed, &bidder, &bidAmount, &bidPlacedAt, &l.CreatedAt,
	)
	if err != nil {
		return domain.Listing{}, nil, err
	}

	l.AssetID = domain.AssetID(assetID)
	l.Seller = common.HexToAddress(seller)
	l.MinPrice, err = parseAmount(minPrice)
	if err != nil {
		return domain.Listing{}, nil, err
	}
	if buyNow != nil {
		l.BuyNowPrice, err = parseAmount(*buyNow)
		if err != nil {
			return domain.Listing{}, nil, err
		}
	}
	if auctionEnd != nil {
		l.AuctionEnd = *auctionEnd
	}

	var b *domain.Bid
	if bidder != nil && bidAmount != nil {
		amount, err := parseAmount(*bidAmount)
		if err != nil {
			return domain.Listing{}, nil, err
		}
		b = &domain.Bid{
			AssetID: l.AssetID,
			Bidder:  common.HexToAddress(*bidder),
			Amount:  amount,
		}
		if bidPlacedAt != nil {
			b.PlacedAt = *bidPlacedAt
		}
	}
	return l, b, nil
}

func amountText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	return ptr(v.String())
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ptr[T any](v T) *T { return &v }

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
