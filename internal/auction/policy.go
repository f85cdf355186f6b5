package auction

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Policy holds the tunable auction parameters. Fee, increment, duration
// floor, and anti-snipe behavior are product decisions, so they are
// configuration rather than constants.
type Policy struct {
	// FeeBps is the platform fee in basis points of the final price.
	FeeBps int64

	// MinIncrementPct is the minimum percentage a subsequent bid must
	// exceed the current highest bid by. The required amount is computed
	// as prev * (100 + MinIncrementPct) / 100, multiplying before
	// dividing so no precision is lost to truncation.
	MinIncrementPct int64

	// FloorDuration is the minimum total auction duration, measured from
	// the first accepted bid. Settlement is never permitted earlier,
	// regardless of bid frequency.
	FloorDuration time.Duration

	// SnipeWindow is the trailing window before the deadline during which
	// a new bid triggers an extension.
	SnipeWindow time.Duration

	// Extension is how far the deadline is pushed out by an anti-snipe
	// extension.
	Extension time.Duration

	// RefundGas is the delivery budget for payouts the recipient did not
	// initiate (outbid refunds, seller proceeds). A recipient that burns
	// more than this is degraded to a credit instead of stalling the
	// bidder's transaction.
	RefundGas domain.Gas
}

// DefaultPolicy returns the production defaults: 2.5% fee, 5% minimum
// increment, 72h duration floor with 15m anti-snipe extensions.
func DefaultPolicy() Policy {
	return Policy{
		FeeBps:          250,
		MinIncrementPct: 5,
		FloorDuration:   72 * time.Hour,
		SnipeWindow:     15 * time.Minute,
		Extension:       15 * time.Minute,
		RefundGas:       30_000,
	}
}

// Validate checks the policy for internally consistent values.
func (p Policy) Validate() error {
	if p.FeeBps < 0 || p.FeeBps >= 10_000 {
		return fmt.Errorf("auction: fee bps %d out of range [0,10000)", p.FeeBps)
	}
	if p.MinIncrementPct <= 0 {
		return fmt.Errorf("auction: min increment pct must be positive, got %d", p.MinIncrementPct)
	}
	if p.FloorDuration <= 0 {
		return fmt.Errorf("auction: floor duration must be positive, got %s", p.FloorDuration)
	}
	if p.Extension <= 0 || p.SnipeWindow <= 0 {
		return fmt.Errorf("auction: snipe window and extension must be positive")
	}
	if p.SnipeWindow > p.FloorDuration {
		return fmt.Errorf("auction: snipe window %s exceeds floor duration %s", p.SnipeWindow, p.FloorDuration)
	}
	if p.RefundGas == 0 || p.RefundGas == domain.GasUnbounded {
		return fmt.Errorf("auction: refund gas budget must be a finite positive budget")
	}
	return nil
}
