package auction

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// payout attempts best-effort direct delivery under the refund gas budget
// and converts any failure into a credit. It never fails the triggering
// operation: exactly one of direct delivery or credit increment happens.
//
// The budget is deliberately small. The recipient did not initiate this
// call, so a hostile receive hook must not be able to make the triggering
// caller's operation arbitrarily expensive; anything beyond the budget
// degrades to a credit the recipient withdraws at its own cost.
func (e *Engine) payout(ctx context.Context, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	if err := e.gateway.Pay(ctx, to, amount, e.policy.RefundGas); err != nil {
		e.creditAdd(to, amount)
		e.logger.InfoContext(ctx, "delivery degraded to credit",
			slog.String("recipient", to.Hex()),
			slog.String("amount", amount.String()),
			slog.String("cause", err.Error()),
		)
		e.emit(domain.Event{Kind: domain.EventCreditIssued, Account: to, Amount: new(big.Int).Set(amount), At: e.clock()})
	}
}
