package auction

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// creditAdd records amount as owed to account. Credits are created only by
// the payout fallback and cleared only by the account's own withdrawal.
func (e *Engine) creditAdd(account common.Address, amount *big.Int) {
	cur, ok := e.credits[account]
	if !ok {
		cur = new(big.Int)
		e.credits[account] = cur
	}
	cur.Add(cur, amount)
}

// CreditOf returns the pending credit balance of account.
func (e *Engine) CreditOf(account common.Address) *big.Int {
	cur, ok := e.credits[account]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// Credits returns a copy of all pending credit balances.
func (e *Engine) Credits() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(e.credits))
	for acct, amt := range e.credits {
		out[acct] = new(big.Int).Set(amt)
	}
	return out
}

// Withdraw pays out the caller's full credit balance to the caller. The
// balance is zeroed before the delivery attempt, so a receive hook that
// reenters Withdraw during its own payout finds nothing left to withdraw.
// The delivery runs with an unbounded budget: the caller initiated this call
// and bears its own cost. If delivery fails the balance is re-credited; the
// funds are owed again, never burned.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	bal, ok := e.credits[caller]
	if !ok || bal.Sign() == 0 {
		return nil, fmt.Errorf("auction: withdraw for %s: %w", caller, domain.ErrNoCredits)
	}
	delete(e.credits, caller)

	if err := e.gateway.Pay(ctx, caller, bal, domain.GasUnbounded); err != nil {
		e.creditAdd(caller, bal)
		return nil, fmt.Errorf("auction: withdraw for %s: %w: %w", caller, domain.ErrTransferFailed, err)
	}

	e.emit(domain.Event{Kind: domain.EventCreditWithdrawn, Account: caller, Amount: new(big.Int).Set(bal), At: e.clock()})
	return new(big.Int).Set(bal), nil
}
