// Package bank provides the in-process fund gateway used by tests and the
// standalone server mode. Balances, receive hooks, and gas metering model the
// value-transfer substrate the engine escrows funds through.
package bank

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// deliveryBaseGas is charged for every delivery before the recipient's hook
// runs. A budget below this cannot deliver to anyone.
const deliveryBaseGas domain.Gas = 100

// GasMeter tracks gas consumption of a recipient's receive hook during a
// single delivery.
type GasMeter struct {
	remaining domain.Gas
	unbounded bool
}

// NewGasMeter creates a meter with the given budget. GasUnbounded disables
// metering.
func NewGasMeter(budget domain.Gas) *GasMeter {
	return &GasMeter{remaining: budget, unbounded: budget == domain.GasUnbounded}
}

// Consume deducts n units from the budget. It returns ErrOutOfGas once the
// budget is exhausted; the delivery is then aborted and rolled back.
func (m *GasMeter) Consume(n domain.Gas) error {
	if m.unbounded {
		return nil
	}
	if n > m.remaining {
		m.remaining = 0
		return domain.ErrOutOfGas
	}
	m.remaining -= n
	return nil
}

// Remaining returns the unconsumed budget.
func (m *GasMeter) Remaining() domain.Gas {
	if m.unbounded {
		return domain.GasUnbounded
	}
	return m.remaining
}

// ReceiveHook is an account's fund-receipt handler. It runs synchronously as
// part of a delivery, metered by m, and may call back into the engine. A
// non-nil error rejects the delivery.
type ReceiveHook func(ctx context.Context, m *GasMeter, from common.Address, amount *big.Int) error

// Memory is an in-process domain.FundGateway. It is intended for the
// single-writer execution model: the service layer serializes mutating
// operations, and reentrant calls made by receive hooks run on the same
// goroutine, so Memory takes no locks of its own.
type Memory struct {
	self     common.Address // engine custody account
	balances map[common.Address]*big.Int
	hooks    map[common.Address]ReceiveHook
}

// NewMemory creates a gateway whose custody account is self.
func NewMemory(self common.Address) *Memory {
	return &Memory{
		self:     self,
		balances: make(map[common.Address]*big.Int),
		hooks:    make(map[common.Address]ReceiveHook),
	}
}

// Mint credits amount to account out of thin air. Dev and test seeding only.
func (g *Memory) Mint(account common.Address, amount *big.Int) {
	g.credit(account, amount)
}

// SetHook registers account's receive hook. A nil hook removes it.
func (g *Memory) SetHook(account common.Address, hook ReceiveHook) {
	if hook == nil {
		delete(g.hooks, account)
		return
	}
	g.hooks[account] = hook
}

// Deposit moves amount from the caller's balance into engine custody.
func (g *Memory) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: deposit amount must be positive")
	}
	bal := g.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: deposit %s from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	g.credit(g.self, amount)
	return nil
}

// Pay moves amount from engine custody to the recipient under the gas
// budget. The recipient's balance is credited before its hook runs, matching
// receive-hook semantics: the hook observes the funds as already delivered
// and may reenter the engine. Any hook failure rolls the delivery back
// atomically.
func (g *Memory) Pay(ctx context.Context, to common.Address, amount *big.Int, budget domain.Gas) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: pay amount must be positive")
	}
	selfBal := g.balanceOf(g.self)
	if selfBal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: custody balance short of %s: %w", amount, domain.ErrInsufficientFunds)
	}

	meter := NewGasMeter(budget)
	if err := meter.Consume(deliveryBaseGas); err != nil {
		return fmt.Errorf("bank: pay %s to %s: %w", amount, to, err)
	}

	selfBal.Sub(selfBal, amount)
	g.credit(to, amount)

	if hook, ok := g.hooks[to]; ok {
		if err := hook(ctx, meter, g.self, amount); err != nil {
			// Roll back the delivery. The hook may have moved its own
			// funds while reentering; only the delivered amount is
			// reversed.
			g.balanceOf(to).Sub(g.balanceOf(to), amount)
			g.credit(g.self, amount)
			return fmt.Errorf("bank: pay %s to %s: %w", amount, to, err)
		}
	}
	return nil
}

// BalanceOf returns a copy of the account's balance.
func (g *Memory) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int).Set(g.balanceOf(account)), nil
}

func (g *Memory) balanceOf(account common.Address) *big.Int {
	bal, ok := g.balances[account]
	if !ok {
		bal = new(big.Int)
		g.balances[account] = bal
	}
	return bal
}

func (g *Memory) credit(account common.Address, amount *big.Int) {
	g.balanceOf(account).Add(g.balanceOf(account), amount)
}

// Compile-time interface check.
var _ domain.FundGateway = (*Memory)(nil)
