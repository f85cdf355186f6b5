package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Gas is an abstract resource budget for fund deliveries. A recipient's
// receive hook consumes gas while it runs; exhausting the budget aborts the
// delivery with ErrOutOfGas.
type Gas uint64

// GasUnbounded removes the budget limit. It is only appropriate on paths the
// recipient itself initiated, such as a self-service credit withdrawal.
const GasUnbounded Gas = ^Gas(0)

// FundGateway is the value-transfer substrate the engine escrows bid funds
// through. The gateway holds balances for every account including the
// engine's own custody account.
//
// Pay runs the recipient's receive hook synchronously as part of the
// delivery, so every Pay call is a reentry boundary: the hook may call back
// into the engine before Pay returns.
type FundGateway interface {
	// Deposit moves amount from the caller's balance into engine custody.
	// It returns ErrInsufficientFunds if the caller cannot cover it. No
	// recipient hook runs; Deposit is not a reentry boundary.
	Deposit(ctx context.Context, from common.Address, amount *big.Int) error

	// Pay moves amount from engine custody to the recipient, running its
	// receive hook under the given gas budget. On any failure (rejection,
	// budget exhaustion) the delivery is rolled back atomically and an
	// error is returned; the caller decides whether to convert the amount
	// to a credit.
	Pay(ctx context.Context, to common.Address, amount *big.Int, budget Gas) error

	// BalanceOf returns the gateway balance of the given account.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}
