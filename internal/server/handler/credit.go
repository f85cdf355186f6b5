package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CreditService defines the methods that the credit handler requires from the
// service layer.
type CreditService interface {
	CreditOf(ctx context.Context, account common.Address) *big.Int
	Withdraw(ctx context.Context, caller common.Address) (*big.Int, error)
	WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error)
}

// CreditHandler serves credit-ledger HTTP endpoints.
type CreditHandler struct {
	svc    CreditService
	logger *slog.Logger
}

// NewCreditHandler creates a CreditHandler with the given service and logger.
func NewCreditHandler(svc CreditService, logger *slog.Logger) *CreditHandler {
	return &CreditHandler{
		svc:    svc,
		logger: logger,
	}
}

// GetCredit returns the pending credit balance for an account.
// GET /api/credits/{account}
func (h *CreditHandler) GetCredit(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(r.PathValue("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance := h.svc.CreditOf(r.Context(), account)
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"balance": amountString(balance),
	})
}

// withdrawRequest is the JSON body for credit and fee withdrawals.
type withdrawRequest struct {
	Caller string `json:"caller"`
}

// Withdraw pays out the caller's full pending credit balance.
// POST /api/credits/withdraw
func (h *CreditHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.svc.Withdraw(r.Context(), caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: withdraw failed",
			slog.String("account", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "withdrawn",
		"amount": amountString(amount),
	})
}

// WithdrawFees pays accumulated platform fees to the engine owner.
// POST /api/fees/withdraw
func (h *CreditHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.svc.WithdrawFees(r.Context(), caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: withdraw fees failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "withdrawn",
		"amount": amountString(amount),
	})
}
