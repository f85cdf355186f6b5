package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/auctionhouse/internal/bank"
	"github.com/alanyoungcy/auctionhouse/internal/registry"
)

// FaucetHandler mints funds and assets for development and integration
// testing. It only exists when the in-memory backends are in use and the dev
// faucet is enabled in config.
type FaucetHandler struct {
	gateway *bank.Memory
	assets  *registry.Memory
	logger  *slog.Logger
}

// NewFaucetHandler creates a FaucetHandler over the in-memory gateway and
// registry.
func NewFaucetHandler(gateway *bank.Memory, assets *registry.Memory, logger *slog.Logger) *FaucetHandler {
	return &FaucetHandler{
		gateway: gateway,
		assets:  assets,
		logger:  logger,
	}
}

// fundRequest is the JSON body for minting funds.
type fundRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// MintFunds credits an account with freshly minted funds.
// POST /api/dev/funds
func (h *FaucetHandler) MintFunds(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.gateway.Mint(account, amount)
	h.logger.InfoContext(r.Context(), "faucet: minted funds",
		slog.String("account", account.Hex()),
		slog.String("amount", amount.String()),
	)

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "minted",
		"account": account.Hex(),
		"amount":  amount.String(),
	})
}

// mintAssetRequest is the JSON body for minting an asset.
type mintAssetRequest struct {
	Owner string `json:"owner"`
}

// MintAsset issues a new asset to the given owner.
// POST /api/dev/assets
func (h *FaucetHandler) MintAsset(w http.ResponseWriter, r *http.Request) {
	var req mintAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := h.assets.Mint(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "faucet: mint asset failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "minted",
		"assetId": uint64(asset),
		"owner":   owner.Hex(),
	})
}
