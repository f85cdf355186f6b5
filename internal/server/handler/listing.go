package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// ListingService defines the methods that the listing handler requires from
// the service layer.
type ListingService interface {
	List(ctx context.Context, asset domain.AssetID, seller common.Address, minPrice, buyNowPrice *big.Int) error
	PlaceBid(ctx context.Context, asset domain.AssetID, bidder common.Address, amount *big.Int) error
	Unlist(ctx context.Context, asset domain.AssetID, caller common.Address) error
	Settle(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error)
	TakeHighestBid(ctx context.Context, asset domain.AssetID, caller common.Address) (domain.SettlementRecord, error)
	ClaimAsset(ctx context.Context, asset domain.AssetID, caller common.Address) error
	GetListing(ctx context.Context, asset domain.AssetID) (domain.Listing, *domain.Bid, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
	PendingClaim(ctx context.Context, asset domain.AssetID) (common.Address, bool)
}

// ListingHandler serves listing and bidding HTTP endpoints.
type ListingHandler struct {
	svc    ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given service and logger.
func NewListingHandler(svc ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		svc:    svc,
		logger: logger,
	}
}

// listingResponse wraps a listing with its current highest bid and any
// pending asset claim.
type listingResponse struct {
	Listing      domain.Listing `json:"listing"`
	HighestBid   *domain.Bid    `json:"highestBid,omitempty"`
	PendingClaim string         `json:"pendingClaim,omitempty"`
}

// ListListings returns active listings.
// GET /api/listings?limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.svc.ListActive(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// GetListing returns a single listing with its current highest bid.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, bid, err := h.svc.GetListing(r.Context(), asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listingResponse{Listing: l, HighestBid: bid}
	if claimant, ok := h.svc.PendingClaim(r.Context(), asset); ok {
		resp.PendingClaim = claimant.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// createListingRequest is the JSON body for creating a listing.
type createListingRequest struct {
	AssetID     uint64 `json:"assetId"`
	Seller      string `json:"seller"`
	MinPrice    string `json:"minPrice"`
	BuyNowPrice string `json:"buyNowPrice,omitempty"`
}

// CreateListing lists an asset for auction. The caller must own the asset.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AssetID == 0 {
		writeError(w, http.StatusBadRequest, "assetId is required")
		return
	}

	seller, err := parseAddress(req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minPrice, err := parseAmount(req.MinPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buyNow *big.Int
	if req.BuyNowPrice != "" {
		if buyNow, err = parseAmount(req.BuyNowPrice); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.svc.List(r.Context(), domain.AssetID(req.AssetID), seller, minPrice, buyNow); err != nil {
		h.logListingErr(r, "create listing", req.AssetID, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "listed",
		"assetId": req.AssetID,
	})
}

// bidRequest is the JSON body for placing a bid.
type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

// PlaceBid places a bid on a listing. A bid at or above the buy-now price
// settles the auction immediately.
// POST /api/listings/{id}/bids
func (h *ListingHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.PlaceBid(r.Context(), asset, bidder, amount); err != nil {
		h.logListingErr(r, "place bid", uint64(asset), err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "accepted",
		"assetId": uint64(asset),
		"amount":  amount.String(),
	})
}

// callerRequest carries the acting account for operations that only need one.
type callerRequest struct {
	Caller string `json:"caller"`
}

func (h *ListingHandler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return common.Address{}, false
	}
	addr, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, false
	}
	return addr, true
}

// Unlist withdraws a listing and refunds the outstanding bid.
// DELETE /api/listings/{id}
func (h *ListingHandler) Unlist(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.svc.Unlist(r.Context(), asset, caller); err != nil {
		h.logListingErr(r, "unlist", uint64(asset), err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "unlisted",
		"assetId": uint64(asset),
	})
}

// Settle completes a timed auction whose deadline has passed.
// POST /api/listings/{id}/settle
func (h *ListingHandler) Settle(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Settle(r.Context(), asset, caller)
	if err != nil {
		h.logListingErr(r, "settle", uint64(asset), err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// TakeHighestBid lets the seller accept the current highest bid before the
// deadline.
// POST /api/listings/{id}/take
func (h *ListingHandler) TakeHighestBid(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.TakeHighestBid(r.Context(), asset, caller)
	if err != nil {
		h.logListingErr(r, "take highest bid", uint64(asset), err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ClaimAsset pulls an asset whose settlement-time delivery failed.
// POST /api/listings/{id}/claim
func (h *ListingHandler) ClaimAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.svc.ClaimAsset(r.Context(), asset, caller); err != nil {
		h.logListingErr(r, "claim asset", uint64(asset), err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "claimed",
		"assetId": uint64(asset),
	})
}

func (h *ListingHandler) logListingErr(r *http.Request, op string, asset uint64, err error) {
	h.logger.WarnContext(r.Context(), "handler: "+op+" failed",
		slog.Uint64("asset", asset),
		slog.String("error", err.Error()),
	)
}
