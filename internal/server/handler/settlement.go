package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/service"
)

// SettlementService defines the methods that the settlement handler requires
// from the service layer.
type SettlementService interface {
	RecentSettlements(ctx context.Context, limit int) ([]domain.SettlementRecord, error)
	Status(ctx context.Context) service.Status
}

// SettlementHandler serves settlement-history and status endpoints.
type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListRecent returns recent settlements, newest first.
// GET /api/settlements?limit=50
func (h *SettlementHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	settlements, err := h.svc.RecentSettlements(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if settlements == nil {
		settlements = []domain.SettlementRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"settlements": settlements})
}

// GetStatus reports the engine's accrued fees, obligations, and solvency.
// GET /api/status
func (h *SettlementHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}
