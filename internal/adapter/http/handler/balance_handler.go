package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osk/fintrack/internal/adapter/http/dto"
	"github.com/osk/fintrack/internal/domain"
)

// BalanceService defines the behavior needed by BalanceHandler.
type BalanceService interface {
	MonthlyBalance(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error)
	Request(req domain.RecomputeRequest)
}

// BalanceHandler handles balance HTTP requests.
type BalanceHandler struct {
	balanceUC BalanceService
	tenantID  string
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceUC BalanceService, tenantID string) *BalanceHandler {
	return &BalanceHandler{balanceUC: balanceUC, tenantID: tenantID}
}

func (h *BalanceHandler) tenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenantId"); t != "" {
		return t
	}
	return h.tenantID
}

// GetMonthly returns the snapshot for one month. The month parameter uses
// the YYYY-MM form.
func (h *BalanceHandler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "month")

	var year, monthNum int
	if _, err := fmt.Sscanf(raw, "%d-%d", &year, &monthNum); err != nil || monthNum < 1 || monthNum > 12 {
		writeError(w, http.StatusBadRequest, "invalid month", "expected YYYY-MM")
		return
	}
	month := domain.Month{Year: year, Month: time.Month(monthNum)}

	snap, err := h.balanceUC.MonthlyBalance(r.Context(), h.tenant(r), month)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to read monthly balance", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.MonthlyBalanceFromDomain(snap))
}

// Recompute schedules a balance rebuild for an account. The walk itself runs
// asynchronously; 202 means the signal was accepted, not that it finished.
func (h *BalanceHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req dto.RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "missing account_id", "")
		return
	}
	if req.FromDate.IsZero() {
		writeError(w, http.StatusBadRequest, "missing from_date", "")
		return
	}

	h.balanceUC.Request(req.ToDomain(h.tenant(r)))

	w.WriteHeader(http.StatusAccepted)
}
