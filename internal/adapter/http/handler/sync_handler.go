package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osk/fintrack/internal/adapter/http/dto"
	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// PullService defines the behavior needed by SyncHandler.
type PullService interface {
	Pull(ctx context.Context, tenantID string, entityType domain.EntityType) (usecase.PullReport, error)
}

// SyncHandler handles manually triggered pull cycles.
type SyncHandler struct {
	pullUC   PullService
	tenantID string
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(pullUC PullService, tenantID string) *SyncHandler {
	return &SyncHandler{pullUC: pullUC, tenantID: tenantID}
}

func (h *SyncHandler) tenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenantId"); t != "" {
		return t
	}
	return h.tenantID
}

// Pull runs one pull cycle for the entity type.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	switch entityType {
	case domain.EntityTypeTransaction, domain.EntityTypeAccount, domain.EntityTypeCategory:
	default:
		writeError(w, http.StatusBadRequest, "unknown entity type", string(entityType))
		return
	}

	report, err := h.pullUC.Pull(r.Context(), h.tenant(r), entityType)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pull failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.PullFromReport(report))
}
