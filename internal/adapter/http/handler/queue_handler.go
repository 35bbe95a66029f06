package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osk/fintrack/internal/adapter/http/dto"
	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// QueueService defines the behavior needed by QueueHandler.
type QueueService interface {
	Enqueue(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error)
	GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error)
	Drain(ctx context.Context, tenantID string) (usecase.DrainReport, error)
	ReclaimStuck(ctx context.Context, timeout time.Duration) (int, error)
	RetryFailed(ctx context.Context, tenantID string) (int, error)
	Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error)
}

// QueueHandler handles sync queue HTTP requests.
type QueueHandler struct {
	queueUC        QueueService
	tenantID       string
	reclaimTimeout time.Duration
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queueUC QueueService, tenantID string, reclaimTimeout time.Duration) *QueueHandler {
	if reclaimTimeout <= 0 {
		reclaimTimeout = 30 * time.Second
	}
	return &QueueHandler{
		queueUC:        queueUC,
		tenantID:       tenantID,
		reclaimTimeout: reclaimTimeout,
	}
}

// tenant resolves the tenant, allowing a per-request override.
func (h *QueueHandler) tenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenantId"); t != "" {
		return t
	}
	return h.tenantID
}

// Enqueue records a local mutation.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req dto.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	entry, err := h.queueUC.Enqueue(r.Context(), req.ToUseCaseInput(h.tenant(r)))
	if err != nil {
		writeError(w, mapDomainError(err), "failed to enqueue mutation", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, dto.QueueEntryFromDomain(entry))
}

// Get retrieves a queue entry by ID.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entry ID", "")
		return
	}

	entry, err := h.queueUC.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get entry", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.QueueEntryFromDomain(entry))
}

// Statistics returns queue depth by status.
func (h *QueueHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queueUC.Statistics(r.Context(), h.tenant(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read statistics", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Drain pushes all due PENDING entries now.
func (h *QueueHandler) Drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.queueUC.Drain(r.Context(), h.tenant(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "drain failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.DrainFromReport(report))
}

// Reclaim resets stuck PROCESSING entries back to PENDING.
func (h *QueueHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := h.queueUC.ReclaimStuck(r.Context(), h.reclaimTimeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reclaim failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.CountResponse{Count: reclaimed})
}

// RetryFailed returns FAILED entries to PENDING.
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	requeued, err := h.queueUC.RetryFailed(r.Context(), h.tenant(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retry failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.CountResponse{Count: requeued})
}
