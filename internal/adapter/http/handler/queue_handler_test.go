package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osk/fintrack/internal/adapter/http/dto"
	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

type queueServiceStub struct {
	enqueueFn     func(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error)
	getFn         func(ctx context.Context, id string) (*domain.QueueEntry, error)
	drainFn       func(ctx context.Context, tenantID string) (usecase.DrainReport, error)
	reclaimFn     func(ctx context.Context, timeout time.Duration) (int, error)
	retryFailedFn func(ctx context.Context, tenantID string) (int, error)
	statsFn       func(ctx context.Context, tenantID string) (domain.QueueStatistics, error)
}

func (s *queueServiceStub) Enqueue(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error) {
	return s.enqueueFn(ctx, input)
}

func (s *queueServiceStub) GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	return s.getFn(ctx, id)
}

func (s *queueServiceStub) Drain(ctx context.Context, tenantID string) (usecase.DrainReport, error) {
	return s.drainFn(ctx, tenantID)
}

func (s *queueServiceStub) ReclaimStuck(ctx context.Context, timeout time.Duration) (int, error) {
	return s.reclaimFn(ctx, timeout)
}

func (s *queueServiceStub) RetryFailed(ctx context.Context, tenantID string) (int, error) {
	return s.retryFailedFn(ctx, tenantID)
}

func (s *queueServiceStub) Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error) {
	return s.statsFn(ctx, tenantID)
}

func TestQueueHandler_Enqueue_Success(t *testing.T) {
	entry := &domain.QueueEntry{
		ID:            "q-1",
		TenantID:      "tenant-1",
		EntityType:    domain.EntityTypeAccount,
		EntityID:      "acc-1",
		OperationType: domain.OperationCreate,
		Status:        domain.StatusPending,
	}

	var captured usecase.EnqueueInput
	h := NewQueueHandler(&queueServiceStub{
		enqueueFn: func(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error) {
			captured = input
			return entry, nil
		},
	}, "tenant-1", 0)

	body, _ := json.Marshal(dto.EnqueueRequest{
		EntityType:    "account",
		EntityID:      "acc-1",
		OperationType: "create",
		Payload:       json.RawMessage(`{"entity":{"name":"Checking"}}`),
	})

	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if captured.TenantID != "tenant-1" || captured.EntityID != "acc-1" || captured.OperationType != domain.OperationCreate {
		t.Fatalf("expected input to match request, got %+v", captured)
	}

	var resp dto.QueueEntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "q-1" || resp.Status != "PENDING" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestQueueHandler_Enqueue_InvalidPayload(t *testing.T) {
	h := NewQueueHandler(&queueServiceStub{
		enqueueFn: func(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error) {
			return nil, domain.ErrInvalidPayload
		},
	}, "tenant-1", 0)

	body, _ := json.Marshal(dto.EnqueueRequest{
		EntityType:    "account",
		EntityID:      "acc-1",
		OperationType: "create",
		Payload:       json.RawMessage(`{"entity":{}}`),
	})

	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid payload, got %d", rec.Code)
	}
}

func TestQueueHandler_Enqueue_TenantOverride(t *testing.T) {
	var captured usecase.EnqueueInput
	h := NewQueueHandler(&queueServiceStub{
		enqueueFn: func(ctx context.Context, input usecase.EnqueueInput) (*domain.QueueEntry, error) {
			captured = input
			return &domain.QueueEntry{}, nil
		},
	}, "tenant-1", 0)

	body, _ := json.Marshal(dto.EnqueueRequest{
		EntityType:    "category",
		EntityID:      "cat-1",
		OperationType: "delete",
		Payload:       json.RawMessage(`{"entityId":"cat-1"}`),
	})

	req := httptest.NewRequest(http.MethodPost, "/queue?tenantId=tenant-2", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)

	if captured.TenantID != "tenant-2" {
		t.Fatalf("expected tenant override, got %q", captured.TenantID)
	}
}

func TestQueueHandler_Get_NotFound(t *testing.T) {
	h := NewQueueHandler(&queueServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.QueueEntry, error) {
			return nil, domain.ErrEntryNotFound
		},
	}, "tenant-1", 0)

	req := httptest.NewRequest(http.MethodGet, "/queue/q-404", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "q-404")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestQueueHandler_Drain(t *testing.T) {
	h := NewQueueHandler(&queueServiceStub{
		drainFn: func(ctx context.Context, tenantID string) (usecase.DrainReport, error) {
			return usecase.DrainReport{Sent: 3, Acked: 2, Nacked: 1}, nil
		},
	}, "tenant-1", 0)

	req := httptest.NewRequest(http.MethodPost, "/queue/drain", nil)
	rec := httptest.NewRecorder()

	h.Drain(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.DrainResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Sent != 3 || resp.Acked != 2 || resp.Nacked != 1 {
		t.Fatalf("unexpected report: %+v", resp)
	}
}

func TestQueueHandler_Reclaim_UsesConfiguredTimeout(t *testing.T) {
	var captured time.Duration
	h := NewQueueHandler(&queueServiceStub{
		reclaimFn: func(ctx context.Context, timeout time.Duration) (int, error) {
			captured = timeout
			return 2, nil
		},
	}, "tenant-1", 45*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/queue/reclaim", nil)
	rec := httptest.NewRecorder()

	h.Reclaim(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured != 45*time.Second {
		t.Fatalf("expected configured timeout, got %s", captured)
	}

	var resp dto.CountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected count 2, got %d", resp.Count)
	}
}

func TestQueueHandler_Statistics(t *testing.T) {
	h := NewQueueHandler(&queueServiceStub{
		statsFn: func(ctx context.Context, tenantID string) (domain.QueueStatistics, error) {
			return domain.QueueStatistics{Pending: 4, Processing: 1, Failed: 2}, nil
		},
	}, "tenant-1", 0)

	req := httptest.NewRequest(http.MethodGet, "/queue/statistics", nil)
	rec := httptest.NewRecorder()

	h.Statistics(rec, req)

	var resp domain.QueueStatistics
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Pending != 4 || resp.Processing != 1 || resp.Failed != 2 {
		t.Fatalf("unexpected statistics: %+v", resp)
	}
}
