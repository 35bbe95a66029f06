package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
	"github.com/osk/fintrack/internal/usecase/mocks"
)

type pullFixture struct {
	uc         *usecase.PullUseCase
	queueRepo  *mocks.MockQueueRepository
	txRepo     *mocks.MockTransactionRepository
	entityRepo *mocks.MockEntityRepository
	stateRepo  *mocks.MockSyncStateRepository
	transport  *mocks.MockTransport
	requests   []domain.RecomputeRequest
}

func newPullFixture(t *testing.T) *pullFixture {
	t.Helper()
	f := &pullFixture{
		queueRepo:  mocks.NewMockQueueRepository(),
		txRepo:     mocks.NewMockTransactionRepository(),
		entityRepo: mocks.NewMockEntityRepository(),
		stateRepo:  mocks.NewMockSyncStateRepository(),
		transport:  mocks.NewMockTransport(),
	}
	f.uc = usecase.NewPullUseCase(usecase.PullConfig{
		TxManager:  mocks.NewMockTxManager(),
		QueueRepo:  f.queueRepo,
		TxRepo:     f.txRepo,
		EntityRepo: f.entityRepo,
		StateRepo:  f.stateRepo,
		Transport:  f.transport,
		Recompute:  schedulerFunc(func(req domain.RecomputeRequest) { f.requests = append(f.requests, req) }),
	})
	return f
}

func pulled(t *testing.T, id string, entityType domain.EntityType, updatedAt time.Time, body map[string]any) domain.SyncedEntity {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return domain.SyncedEntity{
		ID:         id,
		EntityType: entityType,
		UpdatedAt:  updatedAt,
		Data:       raw,
	}
}

func TestPull_NewerServerEntityWins(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.entityRepo.Seed(&domain.SyncedEntity{
		ID: "acc-1", TenantID: testTenant, EntityType: domain.EntityTypeAccount,
		UpdatedAt: local, Data: json.RawMessage(`{"name":"Old"}`),
	})

	newer := local.Add(time.Hour)
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data:            []domain.SyncedEntity{pulled(t, "acc-1", entityType, newer, map[string]any{"name": "New"})},
			ServerTimestamp: newer,
		}, nil
	}

	report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount)
	if err != nil {
		t.Fatal(err)
	}
	if report.Applied != 1 {
		t.Fatalf("report = %+v, want one applied", report)
	}

	stored, err := f.entityRepo.Get(ctx, testTenant, domain.EntityTypeAccount, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.UpdatedAt.Equal(newer) {
		t.Errorf("stored timestamp = %s, want %s", stored.UpdatedAt, newer)
	}

	cp, _ := f.stateRepo.GetCheckpoint(ctx, testTenant, domain.EntityTypeAccount)
	if !cp.Equal(newer) {
		t.Errorf("checkpoint = %s, want %s", cp, newer)
	}
}

func TestPull_OlderOrEqualDiscarded(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.entityRepo.Seed(&domain.SyncedEntity{
		ID: "acc-1", TenantID: testTenant, EntityType: domain.EntityTypeAccount,
		UpdatedAt: local, Data: json.RawMessage(`{"name":"Local"}`),
	})

	tests := []struct {
		name     string
		incoming time.Time
	}{
		{"older", local.Add(-time.Hour)},
		{"equal", local},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
				return &domain.PullResult{
					Data:            []domain.SyncedEntity{pulled(t, "acc-1", entityType, tt.incoming, map[string]any{"name": "Stale"})},
					ServerTimestamp: time.Now().UTC(),
				}, nil
			}

			report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount)
			if err != nil {
				t.Fatal(err)
			}
			if report.Discarded != 1 {
				t.Fatalf("report = %+v, want one discarded", report)
			}

			stored, _ := f.entityRepo.Get(ctx, testTenant, domain.EntityTypeAccount, "acc-1")
			if string(stored.Data) != `{"name":"Local"}` {
				t.Errorf("local data overwritten by stale pull: %s", stored.Data)
			}
		})
	}
}

// The wire may carry the timestamp under snake_case inside the body. A
// naming mismatch must never read as "no timestamp": a stale pull would
// silently win.
func TestPull_SnakeCaseTimestampNormalized(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.entityRepo.Seed(&domain.SyncedEntity{
		ID: "acc-1", TenantID: testTenant, EntityType: domain.EntityTypeAccount,
		UpdatedAt: local, Data: json.RawMessage(`{"name":"Local"}`),
	})

	stale := local.Add(-time.Hour)
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data: []domain.SyncedEntity{{
				ID:   "acc-1",
				Data: json.RawMessage(`{"name":"Stale","updated_at":"` + stale.Format(time.RFC3339) + `"}`),
			}},
			ServerTimestamp: time.Now().UTC(),
		}, nil
	}

	report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount)
	if err != nil {
		t.Fatal(err)
	}
	if report.Discarded != 1 {
		t.Fatalf("stale snake_case entity must be discarded, report = %+v", report)
	}

	// And a newer snake_case timestamp must win.
	newer := local.Add(time.Hour)
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data: []domain.SyncedEntity{{
				ID:   "acc-1",
				Data: json.RawMessage(`{"name":"Newer","updated_at":"` + newer.Format(time.RFC3339) + `"}`),
			}},
			ServerTimestamp: time.Now().UTC(),
		}, nil
	}

	report, err = f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount)
	if err != nil {
		t.Fatal(err)
	}
	if report.Applied != 1 {
		t.Fatalf("newer snake_case entity must apply, report = %+v", report)
	}
}

func TestPull_MissingTimestampSkipped(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data: []domain.SyncedEntity{{
				ID:   "acc-1",
				Data: json.RawMessage(`{"name":"NoTimestamp"}`),
			}},
			ServerTimestamp: time.Now().UTC(),
		}, nil
	}

	report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 {
		t.Fatalf("entity without timestamp must be skipped, report = %+v", report)
	}
	if _, err := f.entityRepo.Get(ctx, testTenant, domain.EntityTypeAccount, "acc-1"); err == nil {
		t.Error("timestampless entity must not be stored")
	}
}

func TestPull_ServerWinClearsQueuedMutation(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	// A queued local edit for the same account.
	f.queueRepo.Insert(ctx, &domain.QueueEntry{
		ID: "q-1", TenantID: testTenant, EntityType: domain.EntityTypeAccount,
		EntityID: "acc-1", OperationType: domain.OperationUpdate,
		Status: domain.StatusPending,
	})

	newer := time.Now().UTC()
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data:            []domain.SyncedEntity{pulled(t, "acc-1", entityType, newer, map[string]any{"name": "Server"})},
			ServerTimestamp: newer,
		}, nil
	}

	if _, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeAccount); err != nil {
		t.Fatal(err)
	}

	if entries := f.queueRepo.Entries(); len(entries) != 0 {
		t.Errorf("server win must clear the queued mutation, %d remain", len(entries))
	}
}

func TestPull_TransactionEmitsRecompute(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	oldDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f.txRepo.Seed(&domain.Transaction{
		ID: "tx-1", TenantID: testTenant, AccountID: "acc-1",
		Amount:    decimal.RequireFromString("10"),
		ValueDate: oldDate,
		UpdatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	newer := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data: []domain.SyncedEntity{pulled(t, "tx-1", entityType, newer, map[string]any{
				"accountId": "acc-1",
				"amount":    "25",
				"valueDate": "2024-03-15",
			})},
			ServerTimestamp: newer,
		}, nil
	}

	report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeTransaction)
	if err != nil {
		t.Fatal(err)
	}
	if report.Applied != 1 {
		t.Fatalf("report = %+v, want one applied", report)
	}

	stored, err := f.txRepo.GetByID(ctx, testTenant, "tx-1")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Amount.Equal(decimal.RequireFromString("25")) {
		t.Errorf("amount = %s, want 25", stored.Amount)
	}
	if !stored.UpdatedAt.Equal(newer) {
		t.Errorf("updatedAt = %s, want %s", stored.UpdatedAt, newer)
	}

	if len(f.requests) != 1 {
		t.Fatalf("expected one recompute signal, got %d", len(f.requests))
	}
	// Recompute must start at the earlier of old and new value date.
	if !f.requests[0].FromDate.Equal(oldDate) {
		t.Errorf("fromDate = %s, want %s", f.requests[0].FromDate, oldDate)
	}
}

func TestPull_UnknownLocalEntityApplies(t *testing.T) {
	f := newPullFixture(t)
	ctx := context.Background()

	at := time.Now().UTC()
	f.transport.PullFunc = func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
		return &domain.PullResult{
			Data:            []domain.SyncedEntity{pulled(t, "cat-1", entityType, at, map[string]any{"name": "Travel"})},
			ServerTimestamp: at,
		}, nil
	}

	report, err := f.uc.Pull(ctx, testTenant, domain.EntityTypeCategory)
	if err != nil {
		t.Fatal(err)
	}
	if report.Applied != 1 {
		t.Fatalf("report = %+v, want one applied", report)
	}
}
