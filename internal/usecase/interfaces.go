package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
)

// QueueRepository defines data access for the durable mutation queue.
// Status transitions are compare-and-swap updates so that a reclaim pass and
// an acknowledgement racing on the same entry cannot both win.
type QueueRepository interface {
	// GetActive returns the single PENDING or PROCESSING entry for the
	// entity, or domain.ErrEntryNotFound.
	GetActive(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (*domain.QueueEntry, error)
	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)
	Insert(ctx context.Context, entry *domain.QueueEntry) error
	// UpdateActive rewrites operation type and payload of an active entry.
	UpdateActive(ctx context.Context, id string, op domain.OperationType, payload []byte) error
	// ClaimPending atomically moves due PENDING entries to PROCESSING,
	// stamping lastAttemptAt, and returns them in creation order.
	ClaimPending(ctx context.Context, tenantID string, now time.Time, limit int) ([]*domain.QueueEntry, error)
	// Delete removes an entry. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, tx Transaction, id string) error
	// MarkPending returns a PROCESSING entry to PENDING after a retryable
	// nack. The update only applies while the entry is still PROCESSING.
	MarkPending(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error
	// MarkFailed terminally fails a PROCESSING entry.
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	// DeleteActiveByEntity clears any queued mutation for the entity.
	DeleteActiveByEntity(ctx context.Context, tx Transaction, tenantID string, entityType domain.EntityType, entityID string) error
	// ReclaimStuck resets PROCESSING entries whose last attempt is older
	// than the cutoff back to PENDING and returns how many were reset.
	// Attempts are not incremented; the entry never got an answer.
	ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error)
	// RetryFailed returns FAILED entries of a tenant to PENDING with reset
	// attempts and reports how many were requeued.
	RetryFailed(ctx context.Context, tenantID string) (int, error)
	Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error)
}

// BalanceWrite is one changed running balance to persist.
type BalanceWrite struct {
	TransactionID  string
	RunningBalance decimal.Decimal
}

// TransactionRepository defines data access for transactions.
type TransactionRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Transaction, error)
	Put(ctx context.Context, tx Transaction, t *domain.Transaction) error
	Delete(ctx context.Context, tx Transaction, tenantID, id string) error
	// ListByAccount returns all transactions of the account ordered by
	// (valueDate, id) ascending.
	ListByAccount(ctx context.Context, tenantID, accountID string) ([]*domain.Transaction, error)
	// UpdateRunningBalances writes recomputed running balances as a batch.
	UpdateRunningBalances(ctx context.Context, tx Transaction, tenantID string, writes []BalanceWrite) error
	// SetUpdatedAt stamps the server-assigned timestamp after an ack.
	SetUpdatedAt(ctx context.Context, tx Transaction, tenantID, id string, at time.Time) error
	// CategoryTotals sums transaction amounts per category for one month
	// across all accounts of the tenant. The first map excludes forecast
	// transactions, the second includes them.
	CategoryTotals(ctx context.Context, tenantID string, month domain.Month) (actual, projected map[string]decimal.Decimal, err error)
}

// EntityRepository defines generic storage for synced entities other than
// transactions (accounts, categories, and any future pulled type).
type EntityRepository interface {
	Get(ctx context.Context, tenantID string, entityType domain.EntityType, id string) (*domain.SyncedEntity, error)
	Put(ctx context.Context, tx Transaction, e *domain.SyncedEntity) error
	Delete(ctx context.Context, tx Transaction, tenantID string, entityType domain.EntityType, id string) error
	// SetUpdatedAt stamps the server-assigned timestamp after an ack.
	SetUpdatedAt(ctx context.Context, tx Transaction, tenantID string, entityType domain.EntityType, id string, at time.Time) error
}

// MonthlyBalanceRepository defines data access for monthly snapshots.
type MonthlyBalanceRepository interface {
	// Get returns the snapshot for the month or domain.ErrEntityNotFound.
	Get(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error)
	// GetLatestBefore returns the most recent persisted snapshot strictly
	// before the month, or domain.ErrEntityNotFound when none exists.
	GetLatestBefore(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error)
	// ListFrom returns all persisted snapshots at or after the month in
	// chronological order.
	ListFrom(ctx context.Context, tenantID string, from domain.Month) ([]*domain.MonthlyBalance, error)
	// UpsertBatch writes the snapshots produced by one account walk. On an
	// already-persisted month only accountID's balance entries and the
	// category sums may be replaced; entries of other accounts must survive
	// a concurrent walk unchanged.
	UpsertBatch(ctx context.Context, tx Transaction, accountID string, batch []*domain.MonthlyBalance) error
}

// SyncStateRepository persists the incremental pull cursor per entity type.
type SyncStateRepository interface {
	// GetCheckpoint returns the zero time when no pull has completed yet.
	GetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType) (time.Time, error)
	SetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType, at time.Time) error
}

// Transport is the channel to the authoritative backend.
type Transport interface {
	// Push sends a batch of queued mutations and returns per-entry results.
	// A returned error means the whole batch failed in transit.
	Push(ctx context.Context, tenantID string, batch []domain.PushItem) ([]domain.PushResult, error)
	// Pull returns entities of the type changed after since.
	Pull(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error)
}

// RecomputeScheduler accepts recompute signals. Implemented by the balance
// use case and by RecomputeScope for bulk operations.
type RecomputeScheduler interface {
	Request(req domain.RecomputeRequest)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
