package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// QueueRepository implements usecase.QueueRepository on the sync_queue table.
// A partial unique index on (tenant_id, entity_type, entity_id) WHERE status
// IN ('PENDING','PROCESSING') enforces single-active-entry at the storage
// level; the use case enforces it by coalescing first.
type QueueRepository struct {
	pool    *pgxpool.Pool
	retrier *Retrier
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{
		pool:    pool,
		retrier: NewRetrier(),
	}
}

const queueColumns = `id, tenant_id, entity_type, entity_id, operation_type,
	payload, status, attempts, last_attempt_at, last_error, next_attempt_at, created_at`

// GetActive returns the single PENDING or PROCESSING entry for the entity.
func (r *QueueRepository) GetActive(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (*domain.QueueEntry, error) {
	const q = `
		SELECT ` + queueColumns + `
		FROM sync_queue
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		  AND status IN ('PENDING', 'PROCESSING')
	`
	row := r.pool.QueryRow(ctx, q, tenantID, string(entityType), entityID)

	return scanQueueEntry(row)
}

// GetByID retrieves an entry by id.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	const q = `SELECT ` + queueColumns + ` FROM sync_queue WHERE id = $1`

	return scanQueueEntry(r.pool.QueryRow(ctx, q, id))
}

// Insert writes a new entry.
func (r *QueueRepository) Insert(ctx context.Context, entry *domain.QueueEntry) error {
	const q = `
		INSERT INTO sync_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, q,
		entry.ID,
		entry.TenantID,
		string(entry.EntityType),
		entry.EntityID,
		string(entry.OperationType),
		entry.Payload,
		string(entry.Status),
		entry.Attempts,
		entry.LastAttemptAt,
		nullableString(entry.LastError),
		entry.NextAttemptAt,
		entry.CreatedAt,
	)

	return err
}

// UpdateActive rewrites operation type and payload of an active entry.
func (r *QueueRepository) UpdateActive(ctx context.Context, id string, op domain.OperationType, payload []byte) error {
	const q = `
		UPDATE sync_queue
		SET operation_type = $2, payload = $3
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	tag, err := r.pool.Exec(ctx, q, id, string(op), payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}

	return nil
}

// ClaimPending atomically moves due PENDING entries to PROCESSING and returns
// them in creation order. SKIP LOCKED keeps concurrent drain loops from
// claiming the same rows.
func (r *QueueRepository) ClaimPending(ctx context.Context, tenantID string, now time.Time, limit int) ([]*domain.QueueEntry, error) {
	const q = `
		UPDATE sync_queue
		SET status = 'PROCESSING', last_attempt_at = $2
		WHERE id IN (
			SELECT id FROM sync_queue
			WHERE tenant_id = $1 AND status = 'PENDING'
			  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	var entries []*domain.QueueEntry
	err := r.retrier.Retry(ctx, func() error {
		rows, err := r.pool.Query(ctx, q, tenantID, now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			e, err := scanQueueEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// RETURNING does not honor the subquery order.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return entries, nil
}

// Delete removes an entry. Deleting an unknown id is a no-op.
func (r *QueueRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	const q = `DELETE FROM sync_queue WHERE id = $1`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, id)

	return err
}

// MarkPending returns a PROCESSING entry to PENDING after a retryable nack.
// The guard on status makes the update a no-op when an ack or a reclaim got
// there first.
func (r *QueueRepository) MarkPending(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	const q = `
		UPDATE sync_queue
		SET status = 'PENDING', attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1 AND status = 'PROCESSING'
	`
	_, err := r.pool.Exec(ctx, q, id, attempts, nullableString(lastError), nextAttemptAt)

	return err
}

// MarkFailed terminally fails a PROCESSING entry.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	const q = `
		UPDATE sync_queue
		SET status = 'FAILED', attempts = $2, last_error = $3, next_attempt_at = NULL
		WHERE id = $1 AND status = 'PROCESSING'
	`
	_, err := r.pool.Exec(ctx, q, id, attempts, nullableString(lastError))

	return err
}

// DeleteActiveByEntity clears any queued mutation for the entity.
func (r *QueueRepository) DeleteActiveByEntity(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, entityID string) error {
	const q = `
		DELETE FROM sync_queue
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		  AND status IN ('PENDING', 'PROCESSING')
	`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, tenantID, string(entityType), entityID)

	return err
}

// ReclaimStuck resets PROCESSING entries whose last attempt is older than the
// cutoff back to PENDING. Attempts stay untouched; the entry never got an
// answer.
func (r *QueueRepository) ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
		UPDATE sync_queue
		SET status = 'PENDING'
		WHERE status = 'PROCESSING' AND last_attempt_at < $1
	`
	var reclaimed int
	err := r.retrier.Retry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, q, cutoff)
		if err != nil {
			return err
		}
		reclaimed = int(tag.RowsAffected())

		return nil
	})

	return reclaimed, err
}

// RetryFailed returns FAILED entries of a tenant to PENDING with reset
// attempts.
func (r *QueueRepository) RetryFailed(ctx context.Context, tenantID string) (int, error) {
	const q = `
		UPDATE sync_queue
		SET status = 'PENDING', attempts = 0, last_error = NULL, next_attempt_at = NULL
		WHERE tenant_id = $1 AND status = 'FAILED'
	`
	tag, err := r.pool.Exec(ctx, q, tenantID)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// Statistics summarizes queue depth by status for a tenant.
func (r *QueueRepository) Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error) {
	const q = `
		SELECT status, COUNT(*)
		FROM sync_queue
		WHERE tenant_id = $1
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return domain.QueueStatistics{}, err
	}
	defer rows.Close()

	var stats domain.QueueStatistics
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueStatistics{}, err
		}
		switch domain.QueueStatus(status) {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusProcessing:
			stats.Processing = count
		case domain.StatusFailed:
			stats.Failed = count
		}
	}

	return stats, rows.Err()
}

func scanQueueEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var (
		e          domain.QueueEntry
		entityType string
		op         string
		status     string
		lastError  *string
	)
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&entityType,
		&e.EntityID,
		&op,
		&e.Payload,
		&status,
		&e.Attempts,
		&e.LastAttemptAt,
		&lastError,
		&e.NextAttemptAt,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}

		return nil, err
	}

	e.EntityType = domain.EntityType(entityType)
	e.OperationType = domain.OperationType(op)
	e.Status = domain.QueueStatus(status)
	if lastError != nil {
		e.LastError = *lastError
	}

	return &e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
