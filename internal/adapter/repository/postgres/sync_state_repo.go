package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osk/fintrack/internal/domain"
)

// SyncStateRepository implements usecase.SyncStateRepository. One row per
// (tenant, entity type) holds the incremental pull cursor.
type SyncStateRepository struct {
	pool *pgxpool.Pool
}

// NewSyncStateRepository creates a new SyncStateRepository.
func NewSyncStateRepository(pool *pgxpool.Pool) *SyncStateRepository {
	return &SyncStateRepository{pool: pool}
}

// GetCheckpoint returns the zero time when no pull has completed yet, which
// makes the next pull a full one.
func (r *SyncStateRepository) GetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType) (time.Time, error) {
	const q = `
		SELECT checkpoint
		FROM sync_state
		WHERE tenant_id = $1 AND entity_type = $2
	`
	var checkpoint time.Time
	err := r.pool.QueryRow(ctx, q, tenantID, string(entityType)).Scan(&checkpoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}

		return time.Time{}, err
	}

	return checkpoint, nil
}

// SetCheckpoint advances the pull cursor.
func (r *SyncStateRepository) SetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType, at time.Time) error {
	const q = `
		INSERT INTO sync_state (tenant_id, entity_type, checkpoint)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, entity_type) DO UPDATE SET checkpoint = EXCLUDED.checkpoint
	`
	_, err := r.pool.Exec(ctx, q, tenantID, string(entityType), at)

	return err
}
