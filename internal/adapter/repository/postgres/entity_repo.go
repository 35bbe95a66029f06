package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// EntityRepository implements usecase.EntityRepository as a generic jsonb
// store. Accounts, categories, and any future pulled entity type share one
// table; the balance engine only ever needs transactions in typed form.
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// Get retrieves an entity, or domain.ErrEntityNotFound.
func (r *EntityRepository) Get(ctx context.Context, tenantID string, entityType domain.EntityType, id string) (*domain.SyncedEntity, error) {
	const q = `
		SELECT id, tenant_id, entity_type, data, updated_at
		FROM entities
		WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
	`
	var (
		e          domain.SyncedEntity
		typeColumn string
	)
	err := r.pool.QueryRow(ctx, q, tenantID, string(entityType), id).
		Scan(&e.ID, &e.TenantID, &typeColumn, &e.Data, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}

		return nil, err
	}
	e.EntityType = domain.EntityType(typeColumn)

	return &e, nil
}

// Put inserts or replaces an entity within a transaction.
func (r *EntityRepository) Put(ctx context.Context, tx usecase.Transaction, e *domain.SyncedEntity) error {
	const q = `
		INSERT INTO entities (id, tenant_id, entity_type, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, entity_type, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	_, err := queryTx(tx, r.pool).Exec(ctx, q,
		e.ID, e.TenantID, string(e.EntityType), e.Data, e.UpdatedAt)

	return err
}

// Delete removes an entity.
func (r *EntityRepository) Delete(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, id string) error {
	const q = `DELETE FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND id = $3`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, tenantID, string(entityType), id)

	return err
}

// SetUpdatedAt stamps the server-assigned timestamp after an ack.
func (r *EntityRepository) SetUpdatedAt(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, id string, at time.Time) error {
	const q = `
		UPDATE entities
		SET updated_at = $4
		WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
	`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, tenantID, string(entityType), id, at)

	return err
}
