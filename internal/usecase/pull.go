package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

// PullUseCase pulls changed entities from the backend and reconciles them
// against local state with last-write-wins on server timestamps.
type PullUseCase struct {
	txManager  TransactionManager
	queueRepo  QueueRepository
	txRepo     TransactionRepository
	entityRepo EntityRepository
	stateRepo  SyncStateRepository
	transport  Transport
	recompute  RecomputeScheduler
	logger     *slog.Logger
}

// PullConfig wires a PullUseCase.
type PullConfig struct {
	TxManager  TransactionManager
	QueueRepo  QueueRepository
	TxRepo     TransactionRepository
	EntityRepo EntityRepository
	StateRepo  SyncStateRepository
	Transport  Transport
	Recompute  RecomputeScheduler
	Logger     *slog.Logger
}

// NewPullUseCase creates a new PullUseCase.
func NewPullUseCase(cfg PullConfig) *PullUseCase {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PullUseCase{
		txManager:  cfg.TxManager,
		queueRepo:  cfg.QueueRepo,
		txRepo:     cfg.TxRepo,
		entityRepo: cfg.EntityRepo,
		stateRepo:  cfg.StateRepo,
		transport:  cfg.Transport,
		recompute:  cfg.Recompute,
		logger:     cfg.Logger,
	}
}

// PullReport summarizes one pull cycle.
type PullReport struct {
	Received  int
	Applied   int
	Discarded int
	Skipped   int
}

// Pull fetches entities of the type changed since the persisted checkpoint
// and applies each through the conflict resolver. The checkpoint only
// advances after the whole batch was processed, so a crash mid-batch re-pulls
// rather than loses entities.
func (uc *PullUseCase) Pull(ctx context.Context, tenantID string, entityType domain.EntityType) (PullReport, error) {
	var report PullReport

	since, err := uc.stateRepo.GetCheckpoint(ctx, tenantID, entityType)
	if err != nil {
		return report, fmt.Errorf("load pull checkpoint: %w", err)
	}

	res, err := uc.transport.Pull(ctx, entityType, tenantID, since)
	if err != nil {
		return report, fmt.Errorf("pull %s: %w", entityType, err)
	}
	report.Received = len(res.Data)

	for i := range res.Data {
		e := &res.Data[i]
		e.TenantID = tenantID
		e.EntityType = entityType

		applied, err := uc.apply(ctx, e)
		switch {
		case err != nil:
			report.Skipped++
			uc.logger.Warn("skipping pulled entity",
				"entity_type", string(entityType),
				"entity_id", e.ID,
				"error", err)
		case applied:
			report.Applied++
		default:
			report.Discarded++
		}
	}

	if !res.ServerTimestamp.IsZero() {
		if err := uc.stateRepo.SetCheckpoint(ctx, tenantID, entityType, res.ServerTimestamp); err != nil {
			return report, fmt.Errorf("advance pull checkpoint: %w", err)
		}
	}

	return report, nil
}

// apply runs the last-write-wins comparison for one pulled entity. A
// strictly newer server timestamp overwrites local state and clears any
// queued local mutation for the id; an older or equal one is discarded.
func (uc *PullUseCase) apply(ctx context.Context, e *domain.SyncedEntity) (bool, error) {
	incoming, err := serverTimestamp(e)
	if err != nil {
		return false, err
	}

	local, err := uc.localTimestamp(ctx, e)
	if err != nil {
		return false, err
	}

	// A zero local timestamp means the entity is unknown locally; the pull
	// always wins then. Otherwise the incoming value must be strictly newer.
	if !local.IsZero() && !incoming.After(local) {
		return false, nil
	}

	if e.EntityType == domain.EntityTypeTransaction {
		return true, uc.applyTransaction(ctx, e, incoming)
	}
	return true, uc.applyEntity(ctx, e, incoming)
}

func (uc *PullUseCase) localTimestamp(ctx context.Context, e *domain.SyncedEntity) (time.Time, error) {
	if e.EntityType == domain.EntityTypeTransaction {
		t, err := uc.txRepo.GetByID(ctx, e.TenantID, e.ID)
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return time.Time{}, nil
		}
		if err != nil {
			return time.Time{}, err
		}
		return t.UpdatedAt, nil
	}

	local, err := uc.entityRepo.Get(ctx, e.TenantID, e.EntityType, e.ID)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return local.UpdatedAt, nil
}

func (uc *PullUseCase) applyTransaction(ctx context.Context, e *domain.SyncedEntity, incoming time.Time) error {
	t, err := decodeTransaction(e)
	if err != nil {
		return err
	}
	t.UpdatedAt = incoming

	old, err := uc.txRepo.GetByID(ctx, e.TenantID, e.ID)
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		return err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if old != nil {
		// Keep the derived field; the recompute below rebuilds it.
		t.RunningBalance = old.RunningBalance
		if t.CreatedAt.IsZero() {
			t.CreatedAt = old.CreatedAt
		}
	}

	if err := uc.txRepo.Put(ctx, tx, t); err != nil {
		return fmt.Errorf("store pulled transaction: %w", err)
	}
	if err := uc.queueRepo.DeleteActiveByEntity(ctx, tx, e.TenantID, e.EntityType, e.ID); err != nil {
		return fmt.Errorf("clear queued mutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if uc.recompute != nil {
		from := t.ValueDate
		if old != nil && old.ValueDate.Before(from) {
			from = old.ValueDate
		}
		uc.recompute.Request(domain.RecomputeRequest{
			TenantID:  e.TenantID,
			AccountID: t.AccountID,
			FromDate:  from,
		})
		if old != nil && old.AccountID != t.AccountID {
			uc.recompute.Request(domain.RecomputeRequest{
				TenantID:  e.TenantID,
				AccountID: old.AccountID,
				FromDate:  old.ValueDate,
			})
		}
	}

	return nil
}

func (uc *PullUseCase) applyEntity(ctx context.Context, e *domain.SyncedEntity, incoming time.Time) error {
	stored := *e
	stored.UpdatedAt = incoming

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := uc.entityRepo.Put(ctx, tx, &stored); err != nil {
		return fmt.Errorf("store pulled entity: %w", err)
	}
	if err := uc.queueRepo.DeleteActiveByEntity(ctx, tx, e.TenantID, e.EntityType, e.ID); err != nil {
		return fmt.Errorf("clear queued mutation: %w", err)
	}

	return tx.Commit(ctx)
}
