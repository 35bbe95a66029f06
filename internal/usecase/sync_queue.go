package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

// DefaultPushBatchSize bounds how many entries one drain cycle sends.
const DefaultPushBatchSize = 100

// SyncQueueUseCase owns the durable mutation queue and its state machine:
// enqueue with coalescing, drain through the transport, ack/nack handling,
// and stuck-entry reclaim.
type SyncQueueUseCase struct {
	txManager  TransactionManager
	queueRepo  QueueRepository
	txRepo     TransactionRepository
	entityRepo EntityRepository
	transport  Transport
	classifier RetryClassifier
	recompute  RecomputeScheduler
	idGen      IDGenerator
	logger     *slog.Logger
	batchSize  int
	now        func() time.Time
}

// SyncQueueConfig wires a SyncQueueUseCase.
type SyncQueueConfig struct {
	TxManager  TransactionManager
	QueueRepo  QueueRepository
	TxRepo     TransactionRepository
	EntityRepo EntityRepository
	Transport  Transport
	Recompute  RecomputeScheduler
	IDGen      IDGenerator
	Logger     *slog.Logger
	BatchSize  int
	Now        func() time.Time
}

// NewSyncQueueUseCase creates a new SyncQueueUseCase.
func NewSyncQueueUseCase(cfg SyncQueueConfig) *SyncQueueUseCase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultPushBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	return &SyncQueueUseCase{
		txManager:  cfg.TxManager,
		queueRepo:  cfg.QueueRepo,
		txRepo:     cfg.TxRepo,
		entityRepo: cfg.EntityRepo,
		transport:  cfg.Transport,
		recompute:  cfg.Recompute,
		idGen:      cfg.IDGen,
		logger:     cfg.Logger,
		batchSize:  cfg.BatchSize,
		now:        cfg.Now,
	}
}

// EnqueueInput represents one local mutation to queue for the backend.
// Scope, when set, receives recompute signals instead of the engine's
// scheduler; bulk importers flush it once at the end.
type EnqueueInput struct {
	TenantID      string
	EntityType    domain.EntityType
	EntityID      string
	OperationType domain.OperationType
	Payload       json.RawMessage
	Scope         RecomputeScheduler
}

// Enqueue records a local mutation. If an active entry for the same entity
// already exists, the mutation merges into it instead of inserting a second
// row, so at most one entry per entity is ever in flight. Transaction
// mutations additionally emit a recompute signal; the signal does not wait
// for the sync round-trip.
func (uc *SyncQueueUseCase) Enqueue(ctx context.Context, input EnqueueInput) (*domain.QueueEntry, error) {
	if input.TenantID == "" {
		return nil, domain.ErrTenantRequired
	}
	if err := domain.ValidatePayload(input.OperationType, input.Payload); err != nil {
		return nil, err
	}

	entry, err := uc.queueRepo.GetActive(ctx, input.TenantID, input.EntityType, input.EntityID)
	switch {
	case err == nil:
		entry.Merge(input.OperationType, input.Payload)
		if err := uc.queueRepo.UpdateActive(ctx, entry.ID, entry.OperationType, entry.Payload); err != nil {
			return nil, fmt.Errorf("merge queue entry: %w", err)
		}
	case errors.Is(err, domain.ErrEntryNotFound):
		entry = &domain.QueueEntry{
			ID:            uc.idGen.Generate(),
			TenantID:      input.TenantID,
			EntityType:    input.EntityType,
			EntityID:      input.EntityID,
			OperationType: input.OperationType,
			Payload:       input.Payload,
			Status:        domain.StatusPending,
			CreatedAt:     uc.now(),
		}
		if err := uc.queueRepo.Insert(ctx, entry); err != nil {
			return nil, fmt.Errorf("insert queue entry: %w", err)
		}
	default:
		return nil, err
	}

	if input.EntityType == domain.EntityTypeTransaction {
		uc.signalRecompute(ctx, input)
	}

	return entry, nil
}

// signalRecompute derives the earliest changed date for the mutated
// transaction and hands it to the scheduler. For updates and deletes the old
// value date matters too: moving a transaction forward must still rebuild
// from where it used to sit.
func (uc *SyncQueueUseCase) signalRecompute(ctx context.Context, input EnqueueInput) {
	reqs := uc.changeWindow(ctx, input)
	if len(reqs) == 0 {
		uc.logger.Warn("no value date derivable for transaction mutation, skipping recompute signal",
			"entity_id", input.EntityID,
			"operation", string(input.OperationType))
		return
	}

	for _, req := range reqs {
		if input.Scope != nil {
			input.Scope.Request(req)
			continue
		}
		if uc.recompute != nil {
			uc.recompute.Request(req)
		}
	}
}

// changeWindow resolves the accounts and from-dates affected by one mutation.
// Moving a transaction to another account leaves a hole in the source
// account's chain, so both accounts get a request: the destination from the
// earliest involved date, the source from where the row used to sit.
func (uc *SyncQueueUseCase) changeWindow(ctx context.Context, input EnqueueInput) []domain.RecomputeRequest {
	var old *domain.Transaction
	if input.OperationType != domain.OperationCreate {
		t, err := uc.txRepo.GetByID(ctx, input.TenantID, input.EntityID)
		if err == nil {
			old = t
		}
	}

	newAccount, newDate, hasNew := payloadTransactionFields(input.OperationType, input.Payload)

	var primary domain.RecomputeRequest
	switch {
	case old != nil && hasNew:
		primary = domain.RecomputeRequest{
			TenantID:  input.TenantID,
			AccountID: old.AccountID,
			FromDate:  old.ValueDate,
		}
		if newAccount != "" {
			primary.AccountID = newAccount
		}
		if !newDate.IsZero() && newDate.Before(primary.FromDate) {
			primary.FromDate = newDate
		}
	case old != nil:
		primary = domain.RecomputeRequest{
			TenantID:  input.TenantID,
			AccountID: old.AccountID,
			FromDate:  old.ValueDate,
		}
	case hasNew && newAccount != "":
		primary = domain.RecomputeRequest{
			TenantID:  input.TenantID,
			AccountID: newAccount,
			FromDate:  newDate,
		}
	default:
		return nil
	}

	reqs := []domain.RecomputeRequest{primary}
	if old != nil && primary.AccountID != old.AccountID {
		reqs = append(reqs, domain.RecomputeRequest{
			TenantID:  input.TenantID,
			AccountID: old.AccountID,
			FromDate:  old.ValueDate,
		})
	}
	return reqs
}

// payloadTransactionFields pulls accountId and valueDate out of a payload
// body. Delete payloads may carry both so the signal survives even when the
// local row is already gone at enqueue time.
func payloadTransactionFields(op domain.OperationType, raw json.RawMessage) (accountID string, valueDate time.Time, ok bool) {
	var fields map[string]any

	switch op {
	case domain.OperationCreate:
		var p domain.CreatePayload
		if json.Unmarshal(raw, &p) != nil {
			return "", time.Time{}, false
		}
		fields = p.Entity
	case domain.OperationUpdate:
		var p domain.UpdatePayload
		if json.Unmarshal(raw, &p) != nil {
			return "", time.Time{}, false
		}
		fields = p.Fields
	case domain.OperationDelete:
		var p domain.DeletePayload
		if json.Unmarshal(raw, &p) != nil || p.AccountID == "" {
			return "", time.Time{}, false
		}
		if p.ValueDate != "" {
			if t, err := parseWireTime(p.ValueDate); err == nil {
				return p.AccountID, t, true
			}
		}
		return p.AccountID, time.Time{}, true
	default:
		return "", time.Time{}, false
	}

	if s, found := stringField(fields, "accountId", "account_id"); found {
		accountID = s
	}
	if s, found := stringField(fields, "valueDate", "value_date"); found {
		if t, err := parseWireTime(s); err == nil {
			return accountID, t, true
		}
	}

	return accountID, time.Time{}, accountID != ""
}

func stringField(fields map[string]any, names ...string) (string, bool) {
	for _, name := range names {
		if v, found := fields[name]; found {
			if s, isString := v.(string); isString && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// DrainReport summarizes one drain cycle.
type DrainReport struct {
	Sent   int
	Acked  int
	Nacked int
}

// Drain claims all due PENDING entries of the tenant, pushes them as one
// batch, and applies the per-entry results. A transport-level failure of the
// whole batch degrades to a per-entry transient nack; drain itself never
// aborts on a single bad entry.
func (uc *SyncQueueUseCase) Drain(ctx context.Context, tenantID string) (DrainReport, error) {
	var report DrainReport

	entries, err := uc.queueRepo.ClaimPending(ctx, tenantID, uc.now(), uc.batchSize)
	if err != nil {
		return report, fmt.Errorf("claim pending entries: %w", err)
	}
	if len(entries) == 0 {
		return report, nil
	}
	report.Sent = len(entries)

	batch := make([]domain.PushItem, 0, len(entries))
	for _, e := range entries {
		batch = append(batch, domain.PushItem{
			ID:            e.ID,
			EntityID:      e.EntityID,
			EntityType:    e.EntityType,
			OperationType: e.OperationType,
			Payload:       e.Payload,
		})
	}

	results, err := uc.transport.Push(ctx, tenantID, batch)
	if err != nil {
		reason := domain.ReasonNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = domain.ReasonTimeout
		}
		uc.logger.Warn("push batch failed in transit",
			"tenant_id", tenantID,
			"entries", len(entries),
			"error", err)
		for _, e := range entries {
			uc.applyNack(ctx, e.ID, reason, err.Error())
			report.Nacked++
		}
		return report, nil
	}

	byEntity := make(map[string]domain.PushResult, len(results))
	for _, r := range results {
		byEntity[r.EntityID] = r
	}

	for _, e := range entries {
		r, found := byEntity[e.EntityID]
		if !found {
			// The backend did not answer for this entry; treat it like a
			// lost response and let the retry machinery handle it.
			uc.applyNack(ctx, e.ID, domain.ReasonNetworkError, "no result for entry in push response")
			report.Nacked++
			continue
		}

		if r.Processed() {
			if err := uc.applyAck(ctx, e, r.NewUpdatedAt); err != nil {
				uc.logger.Error("apply ack failed",
					"entry_id", e.ID,
					"entity_id", e.EntityID,
					"error", err)
				continue
			}
			report.Acked++
		} else {
			uc.applyNack(ctx, e.ID, r.Reason, r.Detail)
			report.Nacked++
		}
	}

	return report, nil
}

// HandleMessage applies one ack or nack frame from the asynchronous channel.
func (uc *SyncQueueUseCase) HandleMessage(ctx context.Context, msg domain.SyncMessage) error {
	switch msg.Type {
	case domain.MessageTypeAck:
		entry, err := uc.queueRepo.GetByID(ctx, msg.ID)
		if errors.Is(err, domain.ErrEntryNotFound) {
			// Already acked through another path.
			return nil
		}
		if err != nil {
			return err
		}
		return uc.applyAck(ctx, entry, msg.NewUpdatedAt)
	case domain.MessageTypeNack:
		uc.applyNack(ctx, msg.ID, msg.Reason, msg.Detail)
		return nil
	default:
		return fmt.Errorf("unknown sync message type %q", msg.Type)
	}
}

// applyAck removes the entry and writes the server-assigned timestamp back
// into the local entity, atomically. Writing the server clock back is what
// keeps later conflict comparisons honest. Acking an already-removed entry
// is a no-op.
func (uc *SyncQueueUseCase) applyAck(ctx context.Context, entry *domain.QueueEntry, newUpdatedAt *time.Time) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := uc.queueRepo.Delete(ctx, tx, entry.ID); err != nil {
		return fmt.Errorf("delete acked entry: %w", err)
	}

	if newUpdatedAt != nil && entry.OperationType != domain.OperationDelete {
		if err := uc.writeBackTimestamp(ctx, tx, entry, *newUpdatedAt); err != nil {
			return fmt.Errorf("write back server timestamp: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (uc *SyncQueueUseCase) writeBackTimestamp(ctx context.Context, tx Transaction, entry *domain.QueueEntry, at time.Time) error {
	var err error
	if entry.EntityType == domain.EntityTypeTransaction {
		err = uc.txRepo.SetUpdatedAt(ctx, tx, entry.TenantID, entry.EntityID, at)
	} else {
		err = uc.entityRepo.SetUpdatedAt(ctx, tx, entry.TenantID, entry.EntityType, entry.EntityID, at)
	}
	if errors.Is(err, domain.ErrEntityNotFound) || errors.Is(err, domain.ErrTransactionNotFound) {
		// The local entity vanished between push and ack; nothing to stamp.
		return nil
	}
	return err
}

// applyNack increments attempts and either requeues the entry with a backoff
// delay or terminally fails it. The status update only applies while the
// entry is still PROCESSING, so a concurrent ack wins cleanly.
func (uc *SyncQueueUseCase) applyNack(ctx context.Context, id string, reason domain.NackReason, detail string) {
	entry, err := uc.queueRepo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return
	}
	if err != nil {
		uc.logger.Error("load nacked entry", "entry_id", id, "error", err)
		return
	}
	if entry.Status != domain.StatusProcessing {
		return
	}

	attempts := entry.Attempts + 1
	lastError := string(reason)
	if detail != "" {
		lastError = fmt.Sprintf("%s: %s", reason, detail)
	}

	if uc.classifier.Retryable(reason, attempts) {
		next := uc.now().Add(uc.classifier.Delay(attempts))
		if err := uc.queueRepo.MarkPending(ctx, id, attempts, lastError, next); err != nil {
			uc.logger.Error("requeue nacked entry", "entry_id", id, "error", err)
		}
		return
	}

	if err := uc.queueRepo.MarkFailed(ctx, id, attempts, lastError); err != nil {
		uc.logger.Error("fail nacked entry", "entry_id", id, "error", err)
		return
	}
	uc.logger.Warn("queue entry terminally failed",
		"entry_id", id,
		"entity_id", entry.EntityID,
		"reason", string(reason),
		"attempts", attempts)
}

// ReclaimStuck resets PROCESSING entries whose response was lost. It is
// idempotent; a second immediate pass finds nothing to do.
func (uc *SyncQueueUseCase) ReclaimStuck(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := uc.now().Add(-timeout)
	n, err := uc.queueRepo.ReclaimStuck(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck entries: %w", err)
	}
	if n > 0 {
		uc.logger.Info("reclaimed stuck queue entries", "count", n)
	}
	return n, nil
}

// RetryFailed requeues terminally failed entries of a tenant.
func (uc *SyncQueueUseCase) RetryFailed(ctx context.Context, tenantID string) (int, error) {
	return uc.queueRepo.RetryFailed(ctx, tenantID)
}

// Statistics reports queue depth by status.
func (uc *SyncQueueUseCase) Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error) {
	return uc.queueRepo.Statistics(ctx, tenantID)
}

// GetEntry returns a queue entry by id.
func (uc *SyncQueueUseCase) GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	return uc.queueRepo.GetByID(ctx, id)
}
