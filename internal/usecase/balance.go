package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
)

// DefaultDebounceWindow batches bursts of recompute signals (a CSV import
// touches hundreds of rows) into one walk per account.
const DefaultDebounceWindow = 500 * time.Millisecond

// DefaultMonthlyCacheTTL bounds staleness of cached snapshot reads.
const DefaultMonthlyCacheTTL = 30 * time.Second

// BalanceUseCase keeps Transaction.RunningBalance and the monthly snapshots
// consistent under arbitrary insert/update/delete order. Signals are
// debounced and coalesced per account (minimum from-date wins) and each
// account is recomputed single-writer: a signal arriving while a walk runs
// is queued and folded into the next walk, never interleaved.
type BalanceUseCase struct {
	txManager   TransactionManager
	txRepo      TransactionRepository
	monthlyRepo MonthlyBalanceRepository
	cache       Cache
	logger      *slog.Logger
	debounce    time.Duration
	cacheTTL    time.Duration
	observe     func(RecomputeStats)

	mu       sync.Mutex
	baseCtx  context.Context
	pending  map[string]*domain.RecomputeRequest
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	idle     *sync.Cond
}

// RecomputeStats describes one finished recompute walk.
type RecomputeStats struct {
	Duration         time.Duration
	BalanceWrites    int
	SnapshotsWritten int
}

// BalanceConfig wires a BalanceUseCase. Observe, when set, receives the
// outcome of every recompute walk.
type BalanceConfig struct {
	TxManager   TransactionManager
	TxRepo      TransactionRepository
	MonthlyRepo MonthlyBalanceRepository
	Cache       Cache
	Logger      *slog.Logger
	Debounce    time.Duration
	CacheTTL    time.Duration
	Observe     func(RecomputeStats)
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(cfg BalanceConfig) *BalanceUseCase {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounceWindow
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultMonthlyCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	uc := &BalanceUseCase{
		txManager:   cfg.TxManager,
		txRepo:      cfg.TxRepo,
		monthlyRepo: cfg.MonthlyRepo,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		debounce:    cfg.Debounce,
		cacheTTL:    cfg.CacheTTL,
		observe:     cfg.Observe,
		baseCtx:     context.Background(),
		pending:     make(map[string]*domain.RecomputeRequest),
		timers:      make(map[string]*time.Timer),
		inflight:    make(map[string]struct{}),
	}
	uc.idle = sync.NewCond(&uc.mu)
	return uc
}

// Start binds the scheduler to a lifecycle context and blocks until it is
// cancelled. Pending work is drained before returning.
func (uc *BalanceUseCase) Start(ctx context.Context) error {
	uc.mu.Lock()
	uc.baseCtx = ctx
	uc.mu.Unlock()

	<-ctx.Done()

	uc.mu.Lock()
	for key, timer := range uc.timers {
		timer.Stop()
		delete(uc.timers, key)
	}
	uc.mu.Unlock()

	return ctx.Err()
}

func recomputeKey(tenantID, accountID string) string {
	return tenantID + "/" + accountID
}

// Request schedules a recompute. Non-blocking: the request coalesces with
// any pending one for the account, keeping the minimum from-date, and fires
// after the debounce window.
func (uc *BalanceUseCase) Request(req domain.RecomputeRequest) {
	if req.AccountID == "" {
		return
	}
	key := recomputeKey(req.TenantID, req.AccountID)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if pending, found := uc.pending[key]; found {
		pending.Coalesce(req)
		return
	}

	r := req
	uc.pending[key] = &r
	uc.timers[key] = time.AfterFunc(uc.debounce, func() {
		uc.fire(key)
	})
}

// fire moves a debounced request into a walk, unless one is already running
// for the account; the running walk re-fires on completion.
func (uc *BalanceUseCase) fire(key string) {
	uc.mu.Lock()
	delete(uc.timers, key)

	if _, running := uc.inflight[key]; running {
		// Single-writer per account: leave the request pending, the
		// current walk picks it up when it finishes.
		uc.mu.Unlock()
		return
	}

	req, found := uc.pending[key]
	if !found {
		uc.mu.Unlock()
		return
	}
	delete(uc.pending, key)
	uc.inflight[key] = struct{}{}
	ctx := uc.baseCtx
	uc.mu.Unlock()

	go uc.run(ctx, key, *req)
}

func (uc *BalanceUseCase) run(ctx context.Context, key string, req domain.RecomputeRequest) {
	if err := uc.Recompute(ctx, req); err != nil && !errors.Is(err, context.Canceled) {
		// Previously persisted balances stay internally consistent; the
		// next mutation on this account retries the walk.
		uc.logger.Error("recompute failed",
			"account_id", req.AccountID,
			"from", req.FromDate,
			"error", err)
	}

	uc.mu.Lock()
	delete(uc.inflight, key)
	_, more := uc.pending[key]
	uc.idle.Broadcast()
	uc.mu.Unlock()

	if more && ctx.Err() == nil {
		uc.fire(key)
	}
}

// Wait blocks until no walk or pending request remains. Test and shutdown
// helper.
func (uc *BalanceUseCase) Wait() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for len(uc.inflight) > 0 || len(uc.pending) > 0 {
		if len(uc.inflight) == 0 {
			// Pending entries are still debouncing; let their timers fire.
			uc.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			uc.mu.Lock()
			continue
		}
		uc.idle.Wait()
	}
}

// Recompute synchronously rebuilds running balances and monthly snapshots
// for one account from the given date forward. All writes of one walk land
// in a single store transaction.
func (uc *BalanceUseCase) Recompute(ctx context.Context, req domain.RecomputeRequest) error {
	start := time.Now()

	txs, err := uc.txRepo.ListByAccount(ctx, req.TenantID, req.AccountID)
	if err != nil {
		return fmt.Errorf("list account transactions: %w", err)
	}

	fromMonth := domain.MonthOf(req.FromDate.UTC())

	// Anchor: the most recent snapshot strictly before the changed window.
	// Everything up to the anchor month boundary is untouched; the walk
	// starts at the boundary with the anchor's balances.
	var (
		running   = decimal.Zero
		projected = decimal.Zero
		boundary  time.Time
		walkFrom  domain.Month
	)

	anchor, err := uc.monthlyRepo.GetLatestBefore(ctx, req.TenantID, fromMonth)
	switch {
	case err == nil:
		boundary = anchor.Key().End()
		walkFrom = anchor.Key().Next()
		if v, found := anchor.AccountBalances[req.AccountID]; found {
			running = v
		}
		if v, found := anchor.ProjectedAccountBalances[req.AccountID]; found {
			projected = v
		}
	case errors.Is(err, domain.ErrEntityNotFound):
		// No anchor: walk from the account's very first transaction, and
		// refresh snapshots from the changed month even when it now lies
		// before every remaining row (deleting the oldest transaction).
		walkFrom = fromMonth
		if len(txs) > 0 {
			if m := domain.MonthOf(txs[0].ValueDate); m.Before(walkFrom) {
				walkFrom = m
			}
		}
	default:
		return fmt.Errorf("load anchor snapshot: %w", err)
	}

	var writes []BalanceWrite
	monthActual := make(map[domain.Month]decimal.Decimal)
	monthProjected := make(map[domain.Month]decimal.Decimal)

	for _, t := range txs {
		if !boundary.IsZero() && t.ValueDate.Before(boundary) {
			continue
		}

		m := domain.MonthOf(t.ValueDate)
		if !t.Forecast {
			running = running.Add(t.Amount)
			if !running.Equal(t.RunningBalance) {
				writes = append(writes, BalanceWrite{
					TransactionID:  t.ID,
					RunningBalance: running,
				})
			}
		}
		projected = projected.Add(t.Amount)
		monthActual[m] = running
		monthProjected[m] = projected
	}

	snapshots, err := uc.refreshSnapshots(ctx, req, walkFrom, anchor, monthActual, monthProjected)
	if err != nil {
		return err
	}

	if len(writes) == 0 && len(snapshots) == 0 {
		uc.observeRun(start, 0, 0)
		return nil
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(writes) > 0 {
		if err := uc.txRepo.UpdateRunningBalances(ctx, tx, req.TenantID, writes); err != nil {
			return fmt.Errorf("write running balances: %w", err)
		}
	}
	if len(snapshots) > 0 {
		if err := uc.monthlyRepo.UpsertBatch(ctx, tx, req.AccountID, snapshots); err != nil {
			return fmt.Errorf("write monthly snapshots: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	uc.invalidateCache(ctx, req.TenantID, snapshots)
	uc.observeRun(start, len(writes), len(snapshots))

	uc.logger.Debug("recompute finished",
		"account_id", req.AccountID,
		"balance_writes", len(writes),
		"snapshots", len(snapshots))

	return nil
}

func (uc *BalanceUseCase) observeRun(start time.Time, writes, snapshots int) {
	if uc.observe == nil {
		return
	}
	uc.observe(RecomputeStats{
		Duration:         time.Since(start),
		BalanceWrites:    writes,
		SnapshotsWritten: snapshots,
	})
}

// refreshSnapshots recomputes every month touched by the walk plus all
// already-persisted later months, carrying forward cumulative balances over
// months with no transactions. Existing snapshots keep the other accounts'
// values; only this account's entries and the tenant-wide category sums are
// rewritten. A month materialized by this walk starts as a copy of the
// previous month's per-account balances, so other accounts keep their
// carried-forward totals instead of reading as zero on their next anchor
// lookup.
func (uc *BalanceUseCase) refreshSnapshots(
	ctx context.Context,
	req domain.RecomputeRequest,
	walkFrom domain.Month,
	anchor *domain.MonthlyBalance,
	monthActual, monthProjected map[domain.Month]decimal.Decimal,
) ([]*domain.MonthlyBalance, error) {
	existing, err := uc.monthlyRepo.ListFrom(ctx, req.TenantID, walkFrom)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	byMonth := make(map[domain.Month]*domain.MonthlyBalance, len(existing))
	touched := make(map[domain.Month]struct{})
	for _, snap := range existing {
		byMonth[snap.Key()] = snap
		touched[snap.Key()] = struct{}{}
	}
	for m := range monthActual {
		touched[m] = struct{}{}
	}
	if len(touched) == 0 {
		return nil, nil
	}

	months := make([]domain.Month, 0, len(touched))
	for m := range touched {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	carryActual := decimal.Zero
	carryProjected := decimal.Zero
	var prevActual, prevProjected map[string]decimal.Decimal
	if anchor != nil {
		if v, found := anchor.AccountBalances[req.AccountID]; found {
			carryActual = v
		}
		if v, found := anchor.ProjectedAccountBalances[req.AccountID]; found {
			carryProjected = v
		}
		prevActual = anchor.AccountBalances
		prevProjected = anchor.ProjectedAccountBalances
	}

	batch := make([]*domain.MonthlyBalance, 0, len(months))
	for _, m := range months {
		if v, found := monthActual[m]; found {
			carryActual = v
		}
		if v, found := monthProjected[m]; found {
			carryProjected = v
		}

		snap, found := byMonth[m]
		if !found {
			snap = domain.NewMonthlyBalance(req.TenantID, m)
			for id, v := range prevActual {
				snap.AccountBalances[id] = v
			}
			for id, v := range prevProjected {
				snap.ProjectedAccountBalances[id] = v
			}
		}
		snap.AccountBalances[req.AccountID] = carryActual
		snap.ProjectedAccountBalances[req.AccountID] = carryProjected
		prevActual = snap.AccountBalances
		prevProjected = snap.ProjectedAccountBalances

		actual, projectedSums, err := uc.txRepo.CategoryTotals(ctx, req.TenantID, m)
		if err != nil {
			return nil, fmt.Errorf("category totals for %d-%02d: %w", m.Year, m.Month, err)
		}
		snap.CategoryBalances = actual
		snap.ProjectedCategoryBalances = projectedSums

		batch = append(batch, snap)
	}

	return batch, nil
}

func monthlyCacheKey(tenantID string, m domain.Month) string {
	return fmt.Sprintf("monthly:%s:%04d-%02d", tenantID, m.Year, int(m.Month))
}

func (uc *BalanceUseCase) invalidateCache(ctx context.Context, tenantID string, snapshots []*domain.MonthlyBalance) {
	if uc.cache == nil {
		return
	}
	for _, snap := range snapshots {
		if err := uc.cache.Delete(ctx, monthlyCacheKey(tenantID, snap.Key())); err != nil {
			uc.logger.Debug("cache invalidation failed", "error", err)
		}
	}
}

// MonthlyBalance returns the snapshot for one month, cache-aside. A month
// with no persisted snapshot reads as an all-zero snapshot, never null.
func (uc *BalanceUseCase) MonthlyBalance(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error) {
	key := monthlyCacheKey(tenantID, month)

	if uc.cache != nil {
		if raw, err := uc.cache.Get(ctx, key); err == nil && len(raw) > 0 {
			var snap domain.MonthlyBalance
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
		}
	}

	snap, err := uc.monthlyRepo.Get(ctx, tenantID, month)
	if errors.Is(err, domain.ErrEntityNotFound) {
		snap = domain.NewMonthlyBalance(tenantID, month)
	} else if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := uc.cache.Set(ctx, key, raw, uc.cacheTTL); err != nil {
				uc.logger.Debug("cache write failed", "error", err)
			}
		}
	}

	return snap, nil
}
