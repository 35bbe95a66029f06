package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// MockTx is a no-op transaction.
type MockTx struct {
	Committed  bool
	RolledBack bool
}

func (t *MockTx) Commit(ctx context.Context) error {
	t.Committed = true
	return nil
}

func (t *MockTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

// MockTxManager hands out no-op transactions.
type MockTxManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTx{}, nil
}

// MockIDGenerator generates ULIDs unless overridden.
type MockIDGenerator struct {
	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	return ulid.Make().String()
}

// MockQueueRepository is an in-memory implementation of QueueRepository.
type MockQueueRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.QueueEntry

	GetActiveFunc    func(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (*domain.QueueEntry, error)
	InsertFunc       func(ctx context.Context, entry *domain.QueueEntry) error
	ClaimPendingFunc func(ctx context.Context, tenantID string, now time.Time, limit int) ([]*domain.QueueEntry, error)
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{
		entries: make(map[string]*domain.QueueEntry),
	}
}

func (m *MockQueueRepository) snapshot(e *domain.QueueEntry) *domain.QueueEntry {
	cp := *e
	return &cp
}

// Entries returns a copy of all stored entries, for assertions.
func (m *MockQueueRepository) Entries() []*domain.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.QueueEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, m.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockQueueRepository) GetActive(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (*domain.QueueEntry, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, tenantID, entityType, entityID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID && e.Active() {
			return m.snapshot(e), nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

func (m *MockQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, found := m.entries[id]; found {
		return m.snapshot(e), nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *MockQueueRepository) Insert(ctx context.Context, entry *domain.QueueEntry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = m.snapshot(entry)
	return nil
}

func (m *MockQueueRepository) UpdateActive(ctx context.Context, id string, op domain.OperationType, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found || !e.Active() {
		return domain.ErrEntryNotFound
	}
	e.OperationType = op
	e.Payload = payload
	return nil
}

func (m *MockQueueRepository) ClaimPending(ctx context.Context, tenantID string, now time.Time, limit int) ([]*domain.QueueEntry, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, tenantID, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed []*domain.QueueEntry
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := m.entries[id]
		if e.TenantID != tenantID || e.Status != domain.StatusPending {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		e.Status = domain.StatusProcessing
		at := now
		e.LastAttemptAt = &at
		claimed = append(claimed, m.snapshot(e))
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (m *MockQueueRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MockQueueRepository) MarkPending(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found || e.Status != domain.StatusProcessing {
		return nil
	}
	e.Status = domain.StatusPending
	e.Attempts = attempts
	e.LastError = lastError
	e.NextAttemptAt = &nextAttemptAt
	return nil
}

func (m *MockQueueRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found || e.Status != domain.StatusProcessing {
		return nil
	}
	e.Status = domain.StatusFailed
	e.Attempts = attempts
	e.LastError = lastError
	e.NextAttemptAt = nil
	return nil
}

func (m *MockQueueRepository) DeleteActiveByEntity(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID && e.Active() {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MockQueueRepository) ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Status == domain.StatusProcessing && e.LastAttemptAt != nil && e.LastAttemptAt.Before(cutoff) {
			e.Status = domain.StatusPending
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) RetryFailed(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.Status == domain.StatusFailed {
			e.Status = domain.StatusPending
			e.Attempts = 0
			e.NextAttemptAt = nil
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.QueueStatistics
	for _, e := range m.entries {
		if e.TenantID != tenantID {
			continue
		}
		switch e.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusProcessing:
			stats.Processing++
		case domain.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// MockTransactionRepository is an in-memory implementation of
// TransactionRepository.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[string]*domain.Transaction

	ListByAccountFunc         func(ctx context.Context, tenantID, accountID string) ([]*domain.Transaction, error)
	UpdateRunningBalancesFunc func(ctx context.Context, tx usecase.Transaction, tenantID string, writes []usecase.BalanceWrite) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[string]*domain.Transaction),
	}
}

// Seed stores a transaction directly.
func (m *MockTransactionRepository) Seed(t *domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transactions[t.ID] = &cp
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, found := m.transactions[id]; found && t.TenantID == tenantID {
		cp := *t
		return &cp, nil
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionRepository) Put(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepository) Delete(ctx context.Context, tx usecase.Transaction, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, id)
	return nil
}

func (m *MockTransactionRepository) ListByAccount(ctx context.Context, tenantID, accountID string) ([]*domain.Transaction, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, tenantID, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range m.transactions {
		if t.TenantID == tenantID && t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *MockTransactionRepository) UpdateRunningBalances(ctx context.Context, tx usecase.Transaction, tenantID string, writes []usecase.BalanceWrite) error {
	if m.UpdateRunningBalancesFunc != nil {
		return m.UpdateRunningBalancesFunc(ctx, tx, tenantID, writes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		if t, found := m.transactions[w.TransactionID]; found {
			t.RunningBalance = w.RunningBalance
		}
	}
	return nil
}

func (m *MockTransactionRepository) SetUpdatedAt(ctx context.Context, tx usecase.Transaction, tenantID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, found := m.transactions[id]
	if !found {
		return domain.ErrTransactionNotFound
	}
	t.UpdatedAt = at
	return nil
}

func (m *MockTransactionRepository) CategoryTotals(ctx context.Context, tenantID string, month domain.Month) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	actual := make(map[string]decimal.Decimal)
	projected := make(map[string]decimal.Decimal)
	for _, t := range m.transactions {
		if t.TenantID != tenantID || t.CategoryID == "" {
			continue
		}
		if domain.MonthOf(t.ValueDate) != month {
			continue
		}
		projected[t.CategoryID] = projected[t.CategoryID].Add(t.Amount)
		if !t.Forecast {
			actual[t.CategoryID] = actual[t.CategoryID].Add(t.Amount)
		}
	}
	return actual, projected, nil
}

// MockEntityRepository is an in-memory implementation of EntityRepository.
type MockEntityRepository struct {
	mu       sync.Mutex
	entities map[string]*domain.SyncedEntity
}

func NewMockEntityRepository() *MockEntityRepository {
	return &MockEntityRepository{
		entities: make(map[string]*domain.SyncedEntity),
	}
}

func entityKey(tenantID string, entityType domain.EntityType, id string) string {
	return tenantID + "/" + string(entityType) + "/" + id
}

// Seed stores an entity directly.
func (m *MockEntityRepository) Seed(e *domain.SyncedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entities[entityKey(e.TenantID, e.EntityType, e.ID)] = &cp
}

func (m *MockEntityRepository) Get(ctx context.Context, tenantID string, entityType domain.EntityType, id string) (*domain.SyncedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, found := m.entities[entityKey(tenantID, entityType, id)]; found {
		cp := *e
		return &cp, nil
	}
	return nil, domain.ErrEntityNotFound
}

func (m *MockEntityRepository) Put(ctx context.Context, tx usecase.Transaction, e *domain.SyncedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entities[entityKey(e.TenantID, e.EntityType, e.ID)] = &cp
	return nil
}

func (m *MockEntityRepository) Delete(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, entityKey(tenantID, entityType, id))
	return nil
}

func (m *MockEntityRepository) SetUpdatedAt(ctx context.Context, tx usecase.Transaction, tenantID string, entityType domain.EntityType, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entities[entityKey(tenantID, entityType, id)]
	if !found {
		return domain.ErrEntityNotFound
	}
	e.UpdatedAt = at
	return nil
}

// MockMonthlyBalanceRepository is an in-memory implementation of
// MonthlyBalanceRepository.
type MockMonthlyBalanceRepository struct {
	mu        sync.Mutex
	snapshots map[string]map[domain.Month]*domain.MonthlyBalance
}

func NewMockMonthlyBalanceRepository() *MockMonthlyBalanceRepository {
	return &MockMonthlyBalanceRepository{
		snapshots: make(map[string]map[domain.Month]*domain.MonthlyBalance),
	}
}

func copySnapshot(b *domain.MonthlyBalance) *domain.MonthlyBalance {
	cp := domain.NewMonthlyBalance(b.TenantID, b.Key())
	cp.UpdatedAt = b.UpdatedAt
	for k, v := range b.AccountBalances {
		cp.AccountBalances[k] = v
	}
	for k, v := range b.CategoryBalances {
		cp.CategoryBalances[k] = v
	}
	for k, v := range b.ProjectedAccountBalances {
		cp.ProjectedAccountBalances[k] = v
	}
	for k, v := range b.ProjectedCategoryBalances {
		cp.ProjectedCategoryBalances[k] = v
	}
	return cp
}

func (m *MockMonthlyBalanceRepository) tenant(tenantID string) map[domain.Month]*domain.MonthlyBalance {
	t, found := m.snapshots[tenantID]
	if !found {
		t = make(map[domain.Month]*domain.MonthlyBalance)
		m.snapshots[tenantID] = t
	}
	return t
}

func (m *MockMonthlyBalanceRepository) Get(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, found := m.tenant(tenantID)[month]; found {
		return copySnapshot(b), nil
	}
	return nil, domain.ErrEntityNotFound
}

func (m *MockMonthlyBalanceRepository) GetLatestBefore(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.MonthlyBalance
	for key, b := range m.tenant(tenantID) {
		if !key.Before(month) {
			continue
		}
		if best == nil || best.Key().Before(key) {
			best = b
		}
	}
	if best == nil {
		return nil, domain.ErrEntityNotFound
	}
	return copySnapshot(best), nil
}

func (m *MockMonthlyBalanceRepository) ListFrom(ctx context.Context, tenantID string, from domain.Month) ([]*domain.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MonthlyBalance
	for key, b := range m.tenant(tenantID) {
		if key.Before(from) {
			continue
		}
		out = append(out, copySnapshot(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Before(out[j].Key()) })
	return out, nil
}

// UpsertBatch mirrors the SQL merge semantics: on an existing row only the
// walked account's entries and the category maps are replaced, a new row
// takes the full snapshot.
func (m *MockMonthlyBalanceRepository) UpsertBatch(ctx context.Context, tx usecase.Transaction, accountID string, batch []*domain.MonthlyBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range batch {
		existing, found := m.tenant(b.TenantID)[b.Key()]
		if !found {
			m.tenant(b.TenantID)[b.Key()] = copySnapshot(b)
			continue
		}
		if v, has := b.AccountBalances[accountID]; has {
			existing.AccountBalances[accountID] = v
		}
		if v, has := b.ProjectedAccountBalances[accountID]; has {
			existing.ProjectedAccountBalances[accountID] = v
		}
		existing.CategoryBalances = make(map[string]decimal.Decimal, len(b.CategoryBalances))
		for k, v := range b.CategoryBalances {
			existing.CategoryBalances[k] = v
		}
		existing.ProjectedCategoryBalances = make(map[string]decimal.Decimal, len(b.ProjectedCategoryBalances))
		for k, v := range b.ProjectedCategoryBalances {
			existing.ProjectedCategoryBalances[k] = v
		}
		existing.UpdatedAt = b.UpdatedAt
	}
	return nil
}

// MockSyncStateRepository is an in-memory implementation of
// SyncStateRepository.
type MockSyncStateRepository struct {
	mu          sync.Mutex
	checkpoints map[string]time.Time
}

func NewMockSyncStateRepository() *MockSyncStateRepository {
	return &MockSyncStateRepository{
		checkpoints: make(map[string]time.Time),
	}
}

func (m *MockSyncStateRepository) GetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[tenantID+"/"+string(entityType)], nil
}

func (m *MockSyncStateRepository) SetCheckpoint(ctx context.Context, tenantID string, entityType domain.EntityType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[tenantID+"/"+string(entityType)] = at
	return nil
}

// MockTransport is a scriptable Transport.
type MockTransport struct {
	mu     sync.Mutex
	pushes [][]domain.PushItem

	PushFunc func(ctx context.Context, tenantID string, batch []domain.PushItem) ([]domain.PushResult, error)
	PullFunc func(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error)
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Pushes returns every batch pushed so far.
func (m *MockTransport) Pushes() [][]domain.PushItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.PushItem(nil), m.pushes...)
}

func (m *MockTransport) Push(ctx context.Context, tenantID string, batch []domain.PushItem) ([]domain.PushResult, error) {
	m.mu.Lock()
	m.pushes = append(m.pushes, batch)
	m.mu.Unlock()

	if m.PushFunc != nil {
		return m.PushFunc(ctx, tenantID, batch)
	}

	// Default: acknowledge everything.
	now := time.Now().UTC()
	results := make([]domain.PushResult, 0, len(batch))
	for _, item := range batch {
		at := now
		results = append(results, domain.PushResult{
			EntityID:     item.EntityID,
			Status:       domain.PushStatusProcessed,
			NewUpdatedAt: &at,
		})
	}
	return results, nil
}

func (m *MockTransport) Pull(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
	if m.PullFunc != nil {
		return m.PullFunc(ctx, entityType, tenantID, since)
	}
	return &domain.PullResult{ServerTimestamp: time.Now().UTC()}, nil
}

// MockCache is an in-memory Cache.
type MockCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, found := m.items[key]; found {
		return v, nil
	}
	return nil, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
