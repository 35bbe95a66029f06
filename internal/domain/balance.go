package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Month identifies one calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the month in UTC.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month in UTC. A transaction
// belongs to the month when Start <= valueDate < End.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(m.End())
}

// Before reports whether m precedes other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// MonthlyBalance is a persisted snapshot of balances at a month boundary.
// Account balances are cumulative running balances as of the last instant of
// the month; category balances are per-month sums. The projected variants
// additionally include forecast transactions. Snapshots are derived state:
// only the recomputation engine writes them.
type MonthlyBalance struct {
	TenantID                  string
	Year                      int
	Month                     time.Month
	AccountBalances           map[string]decimal.Decimal
	CategoryBalances          map[string]decimal.Decimal
	ProjectedAccountBalances  map[string]decimal.Decimal
	ProjectedCategoryBalances map[string]decimal.Decimal
	UpdatedAt                 time.Time
}

// NewMonthlyBalance returns an empty snapshot for the month. Maps are
// allocated so an account with no transactions reads as zero, never null.
func NewMonthlyBalance(tenantID string, m Month) *MonthlyBalance {
	return &MonthlyBalance{
		TenantID:                  tenantID,
		Year:                      m.Year,
		Month:                     m.Month,
		AccountBalances:           make(map[string]decimal.Decimal),
		CategoryBalances:          make(map[string]decimal.Decimal),
		ProjectedAccountBalances:  make(map[string]decimal.Decimal),
		ProjectedCategoryBalances: make(map[string]decimal.Decimal),
	}
}

// Key returns the snapshot's month.
func (b *MonthlyBalance) Key() Month {
	return Month{Year: b.Year, Month: b.Month}
}

// RecomputeRequest asks the engine to rebuild balances for one account from
// a given date forward. Requests for the same account coalesce to the
// minimum from-date.
type RecomputeRequest struct {
	TenantID  string
	AccountID string
	FromDate  time.Time
}

// Coalesce merges another request for the same account, keeping the earliest
// from-date.
func (r *RecomputeRequest) Coalesce(other RecomputeRequest) {
	if other.FromDate.Before(r.FromDate) {
		r.FromDate = other.FromDate
	}
}
