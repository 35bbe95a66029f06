package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single money movement on an account. The ULID id doubles
// as the creation tie-break for transactions sharing a value date.
// RunningBalance is owned exclusively by the balance recomputation engine;
// no other component writes it.
type Transaction struct {
	ID             string
	TenantID       string
	AccountID      string
	CategoryID     string
	Description    string
	Amount         decimal.Decimal
	ValueDate      time.Time
	Forecast       bool
	RunningBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Before reports whether t sorts ahead of other in recomputation order:
// value date ascending, then id (creation order) ascending.
func (t *Transaction) Before(other *Transaction) bool {
	if !t.ValueDate.Equal(other.ValueDate) {
		return t.ValueDate.Before(other.ValueDate)
	}
	return t.ID < other.ID
}

// Account is a bookkeeping account transactions belong to.
type Account struct {
	ID        string
	TenantID  string
	Name      string
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category labels transactions for per-month aggregation.
type Category struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
