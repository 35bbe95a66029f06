package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// QueueEntryResponse represents a queue entry in API responses.
type QueueEntryResponse struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	OperationType string          `json:"operation_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// QueueEntryFromDomain converts a domain queue entry to a response.
func QueueEntryFromDomain(e *domain.QueueEntry) *QueueEntryResponse {
	return &QueueEntryResponse{
		ID:            e.ID,
		EntityType:    string(e.EntityType),
		EntityID:      e.EntityID,
		OperationType: string(e.OperationType),
		Payload:       e.Payload,
		Status:        string(e.Status),
		Attempts:      e.Attempts,
		LastAttemptAt: e.LastAttemptAt,
		LastError:     e.LastError,
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
	}
}

// DrainResponse reports the outcome of one drain cycle.
type DrainResponse struct {
	Sent   int `json:"sent"`
	Acked  int `json:"acked"`
	Nacked int `json:"nacked"`
}

// DrainFromReport converts a drain report to a response.
func DrainFromReport(r usecase.DrainReport) DrainResponse {
	return DrainResponse{Sent: r.Sent, Acked: r.Acked, Nacked: r.Nacked}
}

// CountResponse reports how many entries an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// PullResponse reports the outcome of one pull cycle.
type PullResponse struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Discarded int `json:"discarded"`
	Skipped   int `json:"skipped"`
}

// PullFromReport converts a pull report to a response.
func PullFromReport(r usecase.PullReport) PullResponse {
	return PullResponse{
		Received:  r.Received,
		Applied:   r.Applied,
		Discarded: r.Discarded,
		Skipped:   r.Skipped,
	}
}

// MonthlyBalanceResponse represents a monthly snapshot in API responses.
type MonthlyBalanceResponse struct {
	Year                      int                        `json:"year"`
	Month                     int                        `json:"month"`
	AccountBalances           map[string]decimal.Decimal `json:"account_balances"`
	CategoryBalances          map[string]decimal.Decimal `json:"category_balances"`
	ProjectedAccountBalances  map[string]decimal.Decimal `json:"projected_account_balances"`
	ProjectedCategoryBalances map[string]decimal.Decimal `json:"projected_category_balances"`
}

// MonthlyBalanceFromDomain converts a domain snapshot to a response.
func MonthlyBalanceFromDomain(b *domain.MonthlyBalance) *MonthlyBalanceResponse {
	return &MonthlyBalanceResponse{
		Year:                      b.Year,
		Month:                     int(b.Month),
		AccountBalances:           b.AccountBalances,
		CategoryBalances:          b.CategoryBalances,
		ProjectedAccountBalances:  b.ProjectedAccountBalances,
		ProjectedCategoryBalances: b.ProjectedCategoryBalances,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
