package dto

import (
	"encoding/json"
	"time"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// EnqueueRequest represents a request to record a local mutation.
type EnqueueRequest struct {
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	OperationType string          `json:"operation_type"`
	Payload       json.RawMessage `json:"payload"`
}

// ToUseCaseInput converts to use case input.
func (r *EnqueueRequest) ToUseCaseInput(tenantID string) usecase.EnqueueInput {
	return usecase.EnqueueInput{
		TenantID:      tenantID,
		EntityType:    domain.EntityType(r.EntityType),
		EntityID:      r.EntityID,
		OperationType: domain.OperationType(r.OperationType),
		Payload:       r.Payload,
	}
}

// RecomputeRequest represents a request to rebuild balances for an account.
type RecomputeRequest struct {
	AccountID string    `json:"account_id"`
	FromDate  time.Time `json:"from_date"`
}

// ToDomain converts to a domain recompute request.
func (r *RecomputeRequest) ToDomain(tenantID string) domain.RecomputeRequest {
	return domain.RecomputeRequest{
		TenantID:  tenantID,
		AccountID: r.AccountID,
		FromDate:  r.FromDate,
	}
}
