package domain

import "errors"

var (
	// Queue errors
	ErrEntryNotFound  = errors.New("queue entry not found")
	ErrInvalidPayload = errors.New("invalid queue payload")
	ErrTenantRequired = errors.New("tenant id is required")

	// Entity errors
	ErrEntityNotFound      = errors.New("entity not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// Sync errors
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrMissingTimestamp  = errors.New("entity has no server timestamp")
)
