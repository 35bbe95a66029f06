package domain

import (
	"encoding/json"
	"time"
)

// NackReason classifies why the backend rejected a pushed mutation.
type NackReason string

const (
	ReasonValidationError NackReason = "validation_error"
	ReasonConflict        NackReason = "conflict"
	ReasonNetworkError    NackReason = "network_error"
	ReasonTimeout         NackReason = "timeout"
)

// Sync message types on the asynchronous channel.
const (
	MessageTypeAck  = "sync_ack"
	MessageTypeNack = "sync_nack"
)

// PushStatus values on push responses.
const (
	PushStatusProcessed = "processed"
	PushStatusFailed    = "failed"
)

// PushItem is one queue entry serialized for a push batch.
type PushItem struct {
	ID            string          `json:"id"`
	EntityID      string          `json:"entityId"`
	EntityType    EntityType      `json:"entityType"`
	OperationType OperationType   `json:"operationType"`
	Payload       json.RawMessage `json:"payload"`
}

// PushResult is the backend's per-entry answer to a push.
type PushResult struct {
	EntityID     string     `json:"entityId"`
	Status       string     `json:"status"`
	NewUpdatedAt *time.Time `json:"newUpdatedAt,omitempty"`
	Reason       NackReason `json:"reason,omitempty"`
	Detail       string     `json:"detail,omitempty"`
}

// Processed reports whether the result is a positive acknowledgement.
func (r PushResult) Processed() bool {
	return r.Status == PushStatusProcessed
}

// SyncMessage is one ack or nack frame on the asynchronous channel.
type SyncMessage struct {
	Type          string        `json:"type"`
	ID            string        `json:"id"`
	EntityID      string        `json:"entityId"`
	EntityType    EntityType    `json:"entityType"`
	OperationType OperationType `json:"operationType"`
	NewUpdatedAt  *time.Time    `json:"newUpdatedAt,omitempty"`
	Reason        NackReason    `json:"reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
}

// PullResult is the backend's answer to an incremental pull.
type PullResult struct {
	Data            []SyncedEntity `json:"data"`
	ServerTimestamp time.Time      `json:"serverTimestamp"`
}

// SyncedEntity is the generic form of an entity crossing the sync boundary.
// UpdatedAt is the server-assigned timestamp used for last-write-wins
// comparison; Data holds the entity body as the backend sent it.
type SyncedEntity struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	EntityType EntityType      `json:"entityType"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Data       json.RawMessage `json:"data"`
}
