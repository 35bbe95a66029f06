package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies the kind of entity a queue entry mutates.
type EntityType string

const (
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeAccount     EntityType = "account"
	EntityTypeCategory    EntityType = "category"
)

// OperationType identifies the mutation carried by a queue entry.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	StatusPending    QueueStatus = "PENDING"
	StatusProcessing QueueStatus = "PROCESSING"
	StatusFailed     QueueStatus = "FAILED"
)

// QueueEntry is one durable record of a not-yet-confirmed local mutation.
// At most one entry per (tenant, entity type, entity id) may be active
// (PENDING or PROCESSING) at a time; later mutations for the same entity
// merge into the existing entry.
type QueueEntry struct {
	ID            string
	TenantID      string
	EntityType    EntityType
	EntityID      string
	OperationType OperationType
	Payload       json.RawMessage
	Status        QueueStatus
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
}

// Active reports whether the entry still participates in coalescing.
func (e *QueueEntry) Active() bool {
	return e.Status == StatusPending || e.Status == StatusProcessing
}

// Merge folds a later mutation for the same entity into this entry. Rules:
//   - create then update keeps the create operation, with the update's
//     changed fields folded into the entity body
//   - anything followed by delete collapses to a single delete
//   - update then update keeps the latest payload
func (e *QueueEntry) Merge(op OperationType, payload json.RawMessage) {
	switch {
	case op == OperationDelete:
		e.OperationType = OperationDelete
		e.Payload = payload
	case e.OperationType == OperationCreate && op == OperationUpdate:
		// Entity does not exist upstream yet; keep sending a create that
		// already carries the later edit.
		e.Payload = mergeIntoCreate(e.Payload, payload)
	case e.OperationType == OperationCreate:
		e.Payload = payload
	default:
		e.OperationType = op
		e.Payload = payload
	}
}

func mergeIntoCreate(createRaw, updateRaw json.RawMessage) json.RawMessage {
	var c CreatePayload
	var u UpdatePayload
	if json.Unmarshal(createRaw, &c) != nil || json.Unmarshal(updateRaw, &u) != nil {
		return createRaw
	}
	if c.Entity == nil {
		c.Entity = map[string]any{}
	}
	for k, v := range u.Fields {
		c.Entity[k] = v
	}
	out, err := json.Marshal(c)
	if err != nil {
		return createRaw
	}
	return out
}

// CreatePayload carries the full entity body for a create operation.
type CreatePayload struct {
	Entity map[string]any `json:"entity"`
}

// Validate checks the payload invariants for a create.
func (p *CreatePayload) Validate() error {
	if len(p.Entity) == 0 {
		return fmt.Errorf("%w: create payload requires an entity body", ErrInvalidPayload)
	}
	return nil
}

// UpdatePayload carries the changed fields for an update operation.
type UpdatePayload struct {
	Fields map[string]any `json:"fields"`
}

// Validate checks the payload invariants for an update.
func (p *UpdatePayload) Validate() error {
	if len(p.Fields) == 0 {
		return fmt.Errorf("%w: update payload requires at least one field", ErrInvalidPayload)
	}
	return nil
}

// DeletePayload identifies the entity to remove upstream. For transactions
// the optional account id and value date preserve the recompute signal when
// the local row is already gone at enqueue time.
type DeletePayload struct {
	EntityID  string `json:"entityId"`
	AccountID string `json:"accountId,omitempty"`
	ValueDate string `json:"valueDate,omitempty"`
}

// Validate checks the payload invariants for a delete.
func (p *DeletePayload) Validate() error {
	if p.EntityID == "" {
		return fmt.Errorf("%w: delete payload requires an entity id", ErrInvalidPayload)
	}
	return nil
}

// ValidatePayload decodes and validates raw payload bytes against the
// operation type. It is called at enqueue time so malformed payloads never
// reach the queue table.
func ValidatePayload(op OperationType, raw json.RawMessage) error {
	switch op {
	case OperationCreate:
		var p CreatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	case OperationUpdate:
		var p UpdatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	case OperationDelete:
		var p DeletePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Validate()
	default:
		return fmt.Errorf("%w: unknown operation type %q", ErrInvalidPayload, op)
	}
}

// QueueStatistics summarizes queue depth by status. The UI layer reads this
// for observability; it never touches queue entries directly.
type QueueStatistics struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
}
