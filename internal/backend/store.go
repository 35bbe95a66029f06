package backend

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

// Store is the in-memory entity store of the reference backend. It is the
// authoritative side of the sync protocol: every accepted mutation gets a
// server-assigned update timestamp, and pulls see entities strictly newer
// than the caller's checkpoint.
type Store struct {
	mu       sync.Mutex
	entities map[storeKey]*domain.SyncedEntity
	now      func() time.Time
	lastTick time.Time
}

type storeKey struct {
	tenantID   string
	entityType domain.EntityType
	entityID   string
}

// NewStore creates an empty store. A nil clock defaults to time.Now.
func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		entities: make(map[storeKey]*domain.SyncedEntity),
		now:      clock,
	}
}

// tick returns a server timestamp that is strictly greater than any
// previously issued one, so two mutations in the same clock instant still
// order deterministically under last-write-wins.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Microsecond)
	}
	s.lastTick = t
	return t
}

// Apply processes one pushed mutation and returns the per-entry result. The
// caller already holds a validated batch; Apply re-validates because the
// reference backend must reject what a buggy client lets through.
func (s *Store) Apply(tenantID string, item domain.PushItem) domain.PushResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := domain.ValidatePayload(item.OperationType, item.Payload); err != nil {
		return nack(item, domain.ReasonValidationError, err.Error())
	}

	key := storeKey{tenantID: tenantID, entityType: item.EntityType, entityID: item.EntityID}

	switch item.OperationType {
	case domain.OperationCreate:
		var p domain.CreatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return nack(item, domain.ReasonValidationError, err.Error())
		}
		return s.put(key, p.Entity, item)

	case domain.OperationUpdate:
		existing, found := s.entities[key]
		if !found {
			return nack(item, domain.ReasonConflict, fmt.Sprintf("entity %s does not exist", item.EntityID))
		}
		var p domain.UpdatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return nack(item, domain.ReasonValidationError, err.Error())
		}
		body := map[string]any{}
		if err := json.Unmarshal(existing.Data, &body); err != nil {
			return nack(item, domain.ReasonValidationError, err.Error())
		}
		for k, v := range p.Fields {
			body[k] = v
		}
		return s.put(key, body, item)

	case domain.OperationDelete:
		// Deleting what is already gone is a success; the client's intent
		// holds either way.
		delete(s.entities, key)
		at := s.tick()
		return domain.PushResult{
			EntityID:     item.EntityID,
			Status:       domain.PushStatusProcessed,
			NewUpdatedAt: &at,
		}

	default:
		return nack(item, domain.ReasonValidationError, fmt.Sprintf("unknown operation %q", item.OperationType))
	}
}

func (s *Store) put(key storeKey, body map[string]any, item domain.PushItem) domain.PushResult {
	at := s.tick()

	if body == nil {
		body = map[string]any{}
	}
	body["id"] = key.entityID
	body["updatedAt"] = at.Format(time.RFC3339Nano)

	data, err := json.Marshal(body)
	if err != nil {
		return nack(item, domain.ReasonValidationError, err.Error())
	}

	s.entities[key] = &domain.SyncedEntity{
		ID:         key.entityID,
		TenantID:   key.tenantID,
		EntityType: key.entityType,
		UpdatedAt:  at,
		Data:       data,
	}

	return domain.PushResult{
		EntityID:     key.entityID,
		Status:       domain.PushStatusProcessed,
		NewUpdatedAt: &at,
	}
}

// ChangedSince returns entities of the type updated strictly after since,
// oldest first, together with the server timestamp the caller should record
// as its next checkpoint.
func (s *Store) ChangedSince(tenantID string, entityType domain.EntityType, since time.Time) *domain.PullResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SyncedEntity
	for key, e := range s.entities {
		if key.tenantID != tenantID || key.entityType != entityType {
			continue
		}
		if e.UpdatedAt.After(since) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })

	return &domain.PullResult{
		Data:            out,
		ServerTimestamp: s.tick(),
	}
}

// Get returns a stored entity, or nil when absent. Tests use it to assert
// push outcomes without going through a pull.
func (s *Store) Get(tenantID string, entityType domain.EntityType, entityID string) *domain.SyncedEntity {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entities[storeKey{tenantID: tenantID, entityType: entityType, entityID: entityID}]
	if !found {
		return nil
	}
	copied := *e
	return &copied
}

func nack(item domain.PushItem, reason domain.NackReason, detail string) domain.PushResult {
	return domain.PushResult{
		EntityID: item.EntityID,
		Status:   domain.PushStatusFailed,
		Reason:   reason,
		Detail:   detail,
	}
}
