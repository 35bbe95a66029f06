package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/osk/fintrack/internal/domain"
)

func TestQueueEntry_Merge(t *testing.T) {
	tests := []struct {
		name        string
		first       domain.OperationType
		firstRaw    string
		second      domain.OperationType
		secondRaw   string
		wantOp      domain.OperationType
		wantPayload string
	}{
		{
			name:        "update then update keeps update",
			first:       domain.OperationUpdate,
			firstRaw:    `{"fields":{"name":"a"}}`,
			second:      domain.OperationUpdate,
			secondRaw:   `{"fields":{"name":"b"}}`,
			wantOp:      domain.OperationUpdate,
			wantPayload: `{"fields":{"name":"b"}}`,
		},
		{
			name:        "create then delete collapses",
			first:       domain.OperationCreate,
			firstRaw:    `{"entity":{"name":"a"}}`,
			second:      domain.OperationDelete,
			secondRaw:   `{"entityId":"e-1"}`,
			wantOp:      domain.OperationDelete,
			wantPayload: `{"entityId":"e-1"}`,
		},
		{
			name:        "update then delete collapses",
			first:       domain.OperationUpdate,
			firstRaw:    `{"fields":{"name":"a"}}`,
			second:      domain.OperationDelete,
			secondRaw:   `{"entityId":"e-1"}`,
			wantOp:      domain.OperationDelete,
			wantPayload: `{"entityId":"e-1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &domain.QueueEntry{
				OperationType: tt.first,
				Payload:       json.RawMessage(tt.firstRaw),
				Status:        domain.StatusPending,
			}
			e.Merge(tt.second, json.RawMessage(tt.secondRaw))

			if e.OperationType != tt.wantOp {
				t.Errorf("operation = %s, want %s", e.OperationType, tt.wantOp)
			}
			if string(e.Payload) != tt.wantPayload {
				t.Errorf("payload = %s, want %s", e.Payload, tt.wantPayload)
			}
		})
	}
}

func TestQueueEntry_MergeUpdateIntoCreate(t *testing.T) {
	e := &domain.QueueEntry{
		OperationType: domain.OperationCreate,
		Payload:       json.RawMessage(`{"entity":{"name":"Checking","currency":"EUR"}}`),
		Status:        domain.StatusPending,
	}

	e.Merge(domain.OperationUpdate, json.RawMessage(`{"fields":{"name":"Joint"}}`))

	if e.OperationType != domain.OperationCreate {
		t.Fatalf("expected create to survive, got %s", e.OperationType)
	}

	var p domain.CreatePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		t.Fatalf("failed to decode merged payload: %v", err)
	}
	if p.Entity["name"] != "Joint" {
		t.Errorf("expected updated field, got %v", p.Entity["name"])
	}
	if p.Entity["currency"] != "EUR" {
		t.Errorf("expected untouched field to survive, got %v", p.Entity["currency"])
	}
}

func TestQueueEntry_Active(t *testing.T) {
	tests := []struct {
		status domain.QueueStatus
		want   bool
	}{
		{domain.StatusPending, true},
		{domain.StatusProcessing, true},
		{domain.StatusFailed, false},
	}

	for _, tt := range tests {
		e := &domain.QueueEntry{Status: tt.status}
		if got := e.Active(); got != tt.want {
			t.Errorf("Active() with %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		op      domain.OperationType
		raw     string
		wantErr bool
	}{
		{"valid create", domain.OperationCreate, `{"entity":{"name":"Checking"}}`, false},
		{"create without entity", domain.OperationCreate, `{"entity":{}}`, true},
		{"valid update", domain.OperationUpdate, `{"fields":{"name":"Savings"}}`, false},
		{"update without fields", domain.OperationUpdate, `{"fields":{}}`, true},
		{"valid delete", domain.OperationDelete, `{"entityId":"e-1"}`, false},
		{"delete without id", domain.OperationDelete, `{}`, true},
		{"malformed json", domain.OperationCreate, `{`, true},
		{"unknown operation", domain.OperationType("upsert"), `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidatePayload(tt.op, json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidPayload) {
					t.Errorf("err = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
