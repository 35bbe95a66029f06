package usecase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
)

// Wire timestamps arrive in RFC3339 with or without sub-second precision.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func parseWireTime(s string) (time.Time, error) {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// serverTimestamp extracts the server-assigned update timestamp of a pulled
// entity. Both the camelCase and snake_case field names are accepted: the
// backend and the local store disagree on naming, and a name mismatch must
// never read as "no timestamp", or a stale pull could overwrite a
// server-confirmed edit.
func serverTimestamp(e *domain.SyncedEntity) (time.Time, error) {
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt.UTC(), nil
	}

	var body map[string]any
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &body); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", domain.ErrMissingTimestamp, err)
		}
	}

	if s, found := stringField(body, "updatedAt", "updated_at"); found {
		t, err := parseWireTime(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", domain.ErrMissingTimestamp, err)
		}
		return t, nil
	}

	return time.Time{}, domain.ErrMissingTimestamp
}

// decimalField reads an amount that may arrive as a JSON string or number.
func decimalField(body map[string]any, names ...string) (decimal.Decimal, bool, error) {
	for _, name := range names {
		v, found := body[name]
		if !found {
			continue
		}
		switch x := v.(type) {
		case string:
			d, err := decimal.NewFromString(x)
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("%w: bad amount %q", domain.ErrInvalidPayload, x)
			}
			return d, true, nil
		case float64:
			return decimal.NewFromFloat(x), true, nil
		case json.Number:
			d, err := decimal.NewFromString(x.String())
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("%w: bad amount %q", domain.ErrInvalidPayload, x.String())
			}
			return d, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// decodeTransaction maps a pulled entity body onto a transaction, accepting
// both naming conventions for every field the engine cares about.
func decodeTransaction(e *domain.SyncedEntity) (*domain.Transaction, error) {
	var body map[string]any
	if err := json.Unmarshal(e.Data, &body); err != nil {
		return nil, fmt.Errorf("decode transaction body: %w", err)
	}

	t := &domain.Transaction{
		ID:       e.ID,
		TenantID: e.TenantID,
	}

	if s, found := stringField(body, "accountId", "account_id"); found {
		t.AccountID = s
	}
	if s, found := stringField(body, "categoryId", "category_id"); found {
		t.CategoryID = s
	}
	if s, found := stringField(body, "description"); found {
		t.Description = s
	}
	if s, found := stringField(body, "valueDate", "value_date"); found {
		d, err := parseWireTime(s)
		if err != nil {
			return nil, err
		}
		t.ValueDate = d
	}
	if s, found := stringField(body, "createdAt", "created_at"); found {
		if d, err := parseWireTime(s); err == nil {
			t.CreatedAt = d
		}
	}
	amount, found, err := decimalField(body, "amount")
	if err != nil {
		return nil, err
	}
	if found {
		t.Amount = amount
	}
	if v, found := body["forecast"]; found {
		if b, isBool := v.(bool); isBool {
			t.Forecast = b
		}
	}

	if t.AccountID == "" {
		return nil, fmt.Errorf("%w: transaction %s has no account id", domain.ErrInvalidPayload, e.ID)
	}
	if t.ValueDate.IsZero() {
		return nil, fmt.Errorf("%w: transaction %s has no value date", domain.ErrInvalidPayload, e.ID)
	}

	ts, err := serverTimestamp(e)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = ts

	return t, nil
}
