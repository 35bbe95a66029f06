package domain_test

import (
	"testing"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

func TestMonth_Boundaries(t *testing.T) {
	m := domain.Month{Year: 2024, Month: time.February}

	if got := m.Start(); !got.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start() = %s", got)
	}
	// Leap year: February ends where March begins.
	if got := m.End(); !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End() = %s", got)
	}
	if got := m.Next(); got != (domain.Month{Year: 2024, Month: time.March}) {
		t.Errorf("Next() = %+v", got)
	}
}

func TestMonth_NextAcrossYear(t *testing.T) {
	m := domain.Month{Year: 2024, Month: time.December}
	if got := m.Next(); got != (domain.Month{Year: 2025, Month: time.January}) {
		t.Errorf("Next() = %+v", got)
	}
}

func TestMonth_Before(t *testing.T) {
	tests := []struct {
		a, b domain.Month
		want bool
	}{
		{domain.Month{Year: 2024, Month: time.January}, domain.Month{Year: 2024, Month: time.February}, true},
		{domain.Month{Year: 2024, Month: time.February}, domain.Month{Year: 2024, Month: time.January}, false},
		{domain.Month{Year: 2023, Month: time.December}, domain.Month{Year: 2024, Month: time.January}, true},
		{domain.Month{Year: 2024, Month: time.March}, domain.Month{Year: 2024, Month: time.March}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Before(tt.b); got != tt.want {
			t.Errorf("%+v.Before(%+v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMonthOf_LastInstant(t *testing.T) {
	// 23:59:59.999 on the last day still belongs to the month.
	at := time.Date(2024, 1, 31, 23, 59, 59, 999000000, time.UTC)
	if got := domain.MonthOf(at); got != (domain.Month{Year: 2024, Month: time.January}) {
		t.Errorf("MonthOf(%s) = %+v", at, got)
	}
}

func TestNewMonthlyBalance_AllocatesMaps(t *testing.T) {
	b := domain.NewMonthlyBalance("tenant-1", domain.Month{Year: 2024, Month: time.May})

	if b.AccountBalances == nil || b.CategoryBalances == nil ||
		b.ProjectedAccountBalances == nil || b.ProjectedCategoryBalances == nil {
		t.Fatal("snapshot maps must never be nil")
	}
	if b.Key() != (domain.Month{Year: 2024, Month: time.May}) {
		t.Errorf("Key() = %+v", b.Key())
	}
}

func TestRecomputeRequest_Coalesce(t *testing.T) {
	earlier := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	later := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	r := domain.RecomputeRequest{TenantID: "t", AccountID: "a", FromDate: later}
	r.Coalesce(domain.RecomputeRequest{TenantID: "t", AccountID: "a", FromDate: earlier})
	if !r.FromDate.Equal(earlier) {
		t.Errorf("FromDate = %s, want %s", r.FromDate, earlier)
	}

	// A later date never moves the window forward.
	r.Coalesce(domain.RecomputeRequest{TenantID: "t", AccountID: "a", FromDate: later})
	if !r.FromDate.Equal(earlier) {
		t.Errorf("FromDate = %s, want %s", r.FromDate, earlier)
	}
}
