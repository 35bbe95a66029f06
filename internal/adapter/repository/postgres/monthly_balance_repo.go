package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// MonthlyBalanceRepository implements usecase.MonthlyBalanceRepository. The
// four balance maps are stored as jsonb; decimals travel as strings so no
// precision is lost.
type MonthlyBalanceRepository struct {
	pool *pgxpool.Pool
}

// NewMonthlyBalanceRepository creates a new MonthlyBalanceRepository.
func NewMonthlyBalanceRepository(pool *pgxpool.Pool) *MonthlyBalanceRepository {
	return &MonthlyBalanceRepository{pool: pool}
}

const monthlyBalanceColumns = `tenant_id, year, month, account_balances,
	category_balances, projected_account_balances, projected_category_balances, updated_at`

// Get returns the snapshot for the month or domain.ErrEntityNotFound.
func (r *MonthlyBalanceRepository) Get(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error) {
	const q = `
		SELECT ` + monthlyBalanceColumns + `
		FROM monthly_balances
		WHERE tenant_id = $1 AND year = $2 AND month = $3
	`
	return scanMonthlyBalance(r.pool.QueryRow(ctx, q, tenantID, month.Year, int(month.Month)))
}

// GetLatestBefore returns the most recent persisted snapshot strictly before
// the month. The recompute walk anchors on it instead of replaying from the
// beginning of history.
func (r *MonthlyBalanceRepository) GetLatestBefore(ctx context.Context, tenantID string, month domain.Month) (*domain.MonthlyBalance, error) {
	const q = `
		SELECT ` + monthlyBalanceColumns + `
		FROM monthly_balances
		WHERE tenant_id = $1 AND (year, month) < ($2, $3)
		ORDER BY year DESC, month DESC
		LIMIT 1
	`
	return scanMonthlyBalance(r.pool.QueryRow(ctx, q, tenantID, month.Year, int(month.Month)))
}

// ListFrom returns all persisted snapshots at or after the month in
// chronological order.
func (r *MonthlyBalanceRepository) ListFrom(ctx context.Context, tenantID string, from domain.Month) ([]*domain.MonthlyBalance, error) {
	const q = `
		SELECT ` + monthlyBalanceColumns + `
		FROM monthly_balances
		WHERE tenant_id = $1 AND (year, month) >= ($2, $3)
		ORDER BY year, month
	`
	rows, err := r.pool.Query(ctx, q, tenantID, from.Year, int(from.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*domain.MonthlyBalance
	for rows.Next() {
		b, err := scanMonthlyBalance(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, b)
	}

	return snapshots, rows.Err()
}

// UpsertBatch writes the snapshots of one account walk within a transaction.
// On conflict only the walked account's jsonb keys merge into the existing
// row; the full maps, which include carried-forward copies of other accounts,
// apply only when the row is created. Concurrent walks for different accounts
// therefore never overwrite each other's entries.
func (r *MonthlyBalanceRepository) UpsertBatch(ctx context.Context, tx usecase.Transaction, accountID string, batch []*domain.MonthlyBalance) error {
	if len(batch) == 0 {
		return nil
	}

	const q = `
		INSERT INTO monthly_balances (` + monthlyBalanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, year, month) DO UPDATE SET
			account_balances = monthly_balances.account_balances || $9::jsonb,
			category_balances = EXCLUDED.category_balances,
			projected_account_balances = monthly_balances.projected_account_balances || $10::jsonb,
			projected_category_balances = EXCLUDED.projected_category_balances,
			updated_at = EXCLUDED.updated_at
	`
	pgxBatch := &pgx.Batch{}
	for _, b := range batch {
		account, err := encodeBalances(b.AccountBalances)
		if err != nil {
			return err
		}
		category, err := encodeBalances(b.CategoryBalances)
		if err != nil {
			return err
		}
		projAccount, err := encodeBalances(b.ProjectedAccountBalances)
		if err != nil {
			return err
		}
		projCategory, err := encodeBalances(b.ProjectedCategoryBalances)
		if err != nil {
			return err
		}
		ownAccount, err := encodeBalances(ownEntry(b.AccountBalances, accountID))
		if err != nil {
			return err
		}
		ownProjected, err := encodeBalances(ownEntry(b.ProjectedAccountBalances, accountID))
		if err != nil {
			return err
		}

		pgxBatch.Queue(q, b.TenantID, b.Year, int(b.Month),
			account, category, projAccount, projCategory, b.UpdatedAt,
			ownAccount, ownProjected)
	}

	return tx.(*Tx).PgxTx().SendBatch(ctx, pgxBatch).Close()
}

func ownEntry(m map[string]decimal.Decimal, accountID string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 1)
	if v, found := m[accountID]; found {
		out[accountID] = v
	}
	return out
}

func scanMonthlyBalance(row pgx.Row) (*domain.MonthlyBalance, error) {
	var (
		b            domain.MonthlyBalance
		month        int
		account      []byte
		category     []byte
		projAccount  []byte
		projCategory []byte
		updatedAt    *time.Time
	)
	err := row.Scan(&b.TenantID, &b.Year, &month,
		&account, &category, &projAccount, &projCategory, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}

		return nil, err
	}

	b.Month = time.Month(month)
	if updatedAt != nil {
		b.UpdatedAt = *updatedAt
	}

	if b.AccountBalances, err = decodeBalances(account); err != nil {
		return nil, err
	}
	if b.CategoryBalances, err = decodeBalances(category); err != nil {
		return nil, err
	}
	if b.ProjectedAccountBalances, err = decodeBalances(projAccount); err != nil {
		return nil, err
	}
	if b.ProjectedCategoryBalances, err = decodeBalances(projCategory); err != nil {
		return nil, err
	}

	return &b, nil
}

func encodeBalances(m map[string]decimal.Decimal) ([]byte, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}

	return json.Marshal(out)
}

func decodeBalances(raw []byte) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if len(raw) == 0 {
		return out, nil
	}

	var in map[string]string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	for k, v := range in {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("balance for %q: %w", k, err)
		}
		out[k] = d
	}

	return out, nil
}
