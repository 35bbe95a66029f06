package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, tenant_id, account_id, category_id, description,
	amount, value_date, forecast, running_balance, created_at, updated_at`

// GetByID retrieves a transaction by id.
func (r *TransactionRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Transaction, error) {
	const q = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = $1 AND id = $2
	`
	return scanTransaction(r.pool.QueryRow(ctx, q, tenantID, id))
}

// Put inserts or replaces a transaction within a transaction.
func (r *TransactionRepository) Put(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	const q = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			category_id = EXCLUDED.category_id,
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			value_date = EXCLUDED.value_date,
			forecast = EXCLUDED.forecast,
			running_balance = EXCLUDED.running_balance,
			updated_at = EXCLUDED.updated_at
	`
	_, err := queryTx(tx, r.pool).Exec(ctx, q,
		t.ID,
		t.TenantID,
		t.AccountID,
		nullableString(t.CategoryID),
		t.Description,
		decimalToNumeric(t.Amount),
		t.ValueDate,
		t.Forecast,
		decimalToNumeric(t.RunningBalance),
		t.CreatedAt,
		t.UpdatedAt,
	)

	return err
}

// Delete removes a transaction.
func (r *TransactionRepository) Delete(ctx context.Context, tx usecase.Transaction, tenantID, id string) error {
	const q = `DELETE FROM transactions WHERE tenant_id = $1 AND id = $2`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, tenantID, id)

	return err
}

// ListByAccount returns all transactions of the account ordered by
// (value_date, id) ascending. The id tie-break keeps recomputation
// deterministic for same-day transactions.
func (r *TransactionRepository) ListByAccount(ctx context.Context, tenantID, accountID string) ([]*domain.Transaction, error) {
	const q = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = $1 AND account_id = $2
		ORDER BY value_date, id
	`
	rows, err := r.pool.Query(ctx, q, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

// UpdateRunningBalances writes recomputed running balances as a batch.
func (r *TransactionRepository) UpdateRunningBalances(ctx context.Context, tx usecase.Transaction, tenantID string, writes []usecase.BalanceWrite) error {
	if len(writes) == 0 {
		return nil
	}

	const q = `
		UPDATE transactions
		SET running_balance = $3
		WHERE tenant_id = $1 AND id = $2
	`
	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(q, tenantID, w.TransactionID, decimalToNumeric(w.RunningBalance))
	}

	return tx.(*Tx).PgxTx().SendBatch(ctx, batch).Close()
}

// SetUpdatedAt stamps the server-assigned timestamp after an ack.
func (r *TransactionRepository) SetUpdatedAt(ctx context.Context, tx usecase.Transaction, tenantID, id string, at time.Time) error {
	const q = `
		UPDATE transactions
		SET updated_at = $3
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := queryTx(tx, r.pool).Exec(ctx, q, tenantID, id, at)

	return err
}

// CategoryTotals sums transaction amounts per category for one month across
// all accounts of the tenant. Uncategorized rows are skipped.
func (r *TransactionRepository) CategoryTotals(ctx context.Context, tenantID string, month domain.Month) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	const q = `
		SELECT category_id, forecast, SUM(amount)
		FROM transactions
		WHERE tenant_id = $1 AND category_id IS NOT NULL
		  AND value_date >= $2 AND value_date < $3
		GROUP BY category_id, forecast
	`
	rows, err := r.pool.Query(ctx, q, tenantID, month.Start(), month.End())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	actual := make(map[string]decimal.Decimal)
	projected := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			categoryID string
			forecast   bool
			sum        pgtype.Numeric
		)
		if err := rows.Scan(&categoryID, &forecast, &sum); err != nil {
			return nil, nil, err
		}

		amount := numericToDecimal(sum)
		projected[categoryID] = projected[categoryID].Add(amount)
		if !forecast {
			actual[categoryID] = actual[categoryID].Add(amount)
		}
	}

	return actual, projected, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		categoryID *string
		amount     pgtype.Numeric
		running    pgtype.Numeric
	)
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.AccountID,
		&categoryID,
		&t.Description,
		&amount,
		&t.ValueDate,
		&t.Forecast,
		&running,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}

		return nil, err
	}

	if categoryID != nil {
		t.CategoryID = *categoryID
	}
	t.Amount = numericToDecimal(amount)
	t.RunningBalance = numericToDecimal(running)

	return &t, nil
}

// Type conversion helpers.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d, _ := decimal.NewFromString(n.Int.String())
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}
