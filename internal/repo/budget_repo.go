package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

// BudgetRepo persists per-scope spend. Reservation arithmetic runs inside
// single UPDATE statements so concurrent authorizations serialize on the
// row and can never jointly exceed the ceiling.
type BudgetRepo struct {
	db *sql.DB
}

func NewBudgetRepo(db *sql.DB) *BudgetRepo {
	return &BudgetRepo{db: db}
}

func (r *BudgetRepo) ensure(ctx context.Context, scope, periodKey string, now int64) error {
	const query = `
		INSERT INTO budget_ledger (scope, period_key, reserved, committed, mtime)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (scope, period_key) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, scope, periodKey, now)
	return err
}

// TryReserve adds estimate to the scope's reserved spend if the ceiling
// still admits it. A ceiling below zero means unlimited. Returns false
// when the reservation was denied.
func (r *BudgetRepo) TryReserve(ctx context.Context, scope, periodKey string, estimate, ceiling float64, now int64) (bool, error) {
	if err := r.ensure(ctx, scope, periodKey, now); err != nil {
		return false, err
	}
	if ceiling < 0 {
		const query = `
			UPDATE budget_ledger SET reserved = reserved + $3, mtime = $4
			WHERE scope = $1 AND period_key = $2
		`
		_, err := r.db.ExecContext(ctx, query, scope, periodKey, estimate, now)
		return err == nil, err
	}
	const query = `
		UPDATE budget_ledger SET reserved = reserved + $3, mtime = $4
		WHERE scope = $1 AND period_key = $2 AND committed + reserved + $3 <= $5
	`
	res, err := r.db.ExecContext(ctx, query, scope, periodKey, estimate, now, ceiling)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CommitReserved converts a reservation into committed spend. The actual
// cost may differ from the estimate; the reservation drains either way.
func (r *BudgetRepo) CommitReserved(ctx context.Context, scope, periodKey string, estimate, actual float64, now int64) error {
	const query = `
		UPDATE budget_ledger
		SET reserved = GREATEST(reserved - $3, 0), committed = committed + $4, mtime = $5
		WHERE scope = $1 AND period_key = $2
	`
	_, err := r.db.ExecContext(ctx, query, scope, periodKey, estimate, actual, now)
	return err
}

func (r *BudgetRepo) ReleaseReserved(ctx context.Context, scope, periodKey string, estimate float64, now int64) error {
	const query = `
		UPDATE budget_ledger
		SET reserved = GREATEST(reserved - $3, 0), mtime = $4
		WHERE scope = $1 AND period_key = $2
	`
	_, err := r.db.ExecContext(ctx, query, scope, periodKey, estimate, now)
	return err
}

// Get returns the usage row, or a zero row if the scope has no spend yet.
func (r *BudgetRepo) Get(ctx context.Context, scope, periodKey string) (*model.BudgetUsage, error) {
	const query = `
		SELECT scope, period_key, reserved, committed, mtime
		FROM budget_ledger
		WHERE scope = $1 AND period_key = $2
	`
	row := r.db.QueryRowContext(ctx, query, scope, periodKey)
	var usage model.BudgetUsage
	if err := row.Scan(&usage.Scope, &usage.PeriodKey, &usage.Reserved, &usage.Committed, &usage.Mtime); err != nil {
		if dbutil.IsNoRows(err) {
			return &model.BudgetUsage{Scope: scope, PeriodKey: periodKey}, nil
		}
		return nil, err
	}
	return &usage, nil
}

// DeleteBefore purges rows from closed periods. Lifetime rows (empty
// period key) are never purged.
func (r *BudgetRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM budget_ledger WHERE mtime < $1 AND period_key != ''`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
