package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/repo"
)

// BudgetCleanupJob purges ledger rows from long-closed periods. Lifetime
// budgets keep their single row forever.
type BudgetCleanupJob struct {
	budgets       *repo.BudgetRepo
	retentionDays int
}

func NewBudgetCleanupJob(budgets *repo.BudgetRepo, retentionDays int) *BudgetCleanupJob {
	return &BudgetCleanupJob{budgets: budgets, retentionDays: retentionDays}
}

func (j *BudgetCleanupJob) Name() string {
	return "budget_cleanup"
}

func (j *BudgetCleanupJob) Run(ctx context.Context) error {
	if j.budgets == nil {
		return nil
	}
	retention := j.retentionDays
	if retention <= 0 {
		retention = 90
	}
	cutoff := time.Now().Add(-time.Duration(retention) * 24 * time.Hour).Unix()
	deleted, err := j.budgets.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("old budget rows purged", zap.Int64("deleted", deleted))
	}
	return nil
}
