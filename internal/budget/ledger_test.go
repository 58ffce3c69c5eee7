package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*model.BudgetUsage
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*model.BudgetUsage)}
}

func (s *memStore) row(scope, periodKey string) *model.BudgetUsage {
	key := scope + "|" + periodKey
	if s.rows[key] == nil {
		s.rows[key] = &model.BudgetUsage{Scope: scope, PeriodKey: periodKey}
	}
	return s.rows[key]
}

func (s *memStore) TryReserve(_ context.Context, scope, periodKey string, estimate, ceiling float64, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	if ceiling >= 0 && row.Committed+row.Reserved+estimate > ceiling {
		return false, nil
	}
	row.Reserved += estimate
	row.Mtime = now
	return true, nil
}

func (s *memStore) CommitReserved(_ context.Context, scope, periodKey string, estimate, actual float64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	row.Reserved -= estimate
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	row.Committed += actual
	row.Mtime = now
	return nil
}

func (s *memStore) ReleaseReserved(_ context.Context, scope, periodKey string, estimate float64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	row.Reserved -= estimate
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	row.Mtime = now
	return nil
}

func (s *memStore) Get(_ context.Context, scope, periodKey string) (*model.BudgetUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(scope, periodKey)
	copied := *row
	return &copied, nil
}

func newTestLedger(store Store, userCeiling, globalCeiling float64) *Ledger {
	return NewLedger(store, Config{
		Period:        "total",
		UserCeiling:   userCeiling,
		GlobalCeiling: globalCeiling,
		Costs:         Costs{Embedding: 0.00002, ChatInput: 0.00015, ChatOutput: 0.0006},
	})
}

func TestAuthorizeCommitDrainsReservation(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, 25.0)
	ctx := context.Background()

	grant, err := ledger.Authorize(ctx, "u1", 0.4)
	require.NoError(t, err)
	require.NoError(t, grant.Commit(ctx, 0.3))

	status, err := ledger.Status(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.3, status.User.Committed, 1e-9)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-9)
	require.InDelta(t, 0.7, status.User.Remaining, 1e-9)
	require.InDelta(t, 0.3, status.Global.Committed, 1e-9)
}

func TestAuthorizeDeniedAtUserCeiling(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, 25.0)
	ctx := context.Background()

	grant, err := ledger.Authorize(ctx, "u1", 0.9)
	require.NoError(t, err)
	require.NoError(t, grant.Commit(ctx, 0.9))

	_, err = ledger.Authorize(ctx, "u1", 0.2)
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	var exceeded *appErr.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, UserScope("u1"), exceeded.Scope)
	require.InDelta(t, 0.9, exceeded.Used, 1e-9)
	require.InDelta(t, 0.2, exceeded.Estimated, 1e-9)

	// another user is unaffected
	grant2, err := ledger.Authorize(ctx, "u2", 0.2)
	require.NoError(t, err)
	grant2.Release(ctx)
}

func TestGlobalDenialReleasesUserReservation(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 10.0, 1.0)
	ctx := context.Background()

	grant, err := ledger.Authorize(ctx, "u1", 0.8)
	require.NoError(t, err)
	require.NoError(t, grant.Commit(ctx, 0.8))

	_, err = ledger.Authorize(ctx, "u2", 0.5)
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	var exceeded *appErr.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, GlobalScope, exceeded.Scope)

	// the denied request must not leave a user-scope reservation behind
	status, err := ledger.Status(ctx, "u2")
	require.NoError(t, err)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-9)
}

func TestReleaseRestoresHeadroom(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, 25.0)
	ctx := context.Background()

	grant, err := ledger.Authorize(ctx, "u1", 1.0)
	require.NoError(t, err)

	_, err = ledger.Authorize(ctx, "u1", 0.1)
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)

	grant.Release(ctx)

	grant2, err := ledger.Authorize(ctx, "u1", 0.1)
	require.NoError(t, err)
	grant2.Release(ctx)
}

func TestConcurrentAuthorizationsNeverOversubscribe(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, -1)
	ctx := context.Background()

	const workers = 20
	const estimate = 0.3
	var granted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grant, err := ledger.Authorize(ctx, "u1", estimate)
			if err != nil {
				return
			}
			mu.Lock()
			granted++
			mu.Unlock()
			require.NoError(t, grant.Commit(ctx, estimate))
		}()
	}
	wg.Wait()
	// ceiling 1.0 at 0.3 per request admits exactly three
	require.EqualValues(t, 3, granted)

	status, err := ledger.Status(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.9, status.User.Committed, 1e-9)
}

func TestUnlimitedCeilingStillRecords(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, -1, -1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		grant, err := ledger.Authorize(ctx, "u1", 100)
		require.NoError(t, err)
		require.NoError(t, grant.Commit(ctx, 100))
	}
	status, err := ledger.Status(ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.User.Unlimited)
	require.InDelta(t, 500, status.User.Committed, 1e-9)
}

func TestCommitAfterCancelStillRecords(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, 25.0)

	ctx, cancel := context.WithCancel(context.Background())
	grant, err := ledger.Authorize(ctx, "u1", 0.2)
	require.NoError(t, err)
	cancel()
	require.NoError(t, grant.Commit(ctx, 0.2))

	status, err := ledger.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.2, status.User.Committed, 1e-9)
}

func TestPeriodKeys(t *testing.T) {
	store := newMemStore()
	at := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)

	daily := NewLedger(store, Config{Period: "daily"})
	require.Equal(t, "2026-08-23", daily.PeriodKey(at))

	monthly := NewLedger(store, Config{Period: "monthly"})
	require.Equal(t, "2026-08", monthly.PeriodKey(at))

	total := NewLedger(store, Config{Period: "total"})
	require.Equal(t, "", total.PeriodKey(at))
}

func TestGrantDoubleFinishIsNoop(t *testing.T) {
	store := newMemStore()
	ledger := newTestLedger(store, 1.0, 25.0)
	ctx := context.Background()

	grant, err := ledger.Authorize(ctx, "u1", 0.5)
	require.NoError(t, err)
	require.NoError(t, grant.Commit(ctx, 0.5))
	require.NoError(t, grant.Commit(ctx, 0.5))
	grant.Release(ctx)

	status, err := ledger.Status(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.5, status.User.Committed, 1e-9)
	require.InDelta(t, 0.0, status.User.Reserved, 1e-9)
}
