package budget

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// GlobalScope accumulates spend across all users.
const GlobalScope = "global"

func UserScope(userID string) string {
	return "user:" + userID
}

// Store is the persistence the ledger needs. Reservation checks must be
// atomic per scope row; *repo.BudgetRepo implements this with guarded
// UPDATE statements.
type Store interface {
	TryReserve(ctx context.Context, scope, periodKey string, estimate, ceiling float64, now int64) (bool, error)
	CommitReserved(ctx context.Context, scope, periodKey string, estimate, actual float64, now int64) error
	ReleaseReserved(ctx context.Context, scope, periodKey string, estimate float64, now int64) error
	Get(ctx context.Context, scope, periodKey string) (*model.BudgetUsage, error)
}

type Config struct {
	// Period is total, daily or monthly and selects the window a ceiling
	// applies to.
	Period        string
	UserCeiling   float64
	GlobalCeiling float64
	Costs         Costs
}

type Ledger struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewLedger(store Store, cfg Config) *Ledger {
	return &Ledger{store: store, cfg: cfg, now: time.Now}
}

func (l *Ledger) Costs() Costs {
	return l.cfg.Costs
}

// PeriodKey buckets a point in time into the configured budget period.
// Lifetime budgets share the empty key.
func (l *Ledger) PeriodKey(t time.Time) string {
	switch l.cfg.Period {
	case "daily":
		return t.UTC().Format("2006-01-02")
	case "monthly":
		return t.UTC().Format("2006-01")
	default:
		return ""
	}
}

type scopeCeiling struct {
	scope   string
	ceiling float64
}

// Authorize reserves estimate dollars against the user scope and then the
// global scope. Either scope may deny; a denial releases anything already
// reserved, so no reservation leaks. The returned grant must be finished
// with Commit or Release.
func (l *Ledger) Authorize(ctx context.Context, userID string, estimate float64) (*Grant, error) {
	if estimate < 0 {
		estimate = 0
	}
	now := l.now()
	periodKey := l.PeriodKey(now)
	scopes := []scopeCeiling{
		{scope: UserScope(userID), ceiling: l.cfg.UserCeiling},
		{scope: GlobalScope, ceiling: l.cfg.GlobalCeiling},
	}
	granted := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		ok, err := l.store.TryReserve(ctx, sc.scope, periodKey, estimate, sc.ceiling, now.Unix())
		if err != nil {
			l.releaseScopes(ctx, granted, periodKey, estimate)
			return nil, err
		}
		if !ok {
			l.releaseScopes(ctx, granted, periodKey, estimate)
			used := 0.0
			if usage, uerr := l.store.Get(ctx, sc.scope, periodKey); uerr == nil {
				used = usage.Committed + usage.Reserved
			}
			return nil, &appErr.BudgetExceededError{
				Scope:     sc.scope,
				Ceiling:   sc.ceiling,
				Used:      used,
				Estimated: estimate,
			}
		}
		granted = append(granted, sc.scope)
	}
	return &Grant{ledger: l, scopes: granted, periodKey: periodKey, estimate: estimate}, nil
}

func (l *Ledger) releaseScopes(ctx context.Context, scopes []string, periodKey string, estimate float64) {
	// Roll back even when the request context is gone; a stuck
	// reservation would deny budget that was never spent.
	ctx = context.WithoutCancel(ctx)
	now := l.now().Unix()
	for _, scope := range scopes {
		if err := l.store.ReleaseReserved(ctx, scope, periodKey, estimate, now); err != nil {
			logutil.GetLogger(ctx).Error("release budget reservation failed",
				zap.String("scope", scope), zap.Float64("estimate", estimate), zap.Error(err))
		}
	}
}

// Grant is one authorized reservation across the user and global scopes.
type Grant struct {
	ledger    *Ledger
	scopes    []string
	periodKey string
	estimate  float64
	done      bool
}

func (g *Grant) Estimate() float64 {
	return g.estimate
}

// Commit records the actual cost of the call the grant paid for. The
// actual may exceed the estimate; ceilings only gate at authorize time.
// Commit succeeds even when ctx is already canceled, because the billable
// work has happened.
func (g *Grant) Commit(ctx context.Context, actual float64) error {
	if g == nil || g.done {
		return nil
	}
	g.done = true
	if actual < 0 {
		actual = 0
	}
	ctx = context.WithoutCancel(ctx)
	now := g.ledger.now().Unix()
	var firstErr error
	for _, scope := range g.scopes {
		if err := g.ledger.store.CommitReserved(ctx, scope, g.periodKey, g.estimate, actual, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Release drops the reservation without recording spend, for calls that
// never happened.
func (g *Grant) Release(ctx context.Context) {
	if g == nil || g.done {
		return
	}
	g.done = true
	g.ledger.releaseScopes(ctx, g.scopes, g.periodKey, g.estimate)
}

type ScopeStatus struct {
	Scope     string  `json:"scope"`
	Committed float64 `json:"committed"`
	Reserved  float64 `json:"reserved"`
	Ceiling   float64 `json:"ceiling"`
	Remaining float64 `json:"remaining"`
	Unlimited bool    `json:"unlimited"`
}

type Status struct {
	Period    string      `json:"period"`
	PeriodKey string      `json:"period_key,omitempty"`
	User      ScopeStatus `json:"user"`
	Global    ScopeStatus `json:"global"`
}

func (l *Ledger) Status(ctx context.Context, userID string) (*Status, error) {
	periodKey := l.PeriodKey(l.now())
	user, err := l.scopeStatus(ctx, UserScope(userID), periodKey, l.cfg.UserCeiling)
	if err != nil {
		return nil, err
	}
	global, err := l.scopeStatus(ctx, GlobalScope, periodKey, l.cfg.GlobalCeiling)
	if err != nil {
		return nil, err
	}
	return &Status{Period: l.cfg.Period, PeriodKey: periodKey, User: user, Global: global}, nil
}

func (l *Ledger) scopeStatus(ctx context.Context, scope, periodKey string, ceiling float64) (ScopeStatus, error) {
	usage, err := l.store.Get(ctx, scope, periodKey)
	if err != nil {
		return ScopeStatus{}, err
	}
	status := ScopeStatus{
		Scope:     scope,
		Committed: usage.Committed,
		Reserved:  usage.Reserved,
		Ceiling:   ceiling,
		Unlimited: ceiling < 0,
	}
	if !status.Unlimited {
		status.Remaining = ceiling - usage.Committed - usage.Reserved
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}
	return status, nil
}
