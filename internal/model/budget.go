package model

// BudgetUsage is one ledger row: accumulated spend for a scope within a
// period. Reserved holds in-flight authorizations not yet committed.
type BudgetUsage struct {
	Scope     string  `json:"scope"`
	PeriodKey string  `json:"period_key"`
	Reserved  float64 `json:"reserved"`
	Committed float64 `json:"committed"`
	Mtime     int64   `json:"mtime"`
}
