package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalid               = errors.New("invalid")
	ErrConflict              = errors.New("conflict")
	ErrTooMany               = errors.New("too many requests")
	ErrInternal              = errors.New("internal")
	ErrInvalidConfig         = errors.New("invalid config")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrCompletionUnavailable = errors.New("completion unavailable")
	ErrBudgetExceeded        = errors.New("budget exceeded")
	ErrDocumentLimitExceeded = errors.New("document limit exceeded")
	ErrIndexInconsistency    = errors.New("index inconsistency")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// BudgetExceededError carries the ledger state behind a denial so callers
// can report which scope ran out and by how much.
type BudgetExceededError struct {
	Scope     string
	Ceiling   float64
	Used      float64
	Estimated float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: scope=%s used=%.6f estimated=%.6f ceiling=%.6f",
		e.Scope, e.Used, e.Estimated, e.Ceiling)
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

type DocumentLimitExceededError struct {
	Limit   int
	Current int
}

func (e *DocumentLimitExceededError) Error() string {
	return fmt.Sprintf("document limit exceeded: current=%d limit=%d", e.Current, e.Limit)
}

func (e *DocumentLimitExceededError) Is(target error) bool {
	return target == ErrDocumentLimitExceeded
}

// IndexInconsistencyError reports a document whose chunk rows do not match
// what ingestion wrote. Expected/Actual are chunk counts.
type IndexInconsistencyError struct {
	DocumentID string
	Expected   int64
	Actual     int64
}

func (e *IndexInconsistencyError) Error() string {
	return fmt.Sprintf("index inconsistency: document=%s expected=%d actual=%d",
		e.DocumentID, e.Expected, e.Actual)
}

func (e *IndexInconsistencyError) Is(target error) bool {
	return target == ErrIndexInconsistency
}
