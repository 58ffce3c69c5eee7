package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/xxxsen/docchat/internal/budget"
)

// HealthService probes the dependencies a request needs: the database,
// the vector index and the budget ledger.
type HealthService struct {
	db     *sql.DB
	chunks ChunkStore
	ledger *budget.Ledger
}

func NewHealthService(db *sql.DB, chunks ChunkStore, ledger *budget.Ledger) *HealthService {
	return &HealthService{db: db, chunks: chunks, ledger: ledger}
}

type HealthStatus struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := &HealthStatus{Healthy: true, Components: map[string]string{}}
	report := func(name string, err error) {
		if err != nil {
			status.Healthy = false
			status.Components[name] = err.Error()
			return
		}
		status.Components[name] = "ok"
	}

	report("database", s.db.PingContext(ctx))
	_, indexErr := s.chunks.CountByDocument(ctx, "healthcheck")
	report("vector_index", indexErr)
	_, ledgerErr := s.ledger.Status(ctx, "healthcheck")
	report("budget_ledger", ledgerErr)
	return status
}
