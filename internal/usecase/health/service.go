package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates the store is reachable and the collection is populated.
	Healthy Status = "healthy"
	// Unhealthy indicates the store or the collection is unavailable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// NotIngestedMessage is reported while the collection is missing.
const NotIngestedMessage = "Database not connected. Run the ingest command first."

// Report aggregates health check results.
type Report struct {
	Status     Status
	Message    string
	Database   string
	Documents  int
	Collection string
	// Embedding is empty when no embedding checker is configured.
	Embedding CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	records   Counter
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, records Counter, embedding EmbeddingChecker) *Service {
	return &Service{db: db, records: records, embedding: embedding}
}

// Check reports store connectivity and collection size. Embedding provider
// health is informational and never changes Status.
func (s *Service) Check(ctx context.Context, collection string) Report {
	if err := s.db.Ping(ctx); err != nil {
		return Report{Status: Unhealthy, Message: fmt.Sprintf("database error: %v", err)}
	}

	n, err := s.records.Count(ctx, collection)
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		return Report{Status: Unhealthy, Message: NotIngestedMessage}
	case err != nil:
		return Report{Status: Unhealthy, Message: fmt.Sprintf("database error: %v", err)}
	}

	r := Report{
		Status:     Healthy,
		Database:   "connected",
		Documents:  n,
		Collection: collection,
	}
	if s.embedding != nil {
		r.Embedding = CheckOK
		if err := s.embedding.HealthCheck(ctx); err != nil {
			r.Embedding = CheckError
		}
	}
	return r
}
