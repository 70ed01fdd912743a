package port

import "github.com/guillermoBallester/querylens/internal/core/domain"

// ResultStore keeps recent aggregation results so a later request can
// show the detail of one group.
type ResultStore interface {
	Put(key string, result *domain.AggregationResult)
	// Get fails with domain.ErrNotFound for unknown or evicted keys.
	Get(key string) (*domain.AggregationResult, error)
}
