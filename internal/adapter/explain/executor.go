// Package explain turns a replayed statement into a query-plan request.
package explain

import (
	"context"
	"strings"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/port"
)

// Executor wraps a QueryExecutor and prefixes every statement with the
// driver's explain verb. Statements that already start with EXPLAIN pass
// through unchanged.
type Executor struct {
	inner port.QueryExecutor
	verb  string
}

// NewExecutor picks the verb for driver with domain.ExplainVerb.
func NewExecutor(inner port.QueryExecutor, driver string) *Executor {
	return &Executor{inner: inner, verb: domain.ExplainVerb(driver)}
}

func (e *Executor) Execute(ctx context.Context, statement string, params domain.Params) (*domain.ResultSet, error) {
	if !IsExplain(statement) {
		statement = e.verb + " " + statement
	}
	return e.inner.Execute(ctx, statement, params)
}

// IsExplain reports whether statement already asks for a plan.
func IsExplain(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "EXPLAIN")
}
