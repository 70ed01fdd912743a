package port

import (
	"context"

	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// QueryExecutor runs an already verified statement with its bound parameters.
type QueryExecutor interface {
	Execute(ctx context.Context, statement string, params domain.Params) (*domain.ResultSet, error)
}
