// Package postgres runs replayed statements against PostgreSQL and traces
// application queries into the request recorder.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/querylens/internal/adapter/explain"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs statements inside a read-only transaction with a
// server-side statement timeout and a row cap.
type Executor struct {
	pool         *pgxpool.Pool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, statement string, params domain.Params) (*domain.ResultSet, error) {
	if err := CheckStatement(statement); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	// EXPLAIN statements cannot be wrapped in a subquery
	wrapped := statement
	if !explain.IsExplain(statement) {
		wrapped = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", trimTerminator(statement), e.maxRows)
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the timeout to this transaction so PostgreSQL cancels
	// the statement even if the Go context outlives it.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", e.queryTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, wrapped, queryArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	rs, err := toResultSet(rows, e.maxRows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return rs, nil
}

// queryArgs maps Params onto pgx arguments. Named params use pgx's @name
// rewriting.
func queryArgs(p domain.Params) []any {
	if len(p.Named) > 0 {
		return []any{pgx.NamedArgs(p.Named)}
	}
	return p.Positional
}

func trimTerminator(statement string) string {
	return strings.TrimRight(strings.TrimSpace(statement), "; \t\n")
}
