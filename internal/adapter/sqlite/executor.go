// Package sqlite runs replayed statements against a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/recorder"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Open opens path with the pure-Go SQLite driver. A single connection is
// kept so ":memory:" databases stay visible across calls.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	return db, nil
}

// Executor runs statements on a connection switched to query_only mode, so
// SQLite itself refuses any write. Each statement run is reported to the
// recorder carried by ctx, if any.
type Executor struct {
	db           *sql.DB
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(db *sql.DB, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		db:           db,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, statement string, params domain.Params) (*domain.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enabling query_only: %w", err)
	}
	// Reset on a fresh context: ctx may already be done.
	defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF") }()

	start := time.Now()
	rows, err := conn.QueryContext(ctx, statement, queryArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rs, err := toResultSet(rows, e.maxRows)
	recorder.Record(ctx, statement, params, time.Since(start))
	return rs, err
}

func queryArgs(p domain.Params) []any {
	if len(p.Named) > 0 {
		args := make([]any, 0, len(p.Named))
		for name, v := range p.Named {
			args = append(args, sql.Named(name, v))
		}
		return args
	}
	return p.Positional
}

func toResultSet(rows *sql.Rows, maxRows int) (*domain.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	rs := &domain.ResultSet{Columns: cols, Rows: [][]any{}}

	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}
