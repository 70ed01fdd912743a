package postgres

import (
	"context"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/recorder"
	"github.com/jackc/pgx/v5"
)

type traceKey struct{}

type pendingQuery struct {
	statement string
	params    domain.Params
	stack     []domain.Frame
	start     time.Time
}

// QueryTracer is a pgx.QueryTracer that appends every query run on a
// context carrying a recorder.Recorder. Queries on other contexts are ignored.
type QueryTracer struct {
	now func() time.Time
}

func NewQueryTracer() *QueryTracer {
	return &QueryTracer{now: time.Now}
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if _, ok := recorder.FromContext(ctx); !ok {
		return ctx
	}
	// The stack is taken here because for Query the end hook fires from
	// rows.Close, after the caller has moved on.
	return context.WithValue(ctx, traceKey{}, &pendingQuery{
		statement: data.SQL,
		params:    argsToParams(data.Args),
		stack:     recorder.CaptureStack(1),
		start:     t.now(),
	})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	p, ok := ctx.Value(traceKey{}).(*pendingQuery)
	if !ok {
		return
	}
	r, ok := recorder.FromContext(ctx)
	if !ok {
		return
	}
	r.Add(domain.QueryRecord{
		Statement: p.statement,
		Params:    p.params,
		Duration:  t.now().Sub(p.start),
		Stack:     p.stack,
	})
}

func argsToParams(args []any) domain.Params {
	if len(args) == 1 {
		if named, ok := args[0].(pgx.NamedArgs); ok {
			m := make(map[string]any, len(named))
			for k, v := range named {
				m[k] = v
			}
			return domain.NamedParams(m)
		}
	}
	if len(args) == 0 {
		return domain.Params{}
	}
	positional := make([]any, len(args))
	copy(positional, args)
	return domain.PositionalParams(positional...)
}
