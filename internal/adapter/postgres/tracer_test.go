package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/recorder"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestQueryTracer_RecordsQuery(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracer := &QueryTracer{now: fakeClock(base, base.Add(12*time.Millisecond))}

	rec := recorder.New("GET /users")
	ctx := recorder.NewContext(context.Background(), rec)

	ctx = tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{
		SQL:  "SELECT * FROM users WHERE id = $1",
		Args: []any{int64(7)},
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	recs := rec.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "SELECT * FROM users WHERE id = $1", recs[0].Statement)
	assert.Equal(t, domain.PositionalParams(int64(7)), recs[0].Params)
	assert.Equal(t, 12*time.Millisecond, recs[0].Duration)
	assert.Equal(t, "GET /users", recs[0].Context)
	assert.NotEmpty(t, recs[0].Stack)
}

func TestQueryTracer_IgnoresContextWithoutRecorder(t *testing.T) {
	tracer := NewQueryTracer()
	ctx := context.Background()

	got := tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() { tracer.TraceQueryEnd(got, nil, pgx.TraceQueryEndData{}) })
}

func TestArgsToParams(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want domain.Params
	}{
		{"none", nil, domain.Params{}},
		{"positional", []any{"a", int64(1)}, domain.PositionalParams("a", int64(1))},
		{"named", []any{pgx.NamedArgs{"id": 3}}, domain.NamedParams(map[string]any{"id": 3})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, argsToParams(tt.args))
		})
	}
}

func TestCheckStatement(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"select", "SELECT * FROM users WHERE id = $1", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"explain select", "EXPLAIN SELECT 1", false},
		{"stacked statements", "SELECT 1; DROP TABLE users", true},
		{"select into", "SELECT * INTO copy FROM users", true},
		{"for update", "SELECT * FROM users FOR UPDATE", true},
		{"delete", "DELETE FROM users", true},
		{"explain delete", "EXPLAIN DELETE FROM users", true},
		{"garbage", "SELEC 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStatement(tt.sql)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrNotReadOnly)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTrimTerminator(t *testing.T) {
	assert.Equal(t, "SELECT 1", trimTerminator("  SELECT 1 ;\n"))
	assert.Equal(t, "SELECT 1", trimTerminator("SELECT 1"))
}

func TestQueryArgs(t *testing.T) {
	assert.Equal(t, []any{int64(1)}, queryArgs(domain.PositionalParams(int64(1))))
	assert.Equal(t, []any{pgx.NamedArgs{"a": 1}}, queryArgs(domain.NamedParams(map[string]any{"a": 1})))
	assert.Empty(t, queryArgs(domain.Params{}))
}
