package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "querylens"

// Tool descriptions
const (
	descInspectQueries = "Aggregate the SQL queries executed while serving one request. " +
		"Pass every query in execution order with its parameters, duration in nanoseconds and, if known, the call stack. " +
		"Returns query groups (identical statements grouped together), total SQL time, " +
		"repeated groups (likely N+1 patterns), the time that could have been avoided, " +
		"and execution sequence numbers ranked by their own duration, slowest first. " +
		"Each execution of a read-only statement with parameters carries a token " +
		"that select_again and explain_query accept. The returned key identifies the result for query_executions."

	descRecords = "Executed queries, oldest first. Each item: " +
		`{"statement": string, "params": {"positional": [...]} or {"named": {...}}, "duration": nanoseconds, ` +
		`"stack": [{"function", "file", "line"}], "context": string}`

	descSelectAgain = "Re-run a previously recorded read-only statement and return its rows. " +
		"Only statements carried by a token from inspect_queries can be run; the SQL cannot be supplied directly. " +
		"A server-side row limit and query timeout are enforced."

	descExplainQuery = "Show the database execution plan for a previously recorded read-only statement. " +
		"Uses EXPLAIN QUERY PLAN on SQLite and EXPLAIN elsewhere. The statement is not executed."

	descToken = "Token of one execution, taken from inspect_queries output"

	descDurationMS = "Duration originally observed for the statement, in milliseconds (echoed back)"

	descQueryExecutions = "Return every execution of one query group from a stored inspection: " +
		"sequence numbers, parameters, durations, formatted and shortened call stacks. " +
		"Only the most recent inspections are kept; older keys return not found."

	descKey = "Key returned by inspect_queries"

	descQueryID = "Group id within that inspection (1-based)"
)

// Inspector aggregates and stores request records.
type Inspector interface {
	Inspect(ctx context.Context, records []domain.QueryRecord) (*service.Report, error)
}

// Replayer re-runs signed statements and reads stored groups.
type Replayer interface {
	Select(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)
	Explain(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)
	Executions(ctx context.Context, key string, groupID int) (*domain.QueryGroup, error)
}

func RegisterTools(s *server.MCPServer, inspector Inspector, replayer Replayer, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("inspect_queries",
			mcp.WithDescription(descInspectQueries),
			mcp.WithArray("records",
				mcp.Required(),
				mcp.Description(descRecords),
				mcp.Items(map[string]any{"type": "object"}),
			),
		),
		inspectHandler(inspector, logger),
	)

	s.AddTool(
		mcp.NewTool("query_executions",
			mcp.WithDescription(descQueryExecutions),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description(descKey),
			),
			mcp.WithNumber("query_id",
				mcp.Required(),
				mcp.Description(descQueryID),
			),
		),
		executionsHandler(replayer, logger),
	)

	s.AddTool(
		mcp.NewTool("select_again",
			mcp.WithDescription(descSelectAgain),
			mcp.WithString("token",
				mcp.Required(),
				mcp.Description(descToken),
			),
			mcp.WithNumber("duration_ms",
				mcp.Description(descDurationMS),
			),
		),
		replayHandler(replayer.Select, "select", logger),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("token",
				mcp.Required(),
				mcp.Description(descToken),
			),
			mcp.WithNumber("duration_ms",
				mcp.Description(descDurationMS),
			),
		),
		replayHandler(replayer.Explain, "explain", logger),
	)
}

func inspectHandler(inspector Inspector, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := request.GetArguments()["records"]
		if !ok {
			return mcp.NewToolResultError("records is required"), nil
		}

		// Arguments arrive as generic JSON; round-trip them into records.
		data, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err)), nil
		}
		var records []domain.QueryRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err)), nil
		}

		report, err := inspector.Inspect(ctx, records)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "inspect")), nil
		}
		return jsonResult(report)
	}
}

type replayFunc func(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)

func replayHandler(run replayFunc, op string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		token, ok := request.GetArguments()["token"].(string)
		if !ok || token == "" {
			return mcp.NewToolResultError("token is required"), nil
		}

		ms, _ := request.GetArguments()["duration_ms"].(float64)
		if ms < 0 {
			return mcp.NewToolResultError("duration_ms must not be negative"), nil
		}

		out, err := run(ctx, token, time.Duration(ms*float64(time.Millisecond)))
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, op)), nil
		}
		return jsonResult(out)
	}
}

func executionsHandler(replayer Replayer, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, ok := request.GetArguments()["key"].(string)
		if !ok || key == "" {
			return mcp.NewToolResultError("key is required"), nil
		}
		id, ok := request.GetArguments()["query_id"].(float64)
		if !ok || id != float64(int(id)) {
			return mcp.NewToolResultError("query_id must be an integer"), nil
		}

		group, err := replayer.Executions(ctx, key, int(id))
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query executions")), nil
		}
		return jsonResult(group)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError turns err into a message safe to show a client. Domain
// rejections pass through; database internals are logged and replaced.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	switch {
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrNotReadOnly),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrMalformedRecord),
		errors.Is(err, domain.ErrUnavailable):
		return err.Error()
	}

	var pgErr *pgconn.PgError
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &pgErr) && pgErr.Code == "57014") {
		return op + " timed out"
	}

	logger.Error("tool failed",
		slog.String("db.operation.name", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("%s failed: internal error (check server logs)", op)
}
