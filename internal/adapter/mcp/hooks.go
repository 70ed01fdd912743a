package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type inflightCall struct {
	tool  string
	start time.Time
	span  trace.Span
}

// callTracker pairs before/after hook invocations by request id.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	now    func() time.Time

	calls sync.Map // request id -> *inflightCall
}

func (t *callTracker) begin(ctx context.Context, id any, tool string) {
	_, span := t.tracer.Start(ctx, "mcp.tool.call",
		trace.WithAttributes(attribute.String("mcp.tool", tool)),
	)
	t.calls.Store(id, &inflightCall{tool: tool, start: t.now(), span: span})
}

// end closes the call opened by begin. errMsg is set only for protocol-level
// failures; tool results flagged as errors arrive with isErr alone.
func (t *callTracker) end(ctx context.Context, id any, tool string, isErr bool, errMsg string) {
	var elapsed time.Duration
	var span trace.Span
	if v, ok := t.calls.LoadAndDelete(id); ok {
		c := v.(*inflightCall)
		elapsed = t.now().Sub(c.start)
		span = c.span
		if tool == "" {
			tool = c.tool
		}
	}
	if tool == "" {
		return
	}

	level := slog.LevelInfo
	if isErr {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("rpc.method", string(mcp.MethodToolsCall)),
		slog.String("mcp.tool", tool),
		slog.Duration("duration", elapsed),
		slog.Bool("error", isErr),
	}
	if errMsg != "" {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error.message", errMsg))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)
	t.inst.RecordToolDuration(ctx, float64(elapsed)/float64(time.Millisecond))

	if span == nil {
		return
	}
	if isErr {
		msg := errMsg
		if msg == "" {
			msg = "tool returned error"
		}
		span.SetStatus(codes.Error, msg)
	}
	span.End()
}

// ToolCallHooks creates MCP hooks that log every tool call and record its
// span and duration. tracer and inst may be nil.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	t := &callTracker{logger: logger, tracer: tracer, inst: inst, now: time.Now}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		t.begin(ctx, id, req.Params.Name)
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		r, ok := result.(*mcp.CallToolResult)
		t.end(ctx, id, req.Params.Name, ok && r.IsError, "")
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		if method != mcp.MethodToolsCall {
			return
		}
		tool := ""
		if req, ok := message.(*mcp.CallToolRequest); ok {
			tool = req.Params.Name
		}
		t.end(ctx, id, tool, true, err.Error())
	})
	return hooks
}
