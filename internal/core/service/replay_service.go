package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Replay operation names, used in logs, metrics and audit entries.
const (
	OpSelect  = "select"
	OpExplain = "explain"
)

// Replay is the outcome of re-running a verified statement. Duration echoes
// the timing the caller observed originally.
type Replay struct {
	Statement string            `json:"statement"`
	SQL       string            `json:"sql"`
	Duration  time.Duration     `json:"duration"`
	Result    *domain.ResultSet `json:"result"`
}

// ReplayService re-runs statements carried by signed tokens and serves
// group details from stored results.
type ReplayService struct {
	codec     port.TokenCodec
	executor  port.QueryExecutor
	explainer port.QueryExecutor
	store     port.ResultStore
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // column-name → mask-type (nil = no masking)
	tracer    trace.Tracer
	inst      port.Instrumentation
}

// NewReplayService builds a ReplayService. A nil executor or explainer
// disables the matching operation with domain.ErrUnavailable.
func NewReplayService(codec port.TokenCodec, executor, explainer port.QueryExecutor, store port.ResultStore, auditor port.QueryAuditor, logger *slog.Logger, masks map[string]domain.MaskType, tracer trace.Tracer, inst port.Instrumentation) *ReplayService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	return &ReplayService{
		codec:     codec,
		executor:  executor,
		explainer: explainer,
		store:     store,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
	}
}

// Available reports whether statements can be re-run at all.
func (s *ReplayService) Available() bool { return s.executor != nil }

// Select re-runs the statement carried by token.
func (s *ReplayService) Select(ctx context.Context, token string, duration time.Duration) (*Replay, error) {
	return s.replay(ctx, OpSelect, s.executor, token, duration)
}

// Explain asks the database for the plan of the statement carried by token.
func (s *ReplayService) Explain(ctx context.Context, token string, duration time.Duration) (*Replay, error) {
	return s.replay(ctx, OpExplain, s.explainer, token, duration)
}

func (s *ReplayService) replay(ctx context.Context, op string, exec port.QueryExecutor, token string, duration time.Duration) (*Replay, error) {
	ctx, span := s.tracer.Start(ctx, "ReplayService."+op,
		trace.WithAttributes(attribute.String("db.operation.name", op)),
	)
	defer span.End()

	// The token is checked before anything else so a forged token is
	// reported as such even when execution is disabled.
	q, err := s.codec.Verify(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, domain.ErrNotReadOnly) {
			reason = "not_read_only"
		}
		s.logger.WarnContext(ctx, "replay token rejected",
			slog.String("db.operation.name", op),
			slog.String("error.type", reason),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementTokenRejections(ctx, reason)
		return nil, err
	}
	span.SetAttributes(attribute.String("db.statement", q.Statement))

	if exec == nil {
		span.SetStatus(codes.Error, domain.ErrUnavailable.Error())
		return nil, domain.ErrUnavailable
	}

	start := time.Now()
	rs, err := exec.Execute(ctx, q.Statement, q.Params)
	elapsed := time.Since(start)
	s.inst.RecordReplayDuration(ctx, op, durationMS(elapsed))

	rows := 0
	if rs != nil {
		rows = len(rs.Rows)
	}
	s.auditor.Record(ctx, port.AuditEntry{
		Operation:    op,
		Statement:    q.Statement,
		RowsReturned: rows,
		DurationMS:   elapsed.Milliseconds(),
		Err:          err,
	})

	if err != nil {
		s.logger.WarnContext(ctx, "replay failed",
			slog.String("db.operation.name", op),
			slog.String("db.statement", q.Statement),
			slog.String("error.type", "execution_error"),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementReplayErrors(ctx, op)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	span.SetAttributes(attribute.Int("db.response.rows", rows))
	domain.MaskResultSet(rs, s.masks)

	return &Replay{
		Statement: q.Statement,
		SQL:       domain.FormatSQL(q.Statement, q.Params),
		Duration:  duration,
		Result:    rs,
	}, nil
}

// Executions returns one group of a stored result.
func (s *ReplayService) Executions(ctx context.Context, key string, groupID int) (*domain.QueryGroup, error) {
	_, span := s.tracer.Start(ctx, "ReplayService.Executions",
		trace.WithAttributes(
			attribute.String("querylens.key", key),
			attribute.Int("querylens.group_id", groupID),
		),
	)
	defer span.End()

	result, err := s.store.Get(key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	g, ok := result.Group(groupID)
	if !ok {
		err := fmt.Errorf("group %d in result %q: %w", groupID, key, domain.ErrNotFound)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &g, nil
}

// Execution returns one execution of a stored inspection by its sequence
// number, as listed in QueriesByDuration.
func (s *ReplayService) Execution(ctx context.Context, key string, seq int) (*domain.QueryExecution, error) {
	_, span := s.tracer.Start(ctx, "ReplayService.Execution",
		trace.WithAttributes(
			attribute.String("querylens.key", key),
			attribute.Int("querylens.sequence_number", seq),
		),
	)
	defer span.End()

	result, err := s.store.Get(key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e, ok := result.Execution(seq)
	if !ok {
		err := fmt.Errorf("execution %d in result %q: %w", seq, key, domain.ErrNotFound)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &e, nil
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
