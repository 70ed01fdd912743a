package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Report is what one inspection hands back to the caller. Key addresses the
// stored result for later Executions lookups.
type Report struct {
	Key      string                    `json:"key"`
	Subtitle string                    `json:"subtitle"`
	Result   *domain.AggregationResult `json:"result"`
}

// InspectService aggregates the queries of one request and keeps the result
// for follow-up requests.
type InspectService struct {
	aggregator *domain.Aggregator
	store      port.ResultStore
	available  bool
	logger     *slog.Logger
	tracer     trace.Tracer
	inst       port.Instrumentation
	newKey     func() string
}

// NewInspectService builds an InspectService. available is the replay
// capability flag; it only affects the subtitle.
func NewInspectService(aggregator *domain.Aggregator, store port.ResultStore, available bool, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *InspectService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &InspectService{
		aggregator: aggregator,
		store:      store,
		available:  available,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
		newKey:     uuid.NewString,
	}
}

// Inspect aggregates records, stores the result under a fresh key and
// returns the report. Nothing is stored when aggregation fails.
func (s *InspectService) Inspect(ctx context.Context, records []domain.QueryRecord) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "InspectService.Inspect",
		trace.WithAttributes(
			attribute.Int("querylens.records", len(records)),
			attribute.String("querylens.grouping", string(s.aggregator.Mode())),
		),
	)
	defer span.End()

	result, err := s.aggregator.Aggregate(records)
	if err != nil {
		s.logger.ErrorContext(ctx, "aggregation failed",
			slog.Int("records", len(records)),
			slog.String("error.type", "malformed_record"),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("aggregating queries: %w", err)
	}

	key := s.newKey()
	s.store.Put(key, result)

	s.inst.RecordInspection(ctx, result.TotalExecutionCount,
		durationMS(result.TotalSQLTime), durationMS(result.AvoidableTime))
	span.SetAttributes(
		attribute.String("querylens.key", key),
		attribute.Int("querylens.groups", len(result.Groups)),
		attribute.Int("querylens.repeated_groups", len(result.RepeatedGroups)),
	)
	if len(result.RepeatedGroups) > 0 {
		s.logger.DebugContext(ctx, "repeated queries detected",
			slog.String("key", key),
			slog.Any("groups", result.RepeatedGroups),
			slog.Duration("avoidable", result.AvoidableTime),
		)
	}

	return &Report{
		Key:      key,
		Subtitle: domain.Subtitle(result.TotalExecutionCount, s.available),
		Result:   result,
	}, nil
}

// Result returns a stored aggregation result.
func (s *InspectService) Result(ctx context.Context, key string) (*domain.AggregationResult, error) {
	_, span := s.tracer.Start(ctx, "InspectService.Result",
		trace.WithAttributes(attribute.String("querylens.key", key)),
	)
	defer span.End()

	result, err := s.store.Get(key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}
