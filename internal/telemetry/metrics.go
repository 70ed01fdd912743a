package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/querylens"

// Instruments implements port.Instrumentation on top of OTel metrics.
type Instruments struct {
	Inspections     metric.Int64Counter
	Executions      metric.Int64Histogram
	SQLTime         metric.Float64Histogram
	AvoidableTime   metric.Float64Histogram
	TokenRejections metric.Int64Counter
	ReplayDuration  metric.Float64Histogram
	ReplayErrors    metric.Int64Counter
	CacheEvictions  metric.Int64Counter
	ToolDuration    metric.Float64Histogram
}

// NewInstruments creates instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return NewInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// The SDK hands back usable noop instruments alongside any error.
	inspections, _ := meter.Int64Counter("querylens.inspections",
		metric.WithDescription("Number of requests whose queries were aggregated"),
	)
	executions, _ := meter.Int64Histogram("querylens.inspection.executions",
		metric.WithDescription("Queries executed per inspected request"),
	)
	sqlTime, _ := meter.Float64Histogram("querylens.inspection.sql_time",
		metric.WithDescription("Total SQL time per inspected request"),
		metric.WithUnit("ms"),
	)
	avoidable, _ := meter.Float64Histogram("querylens.inspection.avoidable_time",
		metric.WithDescription("Time spent on repeated statements per inspected request"),
		metric.WithUnit("ms"),
	)
	rejections, _ := meter.Int64Counter("querylens.token.rejections",
		metric.WithDescription("Replay tokens refused, by reason"),
	)
	replayDuration, _ := meter.Float64Histogram("querylens.replay.duration",
		metric.WithDescription("Replay execution duration"),
		metric.WithUnit("ms"),
	)
	replayErrors, _ := meter.Int64Counter("querylens.replay.errors",
		metric.WithDescription("Replays that failed in the database"),
	)
	evictions, _ := meter.Int64Counter("querylens.cache.evictions",
		metric.WithDescription("Stored results dropped to make room"),
	)
	toolDuration, _ := meter.Float64Histogram("querylens.tool.duration",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		Inspections:     inspections,
		Executions:      executions,
		SQLTime:         sqlTime,
		AvoidableTime:   avoidable,
		TokenRejections: rejections,
		ReplayDuration:  replayDuration,
		ReplayErrors:    replayErrors,
		CacheEvictions:  evictions,
		ToolDuration:    toolDuration,
	}
}

func (i *Instruments) RecordInspection(ctx context.Context, executions int, totalMS, avoidableMS float64) {
	i.Inspections.Add(ctx, 1)
	i.Executions.Record(ctx, int64(executions))
	i.SQLTime.Record(ctx, totalMS)
	i.AvoidableTime.Record(ctx, avoidableMS)
}

func (i *Instruments) IncrementTokenRejections(ctx context.Context, reason string) {
	i.TokenRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (i *Instruments) RecordReplayDuration(ctx context.Context, operation string, ms float64) {
	i.ReplayDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("db.operation.name", operation)))
}

func (i *Instruments) IncrementReplayErrors(ctx context.Context, operation string) {
	i.ReplayErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation.name", operation)))
}

func (i *Instruments) IncrementCacheEvictions(ctx context.Context) {
	i.CacheEvictions.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
