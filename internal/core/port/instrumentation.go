package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordInspection(ctx context.Context, executions int, totalMS, avoidableMS float64)
	IncrementTokenRejections(ctx context.Context, reason string)
	RecordReplayDuration(ctx context.Context, operation string, ms float64)
	IncrementReplayErrors(ctx context.Context, operation string)
	IncrementCacheEvictions(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordInspection(context.Context, int, float64, float64) {}
func (NoopInstrumentation) IncrementTokenRejections(context.Context, string)        {}
func (NoopInstrumentation) RecordReplayDuration(context.Context, string, float64)   {}
func (NoopInstrumentation) IncrementReplayErrors(context.Context, string)           {}
func (NoopInstrumentation) IncrementCacheEvictions(context.Context)                 {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)             {}
