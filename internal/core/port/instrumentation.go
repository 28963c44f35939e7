package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordAnalysisDuration(ctx context.Context, ms float64)
	IncrementAnalysisCount(ctx context.Context)
	IncrementParseErrors(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordAnalysisDuration(context.Context, float64) {}
func (NoopInstrumentation) IncrementAnalysisCount(context.Context)          {}
func (NoopInstrumentation) IncrementParseErrors(context.Context)            {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)     {}
