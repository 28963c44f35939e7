package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/querylens/querylens"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	AnalysisCount    metric.Int64Counter
	AnalysisDuration metric.Float64Histogram
	ParseErrors      metric.Int64Counter
	ToolDuration     metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	analysisCount, _ := meter.Int64Counter("querylens.analysis.count",
		metric.WithDescription("Total number of plans analyzed successfully"),
	)
	analysisDuration, _ := meter.Float64Histogram("querylens.analysis.duration",
		metric.WithDescription("Plan analysis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	parseErrors, _ := meter.Int64Counter("querylens.parse.errors",
		metric.WithDescription("Total number of raw plans that failed to parse"),
	)
	toolDuration, _ := meter.Float64Histogram("querylens.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		AnalysisCount:    analysisCount,
		AnalysisDuration: analysisDuration,
		ParseErrors:      parseErrors,
		ToolDuration:     toolDuration,
	}
}

func (i *Instruments) RecordAnalysisDuration(ctx context.Context, ms float64) {
	i.AnalysisDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementAnalysisCount(ctx context.Context) {
	i.AnalysisCount.Add(ctx, 1)
}

func (i *Instruments) IncrementParseErrors(ctx context.Context) {
	i.ParseErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
