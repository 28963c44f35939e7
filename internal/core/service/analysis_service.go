package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/indexadvisor"
	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/planparse"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/sqlgen"
	"github.com/querylens/querylens/internal/core/workflow"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// AnalysisService orchestrates the analysis core (workflow patterns, SQL
// rendering, index advice, plan analysis) behind one instrumented surface.
// The core itself stays pure; logging, tracing, metrics, and audit live here.
type AnalysisService struct {
	dialect   domain.Dialect
	workflow  *workflow.Analyzer
	optimizer *sqlgen.Optimizer
	advisor   *indexadvisor.Engine
	plans     *plananalysis.Analyzer
	collector port.PlanCollector
	auditor   port.AnalysisAuditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

// NewAnalysisService builds the full analysis stack for one dialect. The
// collector may be nil when no live database is configured; tracer and
// instrumentation fall back to no-ops.
func NewAnalysisService(d domain.Dialect, thresholds plananalysis.Thresholds, limits planparse.Limits, collector port.PlanCollector, auditor port.AnalysisAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) (*AnalysisService, error) {
	optimizer, err := sqlgen.NewOptimizer(d)
	if err != nil {
		return nil, fmt.Errorf("sql optimizer: %w", err)
	}
	advisor, err := indexadvisor.NewEngine(d)
	if err != nil {
		return nil, fmt.Errorf("index advisor: %w", err)
	}
	plans, err := plananalysis.NewAnalyzer(d, thresholds, limits)
	if err != nil {
		return nil, fmt.Errorf("plan analyzer: %w", err)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AnalysisService{
		dialect:   d,
		workflow:  workflow.NewAnalyzer(),
		optimizer: optimizer,
		advisor:   advisor,
		plans:     plans,
		collector: collector,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
	}, nil
}

// AnalyzeWorkflow scans a pipeline graph for optimization opportunities.
func (s *AnalysisService) AnalyzeWorkflow(ctx context.Context, g domain.PipelineGraph) ([]domain.OptimizationOpportunity, error) {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.AnalyzeWorkflow",
		trace.WithAttributes(attribute.Int("graph.nodes", len(g.Nodes))),
	)
	defer span.End()

	opps, err := s.workflow.Analyze(g)
	if err != nil {
		s.logger.WarnContext(ctx, "workflow graph rejected",
			slog.Int("graph.nodes", len(g.Nodes)),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("opportunities", len(opps)))
	return opps, nil
}

// OptimizeQueries analyzes the graph and renders optimized SQL for every
// detected opportunity, collecting per-opportunity translation failures.
func (s *AnalysisService) OptimizeQueries(ctx context.Context, g domain.PipelineGraph) (sqlgen.Result, error) {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.OptimizeQueries")
	defer span.End()

	opps, err := s.AnalyzeWorkflow(ctx, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sqlgen.Result{}, err
	}
	res := s.optimizer.Optimize(opps)
	span.SetAttributes(
		attribute.Int("queries", len(res.Queries)),
		attribute.Int("failures", len(res.Failures)),
	)
	return res, nil
}

// RecommendIndexes analyzes the graph and derives a deduplicated, ranked
// index recommendation report from the opportunities found.
func (s *AnalysisService) RecommendIndexes(ctx context.Context, g domain.PipelineGraph) (domain.IndexAnalysisReport, error) {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.RecommendIndexes")
	defer span.End()

	opps, err := s.AnalyzeWorkflow(ctx, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.IndexAnalysisReport{}, err
	}
	report := s.advisor.Recommend(opps, nil, nil)
	span.SetAttributes(attribute.Int("recommendations", len(report.Recommendations)))
	return report, nil
}

// AnalyzePlan analyzes one executed query's raw plan. A malformed plan still
// yields a degraded analysis; the error reports the parse failure.
func (s *AnalysisService) AnalyzePlan(ctx context.Context, in plananalysis.PlanInput) (domain.PlanAnalysis, error) {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.AnalyzePlan",
		trace.WithAttributes(
			attribute.String("db.system", string(s.dialect)),
			attribute.String("db.statement", in.SQL),
		),
	)
	defer span.End()

	start := time.Now()
	an, err := s.plans.Analyze(in)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordAnalysisDuration(ctx, float64(durationMS))
	s.auditor.Record(ctx, port.AuditEntry{
		Tool:       toolNameFromCtx(ctx),
		Dialect:    string(s.dialect),
		SQL:        in.SQL,
		DurationMS: durationMS,
		Err:        err,
	})

	if err != nil {
		s.logger.WarnContext(ctx, "plan analysis degraded",
			slog.String("db.statement", in.SQL),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementParseErrors(ctx)
		return an, err
	}

	s.inst.IncrementAnalysisCount(ctx)
	span.SetAttributes(attribute.Int("optimization_score", an.OptimizationScore))
	return an, nil
}

// AnalyzePlans analyzes a batch of independent inputs. The output always has
// one entry per input, in input order; malformed plans degrade in place.
func (s *AnalysisService) AnalyzePlans(ctx context.Context, inputs []plananalysis.PlanInput) []domain.PlanAnalysis {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.AnalyzePlans",
		trace.WithAttributes(attribute.Int("batch.size", len(inputs))),
	)
	defer span.End()

	out := make([]domain.PlanAnalysis, len(inputs))
	for i, in := range inputs {
		an, err := s.AnalyzePlan(ctx, in)
		if err != nil && !errors.Is(err, domain.ErrMalformedPlan) &&
			!errors.Is(err, domain.ErrPlanTooDeep) && !errors.Is(err, domain.ErrPlanTooLarge) {
			s.logger.ErrorContext(ctx, "unexpected analysis failure",
				slog.Int("batch.index", i),
				slog.String("error", err.Error()),
			)
		}
		out[i] = an
	}
	return out
}

// MonitorPerformance analyzes a batch and aggregates it into a monitoring
// snapshot against the slow-query threshold.
func (s *AnalysisService) MonitorPerformance(ctx context.Context, inputs []plananalysis.PlanInput, thresholdMs float64) domain.MonitoringSnapshot {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.MonitorPerformance")
	defer span.End()

	analyses := s.AnalyzePlans(ctx, inputs)
	snap := s.plans.MonitorPerformance(analyses, thresholdMs)
	span.SetAttributes(attribute.Int("slow_queries", len(snap.SlowQueries)))
	return snap
}

// PerformanceReport analyzes a batch and renders the textual summary.
func (s *AnalysisService) PerformanceReport(ctx context.Context, inputs []plananalysis.PlanInput) string {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.PerformanceReport")
	defer span.End()

	return s.plans.ComprehensiveReport(s.AnalyzePlans(ctx, inputs))
}

// CollectAndAnalyze gathers a live execution plan for the SQL through the
// configured collector and analyzes it. Requires a collector.
func (s *AnalysisService) CollectAndAnalyze(ctx context.Context, sql string) (domain.PlanAnalysis, error) {
	if s.collector == nil {
		return domain.PlanAnalysis{}, errors.New("no plan collector configured")
	}
	ctx, span := s.tracer.Start(ctx, "AnalysisService.CollectAndAnalyze",
		trace.WithAttributes(attribute.String("db.statement", sql)),
	)
	defer span.End()

	collected, err := s.collector.CollectPlan(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.PlanAnalysis{}, fmt.Errorf("collect plan: %w", err)
	}
	return s.AnalyzePlan(ctx, plananalysis.PlanInput{
		SQL:             collected.SQL,
		RawPlan:         collected.RawPlan,
		ExecutionTimeMs: collected.ExecutionTimeMs,
	})
}
