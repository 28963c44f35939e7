package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/service"
)

// Server metadata
const serverName = "querylens"

// Tool descriptions
const (
	descAnalyzeWorkflow = "Analyze a declarative pipeline graph (scan/filter/join/aggregate nodes with " +
		"producer-to-consumer edges) for optimization opportunities: redundant scans of the same table " +
		"with the same filters, collapsible join chains, aggregations that can be pushed below a join, " +
		"and filter chains that can merge into one scan. Each opportunity carries the affected node ids " +
		"and an estimated improvement multiplier."

	descGraphParam = "Pipeline graph as JSON: {\"nodes\": [{\"id\", \"kind\", \"table\", \"filters\", ...}], " +
		"\"edges\": [{\"from\", \"to\"}]}"

	descOptimizeQueries = "Analyze a pipeline graph and render optimized SQL for every detected opportunity " +
		"in the configured dialect. Returns rendered queries alongside per-opportunity translation failures; " +
		"the two lists together always account for every opportunity."

	descRecommendIndexes = "Analyze a pipeline graph and derive ranked, deduplicated index recommendations " +
		"with ready-to-run CREATE INDEX DDL for the configured dialect. Composite indexes lead with " +
		"equality-filtered columns; unindexed foreign-key join columns are flagged critical."

	descAnalyzePlan = "Analyze one executed query's raw execution plan (EXPLAIN output in the configured " +
		"dialect's documented format). Detects bottlenecks (large sequential scans, expensive nested loops, " +
		"unindexed sorts, stale statistics), scores plan health 0-100, and attaches index recommendations. " +
		"A malformed plan yields a degraded result with one diagnostic bottleneck instead of failing."

	descAnalyzePlanSQL  = "The SQL statement the plan belongs to"
	descAnalyzePlanRaw  = "Raw execution plan text exactly as the database's EXPLAIN facility emitted it"
	descAnalyzePlanTime = "Measured wall-clock execution time in milliseconds (optional)"

	descAnalyzePlans = "Analyze a batch of executed queries in one call. Returns exactly one analysis per " +
		"input, in input order; malformed plans degrade individually and never abort the batch."

	descQueriesParam = "JSON array of {\"sql\", \"raw_plan\", \"execution_time_ms\"} objects"

	descMonitorPerformance = "Analyze a batch of executed queries and aggregate the results for monitoring: " +
		"queries slower than the threshold, a bottleneck-type frequency histogram, and fleet-level " +
		"recommendations for bottleneck types that recur."

	descThresholdParam = "Slow-query threshold in milliseconds"

	descPerformanceReport = "Analyze a batch of executed queries and render a deterministic textual report " +
		"ranked worst-first by optimization score, with best/worst/median statistics, per-query bottlenecks, " +
		"and index recommendations."

	descCollectPlan = "Run EXPLAIN ANALYZE for a SQL statement against the configured live database inside " +
		"a read-only transaction, then analyze the collected plan. The statement is executed to obtain " +
		"actual row counts and timing."

	descCollectPlanSQL = "SQL statement to collect and analyze (executed under EXPLAIN ANALYZE)"
)

func RegisterTools(s *server.MCPServer, analysis *service.AnalysisService, withCollector bool) {
	s.AddTool(
		mcp.NewTool("analyze_workflow",
			mcp.WithDescription(descAnalyzeWorkflow),
			mcp.WithString("graph",
				mcp.Required(),
				mcp.Description(descGraphParam),
			),
		),
		analyzeWorkflowHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("optimize_queries",
			mcp.WithDescription(descOptimizeQueries),
			mcp.WithString("graph",
				mcp.Required(),
				mcp.Description(descGraphParam),
			),
		),
		optimizeQueriesHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("recommend_indexes",
			mcp.WithDescription(descRecommendIndexes),
			mcp.WithString("graph",
				mcp.Required(),
				mcp.Description(descGraphParam),
			),
		),
		recommendIndexesHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("analyze_plan",
			mcp.WithDescription(descAnalyzePlan),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descAnalyzePlanSQL),
			),
			mcp.WithString("plan",
				mcp.Required(),
				mcp.Description(descAnalyzePlanRaw),
			),
			mcp.WithNumber("execution_time_ms",
				mcp.Description(descAnalyzePlanTime),
			),
		),
		analyzePlanHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("analyze_plans",
			mcp.WithDescription(descAnalyzePlans),
			mcp.WithString("queries",
				mcp.Required(),
				mcp.Description(descQueriesParam),
			),
		),
		analyzePlansHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("monitor_performance",
			mcp.WithDescription(descMonitorPerformance),
			mcp.WithString("queries",
				mcp.Required(),
				mcp.Description(descQueriesParam),
			),
			mcp.WithNumber("threshold_ms",
				mcp.Required(),
				mcp.Description(descThresholdParam),
			),
		),
		monitorPerformanceHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("performance_report",
			mcp.WithDescription(descPerformanceReport),
			mcp.WithString("queries",
				mcp.Required(),
				mcp.Description(descQueriesParam),
			),
		),
		performanceReportHandler(analysis),
	)

	if withCollector {
		s.AddTool(
			mcp.NewTool("collect_plan",
				mcp.WithDescription(descCollectPlan),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description(descCollectPlanSQL),
				),
			),
			collectPlanHandler(analysis),
		)
	}
}

func graphFromRequest(request mcp.CallToolRequest) (domain.PipelineGraph, error) {
	raw, ok := request.GetArguments()["graph"].(string)
	if !ok || raw == "" {
		return domain.PipelineGraph{}, fmt.Errorf("graph is required")
	}
	var g domain.PipelineGraph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return domain.PipelineGraph{}, fmt.Errorf("invalid graph JSON: %w", err)
	}
	return g, nil
}

func inputsFromRequest(request mcp.CallToolRequest) ([]plananalysis.PlanInput, error) {
	raw, ok := request.GetArguments()["queries"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("queries is required")
	}
	var inputs []plananalysis.PlanInput
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, fmt.Errorf("invalid queries JSON: %w", err)
	}
	return inputs, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func analyzeWorkflowHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g, err := graphFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "analyze_workflow")
		opps, err := analysis.AnalyzeWorkflow(ctx, g)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("workflow analysis failed: %v", err)), nil
		}
		return marshalResult(opps)
	}
}

func optimizeQueriesHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g, err := graphFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "optimize_queries")
		res, err := analysis.OptimizeQueries(ctx, g)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query optimization failed: %v", err)), nil
		}
		return marshalResult(res)
	}
}

func recommendIndexesHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g, err := graphFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "recommend_indexes")
		report, err := analysis.RecommendIndexes(ctx, g)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("index recommendation failed: %v", err)), nil
		}
		return marshalResult(report)
	}
}

func analyzePlanHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sql, ok := args["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}
		rawPlan, ok := args["plan"].(string)
		if !ok || rawPlan == "" {
			return mcp.NewToolResultError("plan is required"), nil
		}
		execMs, _ := args["execution_time_ms"].(float64)

		ctx = service.WithToolName(ctx, "analyze_plan")
		// A malformed plan still produces a degraded analysis; return it
		// rather than the error so callers always get a result object.
		an, _ := analysis.AnalyzePlan(ctx, plananalysis.PlanInput{
			SQL:             sql,
			RawPlan:         rawPlan,
			ExecutionTimeMs: execMs,
		})
		return marshalResult(an)
	}
}

func analyzePlansHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputs, err := inputsFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "analyze_plans")
		return marshalResult(analysis.AnalyzePlans(ctx, inputs))
	}
}

func monitorPerformanceHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputs, err := inputsFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		threshold, ok := request.GetArguments()["threshold_ms"].(float64)
		if !ok {
			return mcp.NewToolResultError("threshold_ms is required"), nil
		}

		ctx = service.WithToolName(ctx, "monitor_performance")
		return marshalResult(analysis.MonitorPerformance(ctx, inputs, threshold))
	}
}

func performanceReportHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputs, err := inputsFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "performance_report")
		return mcp.NewToolResultText(analysis.PerformanceReport(ctx, inputs)), nil
	}
}

func collectPlanHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "collect_plan")
		an, err := analysis.CollectAndAnalyze(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("plan collection failed: %v", err)), nil
		}
		return marshalResult(an)
	}
}
