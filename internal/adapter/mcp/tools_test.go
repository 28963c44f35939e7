package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylens/querylens/internal/audit"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/planparse"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
)

// --- mock PlanCollector ---

type mockCollector struct {
	plan port.CollectedPlan
	err  error
}

func (m *mockCollector) CollectPlan(_ context.Context, sql string) (port.CollectedPlan, error) {
	if m.err != nil {
		return port.CollectedPlan{}, m.err
	}
	out := m.plan
	out.SQL = sql
	return out, nil
}

func (m *mockCollector) Close() {}

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	defer s.UnregisterSession(ctx, session.SessionID())
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(t *testing.T, collector port.PlanCollector) *server.MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	analysis, err := service.NewAnalysisService(domain.DialectPostgres,
		plananalysis.DefaultThresholds(), planparse.DefaultLimits(),
		collector, audit.NoopAuditor{}, logger, nil, nil)
	require.NoError(t, err)

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, analysis, collector != nil)
	return s
}

const redundantScanGraph = `{
	"nodes": [
		{"id": "s1", "kind": "scan", "table": "orders",
		 "filters": [{"column": "status", "op": "eq", "value": "completed"}]},
		{"id": "s2", "kind": "scan", "table": "orders",
		 "filters": [{"column": "status", "op": "eq", "value": "completed"}]}
	],
	"edges": []
}`

const seqScanPlan = `{
	"Node Type": "Seq Scan",
	"Relation Name": "orders",
	"Total Cost": 4210.00,
	"Plan Rows": 150000,
	"Actual Rows": 149876,
	"Filter": "(status = 'completed'::text)"
}`

// --- tests ---

func TestAnalyzeWorkflow_HappyPath(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_workflow", map[string]any{"graph": redundantScanGraph})
	require.False(t, result.IsError, toolText(result))

	var opps []domain.OptimizationOpportunity
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &opps))
	require.Len(t, opps, 1)
	assert.Equal(t, domain.PatternRedundantQuery, opps[0].Pattern)
	assert.ElementsMatch(t, []string{"s1", "s2"}, opps[0].NodeIDs)
}

func TestAnalyzeWorkflow_MissingGraph(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_workflow", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "graph is required")
}

func TestAnalyzeWorkflow_InvalidGraphJSON(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_workflow", map[string]any{"graph": "{not json"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "invalid graph JSON")
}

func TestAnalyzeWorkflow_DuplicateNode(t *testing.T) {
	s := setupServer(t, nil)

	dup := `{"nodes": [
		{"id": "s1", "kind": "scan", "table": "orders"},
		{"id": "s1", "kind": "scan", "table": "orders"}
	], "edges": []}`
	result := callTool(t, s, "analyze_workflow", map[string]any{"graph": dup})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "workflow analysis failed")
}

func TestOptimizeQueries_HappyPath(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "optimize_queries", map[string]any{"graph": redundantScanGraph})
	require.False(t, result.IsError, toolText(result))

	var res struct {
		Queries  []domain.OptimizedQuery     `json:"queries"`
		Failures []domain.TranslationFailure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &res))
	require.Len(t, res.Queries, 1)
	assert.Empty(t, res.Failures)
	assert.Equal(t, domain.DialectPostgres, res.Queries[0].Dialect)
	assert.Contains(t, res.Queries[0].SQL, `FROM "orders"`)
}

func TestRecommendIndexes_HappyPath(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "recommend_indexes", map[string]any{"graph": redundantScanGraph})
	require.False(t, result.IsError, toolText(result))

	var report domain.IndexAnalysisReport
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &report))
	require.NotEmpty(t, report.Recommendations)
	assert.Equal(t, "orders", report.Recommendations[0].Table)
	assert.Contains(t, report.Recommendations[0].DDL, "CREATE INDEX")
}

func TestAnalyzePlan_HappyPath(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_plan", map[string]any{
		"sql":               "SELECT * FROM orders WHERE status = 'completed'",
		"plan":              seqScanPlan,
		"execution_time_ms": 120.5,
	})
	require.False(t, result.IsError, toolText(result))

	var an domain.PlanAnalysis
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &an))
	assert.Equal(t, 120.5, an.ExecutionTimeMs)
	require.NotEmpty(t, an.Bottlenecks)
	assert.Equal(t, domain.BottleneckFullScan, an.Bottlenecks[0].Type)
	assert.Less(t, an.OptimizationScore, 100)
}

func TestAnalyzePlan_MalformedPlanDegrades(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_plan", map[string]any{
		"sql":  "SELECT 1",
		"plan": "this is not a plan",
	})
	require.False(t, result.IsError, toolText(result))

	var an domain.PlanAnalysis
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &an))
	require.Len(t, an.Bottlenecks, 1)
	assert.Equal(t, domain.BottleneckMalformedPlan, an.Bottlenecks[0].Type)
}

func TestAnalyzePlan_MissingArgs(t *testing.T) {
	s := setupServer(t, nil)

	result := callTool(t, s, "analyze_plan", map[string]any{"plan": seqScanPlan})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")

	result = callTool(t, s, "analyze_plan", map[string]any{"sql": "SELECT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "plan is required")
}

func TestAnalyzePlans_BatchKeepsOrder(t *testing.T) {
	s := setupServer(t, nil)

	queries, _ := json.Marshal([]plananalysis.PlanInput{
		{SQL: "q1", RawPlan: `{"Node Type": "Result", "Total Cost": 1}`},
		{SQL: "q2", RawPlan: "garbage"},
		{SQL: "q3", RawPlan: seqScanPlan},
	})
	result := callTool(t, s, "analyze_plans", map[string]any{"queries": string(queries)})
	require.False(t, result.IsError, toolText(result))

	var analyses []domain.PlanAnalysis
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &analyses))
	require.Len(t, analyses, 3)
	assert.Equal(t, "q1", analyses[0].SQL)
	assert.Equal(t, "q2", analyses[1].SQL)
	require.NotEmpty(t, analyses[1].Bottlenecks)
	assert.Equal(t, domain.BottleneckMalformedPlan, analyses[1].Bottlenecks[0].Type)
	assert.Equal(t, "q3", analyses[2].SQL)
}

func TestMonitorPerformance_Tool(t *testing.T) {
	s := setupServer(t, nil)

	queries, _ := json.Marshal([]plananalysis.PlanInput{
		{SQL: "slow", RawPlan: seqScanPlan, ExecutionTimeMs: 200},
		{SQL: "fast", RawPlan: `{"Node Type": "Result", "Total Cost": 1}`, ExecutionTimeMs: 5},
	})
	result := callTool(t, s, "monitor_performance", map[string]any{
		"queries":      string(queries),
		"threshold_ms": 50,
	})
	require.False(t, result.IsError, toolText(result))

	var snap domain.MonitoringSnapshot
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &snap))
	assert.Equal(t, 2, snap.AnalyzedCount)
	require.Len(t, snap.SlowQueries, 1)
	assert.Equal(t, "slow", snap.SlowQueries[0].SQL)
}

func TestMonitorPerformance_MissingThreshold(t *testing.T) {
	s := setupServer(t, nil)

	queries, _ := json.Marshal([]plananalysis.PlanInput{})
	result := callTool(t, s, "monitor_performance", map[string]any{"queries": string(queries)})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "threshold_ms is required")
}

func TestPerformanceReport_Tool(t *testing.T) {
	s := setupServer(t, nil)

	queries, _ := json.Marshal([]plananalysis.PlanInput{
		{SQL: "SELECT * FROM orders", RawPlan: seqScanPlan, ExecutionTimeMs: 42},
	})
	result := callTool(t, s, "performance_report", map[string]any{"queries": string(queries)})
	require.False(t, result.IsError, toolText(result))

	text := toolText(result)
	assert.Contains(t, text, "QUERY PERFORMANCE REPORT")
	assert.Contains(t, text, "queries analyzed: 1")
}

func listToolNames(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("list", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	defer s.UnregisterSession(ctx, session.SessionID())
	sessionCtx := s.WithContext(ctx, session)

	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "list-1", "method": "tools/list",
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	names := make([]string, 0, len(rpc.Result.Tools))
	for _, tool := range rpc.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestCollectPlan_RegisteredOnlyWithCollector(t *testing.T) {
	// Without a collector the tool is not registered at all.
	assert.NotContains(t, listToolNames(t, setupServer(t, nil)), "collect_plan")
	assert.Contains(t, listToolNames(t, setupServer(t, &mockCollector{})), "collect_plan")
}

func TestCollectPlan_HappyPath(t *testing.T) {
	collector := &mockCollector{plan: port.CollectedPlan{
		RawPlan:         seqScanPlan,
		ExecutionTimeMs: 33.3,
	}}
	s := setupServer(t, collector)

	result := callTool(t, s, "collect_plan", map[string]any{"sql": "SELECT * FROM orders"})
	require.False(t, result.IsError, toolText(result))

	var an domain.PlanAnalysis
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &an))
	assert.Equal(t, "SELECT * FROM orders", an.SQL)
	assert.Equal(t, 33.3, an.ExecutionTimeMs)
}

func TestCollectPlan_CollectorError(t *testing.T) {
	collector := &mockCollector{err: fmt.Errorf("connection refused")}
	s := setupServer(t, collector)

	result := callTool(t, s, "collect_plan", map[string]any{"sql": "SELECT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "plan collection failed")
}
