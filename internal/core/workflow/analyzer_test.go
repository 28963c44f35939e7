package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylens/querylens/internal/core/domain"
)

func statusFilter() []domain.Predicate {
	return []domain.Predicate{{Column: "status", Op: domain.OpEq, Value: "completed"}}
}

func TestAnalyze_RedundantScans(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "scan1", Kind: domain.OpScan, Table: "orders", Filters: statusFilter()},
			{ID: "scan2", Kind: domain.OpScan, Table: "orders", Filters: statusFilter()},
		},
	}

	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.PatternRedundantQuery, opp.Pattern)
	assert.Equal(t, []string{"scan1", "scan2"}, opp.NodeIDs)
	assert.Equal(t, "orders", opp.Table)
	assert.InDelta(t, 2.0, opp.Improvement.Multiplier, 1e-9)
}

func TestAnalyze_RedundantScansRequireSetEqualFilters(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "scan1", Kind: domain.OpScan, Table: "orders", Filters: statusFilter()},
			{ID: "scan2", Kind: domain.OpScan, Table: "orders", Filters: []domain.Predicate{
				{Column: "status", Op: domain.OpEq, Value: "pending"},
			}},
		},
	}
	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestAnalyze_FilterOrderDoesNotAffectRedundancy(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "a", Kind: domain.OpScan, Table: "orders", Filters: []domain.Predicate{
				{Column: "status", Op: domain.OpEq, Value: "completed"},
				{Column: "total", Op: domain.OpGt, Value: "100"},
			}},
			{ID: "b", Kind: domain.OpScan, Table: "orders", Filters: []domain.Predicate{
				{Column: "total", Op: domain.OpGt, Value: "100"},
				{Column: "status", Op: domain.OpEq, Value: "completed"},
			}},
		},
	}
	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.PatternRedundantQuery, opps[0].Pattern)
}

func TestAnalyze_DuplicateNodeIsFatal(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "scan1", Kind: domain.OpScan, Table: "orders"},
			{ID: "scan1", Kind: domain.OpScan, Table: "orders"},
		},
	}
	_, err := NewAnalyzer().Analyze(g)
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)
}

func TestAnalyze_CycleBecomesUnsupported(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "f1", Kind: domain.OpFilter, Filters: statusFilter()},
			{ID: "f2", Kind: domain.OpFilter, Filters: statusFilter()},
		},
		Edges: []domain.Edge{{From: "f1", To: "f2"}, {From: "f2", To: "f1"}},
	}

	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.PatternUnsupported, opps[0].Pattern)
	assert.Equal(t, []string{"f1", "f2"}, opps[0].NodeIDs)
}

func joinChainGraph() domain.PipelineGraph {
	return domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "s_orders", Kind: domain.OpScan, Table: "orders", Filters: statusFilter()},
			{ID: "s_customers", Kind: domain.OpScan, Table: "customers"},
			{ID: "s_items", Kind: domain.OpScan, Table: "items", Filters: []domain.Predicate{
				{Column: "price", Op: domain.OpGt, Value: "10"},
			}},
			{ID: "j1", Kind: domain.OpJoin, On: "orders.customer_id = customers.id"},
			{ID: "j2", Kind: domain.OpJoin, On: "items.order_id = orders.id"},
		},
		Edges: []domain.Edge{
			{From: "s_orders", To: "j1"},
			{From: "s_customers", To: "j1"},
			{From: "j1", To: "j2"},
			{From: "s_items", To: "j2"},
		},
	}
}

func TestAnalyze_JoinChain(t *testing.T) {
	t.Parallel()
	opps, err := NewAnalyzer().Analyze(joinChainGraph())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.PatternJoinChain, opp.Pattern)
	// orders has an equality filter (most selective), items a range filter,
	// customers none: orders first, customers last.
	assert.Equal(t, "orders", opp.Table)
	require.Len(t, opp.Joins, 2)
	assert.Equal(t, "items", opp.Joins[0].Table)
	assert.Equal(t, "customers", opp.Joins[1].Table)
	assert.NotEmpty(t, opp.Joins[0].On)
	assert.Contains(t, opp.NodeIDs, "j1")
	assert.Contains(t, opp.NodeIDs, "j2")
	assert.Contains(t, opp.NodeIDs, "s_orders")
}

func TestAnalyze_AggregationPushdown(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "s_orders", Kind: domain.OpScan, Table: "orders"},
			{ID: "s_customers", Kind: domain.OpScan, Table: "customers"},
			{ID: "j1", Kind: domain.OpJoin, On: "orders.customer_id = customers.id"},
			{ID: "agg", Kind: domain.OpAggregate, GroupBy: []string{"orders.customer_id"}, Aggregations: []string{"SUM(orders.total)"}},
		},
		Edges: []domain.Edge{
			{From: "s_orders", To: "j1"},
			{From: "s_customers", To: "j1"},
			{From: "j1", To: "agg"},
		},
	}

	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.PatternAggregationPushdown, opp.Pattern)
	assert.Equal(t, "orders", opp.PushdownTable)
	assert.Equal(t, "customers", opp.Table)
	assert.Equal(t, []string{"agg", "j1"}, opp.NodeIDs)
}

func TestAnalyze_FilterChainCollapse(t *testing.T) {
	t.Parallel()
	g := domain.PipelineGraph{
		Nodes: []domain.GraphNode{
			{ID: "scan", Kind: domain.OpScan, Table: "orders"},
			{ID: "f1", Kind: domain.OpFilter, Filters: []domain.Predicate{
				{Column: "name", Op: domain.OpLike, Value: "%acme%"},
			}},
			{ID: "f2", Kind: domain.OpFilter, Filters: []domain.Predicate{
				{Column: "total", Op: domain.OpGt, Value: "100"},
			}},
			{ID: "f3", Kind: domain.OpFilter, Filters: []domain.Predicate{
				{Column: "status", Op: domain.OpEq, Value: "completed"},
			}},
		},
		Edges: []domain.Edge{
			{From: "scan", To: "f1"},
			{From: "f1", To: "f2"},
			{From: "f2", To: "f3"},
		},
	}

	opps, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.PatternFilterChainCollapse, opp.Pattern)
	assert.Equal(t, []string{"f1", "f2", "f3"}, opp.NodeIDs)
	assert.Equal(t, "orders", opp.Table)
	// Equality before range before pattern match.
	require.Len(t, opp.Predicates, 3)
	assert.Equal(t, domain.OpEq, opp.Predicates[0].Op)
	assert.Equal(t, domain.OpGt, opp.Predicates[1].Op)
	assert.Equal(t, domain.OpLike, opp.Predicates[2].Op)
}

func TestAnalyze_OrderingIsStable(t *testing.T) {
	t.Parallel()
	g := joinChainGraph()
	g.Nodes = append(g.Nodes,
		domain.GraphNode{ID: "r1", Kind: domain.OpScan, Table: "payments", Filters: statusFilter()},
		domain.GraphNode{ID: "r2", Kind: domain.OpScan, Table: "payments", Filters: statusFilter()},
		domain.GraphNode{ID: "r3", Kind: domain.OpScan, Table: "payments", Filters: statusFilter()},
	)

	first, err := NewAnalyzer().Analyze(g)
	require.NoError(t, err)
	require.Len(t, first, 2)
	// Three redundant scans (x3.0) outrank a two-join chain (x1.5).
	assert.Equal(t, domain.PatternRedundantQuery, first[0].Pattern)
	assert.Equal(t, domain.PatternJoinChain, first[1].Pattern)

	for i := 0; i < 5; i++ {
		again, err := NewAnalyzer().Analyze(g)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
