package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildJoinTree returns a hash join over two scans:
//
//	0: hash_join (cost 150)
//	├── 1: seq_scan orders (cost 100)
//	└── 2: index_scan customers (cost 30)
func buildJoinTree() PlanTree {
	return PlanTree{
		Root: 0,
		Nodes: []PlanNode{
			{Type: NodeHashJoin, Label: "Hash Join", TotalCost: 150, Children: []int{1, 2}},
			{Type: NodeSeqScan, Label: "Seq Scan", Relation: "orders", TotalCost: 100},
			{Type: NodeIndexScan, Label: "Index Scan", Relation: "customers", TotalCost: 30},
		},
	}
}

func TestPlanTree_Empty(t *testing.T) {
	t.Parallel()
	empty := EmptyPlanTree()
	assert.True(t, empty.Empty())
	_, ok := empty.RootNode()
	assert.False(t, ok)
	assert.Zero(t, empty.TotalCost())
	empty.Walk(func(int, PlanNode) {
		t.Fatal("walk visited a node of an empty tree")
	})
}

func TestPlanTree_SelfCost(t *testing.T) {
	t.Parallel()
	tree := buildJoinTree()
	assert.InDelta(t, 20.0, tree.SelfCost(0), 1e-9)
	assert.InDelta(t, 100.0, tree.SelfCost(1), 1e-9)
	assert.InDelta(t, 150.0, tree.TotalCost(), 1e-9)
}

func TestPlanTree_WalkOrder(t *testing.T) {
	t.Parallel()
	tree := buildJoinTree()
	var order []int
	tree.Walk(func(id int, _ PlanNode) {
		order = append(order, id)
	})
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestSeverityAndPriorityRank(t *testing.T) {
	t.Parallel()
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, PriorityCritical.Rank(), PriorityLow.Rank())
}

func TestOpportunityID_Deterministic(t *testing.T) {
	t.Parallel()
	a := OpportunityID(PatternRedundantQuery, []string{"n1", "n2"})
	b := OpportunityID(PatternRedundantQuery, []string{"n1", "n2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "redundant_query:n1+n2", a)
}
