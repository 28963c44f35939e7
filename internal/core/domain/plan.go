package domain

// NodeType is the canonical, dialect-independent operation of one execution
// plan node. Parsers map dialect-specific node labels onto this set; anything
// without a canonical equivalent becomes NodeOther.
type NodeType string

const (
	NodeSeqScan    NodeType = "seq_scan"
	NodeIndexScan  NodeType = "index_scan"
	NodeNestedLoop NodeType = "nested_loop"
	NodeHashJoin   NodeType = "hash_join"
	NodeSort       NodeType = "sort"
	NodeAggregate  NodeType = "aggregate"
	NodeOther      NodeType = "other"
)

// PlanNode is one operation in a parsed execution plan. Nodes live in a
// PlanTree arena and reference their children by index, which keeps the tree
// serializable and avoids pointer chasing on adversarially deep plans.
type PlanNode struct {
	Type NodeType `json:"type"`
	// Label preserves the originating database's node label verbatim.
	Label       string  `json:"label"`
	Relation    string  `json:"relation,omitempty"`
	Index       string  `json:"index,omitempty"`
	StartupCost float64 `json:"startup_cost"`
	TotalCost   float64 `json:"total_cost"`
	PlanRows    float64 `json:"plan_rows"`
	ActualRows  float64 `json:"actual_rows"`
	ActualTime  float64 `json:"actual_time_ms"`
	Loops       float64 `json:"loops"`
	// Predicate is the raw filter or join condition text, verbatim.
	Predicate string `json:"predicate,omitempty"`
	Children  []int  `json:"children,omitempty"`
}

// PlanTree is an arena-backed execution plan tree. Root is an index into
// Nodes, or -1 for the empty tree produced when a raw plan fails to parse.
type PlanTree struct {
	Nodes []PlanNode `json:"nodes,omitempty"`
	Root  int        `json:"root"`
}

// EmptyPlanTree is the degraded tree attached to a malformed-plan analysis.
func EmptyPlanTree() PlanTree {
	return PlanTree{Root: -1}
}

// Empty reports whether the tree holds no nodes.
func (t PlanTree) Empty() bool {
	return t.Root < 0 || t.Root >= len(t.Nodes) || len(t.Nodes) == 0
}

// RootNode returns the root plan node, if any.
func (t PlanTree) RootNode() (PlanNode, bool) {
	if t.Empty() {
		return PlanNode{}, false
	}
	return t.Nodes[t.Root], true
}

// TotalCost is the root's cumulative cost; all supported plan formats report
// cumulative per-node costs.
func (t PlanTree) TotalCost() float64 {
	root, ok := t.RootNode()
	if !ok {
		return 0
	}
	return root.TotalCost
}

// SelfCost is a node's total cost minus the sum of its children's total
// costs, used to rank the single most expensive operation.
func (t PlanTree) SelfCost(id int) float64 {
	if id < 0 || id >= len(t.Nodes) {
		return 0
	}
	n := t.Nodes[id]
	cost := n.TotalCost
	for _, c := range n.Children {
		if c >= 0 && c < len(t.Nodes) {
			cost -= t.Nodes[c].TotalCost
		}
	}
	if cost < 0 {
		cost = 0
	}
	return cost
}

// Walk visits every node reachable from the root using an explicit stack in
// deterministic (pre-order, first-child-first) order.
func (t PlanTree) Walk(fn func(id int, n PlanNode)) {
	if t.Empty() {
		return
	}
	stack := []int{t.Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id < 0 || id >= len(t.Nodes) {
			continue
		}
		n := t.Nodes[id]
		fn(id, n)
		// Push children in reverse so the first child is visited first.
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}
