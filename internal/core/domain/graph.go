package domain

import (
	"fmt"
	"sort"
)

// OpKind is the relational operation a pipeline node performs.
type OpKind string

const (
	OpScan      OpKind = "scan"
	OpFilter    OpKind = "filter"
	OpJoin      OpKind = "join"
	OpAggregate OpKind = "aggregate"
)

// LogicalOp is a dialect-independent filter operator. The SQL optimizer
// translates these to dialect operators; not every operator is available in
// every dialect.
type LogicalOp string

const (
	OpEq      LogicalOp = "eq"
	OpNotEq   LogicalOp = "neq"
	OpLt      LogicalOp = "lt"
	OpLte     LogicalOp = "lte"
	OpGt      LogicalOp = "gt"
	OpGte     LogicalOp = "gte"
	OpIn      LogicalOp = "in"
	OpBetween LogicalOp = "between"
	OpLike    LogicalOp = "like"
	OpILike   LogicalOp = "ilike"
	OpRegex   LogicalOp = "regex"
)

// Predicate is one logical filter condition on a column.
type Predicate struct {
	Column string    `json:"column"`
	Op     LogicalOp `json:"op"`
	Value  string    `json:"value,omitempty"`
	// Values carries the operand list for in/between operators.
	Values []string `json:"values,omitempty"`
}

// GraphNode is one operation in the externally supplied pipeline graph.
// Parameters are interpreted per kind: scans read Table/Filters, joins read
// On, aggregates read GroupBy/Aggregations, filters read Filters.
type GraphNode struct {
	ID           string      `json:"id"`
	Kind         OpKind      `json:"kind"`
	Table        string      `json:"table,omitempty"`
	Filters      []Predicate `json:"filters,omitempty"`
	On           string      `json:"on,omitempty"`
	GroupBy      []string    `json:"group_by,omitempty"`
	OrderBy      []string    `json:"order_by,omitempty"`
	Aggregations []string    `json:"aggregations,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Offset       int         `json:"offset,omitempty"`
}

// Edge is a producer-to-consumer dependency between two graph nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PipelineGraph is the declarative data-processing graph under analysis.
// It is treated as immutable for the duration of an analysis call.
type PipelineGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// Validate checks structural integrity. A duplicate node id or an edge
// referencing an unknown node is a fatal input error raised before any
// traversal.
func (g PipelineGraph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range g.Edges {
		if !seen[e.From] {
			return fmt.Errorf("%w: %q", ErrUnknownNode, e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("%w: %q", ErrUnknownNode, e.To)
		}
	}
	return nil
}

// Node returns the node with the given id.
func (g PipelineGraph) Node(id string) (GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}

// Consumers returns the ids of nodes fed by the given node, sorted.
func (g PipelineGraph) Consumers(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Producers returns the ids of nodes feeding the given node, sorted.
func (g PipelineGraph) Producers(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	sort.Strings(out)
	return out
}
