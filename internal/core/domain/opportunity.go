package domain

import "strings"

// PatternType classifies a detected workflow inefficiency.
type PatternType string

const (
	PatternRedundantQuery       PatternType = "redundant_query"
	PatternJoinChain            PatternType = "join_chain"
	PatternAggregationPushdown  PatternType = "aggregation_pushdown"
	PatternFilterChainCollapse  PatternType = "filter_chain_collapse"
	PatternUnsupported          PatternType = "unsupported"
)

// Improvement describes the estimated benefit of acting on an opportunity.
// Multiplier is an expected speedup factor (>= 1.0).
type Improvement struct {
	Multiplier float64 `json:"multiplier"`
	Summary    string  `json:"summary"`
}

// JoinStep is one table joined into a multi-way JOIN, in execution order.
type JoinStep struct {
	Table string `json:"table"`
	// On is the join condition against the tables already joined; empty for
	// the first step.
	On string `json:"on,omitempty"`
}

// OptimizationOpportunity is one detected, actionable inefficiency in the
// pipeline graph. It carries enough detail for the SQL optimizer to render a
// replacement query without re-reading the graph.
type OptimizationOpportunity struct {
	ID          string      `json:"id"`
	Pattern     PatternType `json:"pattern_type"`
	NodeIDs     []string    `json:"node_ids"`
	Improvement Improvement `json:"improvement"`
	Rationale   string      `json:"rationale"`

	Table        string      `json:"table,omitempty"`
	Predicates   []Predicate `json:"predicates,omitempty"`
	Joins        []JoinStep  `json:"joins,omitempty"`
	GroupBy      []string    `json:"group_by,omitempty"`
	OrderBy      []string    `json:"order_by,omitempty"`
	Aggregations []string    `json:"aggregations,omitempty"`
	// PushdownTable names the join side the aggregate should move before,
	// for aggregation_pushdown opportunities.
	PushdownTable string `json:"pushdown_table,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// OpportunityID derives the deterministic id for a pattern over a node set.
// Identical inputs always produce identical ids, which keeps repeated
// analysis runs bit-identical.
func OpportunityID(pattern PatternType, nodeIDs []string) string {
	return string(pattern) + ":" + strings.Join(nodeIDs, "+")
}

// OptimizedQuery is a dialect-rendered replacement for the operations an
// opportunity covers.
type OptimizedQuery struct {
	OpportunityID string  `json:"opportunity_id"`
	Dialect       Dialect `json:"dialect"`
	SQL           string  `json:"sql"`
	NodeIDs       []string `json:"node_ids"`
	// CostReduction is the estimated fraction of work saved, in [0,1).
	CostReduction float64 `json:"cost_reduction"`
}

// TranslationFailure records an opportunity that could not be rendered for
// the target dialect. Failures are returned alongside successes; they never
// abort a batch call.
type TranslationFailure struct {
	OpportunityID string  `json:"opportunity_id"`
	Dialect       Dialect `json:"dialect"`
	Reason        string  `json:"reason"`
}
