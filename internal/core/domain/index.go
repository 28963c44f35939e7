package domain

// IndexKind is the physical index structure a recommendation proposes.
type IndexKind string

const (
	IndexBTree    IndexKind = "btree"
	IndexHash     IndexKind = "hash"
	IndexPartial  IndexKind = "partial"
	IndexCovering IndexKind = "covering"
)

// Priority grades how urgently a recommendation should be applied.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities for sorting; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// IndexRecommendation is a suggested physical index. Impact is an estimated
// speedup multiplier (>= 1.0) for queries the index serves.
type IndexRecommendation struct {
	Table    string    `json:"table"`
	Columns  []string  `json:"columns"`
	Kind     IndexKind `json:"kind"`
	Priority Priority  `json:"priority"`
	Impact   float64   `json:"impact"`
	Dialect  Dialect   `json:"dialect"`
	DDL      string    `json:"ddl"`
	Reason   string    `json:"reason,omitempty"`
	// Predicate carries the WHERE clause for partial indexes.
	Predicate string `json:"predicate,omitempty"`
	// Include carries the non-key columns for covering indexes.
	Include []string `json:"include,omitempty"`
}

// IndexAnalysisReport is the engine's full output: every recommendation, the
// critical subset, and the aggregate estimated gain. The gain is the
// geometric mean of per-recommendation impact multipliers; independent
// indexes do not compound additively.
type IndexAnalysisReport struct {
	Recommendations    []IndexRecommendation `json:"recommendations"`
	Critical           []IndexRecommendation `json:"critical,omitempty"`
	TotalEstimatedGain float64               `json:"total_estimated_gain"`
}
