package domain

// BottleneckType classifies a detected performance-limiting condition.
type BottleneckType string

const (
	BottleneckFullScan            BottleneckType = "full_scan"
	BottleneckExpensiveNestedLoop BottleneckType = "expensive_nested_loop"
	BottleneckUnsupportedSort     BottleneckType = "unsupported_sort"
	BottleneckStatsMisestimate    BottleneckType = "stats_misestimate"
	// BottleneckMalformedPlan is the diagnostic attached to a degraded
	// analysis whose raw plan could not be parsed.
	BottleneckMalformedPlan BottleneckType = "malformed_plan"
)

// Severity grades a bottleneck or recommendation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Bottleneck is one detected performance-limiting condition attached to a
// specific plan node.
type Bottleneck struct {
	Type     BottleneckType `json:"type"`
	Severity Severity       `json:"severity"`
	// NodeID indexes the offending node in the analysis's plan tree; -1 when
	// the bottleneck is not tied to a node (malformed plan diagnostics).
	NodeID      int      `json:"node_id"`
	Impact      string   `json:"impact"`
	Suggestions []string `json:"suggestions,omitempty"`
	Improvement string   `json:"improvement,omitempty"`
}

// PlanAnalysis is the full result of analyzing one executed query's plan.
type PlanAnalysis struct {
	SQL                  string                `json:"sql"`
	Dialect              Dialect               `json:"dialect"`
	ExecutionTimeMs      float64               `json:"execution_time_ms"`
	TotalCost            float64               `json:"total_cost"`
	Plan                 PlanTree              `json:"plan"`
	Bottlenecks          []Bottleneck          `json:"bottlenecks,omitempty"`
	IndexRecommendations []IndexRecommendation `json:"index_recommendations,omitempty"`
	// OptimizationScore is a deterministic 0-100 health score derived from
	// the bottleneck multiset.
	OptimizationScore int `json:"optimization_score"`
}

// MonitoringSnapshot aggregates many plan analyses for monitoring.
type MonitoringSnapshot struct {
	ThresholdMs         float64                `json:"threshold_ms"`
	SlowQueries         []PlanAnalysis         `json:"slow_queries,omitempty"`
	BottleneckFrequency map[BottleneckType]int `json:"bottleneck_frequency"`
	Recommendations     []string               `json:"recommendations,omitempty"`
	AnalyzedCount       int                    `json:"analyzed_count"`
}
