// Package plananalysis detects bottlenecks in parsed execution plans, scores
// plan health, and aggregates batches of analyses for monitoring and
// reporting.
package plananalysis

import (
	"fmt"
	"math"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/indexadvisor"
	"github.com/querylens/querylens/internal/core/planparse"
)

// Analyzer examines execution plans for one SQL dialect. The parser and the
// thresholds are fixed at construction, so every method is a pure function of
// its inputs and safe for concurrent use.
type Analyzer struct {
	dialect    domain.Dialect
	parser     planparse.Parser
	thresholds Thresholds
	advisor    *indexadvisor.Engine
}

// PlanInput is one executed query to analyze: the SQL, the raw plan its
// database emitted, and the measured wall-clock time.
type PlanInput struct {
	SQL             string  `json:"sql"`
	RawPlan         string  `json:"raw_plan"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// NewAnalyzer validates the configuration and fixes the dialect's parser.
func NewAnalyzer(d domain.Dialect, thresholds Thresholds, limits planparse.Limits) (*Analyzer, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	parser, err := planparse.ForDialect(d, limits)
	if err != nil {
		return nil, err
	}
	advisor, err := indexadvisor.NewEngine(d)
	if err != nil {
		return nil, err
	}
	return &Analyzer{dialect: d, parser: parser, thresholds: thresholds, advisor: advisor}, nil
}

// Analyze parses one raw plan and produces the full analysis. A plan that
// fails to parse still yields a usable result: an empty tree carrying one
// diagnostic bottleneck, returned alongside the parse error so single-plan
// callers can distinguish the degraded case while batch callers keep going.
func (a *Analyzer) Analyze(in PlanInput) (domain.PlanAnalysis, error) {
	an := domain.PlanAnalysis{
		SQL:             in.SQL,
		Dialect:         a.dialect,
		ExecutionTimeMs: in.ExecutionTimeMs,
	}

	tree, err := a.parser.Parse(in.RawPlan)
	if err != nil {
		an.Plan = domain.EmptyPlanTree()
		an.Bottlenecks = []domain.Bottleneck{{
			Type:     domain.BottleneckMalformedPlan,
			Severity: domain.SeverityHigh,
			NodeID:   -1,
			Impact:   fmt.Sprintf("execution plan could not be parsed: %v", err),
			Suggestions: []string{
				"re-run EXPLAIN with the documented output format for this dialect",
			},
		}}
		an.OptimizationScore = a.score(an.Bottlenecks)
		return an, err
	}

	an.Plan = tree
	an.TotalCost = tree.TotalCost()
	an.Bottlenecks = a.detect(tree)
	an.OptimizationScore = a.score(an.Bottlenecks)
	an.IndexRecommendations = a.advisor.RecommendForAnalysis(an)
	return an, nil
}

// AnalyzeMany analyzes N independent inputs with no shared state. The output
// always has exactly len(inputs) entries in input order; a malformed plan
// degrades that entry instead of aborting the batch.
func (a *Analyzer) AnalyzeMany(inputs []PlanInput) []domain.PlanAnalysis {
	out := make([]domain.PlanAnalysis, len(inputs))
	for i, in := range inputs {
		out[i], _ = a.Analyze(in)
	}
	return out
}

// detect walks the tree once and evaluates every rule per node, in a fixed
// order so the bottleneck list is deterministic.
func (a *Analyzer) detect(tree domain.PlanTree) []domain.Bottleneck {
	var out []domain.Bottleneck
	tree.Walk(func(id int, n domain.PlanNode) {
		if b, ok := a.checkFullScan(id, n); ok {
			out = append(out, b)
		}
		if b, ok := a.checkNestedLoop(tree, id, n); ok {
			out = append(out, b)
		}
		if b, ok := a.checkSort(tree, id, n); ok {
			out = append(out, b)
		}
		if b, ok := a.checkMisestimate(id, n); ok {
			out = append(out, b)
		}
	})
	return out
}

func (a *Analyzer) checkFullScan(id int, n domain.PlanNode) (domain.Bottleneck, bool) {
	if n.Type != domain.NodeSeqScan || n.PlanRows < a.thresholds.FullScanRowsMedium {
		return domain.Bottleneck{}, false
	}
	severity := domain.SeverityMedium
	switch {
	case n.PlanRows >= a.thresholds.FullScanRowsCritical:
		severity = domain.SeverityCritical
	case n.PlanRows >= a.thresholds.FullScanRowsHigh:
		severity = domain.SeverityHigh
	}
	target := n.Relation
	if target == "" {
		target = n.Label
	}
	return domain.Bottleneck{
		Type:     domain.BottleneckFullScan,
		Severity: severity,
		NodeID:   id,
		Impact:   fmt.Sprintf("sequential scan reads ~%.0f rows from %s", n.PlanRows, target),
		Suggestions: []string{
			fmt.Sprintf("add an index on the columns %s filters on", target),
			"narrow the scan with a more selective predicate",
		},
		Improvement: "index access typically cuts scan cost by an order of magnitude",
	}, true
}

func (a *Analyzer) checkNestedLoop(tree domain.PlanTree, id int, n domain.PlanNode) (domain.Bottleneck, bool) {
	if n.Type != domain.NodeNestedLoop {
		return domain.Bottleneck{}, false
	}
	loops := innerLoops(tree, n)
	if loops <= a.thresholds.NestedLoopLoops {
		return domain.Bottleneck{}, false
	}
	severity := domain.SeverityHigh
	if loops > a.thresholds.NestedLoopLoops*10 {
		severity = domain.SeverityCritical
	}
	return domain.Bottleneck{
		Type:     domain.BottleneckExpensiveNestedLoop,
		Severity: severity,
		NodeID:   id,
		Impact:   fmt.Sprintf("nested loop re-executes its inner side %.0f times", loops),
		Suggestions: []string{
			"index the inner side's join key so each probe is a lookup",
			"check whether the planner would prefer a hash join with fresh statistics",
		},
		Improvement: "an indexed inner side makes the loop cost proportional to the outer row count",
	}, true
}

// innerLoops is the highest loop count among the node's children; in every
// supported plan format the repeatedly executed inner side is the child that
// reports the large loop figure.
func innerLoops(tree domain.PlanTree, n domain.PlanNode) float64 {
	var most float64
	for _, c := range n.Children {
		if c >= 0 && c < len(tree.Nodes) && tree.Nodes[c].Loops > most {
			most = tree.Nodes[c].Loops
		}
	}
	return most
}

func (a *Analyzer) checkSort(tree domain.PlanTree, id int, n domain.PlanNode) (domain.Bottleneck, bool) {
	if n.Type != domain.NodeSort {
		return domain.Bottleneck{}, false
	}
	rows := n.ActualRows
	if rows == 0 {
		rows = n.PlanRows
	}
	if rows <= a.thresholds.SortRows || indexBackedSubtree(tree, n) {
		return domain.Bottleneck{}, false
	}
	return domain.Bottleneck{
		Type:     domain.BottleneckUnsupportedSort,
		Severity: domain.SeverityMedium,
		NodeID:   id,
		Impact:   fmt.Sprintf("sort materializes ~%.0f rows with no index to pre-order them", rows),
		Suggestions: []string{
			"create an index matching the sort keys so rows arrive pre-ordered",
		},
		Improvement: "a matching index removes the sort entirely",
	}, true
}

// indexBackedSubtree reports whether any node under the sort reads through an
// index, which means the sort may already be cheap or incidental.
func indexBackedSubtree(tree domain.PlanTree, n domain.PlanNode) bool {
	stack := append([]int(nil), n.Children...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id < 0 || id >= len(tree.Nodes) {
			continue
		}
		child := tree.Nodes[id]
		if child.Type == domain.NodeIndexScan {
			return true
		}
		stack = append(stack, child.Children...)
	}
	return false
}

func (a *Analyzer) checkMisestimate(id int, n domain.PlanNode) (domain.Bottleneck, bool) {
	if n.ActualRows == 0 && n.ActualTime == 0 {
		// Estimate-only plan; there is nothing to compare against.
		return domain.Bottleneck{}, false
	}
	ratio := math.Abs(n.ActualRows-n.PlanRows) / math.Max(n.PlanRows, 1)
	if ratio < a.thresholds.MisestimateRatio {
		return domain.Bottleneck{}, false
	}
	severity := domain.SeverityMedium
	if ratio >= a.thresholds.MisestimateRatio*10 {
		severity = domain.SeverityHigh
	}
	return domain.Bottleneck{
		Type:     domain.BottleneckStatsMisestimate,
		Severity: severity,
		NodeID:   id,
		Impact:   fmt.Sprintf("planner estimated %.0f rows but saw %.0f (%.0fx off)", n.PlanRows, n.ActualRows, ratio),
		Suggestions: []string{
			"refresh table statistics (ANALYZE or the dialect's equivalent)",
		},
		Improvement: "accurate estimates let the planner pick join order and access paths correctly",
	}, true
}

// score reduces 100 by each bottleneck's severity weight, floored at 0. The
// result depends only on the bottleneck multiset, never on ordering.
func (a *Analyzer) score(bottlenecks []domain.Bottleneck) int {
	score := 100
	for _, b := range bottlenecks {
		score -= a.thresholds.weight(b.Severity)
	}
	if score < 0 {
		score = 0
	}
	return score
}
