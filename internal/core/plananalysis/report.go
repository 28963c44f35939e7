package plananalysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// ComprehensiveReport renders a deterministic textual summary of a batch of
// analyses, ranked worst-first by optimization score, with best, worst, and
// median statistics. Identical input always renders identical text.
func (a *Analyzer) ComprehensiveReport(analyses []domain.PlanAnalysis) string {
	var sb strings.Builder
	sb.WriteString("QUERY PERFORMANCE REPORT\n")
	sb.WriteString(fmt.Sprintf("dialect: %s, queries analyzed: %d\n", a.dialect, len(analyses)))
	if len(analyses) == 0 {
		sb.WriteString("no queries to report\n")
		return sb.String()
	}

	ranked := append([]domain.PlanAnalysis(nil), analyses...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].OptimizationScore != ranked[j].OptimizationScore {
			return ranked[i].OptimizationScore < ranked[j].OptimizationScore
		}
		return ranked[i].SQL < ranked[j].SQL
	})

	scores := make([]int, len(ranked))
	for i, an := range ranked {
		scores[i] = an.OptimizationScore
	}
	sb.WriteString(fmt.Sprintf("scores: worst=%d median=%d best=%d\n\n",
		scores[0], scores[len(scores)/2], scores[len(scores)-1]))

	for i, an := range ranked {
		sb.WriteString(fmt.Sprintf("%d. score=%d time=%.1fms cost=%.2f\n", i+1,
			an.OptimizationScore, an.ExecutionTimeMs, an.TotalCost))
		sb.WriteString("   sql: " + oneLine(an.SQL) + "\n")
		if id, ok := mostExpensiveNode(an.Plan); ok {
			n := an.Plan.Nodes[id]
			sb.WriteString(fmt.Sprintf("   hottest operation: %s (self cost %.2f)\n", n.Label, an.Plan.SelfCost(id)))
		}
		for _, b := range an.Bottlenecks {
			sb.WriteString(fmt.Sprintf("   [%s] %s: %s\n", b.Severity, b.Type, b.Impact))
		}
		for _, rec := range an.IndexRecommendations {
			sb.WriteString("   index: " + rec.DDL + "\n")
		}
	}
	return sb.String()
}

// mostExpensiveNode ranks nodes by self cost, breaking ties toward the
// earliest node so the choice is stable.
func mostExpensiveNode(tree domain.PlanTree) (int, bool) {
	best, bestCost := -1, -1.0
	tree.Walk(func(id int, _ domain.PlanNode) {
		if cost := tree.SelfCost(id); cost > bestCost {
			best, bestCost = id, cost
		}
	})
	return best, best >= 0
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
