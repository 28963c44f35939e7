// Package indexadvisor turns detected opportunities, rendered queries, and
// observed plan bottlenecks into ranked, deduplicated index recommendations.
package indexadvisor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// maxImpact caps any single recommendation's estimated multiplier; merged
// impacts follow diminishing returns and never exceed it either.
const maxImpact = 10.0

// Engine builds index recommendations for one target dialect.
type Engine struct {
	dialect domain.Dialect
}

// NewEngine validates the dialect tag and returns an Engine for it.
func NewEngine(d domain.Dialect) (*Engine, error) {
	if _, err := domain.ParseDialect(string(d)); err != nil {
		return nil, err
	}
	return &Engine{dialect: d}, nil
}

// candidate is one not-yet-merged recommendation.
type candidate struct {
	table     string
	columns   []string
	kind      domain.IndexKind
	priority  domain.Priority
	impact    float64
	reason    string
	predicate string
	include   []string
}

// Recommend derives recommendations from opportunities and, when supplied,
// from observed plan analyses. Identical (table, column-list, dialect)
// candidates merge with diminishing returns; output is sorted by priority
// then impact. The report's total gain is the geometric mean of merged
// multipliers.
func (e *Engine) Recommend(opps []domain.OptimizationOpportunity, queries []domain.OptimizedQuery, analyses []domain.PlanAnalysis) domain.IndexAnalysisReport {
	tables := knownTables(opps)

	var cands []candidate
	for _, opp := range opps {
		cands = append(cands, e.fromOpportunity(opp, tables)...)
	}
	for _, an := range analyses {
		cands = append(cands, e.fromAnalysis(an)...)
	}
	_ = queries // queries carry no columns beyond their opportunities today

	return e.buildReport(cands)
}

// RecommendForAnalysis derives recommendations from a single observed plan.
// The plan analyzer attaches these to each PlanAnalysis it produces.
func (e *Engine) RecommendForAnalysis(an domain.PlanAnalysis) []domain.IndexRecommendation {
	return e.buildReport(e.fromAnalysis(an)).Recommendations
}

// fromAnalysis derives candidates from one observed plan's bottlenecks and
// join operators.
func (e *Engine) fromAnalysis(an domain.PlanAnalysis) []candidate {
	var cands []candidate
	for _, b := range an.Bottlenecks {
		if b.NodeID < 0 || b.NodeID >= len(an.Plan.Nodes) {
			continue
		}
		node := an.Plan.Nodes[b.NodeID]

		switch b.Type {
		case domain.BottleneckFullScan:
			cols := extractFilterColumns(node.Predicate)
			if node.Relation == "" || len(cols) == 0 {
				continue
			}
			prio := domain.PriorityHigh
			if b.Severity == domain.SeverityCritical {
				prio = domain.PriorityCritical
			}
			cands = append(cands, candidate{
				table:    node.Relation,
				columns:  cols,
				kind:     domain.IndexBTree,
				priority: prio,
				impact:   4.0,
				reason:   fmt.Sprintf("sequential scan over %s filtered on %s", node.Relation, strings.Join(cols, ", ")),
			})
		case domain.BottleneckExpensiveNestedLoop:
			cands = append(cands, e.joinKeyCandidates(node.Predicate, domain.PriorityCritical, 5.0, "nested loop probes an unindexed join key")...)
		case domain.BottleneckUnsupportedSort:
			cols := extractFilterColumns(node.Predicate)
			if node.Relation == "" && len(cols) == 0 {
				continue
			}
			table := node.Relation
			if table == "" {
				table = sortTableFallback(an.Plan, b.NodeID)
			}
			if table == "" || len(cols) == 0 {
				continue
			}
			cands = append(cands, candidate{
				table:    table,
				columns:  cols,
				kind:     domain.IndexBTree,
				priority: domain.PriorityMedium,
				impact:   2.0,
				reason:   "sort could read pre-ordered rows from an index",
			})
		}
	}

	// Join operators also expose their keys outside bottleneck paths; a
	// hash join over large scans still benefits from indexed keys.
	an.Plan.Walk(func(id int, node domain.PlanNode) {
		if node.Type != domain.NodeHashJoin && node.Type != domain.NodeNestedLoop {
			return
		}
		if hasLargeScanChild(an.Plan, node) {
			cands = append(cands, e.joinKeyCandidates(node.Predicate, domain.PriorityHigh, 3.0, "join key on a large input")...)
		}
	})

	return cands
}

func hasLargeScanChild(tree domain.PlanTree, node domain.PlanNode) bool {
	for _, c := range node.Children {
		if c < 0 || c >= len(tree.Nodes) {
			continue
		}
		child := tree.Nodes[c]
		if child.Type == domain.NodeSeqScan && child.PlanRows >= 10000 {
			return true
		}
	}
	return false
}

func sortTableFallback(tree domain.PlanTree, sortID int) string {
	if sortID < 0 || sortID >= len(tree.Nodes) {
		return ""
	}
	for _, c := range tree.Nodes[sortID].Children {
		if c >= 0 && c < len(tree.Nodes) && tree.Nodes[c].Relation != "" {
			return tree.Nodes[c].Relation
		}
	}
	return ""
}

func (e *Engine) joinKeyCandidates(condition string, prio domain.Priority, impact float64, reason string) []candidate {
	var cands []candidate
	for _, pair := range extractJoinKeys(condition) {
		cands = append(cands,
			candidate{table: pair.leftTable, columns: []string{pair.leftColumn}, kind: domain.IndexBTree, priority: prio, impact: impact, reason: reason},
			candidate{table: pair.rightTable, columns: []string{pair.rightColumn}, kind: domain.IndexBTree, priority: prio, impact: impact, reason: reason},
		)
	}
	return cands
}

// fromOpportunity applies the rule set to one opportunity.
func (e *Engine) fromOpportunity(opp domain.OptimizationOpportunity, tables map[string]bool) []candidate {
	var cands []candidate

	eqCols, rangeCols := partitionPredicates(opp.Predicates)
	filterCols := make(map[string]bool)
	for _, c := range append(append([]string(nil), eqCols...), rangeCols...) {
		filterCols[c] = true
	}

	// Rule 1: equality-filtered columns lead a composite B-tree; range and
	// ORDER BY columns trail.
	if opp.Table != "" && (len(eqCols) > 0 || len(rangeCols) > 0) {
		cols := append(append([]string(nil), eqCols...), rangeCols...)
		for _, c := range opp.OrderBy {
			c = bareColumn(c)
			if !filterCols[c] {
				cols = append(cols, c)
			}
		}
		kind := domain.IndexBTree
		predicate := ""
		if len(cols) == 1 && len(eqCols) == 1 && domain.ClassifyColumnName(eqCols[0]) == domain.CardinalityEnumLike {
			// A single enum-like equality filter serves best as a partial
			// index on the hot value.
			kind = domain.IndexPartial
			predicate = partialPredicate(e.dialect, opp.Predicates, eqCols[0])
		}
		prio := domain.PriorityHigh
		if len(eqCols) == 0 {
			prio = domain.PriorityMedium
		}
		cands = append(cands, candidate{
			table:     opp.Table,
			columns:   cols,
			kind:      kind,
			priority:  prio,
			impact:    3.0,
			reason:    fmt.Sprintf("filtered access to %s on %s", opp.Table, strings.Join(cols, ", ")),
			predicate: predicate,
		})
	}

	// Rule 2: join keys; unindexed foreign-key columns are critical.
	for _, step := range opp.Joins {
		for _, pair := range extractJoinKeys(step.On) {
			for _, side := range []struct {
				table, column string
			}{
				{pair.leftTable, pair.leftColumn},
				{pair.rightTable, pair.rightColumn},
			} {
				prio := domain.PriorityHigh
				impact := 3.0
				if _, isFK := domain.MatchFKColumn(side.column, tables); isFK {
					prio = domain.PriorityCritical
					impact = 5.0
				}
				cands = append(cands, candidate{
					table:    side.table,
					columns:  []string{side.column},
					kind:     domain.IndexBTree,
					priority: prio,
					impact:   impact,
					reason:   fmt.Sprintf("join key %s.%s", side.table, side.column),
				})
			}
		}
	}

	// Rule 3: grouping/ordering-only columns are medium priority. More than
	// two group-by columns suggest one composite; otherwise only
	// high-cardinality columns earn a standalone index.
	groupTable := opp.PushdownTable
	if groupTable == "" {
		groupTable = opp.Table
	}
	if groupTable != "" && len(opp.GroupBy) > 0 {
		var groupCols []string
		for _, c := range opp.GroupBy {
			c = bareColumn(c)
			if !filterCols[c] {
				groupCols = append(groupCols, c)
			}
		}
		switch {
		case len(groupCols) > 2:
			cands = append(cands, candidate{
				table:    groupTable,
				columns:  groupCols,
				kind:     domain.IndexBTree,
				priority: domain.PriorityMedium,
				impact:   2.0,
				reason:   fmt.Sprintf("composite grouping key on %s", groupTable),
			})
		default:
			for _, c := range groupCols {
				if !domain.LikelyHighCardinality(c) {
					continue
				}
				cands = append(cands, candidate{
					table:    groupTable,
					columns:  []string{c},
					kind:     domain.IndexBTree,
					priority: domain.PriorityMedium,
					impact:   1.5,
					reason:   fmt.Sprintf("grouping on %s.%s", groupTable, c),
				})
			}
		}
	}

	return cands
}

// partitionPredicates splits predicate columns into equality-class and
// range-class lists, deduplicated and deterministically ordered.
func partitionPredicates(preds []domain.Predicate) (eq, rng []string) {
	seen := make(map[string]bool)
	add := func(list *[]string, col string) {
		col = bareColumn(col)
		if col == "" || seen[col] {
			return
		}
		seen[col] = true
		*list = append(*list, col)
	}
	for _, p := range preds {
		switch p.Op {
		case domain.OpEq, domain.OpIn:
			add(&eq, p.Column)
		case domain.OpLt, domain.OpLte, domain.OpGt, domain.OpGte, domain.OpBetween:
			add(&rng, p.Column)
		}
	}
	sort.Strings(eq)
	sort.Strings(rng)
	return eq, rng
}

func bareColumn(col string) string {
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(col))
}

func partialPredicate(d domain.Dialect, preds []domain.Predicate, col string) string {
	for _, p := range preds {
		if bareColumn(p.Column) == col && p.Op == domain.OpEq {
			return d.QuoteIdent(col) + " = '" + strings.ReplaceAll(p.Value, "'", "''") + "'"
		}
	}
	return ""
}

func knownTables(opps []domain.OptimizationOpportunity) map[string]bool {
	tables := make(map[string]bool)
	for _, opp := range opps {
		for _, t := range []string{opp.Table, opp.PushdownTable} {
			if t != "" {
				tables[strings.ToLower(t)] = true
			}
		}
		for _, s := range opp.Joins {
			if s.Table != "" {
				tables[strings.ToLower(s.Table)] = true
			}
		}
	}
	return tables
}

// buildReport merges, ranks, and aggregates candidates.
func (e *Engine) buildReport(cands []candidate) domain.IndexAnalysisReport {
	type mergeState struct {
		rec     domain.IndexRecommendation
		impacts []float64
		reasons []string
	}

	merged := make(map[string]*mergeState)
	var order []string
	for _, c := range cands {
		if c.table == "" || len(c.columns) == 0 {
			continue
		}
		key := strings.ToLower(c.table) + "|" + strings.ToLower(strings.Join(c.columns, ",")) + "|" + string(e.dialect)
		st, ok := merged[key]
		if !ok {
			st = &mergeState{rec: domain.IndexRecommendation{
				Table:     c.table,
				Columns:   c.columns,
				Kind:      c.kind,
				Priority:  c.priority,
				Dialect:   e.dialect,
				Predicate: c.predicate,
				Include:   c.include,
			}}
			merged[key] = st
			order = append(order, key)
		}
		st.impacts = append(st.impacts, math.Min(c.impact, maxImpact))
		if c.priority.Rank() > st.rec.Priority.Rank() {
			st.rec.Priority = c.priority
		}
		if !contains(st.reasons, c.reason) {
			st.reasons = append(st.reasons, c.reason)
		}
	}

	recs := make([]domain.IndexRecommendation, 0, len(merged))
	for _, key := range order {
		st := merged[key]
		st.rec.Impact = combineImpacts(st.impacts)
		st.rec.Reason = strings.Join(st.reasons, "; ")
		st.rec.DDL = buildDDL(e.dialect, st.rec.Kind, st.rec.Table, st.rec.Columns, st.rec.Predicate, st.rec.Include)
		recs = append(recs, st.rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority.Rank() != recs[j].Priority.Rank() {
			return recs[i].Priority.Rank() > recs[j].Priority.Rank()
		}
		if recs[i].Impact != recs[j].Impact {
			return recs[i].Impact > recs[j].Impact
		}
		if recs[i].Table != recs[j].Table {
			return recs[i].Table < recs[j].Table
		}
		return strings.Join(recs[i].Columns, ",") < strings.Join(recs[j].Columns, ",")
	})

	var critical []domain.IndexRecommendation
	for _, r := range recs {
		if r.Priority == domain.PriorityCritical {
			critical = append(critical, r)
		}
	}

	return domain.IndexAnalysisReport{
		Recommendations:    recs,
		Critical:           critical,
		TotalEstimatedGain: geometricMeanImpact(recs),
	}
}

// combineImpacts merges multipliers from different sources for the same
// index with diminishing returns: the strongest contributes fully, each
// further source half the previous share, capped.
func combineImpacts(impacts []float64) float64 {
	if len(impacts) == 0 {
		return 1.0
	}
	sorted := append([]float64(nil), impacts...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	total := 1.0
	share := 1.0
	for _, m := range sorted {
		total += (m - 1) * share
		share /= 2
	}
	return math.Min(total, maxImpact)
}

// geometricMeanImpact aggregates per-recommendation multipliers; independent
// indexes do not stack additively.
func geometricMeanImpact(recs []domain.IndexRecommendation) float64 {
	if len(recs) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, r := range recs {
		sum += math.Log(math.Max(r.Impact, 1.0))
	}
	return math.Exp(sum / float64(len(recs)))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
