// Package workflow inspects declarative data-processing graphs for
// redundant or inefficient relational operations and emits optimization
// opportunities for the SQL optimizer and index advisor to act on.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// DefaultMaxDepth bounds every chain traversal. A graph deeper than this is
// treated as unsupported rather than walked further.
const DefaultMaxDepth = 64

// Analyzer scans a pipeline graph and emits deterministic, ordered
// optimization opportunities. It holds no state between calls and is safe
// for concurrent use.
type Analyzer struct {
	maxDepth int
}

// NewAnalyzer returns an Analyzer with the default traversal depth guard.
func NewAnalyzer() *Analyzer {
	return &Analyzer{maxDepth: DefaultMaxDepth}
}

// Analyze validates the graph, then runs all pattern detectors. Output
// ordering is stable: estimated improvement descending, ties broken by the
// lowest touched node id. A structurally invalid graph fails before any
// traversal; a cyclic graph yields a single unsupported opportunity instead
// of unbounded traversal.
func (a *Analyzer) Analyze(g domain.PipelineGraph) ([]domain.OptimizationOpportunity, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	idx := buildIndex(g)

	var opps []domain.OptimizationOpportunity
	if cyclic := idx.cyclicNodes(); len(cyclic) > 0 {
		opps = append(opps, domain.OptimizationOpportunity{
			ID:      domain.OpportunityID(domain.PatternUnsupported, cyclic),
			Pattern: domain.PatternUnsupported,
			NodeIDs: cyclic,
			Improvement: domain.Improvement{
				Multiplier: 1.0,
				Summary:    "none until the cycle is removed",
			},
			Rationale: fmt.Sprintf("cycle detected involving nodes %s; cyclic regions are not analyzed", strings.Join(cyclic, ", ")),
		})
	}

	opps = append(opps, a.detectRedundantScans(idx)...)
	opps = append(opps, a.detectJoinChains(idx)...)
	opps = append(opps, a.detectAggregationPushdown(idx)...)
	opps = append(opps, a.detectFilterChains(idx)...)

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Improvement.Multiplier != opps[j].Improvement.Multiplier {
			return opps[i].Improvement.Multiplier > opps[j].Improvement.Multiplier
		}
		return minID(opps[i].NodeIDs) < minID(opps[j].NodeIDs)
	})
	return opps, nil
}

func minID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min
}

// graphIndex precomputes adjacency for one Analyze call.
type graphIndex struct {
	g      domain.PipelineGraph
	nodes  map[string]domain.GraphNode
	out    map[string][]string
	in     map[string][]string
	cyclic map[string]bool
}

func buildIndex(g domain.PipelineGraph) *graphIndex {
	idx := &graphIndex{
		g:      g,
		nodes:  make(map[string]domain.GraphNode, len(g.Nodes)),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		cyclic: make(map[string]bool),
	}
	for _, n := range g.Nodes {
		idx.nodes[n.ID] = n
	}
	for _, e := range g.Edges {
		idx.out[e.From] = append(idx.out[e.From], e.To)
		idx.in[e.To] = append(idx.in[e.To], e.From)
	}
	for id := range idx.out {
		sort.Strings(idx.out[id])
	}
	for id := range idx.in {
		sort.Strings(idx.in[id])
	}
	idx.markCycles()
	return idx
}

// markCycles runs Kahn's algorithm; nodes that never reach in-degree zero
// belong to a cycle.
func (idx *graphIndex) markCycles() {
	indeg := make(map[string]int, len(idx.nodes))
	for id := range idx.nodes {
		indeg[id] = len(idx.in[id])
	}
	queue := make([]string, 0, len(idx.nodes))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, next := range idx.out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if removed == len(idx.nodes) {
		return
	}
	for id, d := range indeg {
		if d > 0 {
			idx.cyclic[id] = true
		}
	}
}

func (idx *graphIndex) cyclicNodes() []string {
	if len(idx.cyclic) == 0 {
		return nil
	}
	out := make([]string, 0, len(idx.cyclic))
	for id := range idx.cyclic {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sortedNodes returns all non-cyclic nodes of a kind in id order, which keeps
// every detector deterministic.
func (idx *graphIndex) sortedNodes(kind domain.OpKind) []domain.GraphNode {
	var out []domain.GraphNode
	for _, n := range idx.g.Nodes {
		if n.Kind == kind && !idx.cyclic[n.ID] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// detectRedundantScans finds sets of scans over the same table with
// set-equal filter predicates. The graph has no mutating operations, so any
// two matching scans are redundant.
func (a *Analyzer) detectRedundantScans(idx *graphIndex) []domain.OptimizationOpportunity {
	groups := make(map[string][]domain.GraphNode)
	var keys []string
	for _, n := range idx.sortedNodes(domain.OpScan) {
		key := strings.ToLower(n.Table) + "|" + fingerprintPredicates(n.Filters)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], n)
	}
	sort.Strings(keys)

	var opps []domain.OptimizationOpportunity
	for _, key := range keys {
		scans := groups[key]
		if len(scans) < 2 {
			continue
		}
		ids := make([]string, 0, len(scans))
		for _, s := range scans {
			ids = append(ids, s.ID)
		}
		sort.Strings(ids)
		first := scans[0]
		opps = append(opps, domain.OptimizationOpportunity{
			ID:      domain.OpportunityID(domain.PatternRedundantQuery, ids),
			Pattern: domain.PatternRedundantQuery,
			NodeIDs: ids,
			Improvement: domain.Improvement{
				Multiplier: float64(len(scans)),
				Summary:    fmt.Sprintf("%d identical scans collapse into one query", len(scans)),
			},
			Rationale:  fmt.Sprintf("%d scans read %q with identical filters; execute once and share the result", len(scans), first.Table),
			Table:      first.Table,
			Predicates: sortPredicates(first.Filters),
			OrderBy:    first.OrderBy,
			Limit:      first.Limit,
			Offset:     first.Offset,
		})
	}
	return opps
}

// joinBranch is one base table feeding a join chain, with every filter
// predicate applied between its scan and the chain.
type joinBranch struct {
	table string
	preds []domain.Predicate
}

// detectJoinChains groups connected binary joins into components and
// recommends a single multi-way JOIN per component, ordered by ascending
// branch selectivity (most selective branches join first).
func (a *Analyzer) detectJoinChains(idx *graphIndex) []domain.OptimizationOpportunity {
	joins := idx.sortedNodes(domain.OpJoin)
	if len(joins) < 2 {
		return nil
	}

	assigned := make(map[string]bool)
	var opps []domain.OptimizationOpportunity
	for _, j := range joins {
		if assigned[j.ID] {
			continue
		}
		component := idx.joinComponent(j.ID, a.maxDepth)
		for _, id := range component {
			assigned[id] = true
		}
		if len(component) < 2 {
			continue
		}
		if opp, ok := a.joinChainOpportunity(idx, component); ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

// joinComponent collects join nodes reachable from start through
// join-to-join edges in either direction.
func (idx *graphIndex) joinComponent(start string, maxDepth int) []string {
	seen := map[string]bool{start: true}
	frontier := []string{start}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors := append(append([]string(nil), idx.out[id]...), idx.in[id]...)
			for _, nb := range neighbors {
				n, ok := idx.nodes[nb]
				if !ok || n.Kind != domain.OpJoin || idx.cyclic[nb] || seen[nb] {
					continue
				}
				seen[nb] = true
				next = append(next, nb)
			}
		}
		frontier = next
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (a *Analyzer) joinChainOpportunity(idx *graphIndex, component []string) (domain.OptimizationOpportunity, bool) {
	inComponent := make(map[string]bool, len(component))
	for _, id := range component {
		inComponent[id] = true
	}

	// Collect base-table branches: every non-join producer path into the
	// component, walked through intervening filters down to its scan.
	var branches []joinBranch
	var branchIDs []string
	for _, joinID := range component {
		for _, prodID := range idx.in[joinID] {
			if inComponent[prodID] {
				continue
			}
			branch, ids, ok := idx.resolveBranch(prodID, a.maxDepth)
			if !ok {
				continue
			}
			branches = append(branches, branch)
			branchIDs = append(branchIDs, ids...)
		}
	}
	if len(branches) < 2 {
		return domain.OptimizationOpportunity{}, false
	}

	sort.SliceStable(branches, func(i, j int) bool {
		si, sj := branchSelectivity(branches[i].preds), branchSelectivity(branches[j].preds)
		if si != sj {
			return si < sj
		}
		return branches[i].table < branches[j].table
	})

	steps := make([]domain.JoinStep, 0, len(branches))
	var preds []domain.Predicate
	for i, b := range branches {
		step := domain.JoinStep{Table: b.table}
		if i > 0 {
			step.On = idx.joinConditionFor(component, b.table)
		}
		steps = append(steps, step)
		preds = append(preds, b.preds...)
	}

	ids := append(append([]string(nil), component...), branchIDs...)
	sort.Strings(ids)
	ids = dedupeStrings(ids)

	return domain.OptimizationOpportunity{
		ID:      domain.OpportunityID(domain.PatternJoinChain, ids),
		Pattern: domain.PatternJoinChain,
		NodeIDs: ids,
		Improvement: domain.Improvement{
			Multiplier: 1 + 0.25*float64(len(component)),
			Summary:    fmt.Sprintf("%d chained joins become one multi-way JOIN", len(component)),
		},
		Rationale:  fmt.Sprintf("a chain of %d binary joins can execute as a single multi-way JOIN; branches ordered by ascending selectivity", len(component)),
		Table:      steps[0].Table,
		Joins:      steps[1:],
		Predicates: sortPredicates(preds),
	}, true
}

// resolveBranch follows a producer path (filters only) down to its scan.
func (idx *graphIndex) resolveBranch(id string, maxDepth int) (joinBranch, []string, bool) {
	var preds []domain.Predicate
	var ids []string
	cur := id
	for depth := 0; depth < maxDepth; depth++ {
		n, ok := idx.nodes[cur]
		if !ok || idx.cyclic[cur] {
			return joinBranch{}, nil, false
		}
		ids = append(ids, cur)
		switch n.Kind {
		case domain.OpScan:
			preds = append(preds, n.Filters...)
			return joinBranch{table: n.Table, preds: preds}, ids, true
		case domain.OpFilter:
			preds = append(preds, n.Filters...)
			producers := idx.in[cur]
			if len(producers) != 1 {
				return joinBranch{}, nil, false
			}
			cur = producers[0]
		default:
			return joinBranch{}, nil, false
		}
	}
	return joinBranch{}, nil, false
}

// joinConditionFor finds the join condition mentioning the given table among
// the component's join nodes.
func (idx *graphIndex) joinConditionFor(component []string, table string) string {
	needle := strings.ToLower(table) + "."
	for _, id := range component {
		on := idx.nodes[id].On
		if strings.Contains(strings.ToLower(on), needle) {
			return on
		}
	}
	return ""
}

// detectAggregationPushdown finds an aggregate fed by a join whose group-by
// columns all originate on one side of that join, and recommends aggregating
// before the join.
func (a *Analyzer) detectAggregationPushdown(idx *graphIndex) []domain.OptimizationOpportunity {
	var opps []domain.OptimizationOpportunity
	for _, agg := range idx.sortedNodes(domain.OpAggregate) {
		producers := idx.in[agg.ID]
		if len(producers) != 1 {
			continue
		}
		join, ok := idx.nodes[producers[0]]
		if !ok || join.Kind != domain.OpJoin || len(agg.GroupBy) == 0 {
			continue
		}

		sides := idx.in[join.ID]
		if len(sides) != 2 {
			continue
		}
		leftTables := idx.subtreeTables(sides[0], a.maxDepth)
		rightTables := idx.subtreeTables(sides[1], a.maxDepth)

		groupTables := make(map[string]bool)
		for _, col := range agg.GroupBy {
			if i := strings.Index(col, "."); i > 0 {
				groupTables[strings.ToLower(col[:i])] = true
			}
		}
		if len(groupTables) == 0 {
			continue
		}

		side, otherSide := "", ""
		if within(groupTables, leftTables) {
			side, otherSide = firstTable(leftTables), firstTable(rightTables)
		} else if within(groupTables, rightTables) {
			side, otherSide = firstTable(rightTables), firstTable(leftTables)
		} else {
			continue
		}
		if side == "" || otherSide == "" {
			continue
		}

		ids := []string{agg.ID, join.ID}
		sort.Strings(ids)
		opps = append(opps, domain.OptimizationOpportunity{
			ID:      domain.OpportunityID(domain.PatternAggregationPushdown, ids),
			Pattern: domain.PatternAggregationPushdown,
			NodeIDs: ids,
			Improvement: domain.Improvement{
				Multiplier: 2.0,
				Summary:    "aggregating before the join shrinks the join input",
			},
			Rationale:     fmt.Sprintf("group-by columns come only from %q; aggregating %q before joining %q reduces joined rows", side, side, otherSide),
			Table:         otherSide,
			PushdownTable: side,
			GroupBy:       agg.GroupBy,
			Aggregations:  agg.Aggregations,
			Joins:         []domain.JoinStep{{Table: side, On: join.On}},
		})
	}
	return opps
}

func within(subset, set map[string]bool) bool {
	for t := range subset {
		if !set[t] {
			return false
		}
	}
	return true
}

func firstTable(set map[string]bool) string {
	var tables []string
	for t := range set {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	if len(tables) == 0 {
		return ""
	}
	return tables[0]
}

// subtreeTables collects scan tables reachable upstream of a node.
func (idx *graphIndex) subtreeTables(id string, maxDepth int) map[string]bool {
	tables := make(map[string]bool)
	seen := map[string]bool{id: true}
	frontier := []string{id}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			n, ok := idx.nodes[cur]
			if !ok || idx.cyclic[cur] {
				continue
			}
			if n.Kind == domain.OpScan && n.Table != "" {
				tables[strings.ToLower(n.Table)] = true
			}
			for _, p := range idx.in[cur] {
				if !seen[p] {
					seen[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return tables
}

// detectFilterChains finds runs of two or more consecutive filter nodes and
// merges them into a single AND-combined predicate list, cheapest operators
// first.
func (a *Analyzer) detectFilterChains(idx *graphIndex) []domain.OptimizationOpportunity {
	var opps []domain.OptimizationOpportunity
	for _, f := range idx.sortedNodes(domain.OpFilter) {
		// Only start a run at a filter not preceded by another filter.
		if idx.precededByFilter(f.ID) {
			continue
		}
		run := []domain.GraphNode{f}
		cur := f
		for depth := 0; depth < a.maxDepth; depth++ {
			consumers := idx.out[cur.ID]
			if len(consumers) != 1 {
				break
			}
			next, ok := idx.nodes[consumers[0]]
			if !ok || next.Kind != domain.OpFilter || idx.cyclic[next.ID] {
				break
			}
			run = append(run, next)
			cur = next
		}
		if len(run) < 2 {
			continue
		}

		var preds []domain.Predicate
		ids := make([]string, 0, len(run))
		for _, n := range run {
			preds = append(preds, n.Filters...)
			ids = append(ids, n.ID)
		}
		sort.Strings(ids)

		table := idx.upstreamTable(f.ID, a.maxDepth)
		opps = append(opps, domain.OptimizationOpportunity{
			ID:      domain.OpportunityID(domain.PatternFilterChainCollapse, ids),
			Pattern: domain.PatternFilterChainCollapse,
			NodeIDs: ids,
			Improvement: domain.Improvement{
				Multiplier: 1 + 0.15*float64(len(run)),
				Summary:    fmt.Sprintf("%d filter passes collapse into one WHERE clause", len(run)),
			},
			Rationale:  fmt.Sprintf("%d consecutive filters over one input merge via AND, cheapest predicates first", len(run)),
			Table:      table,
			Predicates: sortPredicates(preds),
		})
	}
	return opps
}

func (idx *graphIndex) precededByFilter(id string) bool {
	for _, p := range idx.in[id] {
		if n, ok := idx.nodes[p]; ok && n.Kind == domain.OpFilter {
			return true
		}
	}
	return false
}

// upstreamTable resolves the scan table feeding a filter chain.
func (idx *graphIndex) upstreamTable(id string, maxDepth int) string {
	cur := id
	for depth := 0; depth < maxDepth; depth++ {
		producers := idx.in[cur]
		if len(producers) != 1 {
			return ""
		}
		n, ok := idx.nodes[producers[0]]
		if !ok {
			return ""
		}
		if n.Kind == domain.OpScan {
			return n.Table
		}
		if n.Kind != domain.OpFilter {
			return ""
		}
		cur = n.ID
	}
	return ""
}

func dedupeStrings(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
