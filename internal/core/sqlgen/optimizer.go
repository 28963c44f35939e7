// Package sqlgen renders optimization opportunities as dialect-specific SQL.
// Rendering follows a partial-success model: every input opportunity becomes
// either an optimized query or a translation failure, never an aborted call.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// Optimizer renders opportunities for one target dialect, chosen once at
// construction.
type Optimizer struct {
	dialect domain.Dialect
}

// NewOptimizer validates the dialect tag and returns an Optimizer for it.
func NewOptimizer(d domain.Dialect) (*Optimizer, error) {
	if _, err := domain.ParseDialect(string(d)); err != nil {
		return nil, err
	}
	return &Optimizer{dialect: d}, nil
}

// Result is the outcome of one batch call. len(Queries)+len(Failures) always
// equals the input length.
type Result struct {
	Queries  []domain.OptimizedQuery    `json:"queries"`
	Failures []domain.TranslationFailure `json:"failures,omitempty"`
}

// Optimize renders every opportunity. Opportunities whose operators cannot
// be translated, or whose rendered SQL fails verification, land in Failures
// with the reason; the rest render in input order.
func (o *Optimizer) Optimize(opps []domain.OptimizationOpportunity) Result {
	res := Result{Queries: make([]domain.OptimizedQuery, 0, len(opps))}
	for _, opp := range opps {
		sql, err := o.render(opp)
		if err == nil {
			err = verifySQL(o.dialect, sql)
		}
		if err != nil {
			res.Failures = append(res.Failures, domain.TranslationFailure{
				OpportunityID: opp.ID,
				Dialect:       o.dialect,
				Reason:        err.Error(),
			})
			continue
		}
		res.Queries = append(res.Queries, domain.OptimizedQuery{
			OpportunityID: opp.ID,
			Dialect:       o.dialect,
			SQL:           sql,
			NodeIDs:       opp.NodeIDs,
			CostReduction: costReduction(opp.Improvement.Multiplier),
		})
	}
	return res
}

// costReduction converts a speedup multiplier into the fraction of work
// saved.
func costReduction(multiplier float64) float64 {
	if multiplier <= 1 {
		return 0
	}
	return 1 - 1/multiplier
}

func (o *Optimizer) render(opp domain.OptimizationOpportunity) (string, error) {
	switch opp.Pattern {
	case domain.PatternRedundantQuery, domain.PatternFilterChainCollapse:
		return o.renderSelect(opp)
	case domain.PatternJoinChain:
		return o.renderJoinChain(opp)
	case domain.PatternAggregationPushdown:
		return o.renderAggregationPushdown(opp)
	default:
		return "", fmt.Errorf("pattern %q cannot be rendered as SQL", opp.Pattern)
	}
}

// renderSelect builds the single SELECT replacing redundant scans or a
// collapsed filter chain: one WHERE with the pre-ordered AND-combined
// predicates.
func (o *Optimizer) renderSelect(opp domain.OptimizationOpportunity) (string, error) {
	if opp.Table == "" {
		return "", fmt.Errorf("opportunity %s names no table", opp.ID)
	}
	where, err := renderWhere(o.dialect, opp.Predicates)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(o.dialect.QuoteIdent(opp.Table))
	sb.WriteString(where)
	sb.WriteString(renderOrderBy(o.dialect, opp.OrderBy))
	if paging := o.dialect.Paging(opp.Limit, opp.Offset); paging != "" {
		sb.WriteString(" ")
		sb.WriteString(paging)
	}
	return sb.String(), nil
}

// renderJoinChain builds one explicit multi-way JOIN in the analyzer's
// chosen order. Steps without a discovered condition degrade to CROSS JOIN.
func (o *Optimizer) renderJoinChain(opp domain.OptimizationOpportunity) (string, error) {
	if opp.Table == "" {
		return "", fmt.Errorf("opportunity %s names no base table", opp.ID)
	}
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(o.dialect.QuoteIdent(opp.Table))
	for _, step := range opp.Joins {
		if step.On == "" {
			sb.WriteString(" CROSS JOIN ")
			sb.WriteString(o.dialect.QuoteIdent(step.Table))
			continue
		}
		sb.WriteString(" JOIN ")
		sb.WriteString(o.dialect.QuoteIdent(step.Table))
		sb.WriteString(" ON ")
		sb.WriteString(step.On)
	}
	where, err := renderWhere(o.dialect, opp.Predicates)
	if err != nil {
		return "", err
	}
	sb.WriteString(where)
	return sb.String(), nil
}

// renderAggregationPushdown aggregates the pushdown side in a subquery, then
// joins the pre-aggregated rows against the remaining table.
func (o *Optimizer) renderAggregationPushdown(opp domain.OptimizationOpportunity) (string, error) {
	if opp.PushdownTable == "" || opp.Table == "" || len(opp.GroupBy) == 0 {
		return "", fmt.Errorf("opportunity %s lacks pushdown detail", opp.ID)
	}

	groupCols := make([]string, 0, len(opp.GroupBy))
	for _, c := range opp.GroupBy {
		groupCols = append(groupCols, o.dialect.QuoteQualified(c))
	}

	selectList := make([]string, 0, len(groupCols)+len(opp.Aggregations))
	selectList = append(selectList, groupCols...)
	for i, agg := range opp.Aggregations {
		selectList = append(selectList, fmt.Sprintf("%s AS %s", agg, o.dialect.QuoteIdent(fmt.Sprintf("agg_%d", i+1))))
	}

	on := ""
	for _, step := range opp.Joins {
		if step.On != "" {
			on = step.On
			break
		}
	}
	if on == "" {
		return "", fmt.Errorf("opportunity %s has no join condition", opp.ID)
	}
	// Inside the outer query the pushdown table only exists through the
	// subquery alias.
	on = strings.ReplaceAll(on, opp.PushdownTable+".", "agg.")

	sql := fmt.Sprintf("SELECT agg.*, %s.* FROM (SELECT %s FROM %s GROUP BY %s) AS agg JOIN %s ON %s",
		o.dialect.QuoteIdent(opp.Table),
		strings.Join(selectList, ", "),
		o.dialect.QuoteIdent(opp.PushdownTable),
		strings.Join(groupCols, ", "),
		o.dialect.QuoteIdent(opp.Table),
		on,
	)
	return sql, nil
}
