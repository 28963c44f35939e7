package workflow

import (
	"sort"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// canonicalPredicate renders one predicate in a normalized, comparable form.
func canonicalPredicate(p domain.Predicate) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(strings.TrimSpace(p.Column)))
	sb.WriteByte('|')
	sb.WriteString(string(p.Op))
	sb.WriteByte('|')
	sb.WriteString(strings.TrimSpace(p.Value))
	if len(p.Values) > 0 {
		vals := append([]string(nil), p.Values...)
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
		}
		sort.Strings(vals)
		sb.WriteByte('|')
		sb.WriteString(strings.Join(vals, ","))
	}
	return sb.String()
}

// fingerprintPredicates produces an order-independent fingerprint of a
// predicate set. Two scans with set-equal filters share a fingerprint.
func fingerprintPredicates(preds []domain.Predicate) string {
	if len(preds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, canonicalPredicate(p))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// opCostRank orders operators cheapest/most-selective first: equality before
// range before pattern match.
func opCostRank(op domain.LogicalOp) int {
	switch op {
	case domain.OpEq:
		return 0
	case domain.OpIn:
		return 1
	case domain.OpBetween, domain.OpLt, domain.OpLte, domain.OpGt, domain.OpGte:
		return 2
	case domain.OpLike, domain.OpILike, domain.OpRegex:
		return 3
	default: // neq filters out almost nothing
		return 4
	}
}

// opSelectivity is the assumed fraction of rows an operator retains.
func opSelectivity(op domain.LogicalOp) float64 {
	switch op {
	case domain.OpEq:
		return 0.05
	case domain.OpIn:
		return 0.2
	case domain.OpBetween:
		return 0.25
	case domain.OpLt, domain.OpLte, domain.OpGt, domain.OpGte:
		return 0.3
	case domain.OpLike, domain.OpILike, domain.OpRegex:
		return 0.5
	default:
		return 0.8
	}
}

// branchSelectivity estimates the fraction of a table's rows surviving its
// filters. Fewer or looser predicates yield values closer to 1.
func branchSelectivity(preds []domain.Predicate) float64 {
	sel := 1.0
	for _, p := range preds {
		sel *= opSelectivity(p.Op)
	}
	return sel
}

// sortPredicates orders predicates cheapest first, with deterministic
// tie-breaking on column and value.
func sortPredicates(preds []domain.Predicate) []domain.Predicate {
	out := append([]domain.Predicate(nil), preds...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := opCostRank(out[i].Op), opCostRank(out[j].Op)
		if ri != rj {
			return ri < rj
		}
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Value < out[j].Value
	})
	return out
}
