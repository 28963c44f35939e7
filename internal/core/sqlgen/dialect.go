package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// errUnsupportedOp marks a logical operator with no rendering in the target
// dialect. It degrades to a per-opportunity translation failure, never an
// aborted batch.
type errUnsupportedOp struct {
	op      domain.LogicalOp
	dialect domain.Dialect
}

func (e errUnsupportedOp) Error() string {
	return fmt.Sprintf("operator %q has no translation for dialect %q", e.op, e.dialect)
}

// dateTokens are logical time references callers may use as predicate
// values; each dialect spells them differently.
var dateTokens = map[string]map[domain.Dialect]string{
	"@now": {
		domain.DialectPostgres: "NOW()",
		domain.DialectMySQL:    "NOW()",
		domain.DialectSQLite:   "datetime('now')",
	},
	"@today": {
		domain.DialectPostgres: "CURRENT_DATE",
		domain.DialectMySQL:    "CURDATE()",
		domain.DialectSQLite:   "date('now')",
	},
}

// renderValue renders a predicate operand: numbers stay bare, date tokens
// translate per dialect, everything else is single-quoted.
func renderValue(d domain.Dialect, v string) string {
	if trans, ok := dateTokens[strings.ToLower(v)]; ok {
		return trans[d]
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil && v != "" {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// renderPredicate renders one logical predicate as a dialect SQL condition.
func renderPredicate(d domain.Dialect, p domain.Predicate) (string, error) {
	col := d.QuoteQualified(p.Column)

	switch p.Op {
	case domain.OpEq:
		return col + " = " + renderValue(d, p.Value), nil
	case domain.OpNotEq:
		return col + " <> " + renderValue(d, p.Value), nil
	case domain.OpLt:
		return col + " < " + renderValue(d, p.Value), nil
	case domain.OpLte:
		return col + " <= " + renderValue(d, p.Value), nil
	case domain.OpGt:
		return col + " > " + renderValue(d, p.Value), nil
	case domain.OpGte:
		return col + " >= " + renderValue(d, p.Value), nil
	case domain.OpIn:
		if len(p.Values) == 0 {
			return "", fmt.Errorf("in predicate on %q has no values", p.Column)
		}
		vals := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			vals = append(vals, renderValue(d, v))
		}
		return col + " IN (" + strings.Join(vals, ", ") + ")", nil
	case domain.OpBetween:
		if len(p.Values) != 2 {
			return "", fmt.Errorf("between predicate on %q needs exactly two values", p.Column)
		}
		return col + " BETWEEN " + renderValue(d, p.Values[0]) + " AND " + renderValue(d, p.Values[1]), nil
	case domain.OpLike:
		return col + " LIKE " + renderValue(d, p.Value), nil
	case domain.OpILike:
		// MySQL and SQLite LIKE are case-insensitive for their default
		// collations, so ILIKE folds into LIKE there.
		if d == domain.DialectPostgres {
			return col + " ILIKE " + renderValue(d, p.Value), nil
		}
		return col + " LIKE " + renderValue(d, p.Value), nil
	case domain.OpRegex:
		switch d {
		case domain.DialectPostgres:
			return col + " ~ " + renderValue(d, p.Value), nil
		case domain.DialectMySQL:
			return col + " REGEXP " + renderValue(d, p.Value), nil
		default:
			return "", errUnsupportedOp{op: p.Op, dialect: d}
		}
	default:
		return "", errUnsupportedOp{op: p.Op, dialect: d}
	}
}

// renderWhere AND-combines predicates in the given order.
func renderWhere(d domain.Dialect, preds []domain.Predicate) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		cond, err := renderPredicate(d, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// renderOrderBy renders an ORDER BY over qualified column references.
func renderOrderBy(d domain.Dialect, cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		quoted = append(quoted, d.QuoteQualified(c))
	}
	return " ORDER BY " + strings.Join(quoted, ", ")
}
