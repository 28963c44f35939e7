package indexadvisor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// indexName derives the deterministic identifier for a recommendation.
func indexName(table string, cols []string) string {
	parts := make([]string, 0, len(cols)+2)
	parts = append(parts, "idx", strings.ToLower(table))
	for _, c := range cols {
		c = strings.ToLower(c)
		if i := strings.LastIndex(c, "."); i >= 0 {
			c = c[i+1:]
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, "_")
}

// buildDDL renders the dialect's CREATE INDEX statement. Index kinds a
// dialect cannot express degrade to the closest supported form: SQLite has
// no hash indexes, MySQL (InnoDB) has no partial indexes, and only Postgres
// supports INCLUDE for covering indexes.
func buildDDL(d domain.Dialect, kind domain.IndexKind, table string, cols []string, predicate string, include []string) string {
	name := indexName(table, cols)

	bare := func(col string) string {
		if i := strings.LastIndex(col, "."); i >= 0 {
			col = col[i+1:]
		}
		return d.QuoteIdent(col)
	}
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		quoted = append(quoted, bare(c))
	}

	var sb strings.Builder
	sb.WriteString("CREATE INDEX ")
	sb.WriteString(d.QuoteIdent(name))
	sb.WriteString(" ON ")
	sb.WriteString(d.QuoteIdent(table))

	if kind == domain.IndexHash && d == domain.DialectPostgres {
		sb.WriteString(" USING HASH")
	}

	keyList := quoted
	if kind == domain.IndexCovering && d != domain.DialectPostgres && len(include) > 0 {
		// No INCLUDE clause: fold the covered columns into the key.
		for _, c := range include {
			keyList = append(keyList, bare(c))
		}
	}
	sb.WriteString(" (")
	sb.WriteString(strings.Join(keyList, ", "))
	sb.WriteString(")")

	if kind == domain.IndexCovering && d == domain.DialectPostgres && len(include) > 0 {
		inc := make([]string, 0, len(include))
		for _, c := range include {
			inc = append(inc, bare(c))
		}
		sb.WriteString(" INCLUDE (")
		sb.WriteString(strings.Join(inc, ", "))
		sb.WriteString(")")
	}

	if kind == domain.IndexHash && d == domain.DialectMySQL {
		sb.WriteString(" USING HASH")
	}

	if kind == domain.IndexPartial && predicate != "" && d != domain.DialectMySQL {
		sb.WriteString(" WHERE ")
		sb.WriteString(predicate)
	}

	return sb.String()
}

var (
	qualifiedCompare = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)
	bareCompare      = regexp.MustCompile(`\(?([A-Za-z_][A-Za-z0-9_]*)\s*(?:=|<|>|<=|>=|~~?)`)
)

// joinKeyPair is one "left.col = right.col" equality pulled out of a raw
// join condition.
type joinKeyPair struct {
	leftTable, leftColumn   string
	rightTable, rightColumn string
}

// extractJoinKeys pulls table-qualified equality pairs out of raw join
// condition text such as "(o.customer_id = c.id)".
func extractJoinKeys(condition string) []joinKeyPair {
	var out []joinKeyPair
	for _, m := range qualifiedCompare.FindAllStringSubmatch(condition, -1) {
		out = append(out, joinKeyPair{
			leftTable: m[1], leftColumn: m[2],
			rightTable: m[3], rightColumn: m[4],
		})
	}
	return out
}

// extractFilterColumns pulls the bare column names compared in raw filter
// text such as "(status = 'completed'::text)".
func extractFilterColumns(filter string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range bareCompare.FindAllStringSubmatch(filter, -1) {
		col := m[1]
		if keywordish(col) || seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, col)
	}
	return out
}

func keywordish(s string) bool {
	switch strings.ToUpper(s) {
	case "AND", "OR", "NOT", "NULL", "TRUE", "FALSE", "IS", "IN", "LIKE", "BETWEEN", "CASE", "WHEN", "THEN", "ELSE", "END":
		return true
	default:
		return false
	}
}

// describeImpact renders a multiplier as human-readable estimated impact.
func describeImpact(multiplier float64) string {
	return fmt.Sprintf("~%.1fx faster for affected queries", multiplier)
}
