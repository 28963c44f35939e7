package domain

import (
	"fmt"
	"strings"
)

// Dialect identifies a SQL and plan-format family. Each dialect carries its
// own identifier quoting, paging syntax, and execution-plan shape.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Dialects lists the supported dialects in a stable order.
func Dialects() []Dialect {
	return []Dialect{DialectPostgres, DialectMySQL, DialectSQLite}
}

// ParseDialect maps a user-supplied tag to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

// QuoteIdent quotes an identifier according to the dialect's quoting rules.
// Embedded quote characters are doubled.
func (d Dialect) QuoteIdent(ident string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// QuoteQualified quotes a possibly table-qualified column reference
// ("orders.status" becomes "orders"."status").
func (d Dialect) QuoteQualified(ref string) string {
	parts := strings.Split(ref, ".")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		quoted = append(quoted, d.QuoteIdent(p))
	}
	return strings.Join(quoted, ".")
}

// Paging renders the dialect's LIMIT/OFFSET clause. Limit must be positive;
// a zero offset omits the offset part.
func (d Dialect) Paging(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset > 0 {
		if d == DialectMySQL {
			return fmt.Sprintf("LIMIT %d, %d", offset, limit)
		}
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}
