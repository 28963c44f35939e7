package sqlgen

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/querylens/querylens/internal/core/domain"
)

// verifySQL runs rendered SQL through a real parser where one is available.
// Postgres output goes through PostgreSQL's actual grammar, so a rendering
// bug surfaces here as a per-opportunity translation failure instead of
// broken SQL handed to callers. Other dialects have no embeddable parser and
// rely on the renderer's structure.
func verifySQL(d domain.Dialect, sql string) error {
	if d != domain.DialectPostgres {
		return nil
	}
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("generated SQL failed to parse: %w", err)
	}
	if len(tree.Stmts) != 1 {
		return fmt.Errorf("generated SQL produced %d statements, want 1", len(tree.Stmts))
	}
	return nil
}
