// Package planparse turns raw execution plan output from a database's
// EXPLAIN facility into the canonical arena-backed plan tree. One parser per
// dialect family; all of them walk iteratively with depth and node-count
// guards so adversarially nested input fails closed instead of exhausting the
// stack or memory.
package planparse

import (
	"fmt"

	"github.com/querylens/querylens/internal/core/domain"
)

const (
	DefaultMaxDepth = 64
	DefaultMaxNodes = 10000
)

// Limits bounds how much of an untrusted raw plan a parser will materialize.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// DefaultLimits returns the documented parser bounds.
func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth, MaxNodes: DefaultMaxNodes}
}

// Validate rejects non-positive bounds before any parsing starts.
func (l Limits) Validate() error {
	if l.MaxDepth <= 0 {
		return fmt.Errorf("%w: max depth must be positive, got %d", domain.ErrInvalidConfig, l.MaxDepth)
	}
	if l.MaxNodes <= 0 {
		return fmt.Errorf("%w: max nodes must be positive, got %d", domain.ErrInvalidConfig, l.MaxNodes)
	}
	return nil
}

// Parser converts one dialect's raw plan text into the canonical tree.
type Parser interface {
	Parse(raw string) (domain.PlanTree, error)
}

// ForDialect selects the parser for a dialect, chosen once at construction so
// everything downstream of the canonical tree stays dialect-agnostic.
func ForDialect(d domain.Dialect, limits Limits) (Parser, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	switch d {
	case domain.DialectPostgres:
		return &postgresParser{limits: limits}, nil
	case domain.DialectMySQL:
		return &mysqlParser{limits: limits}, nil
	case domain.DialectSQLite:
		return &sqliteParser{limits: limits}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDialect, d)
	}
}

// arena accumulates nodes during a walk and enforces the node-count bound.
type arena struct {
	nodes []domain.PlanNode
	limit int
}

func (a *arena) add(n domain.PlanNode) (int, error) {
	if len(a.nodes) >= a.limit {
		return -1, fmt.Errorf("%w: more than %d nodes", domain.ErrPlanTooLarge, a.limit)
	}
	a.nodes = append(a.nodes, n)
	return len(a.nodes) - 1, nil
}
