// Package postgres gathers real execution plans from a live PostgreSQL
// database. It is the only part of the system that talks to a database; the
// analysis core consumes the raw plans it returns and never connects itself.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querylens/querylens/internal/core/port"
)

// Collector runs EXPLAIN (ANALYZE, FORMAT JSON) for a statement inside a
// read-only transaction and returns the raw plan JSON.
type Collector struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewCollector(pool *pgxpool.Pool, queryTimeout time.Duration) *Collector {
	return &Collector{pool: pool, queryTimeout: queryTimeout}
}

// CollectPlan executes the statement under EXPLAIN ANALYZE and returns its
// plan. The server-reported Execution Time is preferred over our own
// measurement; wall-clock time is the fallback for servers that omit it.
func (c *Collector) CollectPlan(ctx context.Context, sql string) (port.CollectedPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return port.CollectedPlan{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Enforce the timeout at the database level so PostgreSQL cancels the
	// query server-side even if the Go context is cancelled first. SET LOCAL
	// scopes to this transaction only.
	timeoutMS := c.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return port.CollectedPlan{}, fmt.Errorf("setting statement timeout: %w", err)
	}

	start := time.Now()
	var rawPlan string
	explain := "EXPLAIN (ANALYZE, FORMAT JSON) " + stripExplain(sql)
	if err := tx.QueryRow(ctx, explain).Scan(&rawPlan); err != nil {
		return port.CollectedPlan{}, fmt.Errorf("collecting plan: %w", err)
	}
	measuredMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err := tx.Commit(ctx); err != nil {
		return port.CollectedPlan{}, fmt.Errorf("committing transaction: %w", err)
	}

	execMs := executionTimeMs(rawPlan)
	if execMs == 0 {
		execMs = measuredMs
	}
	return port.CollectedPlan{
		SQL:             sql,
		RawPlan:         rawPlan,
		ExecutionTimeMs: execMs,
	}, nil
}

func (c *Collector) Close() {
	c.pool.Close()
}

// stripExplain drops a leading EXPLAIN the caller may have written; the
// collector always supplies its own options.
func stripExplain(sql string) string {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "EXPLAIN") {
		return trimmed
	}
	rest := trimmed[len("EXPLAIN"):]
	// Skip an options list such as (ANALYZE, FORMAT JSON).
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") {
		if i := strings.Index(rest, ")"); i >= 0 {
			rest = rest[i+1:]
		}
	}
	return strings.TrimSpace(rest)
}

// executionTimeMs pulls the server-reported Execution Time out of EXPLAIN
// ANALYZE JSON output; zero when absent.
func executionTimeMs(rawPlan string) float64 {
	var doc []struct {
		ExecutionTime float64 `json:"Execution Time"`
	}
	if err := json.Unmarshal([]byte(rawPlan), &doc); err != nil || len(doc) == 0 {
		return 0
	}
	return doc[0].ExecutionTime
}
