package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/querylens/querylens/internal/adapter/postgres"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/planparse"
)

const testSchema = `
	CREATE TABLE customers (
		id   SERIAL PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE orders (
		id          SERIAL PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		status      TEXT NOT NULL,
		total       NUMERIC(10,2) NOT NULL DEFAULT 0
	);

	INSERT INTO customers (name)
	SELECT 'Customer ' || i FROM generate_series(1, 50) AS i;

	INSERT INTO orders (customer_id, status, total)
	SELECT
		(i % 50) + 1,
		CASE WHEN i % 4 = 0 THEN 'pending' ELSE 'completed' END,
		(random() * 500)::numeric(10,2)
	FROM generate_series(1, 5000) AS i;
`

func setupCollectorDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr, postgres.PoolSettings{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "ANALYZE")
	require.NoError(t, err)

	return pool
}

func TestCollectPlan_SeqScanFeedsAnalyzer(t *testing.T) {
	pool := setupCollectorDB(t)
	collector := postgres.NewCollector(pool, 10*time.Second)
	ctx := context.Background()

	collected, err := collector.CollectPlan(ctx, "SELECT * FROM orders WHERE status = 'completed'")
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM orders WHERE status = 'completed'", collected.SQL)
	assert.Contains(t, collected.RawPlan, "Seq Scan")
	assert.Greater(t, collected.ExecutionTimeMs, 0.0)

	// The collected plan must parse and analyze cleanly end to end.
	analyzer, err := plananalysis.NewAnalyzer(domain.DialectPostgres,
		plananalysis.DefaultThresholds(), planparse.DefaultLimits())
	require.NoError(t, err)

	an, err := analyzer.Analyze(plananalysis.PlanInput{
		SQL:             collected.SQL,
		RawPlan:         collected.RawPlan,
		ExecutionTimeMs: collected.ExecutionTimeMs,
	})
	require.NoError(t, err)
	assert.False(t, an.Plan.Empty())
	root, ok := an.Plan.RootNode()
	require.True(t, ok)
	assert.Greater(t, root.TotalCost, 0.0)
}

func TestCollectPlan_StripsCallerExplain(t *testing.T) {
	pool := setupCollectorDB(t)
	collector := postgres.NewCollector(pool, 10*time.Second)

	collected, err := collector.CollectPlan(context.Background(), "EXPLAIN SELECT count(*) FROM customers")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(collected.RawPlan), "["))
}

func TestCollectPlan_QueryError(t *testing.T) {
	pool := setupCollectorDB(t)
	collector := postgres.NewCollector(pool, 10*time.Second)

	_, err := collector.CollectPlan(context.Background(), "SELECT * FROM no_such_table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collecting plan")
}

func TestCollectPlan_RejectsWrites(t *testing.T) {
	pool := setupCollectorDB(t)
	collector := postgres.NewCollector(pool, 10*time.Second)

	// EXPLAIN ANALYZE executes the statement; the read-only transaction
	// keeps it from mutating anything.
	_, err := collector.CollectPlan(context.Background(), "DELETE FROM orders")
	require.Error(t, err)

	var count int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM orders").Scan(&count))
	assert.Equal(t, 5000, count)
}
