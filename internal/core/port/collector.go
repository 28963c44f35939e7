package port

import "context"

// CollectedPlan is one raw execution plan gathered from a live database.
type CollectedPlan struct {
	SQL             string
	RawPlan         string
	ExecutionTimeMs float64
}

// PlanCollector obtains real execution plans by running the dialect's
// EXPLAIN-equivalent against a live database. The analysis core never touches
// a database itself; a collector is the external collaborator that feeds it.
type PlanCollector interface {
	CollectPlan(ctx context.Context, sql string) (CollectedPlan, error)
	Close()
}
