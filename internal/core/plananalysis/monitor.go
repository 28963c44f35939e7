package plananalysis

import (
	"fmt"
	"sort"

	"github.com/querylens/querylens/internal/core/domain"
)

// MonitorPerformance partitions analyses into slow and normal by the
// wall-clock threshold, builds a bottleneck-type frequency histogram, and
// emits fleet-level recommendations for any type that recurs at least
// MinOccurrence times across the batch.
func (a *Analyzer) MonitorPerformance(analyses []domain.PlanAnalysis, thresholdMs float64) domain.MonitoringSnapshot {
	snap := domain.MonitoringSnapshot{
		ThresholdMs:         thresholdMs,
		BottleneckFrequency: make(map[domain.BottleneckType]int),
		AnalyzedCount:       len(analyses),
	}

	for _, an := range analyses {
		if an.ExecutionTimeMs > thresholdMs {
			snap.SlowQueries = append(snap.SlowQueries, an)
		}
		for _, b := range an.Bottlenecks {
			snap.BottleneckFrequency[b.Type]++
		}
	}

	type bucket struct {
		typ   domain.BottleneckType
		count int
	}
	var recurring []bucket
	for typ, count := range snap.BottleneckFrequency {
		if count >= a.thresholds.MinOccurrence {
			recurring = append(recurring, bucket{typ, count})
		}
	}
	sort.Slice(recurring, func(i, j int) bool {
		if recurring[i].count != recurring[j].count {
			return recurring[i].count > recurring[j].count
		}
		return recurring[i].typ < recurring[j].typ
	})
	for _, b := range recurring {
		snap.Recommendations = append(snap.Recommendations,
			fmt.Sprintf("%s occurred %d times across %d queries: %s",
				b.typ, b.count, len(analyses), fleetAdvice(b.typ)))
	}
	return snap
}

func fleetAdvice(t domain.BottleneckType) string {
	switch t {
	case domain.BottleneckFullScan:
		return "review indexing on the most-scanned tables"
	case domain.BottleneckExpensiveNestedLoop:
		return "index the join keys driving the repeated inner lookups"
	case domain.BottleneckUnsupportedSort:
		return "add indexes matching the common sort orders"
	case domain.BottleneckStatsMisestimate:
		return "schedule a statistics refresh for the affected tables"
	case domain.BottleneckMalformedPlan:
		return "check that plan collection uses the documented EXPLAIN format"
	default:
		return "inspect the affected plans individually"
	}
}
