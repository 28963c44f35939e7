package plananalysis

import (
	"fmt"

	"github.com/querylens/querylens/internal/core/domain"
)

// Thresholds holds every tunable boundary the analyzer evaluates bottlenecks
// against. All values have documented defaults; zero or negative values are a
// fatal configuration error at construction time so golden-value expectations
// stay stable.
type Thresholds struct {
	// Row-count boundaries for sequential scans. Severity escalates as the
	// estimate crosses each one.
	FullScanRowsMedium   float64 `yaml:"full_scan_rows_medium"`
	FullScanRowsHigh     float64 `yaml:"full_scan_rows_high"`
	FullScanRowsCritical float64 `yaml:"full_scan_rows_critical"`

	// NestedLoopLoops flags a nested loop whose inner side iterates more than
	// this many times; ten times the threshold escalates to critical.
	NestedLoopLoops float64 `yaml:"nested_loop_loops"`

	// SortRows flags a sort over more rows than this with no index-backed
	// input to avoid it.
	SortRows float64 `yaml:"sort_rows"`

	// MisestimateRatio flags stale statistics when the planner's row estimate
	// is off by at least this factor; ten times the ratio escalates the
	// severity.
	MisestimateRatio float64 `yaml:"misestimate_ratio"`

	// Per-severity score penalties subtracted from 100.
	WeightCritical int `yaml:"weight_critical"`
	WeightHigh     int `yaml:"weight_high"`
	WeightMedium   int `yaml:"weight_medium"`
	WeightLow      int `yaml:"weight_low"`

	// MinOccurrence is how many times a bottleneck type must recur across a
	// monitored batch before it earns a fleet-level recommendation.
	MinOccurrence int `yaml:"min_occurrence"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FullScanRowsMedium:   10_000,
		FullScanRowsHigh:     100_000,
		FullScanRowsCritical: 1_000_000,
		NestedLoopLoops:      1_000,
		SortRows:             10_000,
		MisestimateRatio:     10.0,
		WeightCritical:       25,
		WeightHigh:           15,
		WeightMedium:         7,
		WeightLow:            3,
		MinOccurrence:        2,
	}
}

// Validate rejects out-of-range values before any analysis starts.
func (t Thresholds) Validate() error {
	positive := map[string]float64{
		"full scan rows (medium)":   t.FullScanRowsMedium,
		"full scan rows (high)":     t.FullScanRowsHigh,
		"full scan rows (critical)": t.FullScanRowsCritical,
		"nested loop loops":         t.NestedLoopLoops,
		"sort rows":                 t.SortRows,
		"misestimate ratio":         t.MisestimateRatio,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", domain.ErrInvalidConfig, name, v)
		}
	}
	if t.FullScanRowsMedium >= t.FullScanRowsHigh || t.FullScanRowsHigh >= t.FullScanRowsCritical {
		return fmt.Errorf("%w: full scan row boundaries must be strictly increasing", domain.ErrInvalidConfig)
	}
	for name, w := range map[string]int{
		"critical weight": t.WeightCritical,
		"high weight":     t.WeightHigh,
		"medium weight":   t.WeightMedium,
		"low weight":      t.WeightLow,
	} {
		if w < 0 || w > 100 {
			return fmt.Errorf("%w: %s must be within [0,100], got %d", domain.ErrInvalidConfig, name, w)
		}
	}
	if t.MinOccurrence < 1 {
		return fmt.Errorf("%w: min occurrence must be at least 1, got %d", domain.ErrInvalidConfig, t.MinOccurrence)
	}
	return nil
}

func (t Thresholds) weight(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return t.WeightCritical
	case domain.SeverityHigh:
		return t.WeightHigh
	case domain.SeverityMedium:
		return t.WeightMedium
	default:
		return t.WeightLow
	}
}
