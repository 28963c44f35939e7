// Package tuning loads operator-controlled analyzer thresholds from a YAML
// file. Every field is optional; unset fields keep the documented defaults,
// and the merged result is validated before use.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/querylens/querylens/internal/core/plananalysis"
	"github.com/querylens/querylens/internal/core/planparse"
)

// File is the YAML shape of a tuning file. Pointer fields distinguish "not
// set" from explicit zero values, which are rejected by validation.
type File struct {
	Thresholds thresholdOverrides `yaml:"thresholds"`
	Limits     limitOverrides     `yaml:"limits"`
}

type thresholdOverrides struct {
	FullScanRowsMedium   *float64 `yaml:"full_scan_rows_medium"`
	FullScanRowsHigh     *float64 `yaml:"full_scan_rows_high"`
	FullScanRowsCritical *float64 `yaml:"full_scan_rows_critical"`
	NestedLoopLoops      *float64 `yaml:"nested_loop_loops"`
	SortRows             *float64 `yaml:"sort_rows"`
	MisestimateRatio     *float64 `yaml:"misestimate_ratio"`
	WeightCritical       *int     `yaml:"weight_critical"`
	WeightHigh           *int     `yaml:"weight_high"`
	WeightMedium         *int     `yaml:"weight_medium"`
	WeightLow            *int     `yaml:"weight_low"`
	MinOccurrence        *int     `yaml:"min_occurrence"`
}

type limitOverrides struct {
	MaxDepth *int `yaml:"max_depth"`
	MaxNodes *int `yaml:"max_nodes"`
}

// LoadFromFile reads a YAML tuning file and merges it over the defaults.
func LoadFromFile(path string) (plananalysis.Thresholds, planparse.Limits, error) {
	thresholds := plananalysis.DefaultThresholds()
	limits := planparse.DefaultLimits()

	data, err := os.ReadFile(path)
	if err != nil {
		return thresholds, limits, fmt.Errorf("reading tuning file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return thresholds, limits, fmt.Errorf("parsing tuning YAML: %w", err)
	}

	applyThresholds(&thresholds, f.Thresholds)
	applyLimits(&limits, f.Limits)

	if err := thresholds.Validate(); err != nil {
		return thresholds, limits, fmt.Errorf("validating tuning file: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return thresholds, limits, fmt.Errorf("validating tuning file: %w", err)
	}
	return thresholds, limits, nil
}

func applyThresholds(t *plananalysis.Thresholds, o thresholdOverrides) {
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat(&t.FullScanRowsMedium, o.FullScanRowsMedium)
	setFloat(&t.FullScanRowsHigh, o.FullScanRowsHigh)
	setFloat(&t.FullScanRowsCritical, o.FullScanRowsCritical)
	setFloat(&t.NestedLoopLoops, o.NestedLoopLoops)
	setFloat(&t.SortRows, o.SortRows)
	setFloat(&t.MisestimateRatio, o.MisestimateRatio)
	setInt(&t.WeightCritical, o.WeightCritical)
	setInt(&t.WeightHigh, o.WeightHigh)
	setInt(&t.WeightMedium, o.WeightMedium)
	setInt(&t.WeightLow, o.WeightLow)
	setInt(&t.MinOccurrence, o.MinOccurrence)
}

func applyLimits(l *planparse.Limits, o limitOverrides) {
	if o.MaxDepth != nil {
		l.MaxDepth = *o.MaxDepth
	}
	if o.MaxNodes != nil {
		l.MaxNodes = *o.MaxNodes
	}
}
