package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/plananalysis"
)

func writeTuningFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile_PartialOverride(t *testing.T) {
	t.Parallel()
	path := writeTuningFile(t, `
thresholds:
  full_scan_rows_medium: 5000
  nested_loop_loops: 500
limits:
  max_depth: 32
`)
	thresholds, limits, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, thresholds.FullScanRowsMedium)
	assert.Equal(t, 500.0, thresholds.NestedLoopLoops)
	// Unset fields keep defaults.
	assert.Equal(t, plananalysis.DefaultThresholds().SortRows, thresholds.SortRows)
	assert.Equal(t, plananalysis.DefaultThresholds().WeightCritical, thresholds.WeightCritical)
	assert.Equal(t, 32, limits.MaxDepth)
	assert.Equal(t, 10000, limits.MaxNodes)
}

func TestLoadFromFile_RejectsInvalidValues(t *testing.T) {
	t.Parallel()
	path := writeTuningFile(t, `
thresholds:
  misestimate_ratio: -1
`)
	_, _, err := LoadFromFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	path = writeTuningFile(t, `
thresholds:
  full_scan_rows_medium: 200000
`)
	_, _, err = LoadFromFile(path)
	require.Error(t, err, "medium boundary above high must fail")

	path = writeTuningFile(t, `
limits:
  max_nodes: 0
`)
	_, _, err = LoadFromFile(path)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoadFromFile_Malformed(t *testing.T) {
	t.Parallel()
	path := writeTuningFile(t, "thresholds: [not, a, map]")
	_, _, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing tuning YAML")

	_, _, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading tuning file")
}
