package domain

import "strings"

// FKCandidate is a foreign-key relationship inferred from naming patterns.
// Join columns that look like unindexed foreign keys drive critical index
// recommendations.
type FKCandidate struct {
	ColumnName      string `json:"column_name"`
	ReferencedTable string `json:"referenced_table"`
	Confidence      string `json:"confidence"` // "high", "medium"
	Reason          string `json:"reason"`
}

// MatchFKColumn checks whether a column name follows the *_id foreign-key
// naming convention against a known table set. Tables keys are lower-case
// table names.
func MatchFKColumn(column string, tables map[string]bool) (FKCandidate, bool) {
	name := strings.ToLower(column)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if !strings.HasSuffix(name, "_id") {
		return FKCandidate{}, false
	}
	base := strings.TrimSuffix(name, "_id")
	if base == "" {
		return FKCandidate{}, false
	}

	// Exact singular table name, then simple plural forms.
	candidates := []struct {
		table      string
		confidence string
	}{
		{base, "high"},
		{base + "s", "high"},
		{base + "es", "medium"},
	}
	if strings.HasSuffix(base, "y") {
		candidates = append(candidates, struct {
			table      string
			confidence string
		}{strings.TrimSuffix(base, "y") + "ies", "medium"})
	}

	for _, c := range candidates {
		if tables[c.table] {
			return FKCandidate{
				ColumnName:      column,
				ReferencedTable: c.table,
				Confidence:      c.confidence,
				Reason:          "column " + column + " matches foreign-key naming for table " + c.table,
			}, true
		}
	}
	return FKCandidate{}, false
}
