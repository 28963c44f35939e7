package domain

import "strings"

// CardinalityClass describes the expected distribution shape of a column's
// values. The core owns no statistics, so classification is heuristic: it
// works from naming conventions the way DBAs eyeball a schema. Callers with
// real distinct counts can use ClassifyByDistinctCount instead.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

var enumLikeNames = map[string]bool{
	"status":    true,
	"state":     true,
	"type":      true,
	"kind":      true,
	"category":  true,
	"level":     true,
	"priority":  true,
	"enabled":   true,
	"active":    true,
	"deleted":   true,
	"gender":    true,
	"country":   true,
	"currency":  true,
}

// ClassifyColumnName estimates a column's cardinality class from its name.
// Qualified references ("orders.customer_id") are reduced to the bare column
// first.
func ClassifyColumnName(column string) CardinalityClass {
	name := strings.ToLower(column)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	if name == "id" || name == "uuid" || name == "guid" {
		return CardinalityUnique
	}
	if strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_uuid") ||
		strings.HasSuffix(name, "_key") || strings.HasSuffix(name, "_hash") {
		return CardinalityHighCardinality
	}
	if strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_date") ||
		strings.HasSuffix(name, "_time") || name == "created" || name == "updated" {
		return CardinalityHighCardinality
	}
	if enumLikeNames[name] || strings.HasPrefix(name, "is_") || strings.HasPrefix(name, "has_") {
		return CardinalityEnumLike
	}
	return CardinalityLowCardinality
}

// ClassifyByDistinctCount determines the cardinality class from absolute
// distinct and total row counts, for callers that do hold statistics.
func ClassifyByDistinctCount(distinctCount, totalRows int64) CardinalityClass {
	if totalRows > 0 && distinctCount == totalRows {
		return CardinalityUnique
	}
	if totalRows > 0 && float64(distinctCount)/float64(totalRows) >= 0.9 {
		return CardinalityHighCardinality
	}
	if distinctCount <= 20 {
		return CardinalityEnumLike
	}
	if distinctCount <= 200 {
		return CardinalityLowCardinality
	}
	return CardinalityHighCardinality
}

// LikelyHighCardinality reports whether a column is a useful standalone index
// key.
func LikelyHighCardinality(column string) bool {
	switch ClassifyColumnName(column) {
	case CardinalityUnique, CardinalityHighCardinality:
		return true
	default:
		return false
	}
}
