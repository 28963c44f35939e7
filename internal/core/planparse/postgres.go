package planparse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// postgresParser reads EXPLAIN (FORMAT JSON) output: a one-element array
// wrapping a "Plan" object whose children nest under "Plans". Field names
// must match the server's output verbatim; missing optional fields default to
// zero rather than failing the parse.
type postgresParser struct {
	limits Limits
}

type pgFrame struct {
	raw    map[string]any
	parent int
	depth  int
}

func (p *postgresParser) Parse(raw string) (domain.PlanTree, error) {
	root, err := decodePostgresRoot(raw)
	if err != nil {
		return domain.EmptyPlanTree(), err
	}

	a := &arena{limit: p.limits.MaxNodes}
	stack := []pgFrame{{raw: root, parent: -1, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > p.limits.MaxDepth {
			return domain.EmptyPlanTree(), fmt.Errorf("%w: nesting deeper than %d", domain.ErrPlanTooDeep, p.limits.MaxDepth)
		}

		id, err := a.add(postgresNode(f.raw))
		if err != nil {
			return domain.EmptyPlanTree(), err
		}
		if f.parent >= 0 {
			a.nodes[f.parent].Children = append(a.nodes[f.parent].Children, id)
		}

		children, _ := f.raw["Plans"].([]any)
		for i := len(children) - 1; i >= 0; i-- {
			child, ok := children[i].(map[string]any)
			if !ok {
				return domain.EmptyPlanTree(), fmt.Errorf("%w: Plans entry is not an object", domain.ErrMalformedPlan)
			}
			stack = append(stack, pgFrame{raw: child, parent: id, depth: f.depth + 1})
		}
	}

	return domain.PlanTree{Nodes: a.nodes, Root: 0}, nil
}

// decodePostgresRoot accepts the full EXPLAIN array, a single wrapper object,
// or a bare plan object, and returns the root plan node's fields.
func decodePostgresRoot(raw string) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPlan, err)
	}
	if arr, ok := doc.([]any); ok {
		if len(arr) == 0 {
			return nil, fmt.Errorf("%w: empty plan array", domain.ErrMalformedPlan)
		}
		doc = arr[0]
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: plan root is not an object", domain.ErrMalformedPlan)
	}
	if plan, ok := obj["Plan"].(map[string]any); ok {
		return plan, nil
	}
	if _, ok := obj["Node Type"]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: missing Plan object", domain.ErrMalformedPlan)
}

func postgresNode(raw map[string]any) domain.PlanNode {
	label := asString(raw["Node Type"])
	n := domain.PlanNode{
		Type:        canonicalPostgresType(label),
		Label:       label,
		Relation:    asString(raw["Relation Name"]),
		Index:       asString(raw["Index Name"]),
		StartupCost: asFloat(raw["Startup Cost"]),
		TotalCost:   asFloat(raw["Total Cost"]),
		PlanRows:    asFloat(raw["Plan Rows"]),
		ActualRows:  asFloat(raw["Actual Rows"]),
		ActualTime:  asFloat(raw["Actual Total Time"]),
		Loops:       asFloat(raw["Actual Loops"]),
	}
	n.Predicate = firstNonEmpty(
		asString(raw["Filter"]),
		asString(raw["Hash Cond"]),
		asString(raw["Merge Cond"]),
		asString(raw["Join Filter"]),
		asString(raw["Index Cond"]),
		joinStrings(raw["Sort Key"]),
	)
	return n
}

func canonicalPostgresType(label string) domain.NodeType {
	switch label {
	case "Seq Scan":
		return domain.NodeSeqScan
	case "Index Scan", "Index Only Scan", "Bitmap Heap Scan", "Bitmap Index Scan":
		return domain.NodeIndexScan
	case "Nested Loop":
		return domain.NodeNestedLoop
	case "Hash Join":
		return domain.NodeHashJoin
	case "Sort", "Incremental Sort":
		return domain.NodeSort
	case "Aggregate", "HashAggregate", "GroupAggregate", "WindowAgg":
		return domain.NodeAggregate
	default:
		return domain.NodeOther
	}
}

// asFloat tolerates servers that emit numerics as JSON strings.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case json.Number:
		f, _ := x.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// joinStrings flattens a JSON string array such as Sort Key.
func joinStrings(v any) string {
	arr, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(arr))
	for _, e := range arr {
		if s := asString(e); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
