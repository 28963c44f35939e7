package planparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// mysqlParser reads EXPLAIN ANALYZE tree output: one arrow-prefixed line per
// node, nesting expressed by four-space indentation, with estimated and
// actual figures in trailing parenthesized groups.
type mysqlParser struct {
	limits Limits
}

var (
	mysqlArrow  = regexp.MustCompile(`^(\s*)->\s+(.*)$`)
	mysqlCost   = regexp.MustCompile(`\(cost=([0-9.eE+]+)(?:\s+rows=([0-9.eE+]+))?\)`)
	mysqlActual = regexp.MustCompile(`\(actual time=([0-9.]+)\.\.([0-9.]+) rows=([0-9.eE+]+) loops=([0-9]+)\)`)
	mysqlScanOn = regexp.MustCompile(`(?i)(?:table scan|index lookup|index scan|index range scan|covering index lookup|covering index scan|single-row index lookup) on (\w+)(?: using (\w+))?`)
)

type treeFrame struct {
	depth int
	id    int
}

func (p *mysqlParser) Parse(raw string) (domain.PlanTree, error) {
	a := &arena{limit: p.limits.MaxNodes}
	var stack []treeFrame

	for _, line := range strings.Split(raw, "\n") {
		m := mysqlArrow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		depth := len(m[1])/4 + 1
		if depth > p.limits.MaxDepth {
			return domain.EmptyPlanTree(), fmt.Errorf("%w: nesting deeper than %d", domain.ErrPlanTooDeep, p.limits.MaxDepth)
		}

		id, err := a.add(mysqlNode(m[2]))
		if err != nil {
			return domain.EmptyPlanTree(), err
		}

		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1].id
			a.nodes[parent].Children = append(a.nodes[parent].Children, id)
		} else if id != 0 {
			return domain.EmptyPlanTree(), fmt.Errorf("%w: multiple root nodes", domain.ErrMalformedPlan)
		}
		stack = append(stack, treeFrame{depth: depth, id: id})
	}

	if len(a.nodes) == 0 {
		return domain.EmptyPlanTree(), fmt.Errorf("%w: no plan nodes found", domain.ErrMalformedPlan)
	}
	return domain.PlanTree{Nodes: a.nodes, Root: 0}, nil
}

func mysqlNode(text string) domain.PlanNode {
	n := domain.PlanNode{Type: domain.NodeOther, Loops: 1}

	if m := mysqlCost.FindStringSubmatch(text); m != nil {
		n.TotalCost = parseFloat(m[1])
		n.PlanRows = parseFloat(m[2])
	}
	if m := mysqlActual.FindStringSubmatch(text); m != nil {
		n.ActualTime = parseFloat(m[2])
		n.ActualRows = parseFloat(m[3])
		n.Loops = parseFloat(m[4])
	}

	label := text
	if i := strings.Index(label, "  ("); i >= 0 {
		label = label[:i]
	} else if i := strings.Index(label, " (cost="); i >= 0 {
		label = label[:i]
	} else if i := strings.Index(label, " (actual"); i >= 0 {
		label = label[:i]
	}
	label = strings.TrimSpace(label)
	n.Label = label

	lower := strings.ToLower(label)
	switch {
	case strings.HasPrefix(lower, "table scan on"):
		n.Type = domain.NodeSeqScan
	case strings.Contains(lower, "index lookup on"),
		strings.Contains(lower, "index scan on"),
		strings.Contains(lower, "index range scan on"):
		n.Type = domain.NodeIndexScan
	case strings.HasPrefix(lower, "nested loop"):
		n.Type = domain.NodeNestedLoop
	case strings.Contains(lower, "hash join"):
		n.Type = domain.NodeHashJoin
	case strings.HasPrefix(lower, "sort"):
		n.Type = domain.NodeSort
		if i := strings.Index(label, ": "); i >= 0 {
			n.Predicate = label[i+2:]
		}
	case strings.Contains(lower, "aggregate"):
		n.Type = domain.NodeAggregate
	case strings.HasPrefix(lower, "filter:"):
		n.Predicate = strings.TrimSpace(label[len("filter:"):])
	}

	if m := mysqlScanOn.FindStringSubmatch(label); m != nil {
		n.Relation = m[1]
		n.Index = m[2]
	}
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
