package planparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// sqliteParser reads EXPLAIN QUERY PLAN output: SCAN and SEARCH lines, either
// bare (the single-line form) or under a QUERY PLAN header with |-- and `--
// tree prefixes. SQLite reports no cost or row figures, so those fields stay
// zero and downstream analysis leans on node types alone.
type sqliteParser struct {
	limits Limits
}

var (
	sqliteTreePrefix = regexp.MustCompile("^((?:[|` ] {2})*)[|`]--(.*)$")
	sqliteScan       = regexp.MustCompile(`(?i)^(SCAN|SEARCH)\s+(\w+)(?:\s+AS\s+\w+)?(.*)$`)
	sqliteUsingIndex = regexp.MustCompile(`(?i)USING (?:COVERING )?INDEX (\w+)`)
)

func (p *sqliteParser) Parse(raw string) (domain.PlanTree, error) {
	type entry struct {
		depth  int
		detail string
	}
	var entries []entry

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.EqualFold(strings.TrimSpace(line), "QUERY PLAN") {
			continue
		}
		if m := sqliteTreePrefix.FindStringSubmatch(line); m != nil {
			entries = append(entries, entry{depth: len(m[1])/3 + 1, detail: strings.TrimSpace(m[2])})
			continue
		}
		// Single-line form without tree decoration.
		entries = append(entries, entry{depth: 1, detail: strings.TrimSpace(line)})
	}
	if len(entries) == 0 {
		return domain.EmptyPlanTree(), fmt.Errorf("%w: no plan lines found", domain.ErrMalformedPlan)
	}

	a := &arena{limit: p.limits.MaxNodes}
	var stack []treeFrame

	// A lone line is its own root; anything else hangs off a synthetic one.
	if len(entries) > 1 || entries[0].depth > 1 {
		if _, err := a.add(domain.PlanNode{Type: domain.NodeOther, Label: "QUERY PLAN"}); err != nil {
			return domain.EmptyPlanTree(), err
		}
		stack = append(stack, treeFrame{depth: 0, id: 0})
	}

	for _, e := range entries {
		if e.depth > p.limits.MaxDepth {
			return domain.EmptyPlanTree(), fmt.Errorf("%w: nesting deeper than %d", domain.ErrPlanTooDeep, p.limits.MaxDepth)
		}
		id, err := a.add(sqliteNode(e.detail))
		if err != nil {
			return domain.EmptyPlanTree(), err
		}
		for len(stack) > 0 && stack[len(stack)-1].depth >= e.depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1].id
			a.nodes[parent].Children = append(a.nodes[parent].Children, id)
		}
		stack = append(stack, treeFrame{depth: e.depth, id: id})
	}

	return domain.PlanTree{Nodes: a.nodes, Root: 0}, nil
}

func sqliteNode(detail string) domain.PlanNode {
	n := domain.PlanNode{Type: domain.NodeOther, Label: detail}

	upper := strings.ToUpper(detail)
	if strings.HasPrefix(upper, "USE TEMP B-TREE") {
		n.Type = domain.NodeSort
		return n
	}

	m := sqliteScan.FindStringSubmatch(detail)
	if m == nil {
		return n
	}
	n.Relation = m[2]
	rest := m[3]

	switch strings.ToUpper(m[1]) {
	case "SCAN":
		n.Type = domain.NodeSeqScan
	case "SEARCH":
		n.Type = domain.NodeIndexScan
	}
	if im := sqliteUsingIndex.FindStringSubmatch(rest); im != nil {
		n.Type = domain.NodeIndexScan
		n.Index = im[1]
	}
	if open := strings.Index(rest, "("); open >= 0 {
		if close := strings.LastIndex(rest, ")"); close > open {
			n.Predicate = rest[open+1 : close]
		}
	}
	return n
}
