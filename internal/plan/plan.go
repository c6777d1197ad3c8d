// Package plan builds the execution plan the Orchestrator persists onto a
// Run and the Coordinator consults for the lifetime of that run.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lyzr/dagrunner/internal/domain"
)

// Build validates wf as a DAG and returns the Plan the Orchestrator will
// attach to a new Run. It fails closed: any duplicate node id, edge
// referencing an unknown node, self-loop, or cycle is rejected before a
// single message is ever enqueued.
func Build(wf *domain.Workflow) (*domain.Plan, error) {
	nodes := make(map[string]domain.PlanNode, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return nil, fmt.Errorf("plan: duplicate node id %q", n.ID)
		}
		if !n.Type.Valid() {
			return nil, fmt.Errorf("plan: node %q has unknown type %q", n.ID, n.Type)
		}
		nodes[n.ID] = domain.PlanNode{Kind: n.Type, Config: n.Config}
	}

	deps := make(map[string][]string, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for id := range nodes {
		deps[id] = nil
		dependents[id] = nil
	}

	for _, e := range wf.Edges {
		if e.Source == e.Target {
			return nil, fmt.Errorf("plan: edge %q is a self-loop on node %q", e.ID, e.Source)
		}
		if _, ok := nodes[e.Source]; !ok {
			return nil, fmt.Errorf("plan: edge %q references unknown source %q", e.ID, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return nil, fmt.Errorf("plan: edge %q references unknown target %q", e.ID, e.Target)
		}
		deps[e.Target] = append(deps[e.Target], e.Source)
		dependents[e.Source] = append(dependents[e.Source], e.Target)
	}
	for id := range deps {
		sort.Strings(deps[id])
		sort.Strings(dependents[id])
	}

	order, err := topoOrder(nodes, deps)
	if err != nil {
		return nil, err
	}

	return &domain.Plan{
		Nodes:      nodes,
		Deps:       deps,
		Dependents: dependents,
		Order:      order,
	}, nil
}

// topoOrder runs a deterministic Kahn's-algorithm pass: at each round the
// frontier of zero-remaining-indegree nodes is taken in sorted id order, so
// two calls on the same plan always produce the same order. A round that
// finds no new frontier with nodes still unplaced means a cycle exists
// among them.
func topoOrder(nodes map[string]domain.PlanNode, deps map[string][]string) ([]string, error) {
	remaining := make(map[string]int, len(nodes))
	for id := range nodes {
		remaining[id] = len(deps[id])
	}

	placed := make(map[string]bool, len(nodes))
	order := make([]string, 0, len(nodes))

	for len(order) < len(nodes) {
		var frontier []string
		for id, n := range remaining {
			if !placed[id] && n == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			return nil, errors.New("cycle detected in workflow graph")
		}
		sort.Strings(frontier)
		for _, id := range frontier {
			placed[id] = true
			order = append(order, id)
		}
		for id := range nodes {
			if placed[id] {
				continue
			}
			count := 0
			for _, p := range deps[id] {
				if !placed[p] {
					count++
				}
			}
			remaining[id] = count
		}
	}
	return order, nil
}

// Frontier returns the sorted set of node ids in pl that have no
// predecessors, i.e. the nodes the Orchestrator dispatches at run start.
func Frontier(pl *domain.Plan) []string {
	var f []string
	for id, preds := range pl.Deps {
		if len(preds) == 0 {
			f = append(f, id)
		}
	}
	sort.Strings(f)
	return f
}
