// Package graph contains the pure dependency graph logic for plans.
// This is part of the Functional Core - no I/O, only pure functions.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a single unit of work with its declared dependencies.
type Node struct {
	ID        string
	DependsOn []string
	Weight    int // estimated effort; values below 1 count as 1
}

// CyclicDependencyError is returned when the declared dependencies contain a cycle.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownDependencyError is returned when a node depends on an id that is not in the plan.
type UnknownDependencyError struct {
	NodeID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.NodeID, e.Dependency)
}

// Metrics summarises a validated graph.
type Metrics struct {
	TaskCount          int
	LayerCount         int
	CriticalPathLength int
	CriticalPath       []string
	MaxParallelism     int
}

// Graph is a validated, acyclic dependency graph.
type Graph struct {
	nodes      map[string]Node
	order      []string
	layers     [][]string
	layerOf    map[string]int
	dependents map[string][]string
}

// Build validates the nodes and returns the DAG.
// Layering is deterministic: a node's layer is one more than the deepest of its
// dependencies, and ids within a layer are sorted.
func Build(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]Node, len(nodes)),
		layerOf:    make(map[string]int, len(nodes)),
		dependents: make(map[string][]string),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("task with empty id")
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", n.ID)
		}
		deps := dedupe(n.DependsOn)
		n.DependsOn = deps
		if n.Weight < 1 {
			n.Weight = 1
		}
		g.nodes[n.ID] = n
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for id, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				return nil, &CyclicDependencyError{Cycle: []string{id, id}}
			}
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnknownDependencyError{NodeID: id, Dependency: dep}
			}
			inDegree[id]++
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for dep := range g.dependents {
		sort.Strings(g.dependents[dep])
	}

	// Kahn's algorithm, one layer at a time
	var current []string
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	for depth := 0; len(current) > 0; depth++ {
		g.layers = append(g.layers, current)
		var next []string
		for _, id := range current {
			g.layerOf[id] = depth
			g.order = append(g.order, id)
			for _, dependent := range g.dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	if len(g.order) != len(g.nodes) {
		return nil, &CyclicDependencyError{Cycle: g.findCycle(inDegree)}
	}

	return g, nil
}

// findCycle reports one cycle among the nodes left with a non-zero in-degree.
func (g *Graph) findCycle(inDegree map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		for _, dep := range g.nodes[id].DependsOn {
			if color[dep] == gray {
				cycle = []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = id
				if dfs(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return []string{"(cycle detected)"}
}

// Order returns all node ids in topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Layers returns the topological layers; layer 0 has no dependencies.
func (g *Graph) Layers() [][]string {
	out := make([][]string, len(g.layers))
	for i, l := range g.layers {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// Layer returns the layer index of a node, or -1 if unknown.
func (g *Graph) Layer(id string) int {
	if l, ok := g.layerOf[id]; ok {
		return l
	}
	return -1
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Dependencies returns the declared dependencies of a node.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.nodes[id].DependsOn...)
}

// Dependents returns the nodes that depend directly on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// MaxParallelism is the width of the widest layer.
func (g *Graph) MaxParallelism() int {
	widest := 0
	for _, l := range g.layers {
		if len(l) > widest {
			widest = len(l)
		}
	}
	return widest
}

// CriticalPath returns the heaviest dependency chain and its total weight.
// Ties are broken by the lexicographically smallest id.
func (g *Graph) CriticalPath() (int, []string) {
	if len(g.order) == 0 {
		return 0, nil
	}

	dist := make(map[string]int, len(g.order))
	pred := make(map[string]string, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		best, bestDep := 0, ""
		for _, dep := range n.DependsOn {
			if dist[dep] > best || (dist[dep] == best && bestDep != "" && dep < bestDep) {
				best, bestDep = dist[dep], dep
			}
		}
		dist[id] = best + n.Weight
		pred[id] = bestDep
	}

	end := ""
	for _, id := range g.order {
		if end == "" || dist[id] > dist[end] || (dist[id] == dist[end] && id < end) {
			end = id
		}
	}

	var path []string
	for cur := end; cur != ""; cur = pred[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return dist[end], path
}

// Metrics computes the summary metrics for the graph.
func (g *Graph) Metrics() Metrics {
	length, path := g.CriticalPath()
	return Metrics{
		TaskCount:          len(g.nodes),
		LayerCount:         len(g.layers),
		CriticalPathLength: length,
		CriticalPath:       path,
		MaxParallelism:     g.MaxParallelism(),
	}
}

// TrackCount caps a requested track count by the graph's parallelism.
// A request of zero or less means one track.
func (g *Graph) TrackCount(requested int) int {
	if requested < 1 {
		return 1
	}
	maxPar := g.MaxParallelism()
	if maxPar < 1 {
		return 1
	}
	if requested > maxPar {
		return maxPar
	}
	return requested
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
