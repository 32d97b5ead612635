// Package dag provides the directed dependency graph used for static recipe
// planning: cycle detection with the offending path, grouping into execution
// levels and reachability.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Graph is a directed graph where an edge from A to B means B depends on A.
// Self-loops are allowed so that self-dependencies surface as cycles.
// Graph is not safe for concurrent mutation.
type Graph struct {
	nodes  map[string]bool
	deps   map[string][]string // node -> nodes it depends on
	users  map[string][]string // node -> nodes depending on it
	nEdges int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		deps:  make(map[string][]string),
		users: make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge records that dependent depends on dependency. Duplicate edges are ignored.
func (g *Graph) AddEdge(dependency, dependent string) error {
	if !g.nodes[dependency] {
		return fmt.Errorf("node %q does not exist", dependency)
	}
	if !g.nodes[dependent] {
		return fmt.Errorf("node %q does not exist", dependent)
	}
	if slices.Contains(g.deps[dependent], dependency) {
		return nil
	}
	g.deps[dependent] = append(g.deps[dependent], dependency)
	g.users[dependency] = append(g.users[dependency], dependent)
	g.nEdges++
	return nil
}

// Has reports whether the node exists.
func (g *Graph) Has(id string) bool {
	return g.nodes[id]
}

// Dependencies returns the direct dependencies of a node, sorted.
func (g *Graph) Dependencies(id string) []string {
	return sorted(g.deps[id])
}

// Dependents returns the nodes that directly depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	return sorted(g.users[id])
}

// IDs returns all node IDs, sorted.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.nEdges }

// CycleError reports a dependency cycle. Path starts and ends at the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// FindCycle returns the first cycle found in sorted node order, or nil.
// The path follows dependency direction: each node depends on the next.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, dep := range g.Dependencies(id) {
			switch state[dep] {
			case active:
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.IDs() {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// HasCycle reports whether the graph has a cycle, with its path.
func (g *Graph) HasCycle() (bool, []string) {
	c := g.FindCycle()
	return c != nil, c
}

// Levels groups node IDs so that every node only depends on nodes of earlier
// levels. Level 0 holds nodes without dependencies. Each level is sorted.
func (g *Graph) Levels() ([][]string, error) {
	if c := g.FindCycle(); c != nil {
		return nil, &CycleError{Path: c}
	}

	level := make(map[string]int, len(g.nodes))
	var depth func(id string) int
	depth = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, dep := range g.deps[id] {
			l = max(l, depth(dep)+1)
		}
		level[id] = l
		return l
	}

	var levels [][]string
	for _, id := range g.IDs() {
		l := depth(id)
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	for _, ids := range levels {
		sort.Strings(ids)
	}
	return levels, nil
}

// Upstream returns every node id transitively depends on, sorted.
func (g *Graph) Upstream(id string) []string {
	return g.reach(id, g.deps)
}

// Downstream returns every node transitively depending on id, sorted.
func (g *Graph) Downstream(id string) []string {
	return g.reach(id, g.users)
}

func (g *Graph) reach(id string, adj map[string][]string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Subgraph returns the graph induced by ids.
func (g *Graph) Subgraph(ids []string) *Graph {
	sub := NewGraph()
	for _, id := range ids {
		if g.nodes[id] {
			sub.AddNode(id)
		}
	}
	for _, id := range sub.IDs() {
		for _, dep := range g.deps[id] {
			if sub.Has(dep) {
				_ = sub.AddEdge(dep, id)
			}
		}
	}
	return sub
}

func sorted(ids []string) []string {
	out := slices.Clone(ids)
	sort.Strings(out)
	return out
}
