// Package collection implements the adaptive field-collection engine.
//
// Given the FieldSpecs of one catalog element and the answers collected so far, it decides
// whether to ask one question at a time, a whole batch, or base fields followed by their
// conditional follow-ups, and renders the fields to present on each turn.
package collection

import "github.com/pepeccz/msi-a-sub001/internal/models"

// DependencyGraph is a directed graph over field keys with an edge parent -> child for
// every conditional field. It only contains the fields it was built from; a parent that is
// not a node (already answered, or dangling) is treated as a base field.
type DependencyGraph struct {
	order    []string
	parentOf map[string]string
	children map[string][]string
}

// NewDependencyGraph builds the graph for the given fields.
func NewDependencyGraph(fields []models.FieldSpec) *DependencyGraph {
	g := &DependencyGraph{
		order:    make([]string, 0, len(fields)),
		parentOf: make(map[string]string, len(fields)),
		children: make(map[string][]string),
	}
	for _, f := range fields {
		g.order = append(g.order, f.Key)
		if f.IsConditional() {
			g.parentOf[f.Key] = f.DependsOn.ParentKey
		} else {
			g.parentOf[f.Key] = ""
		}
	}
	for _, key := range g.order {
		if p := g.parentOf[key]; p != "" && g.Has(p) {
			g.children[p] = append(g.children[p], key)
		}
	}
	return g
}

// Has reports whether key is a node of the graph.
func (g *DependencyGraph) Has(key string) bool {
	_, ok := g.parentOf[key]
	return ok
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	return len(g.order)
}

// Children returns the keys that directly depend on key, in declared order.
func (g *DependencyGraph) Children(key string) []string {
	return g.children[key]
}

// Depth returns the nesting level of key: 0 for a base field, 1 for a field whose parent
// is a base field (or outside the graph), 2 or more for chained conditionals.
// Cycles are cut after visiting every node once.
func (g *DependencyGraph) Depth(key string) int {
	parent, ok := g.parentOf[key]
	if !ok || parent == "" {
		return 0
	}
	depth := 1
	for steps := 0; steps < len(g.order); steps++ {
		next, inGraph := g.parentOf[parent]
		if !inGraph || next == "" {
			break
		}
		depth++
		parent = next
	}
	return depth
}

// MaxDepth returns the deepest nesting level over all nodes.
func (g *DependencyGraph) MaxDepth() int {
	deepest := 0
	for _, key := range g.order {
		if d := g.Depth(key); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Conditionals returns the keys of nodes that depend on another field.
func (g *DependencyGraph) Conditionals() []string {
	var out []string
	for _, key := range g.order {
		if g.parentOf[key] != "" {
			out = append(out, key)
		}
	}
	return out
}

// Parents returns the distinct parent keys referenced by conditional nodes, in declared order
// of first reference.
func (g *DependencyGraph) Parents() []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range g.order {
		p := g.parentOf[key]
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
