package pipeline

import (
	"fmt"
	"sort"
)

// Graph is the adjacency view of a stage catalog. Edges point from a stage to
// its prerequisites; the reverse index points to dependents.
type Graph struct {
	requires   map[string][]string
	dependents map[string][]string
}

func NewGraph(defs []StageDef) *Graph {
	g := &Graph{
		requires:   map[string][]string{},
		dependents: map[string][]string{},
	}
	for _, d := range defs {
		g.requires[d.Key] = append([]string(nil), d.Requires...)
		for _, req := range d.Requires {
			g.dependents[req] = append(g.dependents[req], d.Key)
		}
	}
	for k := range g.dependents {
		sort.Strings(g.dependents[k])
	}
	return g
}

// Default is the graph over every known stage.
func Default() *Graph { return NewGraph(All()) }

func (g *Graph) Requires(key string) []string {
	return append([]string(nil), g.requires[key]...)
}

func (g *Graph) Dependents(key string) []string {
	return append([]string(nil), g.dependents[key]...)
}

// TransitiveDependents walks dependents depth-first. The visited set keeps a
// misconfigured cycle from looping; key itself is never returned.
func (g *Graph) TransitiveDependents(key string) []string {
	visited := map[string]bool{key: true}
	var out []string
	stack := append([]string(nil), g.dependents[key]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		out = append(out, n)
		deps := g.dependents[n]
		for i := len(deps) - 1; i >= 0; i-- {
			if !visited[deps[i]] {
				stack = append(stack, deps[i])
			}
		}
	}
	return out
}

// Missing lists the direct prerequisites of key whose status has no content
// yet, in declaration order.
func (g *Graph) Missing(key string, satisfied func(prereq string) bool) []string {
	var out []string
	for _, req := range g.requires[key] {
		if !satisfied(req) {
			out = append(out, req)
		}
	}
	return out
}

// Validate checks for unknown references and cycles (Kahn's algorithm).
func Validate(defs []StageDef) error {
	seen := map[string]bool{}
	for _, d := range defs {
		if d.Key == "" {
			return fmt.Errorf("stage missing key")
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate stage key %q", d.Key)
		}
		seen[d.Key] = true
	}
	deg := map[string]int{}
	out := map[string][]string{}
	for _, d := range defs {
		for _, req := range d.Requires {
			if !seen[req] {
				return fmt.Errorf("stage %q requires unknown stage %q", d.Key, req)
			}
			deg[d.Key]++
			out[req] = append(out[req], d.Key)
		}
	}
	queue := []string{}
	for _, d := range defs {
		if deg[d.Key] == 0 {
			queue = append(queue, d.Key)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, m := range out[n] {
			deg[m]--
			if deg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if visited != len(defs) {
		return fmt.Errorf("stage catalog has a dependency cycle")
	}
	return nil
}
