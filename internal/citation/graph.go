package citation

import (
	"sort"
	"sync"

	"github.com/jjenkins/lawarchive/internal/model"
)

// Edge is a collapsed section-level reference.
type Edge struct {
	From model.Key
	To   model.Key
}

// Graph is the derived citation index. Edges are contributed by groups (one
// group per stored version) and reference counted, so removing a superseded
// version's group leaves edges still asserted by other current versions.
//
// Keys are section-level: subsection paths are dropped and self-references
// are not traversal edges.
type Graph struct {
	mu       sync.RWMutex
	out      map[model.Key]map[model.Key]int
	in       map[model.Key]map[model.Key]int
	dangling map[model.Key]int
	groups   map[string]groupEdges
}

type groupEdges struct {
	edges    []Edge
	dangling map[model.Key]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	g := &Graph{}
	g.Reset()
	return g
}

// Reset drops every edge.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = make(map[model.Key]map[model.Key]int)
	g.in = make(map[model.Key]map[model.Key]int)
	g.dangling = make(map[model.Key]int)
	g.groups = make(map[string]groupEdges)
}

// AddGroup records the citations of one group, replacing any previous
// contribution under the same name.
func (g *Graph) AddGroup(group string, citations []model.Citation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(group, citations)
}

// RemoveGroup withdraws a group's edges.
func (g *Graph) RemoveGroup(group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(group)
}

// Swap removes the named groups and adds one group in a single critical
// section, so readers see either the old or the new edge set.
func (g *Graph) Swap(remove []string, group string, citations []model.Citation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range remove {
		g.removeLocked(r)
	}
	if group != "" {
		g.addLocked(group, citations)
	}
}

func (g *Graph) addLocked(group string, citations []model.Citation) {
	g.removeLocked(group)

	ge := groupEdges{dangling: make(map[model.Key]int)}
	seen := make(map[Edge]bool)
	for _, c := range citations {
		from := c.Source.SectionRef()
		if c.Target == nil {
			ge.dangling[from]++
			continue
		}
		to := c.Target.SectionRef()
		if from == to {
			continue
		}
		e := Edge{From: from, To: to}
		if seen[e] {
			continue
		}
		seen[e] = true
		ge.edges = append(ge.edges, e)
	}

	for _, e := range ge.edges {
		inc(g.out, e.From, e.To)
		inc(g.in, e.To, e.From)
	}
	for k, n := range ge.dangling {
		g.dangling[k] += n
	}
	g.groups[group] = ge
}

func (g *Graph) removeLocked(group string) {
	ge, ok := g.groups[group]
	if !ok {
		return
	}
	for _, e := range ge.edges {
		dec(g.out, e.From, e.To)
		dec(g.in, e.To, e.From)
	}
	for k, n := range ge.dangling {
		if g.dangling[k] -= n; g.dangling[k] <= 0 {
			delete(g.dangling, k)
		}
	}
	delete(g.groups, group)
}

// ReferencesTo returns the sections that cite target.
func (g *Graph) ReferencesTo(target model.Key) []model.Key {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[target.SectionRef()])
}

// ReferencedBy returns the sections cited by source.
func (g *Graph) ReferencedBy(source model.Key) []model.Key {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[source.SectionRef()])
}

// Dangling returns how many unresolved citations source carries.
func (g *Graph) Dangling(source model.Key) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dangling[source.SectionRef()]
}

// Edges returns every collapsed edge in (from, to) order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var edges []Edge
	for from, tos := range g.out {
		for to := range tos {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From.Less(edges[j].From)
		}
		return edges[i].To.Less(edges[j].To)
	})
	return edges
}

func inc(m map[model.Key]map[model.Key]int, a, b model.Key) {
	inner, ok := m[a]
	if !ok {
		inner = make(map[model.Key]int)
		m[a] = inner
	}
	inner[b]++
}

func dec(m map[model.Key]map[model.Key]int, a, b model.Key) {
	inner, ok := m[a]
	if !ok {
		return
	}
	if inner[b]--; inner[b] <= 0 {
		delete(inner, b)
	}
	if len(inner) == 0 {
		delete(m, a)
	}
}

func sortedKeys(m map[model.Key]int) []model.Key {
	keys := make([]model.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
