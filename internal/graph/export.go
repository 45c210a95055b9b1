package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Node is a module in an exported graph snapshot.
type Node struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Resource   string `json:"resource"`
}

// Edge is a dependency in an exported graph snapshot. To is empty for a
// dependency the graph holds no target for.
type Edge struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Type    string `json:"type"`
	Request string `json:"request,omitempty"`
}

// Snapshot is a serializable view of a frozen module graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Stats holds computed metrics about the graph.
type Stats struct {
	ModuleCount     int        `json:"module_count"`
	DependencyCount int        `json:"dependency_count"`
	UnresolvedCount int        `json:"unresolved_count"`
	MaxFanOut       int        `json:"max_fan_out"`
	MaxFanIn        int        `json:"max_fan_in"`
	HotspotModule   string     `json:"hotspot_module"` // module with most outgoing edges
	Components      int        `json:"connected_components"`
	Cycles          [][]string `json:"cycles,omitempty"`
}

type requester interface {
	UserRequest() string
}

// Snapshot exports the graph with module ids taken from cg.
func (g *ModuleGraph) Snapshot(cg *ChunkGraph) *Snapshot {
	s := &Snapshot{}
	for _, m := range g.Modules() {
		from := cg.ModuleID(m.Identifier)
		s.Nodes = append(s.Nodes, Node{ID: from, Identifier: m.Identifier.String(), Resource: m.Resource})
		for _, d := range m.Dependencies {
			e := Edge{From: from, Type: d.Type().String()}
			if r, ok := d.(requester); ok {
				e.Request = r.UserRequest()
			}
			if id, ok := d.ID(); ok {
				if target, ok := g.ModuleByDependencyID(id); ok {
					e.To = cg.ModuleID(target)
				}
			}
			s.Edges = append(s.Edges, e)
		}
	}
	s.computeStats()
	return s
}

func (s *Snapshot) computeStats() {
	s.Stats.ModuleCount = len(s.Nodes)
	s.Stats.DependencyCount = len(s.Edges)

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)
	for _, e := range s.Edges {
		if e.To == "" {
			s.Stats.UnresolvedCount++
			continue
		}
		fanOut[e.From]++
		fanIn[e.To]++
	}
	for _, n := range s.Nodes {
		if c := fanOut[n.ID]; c > s.Stats.MaxFanOut {
			s.Stats.MaxFanOut = c
			s.Stats.HotspotModule = n.ID
		}
		if c := fanIn[n.ID]; c > s.Stats.MaxFanIn {
			s.Stats.MaxFanIn = c
		}
	}

	s.Stats.Components = s.countComponents()
	s.Stats.Cycles = s.detectCycles()
}

// countComponents counts weakly connected components via union-find.
func (s *Snapshot) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for _, n := range s.Nodes {
		find(n.ID)
	}
	for _, e := range s.Edges {
		if e.To == "" {
			continue
		}
		if a, b := find(e.From), find(e.To); a != b {
			parent[a] = b
		}
	}

	roots := make(map[string]bool)
	for _, n := range s.Nodes {
		roots[find(n.ID)] = true
	}
	return len(roots)
}

// detectCycles finds module cycles with a DFS in node order.
func (s *Snapshot) detectCycles() [][]string {
	adj := make(map[string][]string)
	for _, e := range s.Edges {
		if e.To != "" {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}

	var cycles [][]string
	state := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	var path []string

	var dfs func(n string)
	dfs = func(n string) {
		switch state[n] {
		case 2:
			return
		case 1:
			var cycle []string
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == n {
					break
				}
			}
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			cycles = append(cycles, cycle)
			return
		}
		state[n] = 1
		path = append(path, n)
		for _, next := range adj[n] {
			dfs(next)
		}
		path = path[:len(path)-1]
		state[n] = 2
	}

	for _, n := range s.Nodes {
		if state[n.ID] == 0 {
			dfs(n.ID)
		}
	}
	return cycles
}

// ExportDOT renders the snapshot as Graphviz DOT.
func ExportDOT(s *Snapshot) string {
	var b strings.Builder
	b.WriteString("digraph modules {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" shape=box];\n\n")
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "  %q [label=%q];\n", n.ID, n.Resource)
	}
	for _, e := range s.Edges {
		if e.To == "" {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed color=\"#f85149\" label=%q];\n", e.From, "unresolved:"+e.Request, e.Type)
			continue
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.From, e.To, e.Type)
	}
	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid renders the snapshot as a Mermaid flowchart.
func ExportMermaid(s *Snapshot) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "  %s[\"%s\"]\n", sanitizeMermaidID(n.ID), n.Resource)
	}
	for _, e := range s.Edges {
		if e.To == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s -->|%s| %s\n", sanitizeMermaidID(e.From), e.Type, sanitizeMermaidID(e.To))
	}
	return b.String()
}

// ExportJSON serializes the snapshot.
func ExportJSON(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FormatStats returns a human-readable summary.
func FormatStats(s *Snapshot) string {
	var b strings.Builder
	b.WriteString("Module Graph Statistics\n")
	b.WriteString("=======================\n\n")
	fmt.Fprintf(&b, "Modules:      %d\n", s.Stats.ModuleCount)
	fmt.Fprintf(&b, "Dependencies: %d (%d unresolved)\n", s.Stats.DependencyCount, s.Stats.UnresolvedCount)
	fmt.Fprintf(&b, "Max Fan-Out:  %d (%s)\n", s.Stats.MaxFanOut, s.Stats.HotspotModule)
	fmt.Fprintf(&b, "Max Fan-In:   %d\n", s.Stats.MaxFanIn)
	fmt.Fprintf(&b, "Components:   %d\n", s.Stats.Components)
	if len(s.Stats.Cycles) > 0 {
		fmt.Fprintf(&b, "\nCycles: %d\n", len(s.Stats.Cycles))
		for i, c := range s.Stats.Cycles {
			fmt.Fprintf(&b, "  %d: %s\n", i+1, strings.Join(c, " -> "))
		}
	}
	return b.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer("/", "_", ".", "_", "-", "_", " ", "_", ":", "_")
	out := r.Replace(id)
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "m" + out
	}
	return out
}

// SortedModuleIDs returns every assigned id in lexical order.
func (c *ChunkGraph) SortedModuleIDs() []string {
	ids := make([]string, 0, len(c.ids))
	for _, id := range c.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
