package compiler

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rocketlyz/rspack/internal/graph"
	"github.com/rocketlyz/rspack/internal/loader"
)

// Stats summarizes a run.
type Stats struct {
	CompilationID string
	Duration      time.Duration
	Modules       []ModuleStats
	Assets        []AssetStats
	Warnings      []string
	// FileDependencies and MissingDependencies are every file the run read
	// or tried as candidates. Watch mode rebuilds when any of them changes.
	FileDependencies    []string
	MissingDependencies []string
	// Graph is nil when the run failed before module ids were assigned.
	Graph *graph.Snapshot
}

// ModuleStats describes one built module.
type ModuleStats struct {
	ID           string
	Identifier   string
	Size         int
	Dependencies int
	Cached       bool
}

// AssetStats describes one emitted file.
type AssetStats struct {
	Name string
	Size int
}

// WatchFiles returns the files whose change should trigger a rebuild.
func (s *Stats) WatchFiles() []string {
	out := make([]string, 0, len(s.FileDependencies)+len(s.MissingDependencies))
	out = append(out, s.FileDependencies...)
	out = append(out, s.MissingDependencies...)
	return out
}

// CacheHits counts modules whose loader result came from the cache.
func (s *Stats) CacheHits() int {
	n := 0
	for _, m := range s.Modules {
		if m.Cached {
			n++
		}
	}
	return n
}

func (comp *compilation) stats() *Stats {
	comp.mu.Lock()
	defer comp.mu.Unlock()

	s := &Stats{
		CompilationID:       comp.id,
		Assets:              comp.emitted,
		Warnings:            append([]string(nil), comp.warnings...),
		FileDependencies:    sortedSet(comp.fileDeps),
		MissingDependencies: sortedSet(comp.missingDeps),
	}
	if comp.chunks == nil {
		return s
	}
	for _, m := range comp.graph.Modules() {
		b := comp.built[m.Identifier]
		s.Modules = append(s.Modules, ModuleStats{
			ID:           comp.chunks.ModuleID(m.Identifier),
			Identifier:   m.Identifier.String(),
			Size:         b.size,
			Dependencies: len(m.Dependencies),
			Cached:       b.cached,
		})
	}
	s.Graph = comp.graph.Snapshot(comp.chunks)
	return s
}

func sortedAssetNames(assets map[string]loader.Asset) []string {
	names := make([]string, 0, len(assets))
	for n := range assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WriteSummary renders modules and assets as tables.
func (s *Stats) WriteSummary(w io.Writer) {
	modules := tablewriter.NewWriter(w)
	modules.SetHeader([]string{"Module", "Size", "Deps", "Cached"})
	modules.SetBorder(false)
	for _, m := range s.Modules {
		cached := ""
		if m.Cached {
			cached = "yes"
		}
		modules.Append([]string{m.ID, formatSize(m.Size), strconv.Itoa(m.Dependencies), cached})
	}
	modules.Render()

	if len(s.Assets) > 0 {
		fmt.Fprintln(w)
		assets := tablewriter.NewWriter(w)
		assets.SetHeader([]string{"Asset", "Size"})
		assets.SetBorder(false)
		for _, a := range s.Assets {
			assets.Append([]string{a.Name, formatSize(a.Size)})
		}
		assets.Render()
	}

	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "WARNING %s\n", warn)
	}
	fmt.Fprintf(w, "\n%d modules, %d cached, %d warnings in %s\n",
		len(s.Modules), s.CacheHits(), len(s.Warnings), s.Duration.Round(time.Millisecond))
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
