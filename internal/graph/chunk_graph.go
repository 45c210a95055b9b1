package graph

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/rocketlyz/rspack/internal/identifier"
)

// ModuleIDStrategy selects how output module ids are derived.
type ModuleIDStrategy string

const (
	// ModuleIDsNamed uses the module path relative to the build context.
	ModuleIDsNamed ModuleIDStrategy = "named"
	// ModuleIDsNatural numbers modules in graph insertion order.
	ModuleIDsNatural ModuleIDStrategy = "natural"
	// ModuleIDsDeterministic uses the shortest unique prefix (minimum
	// three digits) of a hash of the named id.
	ModuleIDsDeterministic ModuleIDStrategy = "deterministic"
)

const minDeterministicLength = 3

var errNotFrozen = errors.New("module graph must be frozen before ids are assigned")

// ChunkGraph assigns every module of a frozen graph its output id.
type ChunkGraph struct {
	strategy ModuleIDStrategy
	ids      map[identifier.Identifier]string
}

// NewChunkGraph computes module ids. context is the directory named ids
// are made relative to.
func NewChunkGraph(mg *ModuleGraph, strategy ModuleIDStrategy, context string) (*ChunkGraph, error) {
	if !mg.Frozen() {
		return nil, fmt.Errorf("chunk graph: %w", errNotFrozen)
	}
	cg := &ChunkGraph{strategy: strategy, ids: make(map[identifier.Identifier]string)}
	modules := mg.Modules()

	switch strategy {
	case ModuleIDsNamed, "":
		cg.strategy = ModuleIDsNamed
		for _, m := range modules {
			cg.ids[m.Identifier] = namedID(m, context)
		}
	case ModuleIDsNatural:
		for _, m := range modules {
			cg.ids[m.Identifier] = strconv.Itoa(m.Index)
		}
	case ModuleIDsDeterministic:
		cg.assignDeterministic(modules, context)
	default:
		return nil, fmt.Errorf("unknown module id strategy %q", strategy)
	}
	return cg, nil
}

// ModuleID returns the output id of module, or its identifier when the
// module is not part of the graph.
func (c *ChunkGraph) ModuleID(module identifier.Identifier) string {
	if id, ok := c.ids[module]; ok {
		return id
	}
	return module.String()
}

// Strategy returns the id strategy in use.
func (c *ChunkGraph) Strategy() ModuleIDStrategy { return c.strategy }

func namedID(m *Module, context string) string {
	name := m.Resource
	if name == "" {
		name = m.Identifier.String()
	}
	if context != "" {
		if rel, err := filepath.Rel(context, name); err == nil && !escapes(rel) {
			name = rel
		}
	}
	name = filepath.ToSlash(name)
	if !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "../") && !strings.HasPrefix(name, "/") {
		name = "./" + name
	}
	return name
}

func (c *ChunkGraph) assignDeterministic(modules []*Module, context string) {
	type entry struct {
		module identifier.Identifier
		name   string
		hash   string
	}
	entries := make([]entry, 0, len(modules))
	for _, m := range modules {
		name := namedID(m, context)
		entries = append(entries, entry{
			module: m.Identifier,
			name:   name,
			hash:   fmt.Sprintf("%016x", xxhash.Sum64String(name)),
		})
	}
	// Sorting by name keeps the assignment independent of insertion order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	length := minDeterministicLength
	for ; length < 16; length++ {
		seen := make(map[string]bool, len(entries))
		unique := true
		for _, e := range entries {
			if seen[e.hash[:length]] {
				unique = false
				break
			}
			seen[e.hash[:length]] = true
		}
		if unique {
			break
		}
	}

	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		id := e.hash[:length]
		// Full 64-bit collisions are disambiguated by a suffix in name order.
		for n := 1; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", e.hash[:length], n)
		}
		used[id] = true
		c.ids[e.module] = id
	}
}

// escapes reports whether a filepath.Rel result leaves its base directory.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
