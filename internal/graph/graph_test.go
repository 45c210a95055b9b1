package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/dependency/hmr"
	"github.com/rocketlyz/rspack/internal/identifier"
)

func decline(request string) *hmr.ModuleHotDeclineDependency {
	return hmr.NewModuleHotDeclineDependency(request, nil, ast.Path{{Index: 0}})
}

func TestRegistrationAssignsIDExactlyOnce(t *testing.T) {
	g := NewModuleGraph()
	_, err := g.AddModule("/src/index.js", "/src/index.js")
	require.NoError(t, err)

	d := decline("./a")
	_, ok := d.ID()
	assert.False(t, ok, "id must be unset before registration")

	id, err := g.AddDependency("/src/index.js", d)
	require.NoError(t, err)
	got, ok := d.ID()
	require.True(t, ok)
	assert.Equal(t, id, got)

	// A second registration, in this graph or directly, never changes it.
	_, err = g.AddDependency("/src/index.js", d)
	assert.True(t, errors.Is(err, dependency.ErrIDAlreadySet))
	assert.True(t, errors.Is(d.SetID(id+1), dependency.ErrIDAlreadySet))

	g.Freeze()
	got, _ = d.ID()
	assert.Equal(t, id, got)
	assert.Equal(t, 1, g.DependencyCount())
}

func TestDependencyIDsAreUniquePerGraph(t *testing.T) {
	g := NewModuleGraph()
	_, err := g.AddModule("/a.js", "/a.js")
	require.NoError(t, err)

	seen := make(map[dependency.ID]bool)
	for i := 0; i < 50; i++ {
		id, err := g.AddDependency("/a.js", decline("./x"))
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFrozenGraphRejectsMutation(t *testing.T) {
	g := NewModuleGraph()
	_, err := g.AddModule("/a.js", "/a.js")
	require.NoError(t, err)
	id, err := g.AddDependency("/a.js", decline("./a"))
	require.NoError(t, err)

	g.Freeze()
	assert.True(t, g.Frozen())

	_, err = g.AddModule("/b.js", "/b.js")
	assert.ErrorIs(t, err, ErrFrozen)
	_, err = g.AddDependency("/a.js", decline("./b"))
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, g.SetResolved(id, "/a.js"), ErrFrozen)
}

func TestSetResolvedValidatesEnds(t *testing.T) {
	g := NewModuleGraph()
	_, err := g.AddModule("/a.js", "/a.js")
	require.NoError(t, err)
	id, err := g.AddDependency("/a.js", decline("./b"))
	require.NoError(t, err)

	assert.Error(t, g.SetResolved(id, "/missing.js"))
	assert.Error(t, g.SetResolved(id+10, "/a.js"))

	_, ok := g.ModuleByDependencyID(id)
	assert.False(t, ok)
	require.NoError(t, g.SetResolved(id, "/a.js"))
	target, ok := g.ModuleByDependencyID(id)
	assert.True(t, ok)
	assert.Equal(t, identifier.Identifier("/a.js"), target)
}

func buildGraph(t *testing.T, resources ...string) *ModuleGraph {
	t.Helper()
	g := NewModuleGraph()
	for _, r := range resources {
		_, err := g.AddModule(identifier.Identifier(r), r)
		require.NoError(t, err)
	}
	return g
}

func TestChunkGraphRequiresFrozenGraph(t *testing.T) {
	g := buildGraph(t, "/p/src/a.js")
	_, err := NewChunkGraph(g, ModuleIDsNamed, "/p")
	assert.Error(t, err)
}

func TestModuleIDStrategies(t *testing.T) {
	g := buildGraph(t, "/p/src/a.js", "/p/src/b.js", "/elsewhere/c.js")
	g.Freeze()

	named, err := NewChunkGraph(g, ModuleIDsNamed, "/p")
	require.NoError(t, err)
	assert.Equal(t, "./src/a.js", named.ModuleID("/p/src/a.js"))
	assert.Equal(t, "/elsewhere/c.js", named.ModuleID("/elsewhere/c.js"))

	natural, err := NewChunkGraph(g, ModuleIDsNatural, "/p")
	require.NoError(t, err)
	assert.Equal(t, "0", natural.ModuleID("/p/src/a.js"))
	assert.Equal(t, "2", natural.ModuleID("/elsewhere/c.js"))

	det, err := NewChunkGraph(g, ModuleIDsDeterministic, "/p")
	require.NoError(t, err)
	ids := det.SortedModuleIDs()
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.GreaterOrEqual(t, len(id), minDeterministicLength)
	}
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])

	_, err = NewChunkGraph(g, "fancy", "/p")
	assert.Error(t, err)
}

func TestNamedIDsKeepDottedNamesRelative(t *testing.T) {
	g := buildGraph(t, "/p/..cache.js", "/p/..vendor/x.js", "/other/y.js")
	g.Freeze()

	named, err := NewChunkGraph(g, ModuleIDsNamed, "/p")
	require.NoError(t, err)
	assert.Equal(t, "./..cache.js", named.ModuleID("/p/..cache.js"))
	assert.Equal(t, "./..vendor/x.js", named.ModuleID("/p/..vendor/x.js"))
	assert.Equal(t, "/other/y.js", named.ModuleID("/other/y.js"))
}

func TestDeterministicIDsIgnoreInsertionOrder(t *testing.T) {
	g1 := buildGraph(t, "/p/a.js", "/p/b.js", "/p/c.js")
	g2 := buildGraph(t, "/p/c.js", "/p/a.js", "/p/b.js")
	g1.Freeze()
	g2.Freeze()

	c1, err := NewChunkGraph(g1, ModuleIDsDeterministic, "/p")
	require.NoError(t, err)
	c2, err := NewChunkGraph(g2, ModuleIDsDeterministic, "/p")
	require.NoError(t, err)

	for _, m := range []identifier.Identifier{"/p/a.js", "/p/b.js", "/p/c.js"} {
		assert.Equal(t, c1.ModuleID(m), c2.ModuleID(m))
	}
}

func TestSnapshotStatsAndExport(t *testing.T) {
	g := buildGraph(t, "/p/a.js", "/p/b.js")
	ab, err := g.AddDependency("/p/a.js", decline("./b"))
	require.NoError(t, err)
	ba, err := g.AddDependency("/p/b.js", decline("./a"))
	require.NoError(t, err)
	_, err = g.AddDependency("/p/b.js", decline("./missing"))
	require.NoError(t, err)
	require.NoError(t, g.SetResolved(ab, "/p/b.js"))
	require.NoError(t, g.SetResolved(ba, "/p/a.js"))
	g.Freeze()

	cg, err := NewChunkGraph(g, ModuleIDsNamed, "/p")
	require.NoError(t, err)
	s := g.Snapshot(cg)

	assert.Equal(t, 2, s.Stats.ModuleCount)
	assert.Equal(t, 3, s.Stats.DependencyCount)
	assert.Equal(t, 1, s.Stats.UnresolvedCount)
	assert.Equal(t, 1, s.Stats.Components)
	require.Len(t, s.Stats.Cycles, 1)
	assert.Equal(t, []string{"./a.js", "./b.js"}, s.Stats.Cycles[0])
	assert.Equal(t, "./missing", s.Edges[2].Request)

	dot := ExportDOT(s)
	assert.Contains(t, dot, `"./a.js" -> "./b.js"`)
	assert.Contains(t, dot, "unresolved:./missing")

	mermaid := ExportMermaid(s)
	assert.True(t, strings.HasPrefix(mermaid, "graph LR\n"))

	data, err := ExportJSON(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"unresolved_count": 1`)
	assert.Contains(t, FormatStats(s), "Cycles: 1")
}
