package dependency_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/ast/asttest"
	"github.com/rocketlyz/rspack/internal/codegen"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/dependency/commonjs"
	"github.com/rocketlyz/rspack/internal/dependency/esm"
	"github.com/rocketlyz/rspack/internal/dependency/hmr"
	"github.com/rocketlyz/rspack/internal/identifier"
)

type resolver map[dependency.ID]identifier.Identifier

func (r resolver) ModuleByDependencyID(id dependency.ID) (identifier.Identifier, bool) {
	m, ok := r[id]
	return m, ok
}

type names map[identifier.Identifier]string

func (n names) ModuleID(m identifier.Identifier) string { return n[m] }

var (
	stmt0      = ast.Path{{Index: 0}, {Index: 0}}
	calleePath = stmt0.Child("function", 0)
	argPath    = ast.Path{{Index: 0}, {Index: 0}, {Field: "arguments", Index: 1}, {Index: 1}}
)

func TestBaseSetIDOnce(t *testing.T) {
	b := dependency.NewBase(dependency.CategoryCommonJS, dependency.TypeCjsRequire, nil)
	_, ok := b.ID()
	assert.False(t, ok)

	assert.Error(t, b.SetID(0))
	require.NoError(t, b.SetID(3))
	err := b.SetID(4)
	assert.True(t, errors.Is(err, dependency.ErrIDAlreadySet))
	id, ok := b.ID()
	assert.True(t, ok)
	assert.Equal(t, dependency.ID(3), id)
	assert.Equal(t, "dep#3", id.String())
}

func TestKindsReportCategoryAndType(t *testing.T) {
	tests := []struct {
		dep      dependency.ModuleDependency
		category dependency.Category
		typ      string
		optional bool
	}{
		{hmr.NewModuleHotDeclineDependency("./a", nil, argPath), dependency.CategoryCommonJS, "module.hot.decline", true},
		{hmr.NewModuleHotAcceptDependency("./a", nil, argPath), dependency.CategoryCommonJS, "module.hot.accept", true},
		{commonjs.NewRequireDependency("./a", nil, argPath, calleePath), dependency.CategoryCommonJS, "cjs require", false},
		{esm.NewDynamicImportDependency("./a", nil, argPath, calleePath), dependency.CategoryESM, "dynamic import", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.dep.Category())
			assert.Equal(t, tt.typ, tt.dep.Type().String())
			assert.Equal(t, tt.optional, tt.dep.Optional())
			assert.Equal(t, "./a", tt.dep.Request())
			assert.Equal(t, "./a", tt.dep.UserRequest())
			assert.True(t, argPath.Equal(tt.dep.ASTPath()))
		})
	}
}

func generateInto(t *testing.T, src string, dep codegen.Generatable, ctx *codegen.Context) (string, *codegen.Result) {
	t.Helper()
	res, err := dep.Generate(ctx)
	require.NoError(t, err)
	tree := asttest.MustParse(src)
	require.NoError(t, codegen.Apply(tree, res.Visitors))
	return string(ast.Print(tree)), res
}

func TestRequireRewritesCalleeAndRequest(t *testing.T) {
	d := commonjs.NewRequireDependency("./b", &dependency.Span{Start: 8, End: 13}, argPath, calleePath)
	require.NoError(t, d.SetID(1))
	ctx := &codegen.Context{
		Module:  "/src/index.js",
		Modules: resolver{1: "/src/b.js"},
		Chunks:  names{"/src/b.js": "./src/b.js"},
	}

	out, res := generateInto(t, `require('./b');`, d, ctx)
	assert.Equal(t, `__webpack_require__("./src/b.js");`, out)
	assert.Equal(t, []string{commonjs.RuntimeRequire}, res.RuntimeRequirements)
}

func TestRequireUnresolvedIsFatal(t *testing.T) {
	d := commonjs.NewRequireDependency("./gone", &dependency.Span{Start: 8, End: 16}, argPath, calleePath)
	require.NoError(t, d.SetID(1))

	_, err := d.Generate(&codegen.Context{Module: "/src/index.js", Modules: resolver{}, Chunks: names{}})
	var unresolved *codegen.UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "./gone", unresolved.Request)
	assert.Equal(t, identifier.Identifier("/src/index.js"), unresolved.Module)
	assert.Contains(t, err.Error(), `unresolved cjs require "./gone" at 8..16`)
}

func TestDynamicImportRewrite(t *testing.T) {
	d := esm.NewDynamicImportDependency("./lazy", nil, argPath, calleePath)
	require.NoError(t, d.SetID(9))
	ctx := &codegen.Context{Modules: resolver{9: "/lazy.js"}, Chunks: names{"/lazy.js": "42"}}

	out, res := generateInto(t, `import("./lazy")`, d, ctx)
	assert.Equal(t, `__webpack_require__.import("42")`, out)
	assert.Equal(t, []string{esm.RuntimeDynamicImport}, res.RuntimeRequirements)
}

func TestHotAcceptResolvedAndUnresolved(t *testing.T) {
	d := hmr.NewModuleHotAcceptDependency("./dep", nil, argPath)
	require.NoError(t, d.SetID(2))

	out, _ := generateInto(t, `module.hot.accept('./dep')`, d, &codegen.Context{
		Modules: resolver{2: "/dep.js"},
		Chunks:  names{"/dep.js": "dep"},
	})
	assert.Equal(t, `module.hot.accept("dep")`, out)

	out, res := generateInto(t, `module.hot.accept('./dep')`, d, &codegen.Context{Modules: resolver{}, Chunks: names{}})
	assert.Equal(t, `module.hot.accept('./dep')`, out)
	assert.Empty(t, res.Visitors)
}
