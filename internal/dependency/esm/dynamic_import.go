// Package esm holds ECMAScript module references.
package esm

import (
	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/codegen"
	"github.com/rocketlyz/rspack/internal/dependency"
)

// RuntimeDynamicImport loads a module by id and returns a promise of its
// namespace.
const RuntimeDynamicImport = "__webpack_require__.import"

// DynamicImportDependency is `import("request")`. It is strict.
type DynamicImportDependency struct {
	dependency.Base
	request    string
	span       *dependency.Span
	calleePath ast.Path
}

var (
	_ dependency.ModuleDependency = (*DynamicImportDependency)(nil)
	_ codegen.Generatable         = (*DynamicImportDependency)(nil)
)

// NewDynamicImportDependency records an import() call. path addresses the
// request string and calleePath the `import` keyword.
func NewDynamicImportDependency(request string, span *dependency.Span, path, calleePath ast.Path) *DynamicImportDependency {
	return &DynamicImportDependency{
		Base:       dependency.NewBase(dependency.CategoryESM, dependency.TypeDynamicImport, path),
		request:    request,
		span:       span,
		calleePath: calleePath,
	}
}

func (d *DynamicImportDependency) Request() string { return d.request }

func (d *DynamicImportDependency) UserRequest() string { return d.request }

func (d *DynamicImportDependency) Span() *dependency.Span { return d.span }

func (d *DynamicImportDependency) Optional() bool { return false }

// Generate turns import("x") into __webpack_require__.import("<id>").
func (d *DynamicImportDependency) Generate(ctx *codegen.Context) (*codegen.Result, error) {
	moduleID, ok := ctx.ResolvedModuleID(d)
	if !ok {
		return nil, ctx.Unresolved(d)
	}
	res := &codegen.Result{}
	res.AddVisitor(codegen.ReplaceNode(d.calleePath, ast.KindImport, RuntimeDynamicImport))
	res.AddVisitor(codegen.ReplaceString(d.ASTPath(), moduleID))
	res.Require(RuntimeDynamicImport)
	return res, nil
}
