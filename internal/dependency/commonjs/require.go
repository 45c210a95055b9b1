// Package commonjs holds CommonJS references.
package commonjs

import (
	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/codegen"
	"github.com/rocketlyz/rspack/internal/dependency"
)

// RuntimeRequire is the module loading function the bundle runtime defines.
const RuntimeRequire = "__webpack_require__"

// RequireDependency is `require("request")`. It is strict: an unresolved
// target fails generation.
type RequireDependency struct {
	dependency.Base
	request    string
	span       *dependency.Span
	calleePath ast.Path
}

var (
	_ dependency.ModuleDependency = (*RequireDependency)(nil)
	_ codegen.Generatable         = (*RequireDependency)(nil)
)

// NewRequireDependency records a require call. path addresses the request
// string and calleePath the `require` identifier.
func NewRequireDependency(request string, span *dependency.Span, path, calleePath ast.Path) *RequireDependency {
	return &RequireDependency{
		Base:       dependency.NewBase(dependency.CategoryCommonJS, dependency.TypeCjsRequire, path),
		request:    request,
		span:       span,
		calleePath: calleePath,
	}
}

func (d *RequireDependency) Request() string { return d.request }

func (d *RequireDependency) UserRequest() string { return d.request }

func (d *RequireDependency) Span() *dependency.Span { return d.span }

func (d *RequireDependency) Optional() bool { return false }

// CalleePath addresses the `require` identifier of the call.
func (d *RequireDependency) CalleePath() ast.Path { return d.calleePath }

// Generate renames the callee to the runtime require and the request to the
// target's module id.
func (d *RequireDependency) Generate(ctx *codegen.Context) (*codegen.Result, error) {
	moduleID, ok := ctx.ResolvedModuleID(d)
	if !ok {
		return nil, ctx.Unresolved(d)
	}
	res := &codegen.Result{}
	res.AddVisitor(codegen.ReplaceNode(d.calleePath, ast.KindIdentifier, RuntimeRequire))
	res.AddVisitor(codegen.ReplaceString(d.ASTPath(), moduleID))
	res.Require(RuntimeRequire)
	return res, nil
}
