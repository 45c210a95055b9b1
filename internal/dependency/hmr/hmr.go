// Package hmr holds the hot module replacement references:
// module.hot.accept(request) and module.hot.decline(request).
//
// Both are lenient: a request the graph did not resolve keeps its original
// text and produces no edit.
package hmr

import (
	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/codegen"
	"github.com/rocketlyz/rspack/internal/dependency"
)

type hotRequest struct {
	dependency.Base
	request string
	span    *dependency.Span
}

func (d *hotRequest) Request() string { return d.request }

func (d *hotRequest) UserRequest() string { return d.request }

func (d *hotRequest) Span() *dependency.Span { return d.span }

func (d *hotRequest) Optional() bool { return true }

func (d *hotRequest) generate(ctx *codegen.Context) (*codegen.Result, error) {
	res := &codegen.Result{}
	if moduleID, ok := ctx.ResolvedModuleID(d); ok {
		res.AddVisitor(codegen.ReplaceString(d.ASTPath(), moduleID))
	}
	return res, nil
}

// ModuleHotDeclineDependency is the string argument of module.hot.decline.
type ModuleHotDeclineDependency struct {
	hotRequest
}

var (
	_ dependency.ModuleDependency = (*ModuleHotDeclineDependency)(nil)
	_ codegen.Generatable         = (*ModuleHotDeclineDependency)(nil)
)

// NewModuleHotDeclineDependency records a declined request found at path.
func NewModuleHotDeclineDependency(request string, span *dependency.Span, path ast.Path) *ModuleHotDeclineDependency {
	return &ModuleHotDeclineDependency{hotRequest{
		Base:    dependency.NewBase(dependency.CategoryCommonJS, dependency.TypeModuleHotDecline, path),
		request: request,
		span:    span,
	}}
}

// Generate rewrites the request string to the target's module id.
func (d *ModuleHotDeclineDependency) Generate(ctx *codegen.Context) (*codegen.Result, error) {
	return d.generate(ctx)
}

// ModuleHotAcceptDependency is a string argument of module.hot.accept.
type ModuleHotAcceptDependency struct {
	hotRequest
}

var (
	_ dependency.ModuleDependency = (*ModuleHotAcceptDependency)(nil)
	_ codegen.Generatable         = (*ModuleHotAcceptDependency)(nil)
)

// NewModuleHotAcceptDependency records an accepted request found at path.
func NewModuleHotAcceptDependency(request string, span *dependency.Span, path ast.Path) *ModuleHotAcceptDependency {
	return &ModuleHotAcceptDependency{hotRequest{
		Base:    dependency.NewBase(dependency.CategoryCommonJS, dependency.TypeModuleHotAccept, path),
		request: request,
		span:    span,
	}}
}

// Generate rewrites the request string to the target's module id.
func (d *ModuleHotAcceptDependency) Generate(ctx *codegen.Context) (*codegen.Result, error) {
	return d.generate(ctx)
}
