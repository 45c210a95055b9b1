// Package codegen turns resolved dependencies into localized edits on a
// module's original parse tree.
package codegen

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/identifier"
)

var (
	// ErrGraphNotFrozen is returned when generation starts before the
	// module graph stopped accepting mutations.
	ErrGraphNotFrozen = errors.New("module graph is not frozen")
	// ErrOverlappingVisitors is returned when one visitor's path is an
	// ancestor of another's.
	ErrOverlappingVisitors = errors.New("overlapping visitors")
)

// ModuleResolver maps a registered dependency to its target module.
type ModuleResolver interface {
	ModuleByDependencyID(id dependency.ID) (identifier.Identifier, bool)
}

// ChunkGraph computes the identifier a module is addressed by in output.
type ChunkGraph interface {
	ModuleID(module identifier.Identifier) string
}

// Context is the read-only view a dependency generates against.
type Context struct {
	Module  identifier.Identifier
	Modules ModuleResolver
	Chunks  ChunkGraph
}

// ResolvedModuleID returns the output id of d's target. It is false when
// d was never registered or the graph holds no target for it.
func (c *Context) ResolvedModuleID(d dependency.Dependency) (string, bool) {
	id, ok := d.ID()
	if !ok {
		return "", false
	}
	target, ok := c.Modules.ModuleByDependencyID(id)
	if !ok {
		return "", false
	}
	return c.Chunks.ModuleID(target), true
}

// Generatable is implemented by dependency kinds that patch the tree.
type Generatable interface {
	Generate(ctx *Context) (*Result, error)
}

// Visitor edits the node at Path. Edit must only touch that node.
type Visitor struct {
	Path ast.Path
	Edit func(n *ast.Node) error
}

// Result is what one dependency contributes to its module's output.
type Result struct {
	Visitors            []Visitor
	RuntimeRequirements []string
}

// AddVisitor appends a visitor.
func (r *Result) AddVisitor(v Visitor) {
	r.Visitors = append(r.Visitors, v)
}

// Require records a runtime helper the generated code calls.
func (r *Result) Require(name string) {
	i := sort.SearchStrings(r.RuntimeRequirements, name)
	if i < len(r.RuntimeRequirements) && r.RuntimeRequirements[i] == name {
		return
	}
	r.RuntimeRequirements = append(r.RuntimeRequirements, "")
	copy(r.RuntimeRequirements[i+1:], r.RuntimeRequirements[i:])
	r.RuntimeRequirements[i] = name
}

// Merge folds o into r, keeping o's visitors after r's.
func (r *Result) Merge(o *Result) {
	if o == nil {
		return
	}
	r.Visitors = append(r.Visitors, o.Visitors...)
	for _, name := range o.RuntimeRequirements {
		r.Require(name)
	}
}

// ReplaceString sets a string literal's value to value and its text to the
// double-quoted form of value.
func ReplaceString(path ast.Path, value string) Visitor {
	raw := ast.Quote(value)
	return Visitor{
		Path: path,
		Edit: func(n *ast.Node) error {
			return n.SetString(value, raw)
		},
	}
}

// ReplaceNode swaps the text of the node at path, which must be of kind.
func ReplaceNode(path ast.Path, kind, raw string) Visitor {
	return Visitor{
		Path: path,
		Edit: func(n *ast.Node) error {
			if n.Kind != kind {
				return fmt.Errorf("expected %s node, found %s", kind, n.Kind)
			}
			n.Replace(raw)
			return nil
		},
	}
}

// UnresolvedReferenceError reports a strict dependency whose target is
// missing from the graph.
type UnresolvedReferenceError struct {
	Module  identifier.Identifier
	Request string
	Type    dependency.Type
	Span    *dependency.Span
}

func (e *UnresolvedReferenceError) Error() string {
	loc := ""
	if e.Span != nil {
		loc = " at " + e.Span.String()
	}
	return fmt.Sprintf("%s: unresolved %s %q%s", e.Module, e.Type, e.Request, loc)
}

// Unresolved builds the error for d in the module being generated.
func (c *Context) Unresolved(d dependency.ModuleDependency) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{
		Module:  c.Module,
		Request: d.UserRequest(),
		Type:    d.Type(),
		Span:    d.Span(),
	}
}
