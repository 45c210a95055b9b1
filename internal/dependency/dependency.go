// Package dependency defines references discovered while parsing a module.
//
// Concrete reference kinds live in sub-packages (hmr, commonjs, esm). Each
// kind is its own type implementing Dependency, optionally ModuleDependency
// and codegen.Generatable, so adding a kind never touches shared code.
package dependency

import (
	"errors"
	"fmt"

	"github.com/rocketlyz/rspack/internal/ast"
)

// ID identifies a dependency inside one module graph. Zero is never issued.
type ID uint32

func (id ID) String() string { return fmt.Sprintf("dep#%d", uint32(id)) }

// ErrIDAlreadySet is returned when a dependency is registered twice.
var ErrIDAlreadySet = errors.New("dependency id already set")

// Dependency is one reference from a module to another module or to a
// runtime API.
type Dependency interface {
	// ID returns the graph-assigned id; ok is false until registration.
	ID() (id ID, ok bool)
	// SetID assigns the id. It succeeds exactly once.
	SetID(id ID) error
	Category() Category
	Type() Type
	// ASTPath addresses the node the dependency was discovered at.
	ASTPath() ast.Path
}

// ModuleDependency is a dependency carrying a request for the resolver.
type ModuleDependency interface {
	Dependency
	// Request is the specifier as written in source.
	Request() string
	// UserRequest is the display form used in diagnostics.
	UserRequest() string
	Span() *Span
	// Optional reports whether an unresolved target is acceptable for
	// this kind. Strict kinds fail the build when resolution fails.
	Optional() bool
}

// Base carries the fields every kind shares. Category and type are fixed
// at construction; the id is written once.
type Base struct {
	id       ID
	category Category
	typ      Type
	path     ast.Path
}

// NewBase returns the shared part of a dependency.
func NewBase(category Category, typ Type, path ast.Path) Base {
	return Base{category: category, typ: typ, path: path}
}

func (b *Base) ID() (ID, bool) {
	return b.id, b.id != 0
}

func (b *Base) SetID(id ID) error {
	if id == 0 {
		return fmt.Errorf("set %s dependency id: zero id", b.typ)
	}
	if b.id != 0 {
		return fmt.Errorf("set %s dependency id to %s (has %s): %w", b.typ, id, b.id, ErrIDAlreadySet)
	}
	b.id = id
	return nil
}

func (b *Base) Category() Category { return b.category }

func (b *Base) Type() Type { return b.typ }

func (b *Base) ASTPath() ast.Path { return b.path }

// Span is a byte range in the module source, used for diagnostics.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// SpanOf returns the span of n.
func SpanOf(n *ast.Node) *Span {
	if n == nil {
		return nil
	}
	return &Span{Start: n.Start, End: n.End}
}
