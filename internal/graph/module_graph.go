// Package graph is the module graph and chunk graph the build resolves
// dependencies against and code generation reads from.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/identifier"
)

// ErrFrozen is returned by any mutation after Freeze.
var ErrFrozen = errors.New("module graph is frozen")

// Module is a node of the module graph.
type Module struct {
	Identifier   identifier.Identifier
	Resource     string
	Index        int
	Dependencies []dependency.Dependency
}

// idAllocator hands out dependency ids for one graph. Ids start at 1 so
// the zero value stays "unset".
type idAllocator struct {
	last dependency.ID
}

func (a *idAllocator) next() dependency.ID {
	a.last++
	return a.last
}

// ModuleGraph records modules, their dependencies and what each dependency
// resolved to. It is safe for concurrent use while being built; after
// Freeze it is read-only.
type ModuleGraph struct {
	mu       sync.RWMutex
	frozen   bool
	ids      idAllocator
	modules  map[identifier.Identifier]*Module
	order    []*Module
	deps     map[dependency.ID]dependency.Dependency
	origin   map[dependency.ID]identifier.Identifier
	resolved map[dependency.ID]identifier.Identifier
}

// NewModuleGraph returns an empty graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules:  make(map[identifier.Identifier]*Module),
		deps:     make(map[dependency.ID]dependency.Dependency),
		origin:   make(map[dependency.ID]identifier.Identifier),
		resolved: make(map[dependency.ID]identifier.Identifier),
	}
}

// AddModule inserts a module, returning the existing one if already present.
func (g *ModuleGraph) AddModule(id identifier.Identifier, resource string) (*Module, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return nil, ErrFrozen
	}
	if m, ok := g.modules[id]; ok {
		return m, nil
	}
	m := &Module{Identifier: id, Resource: resource, Index: len(g.order)}
	g.modules[id] = m
	g.order = append(g.order, m)
	return m, nil
}

// AddDependency registers dep as originating from module and assigns its id.
func (g *ModuleGraph) AddDependency(module identifier.Identifier, dep dependency.Dependency) (dependency.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return 0, ErrFrozen
	}
	m, ok := g.modules[module]
	if !ok {
		return 0, fmt.Errorf("add dependency: unknown module %s", module)
	}
	if _, ok := dep.ID(); ok {
		return 0, fmt.Errorf("add %s dependency to %s: %w", dep.Type(), module, dependency.ErrIDAlreadySet)
	}
	id := g.ids.next()
	if err := dep.SetID(id); err != nil {
		return 0, err
	}
	g.deps[id] = dep
	g.origin[id] = module
	m.Dependencies = append(m.Dependencies, dep)
	return id, nil
}

// SetResolved records that dependency id points at target.
func (g *ModuleGraph) SetResolved(id dependency.ID, target identifier.Identifier) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrFrozen
	}
	if _, ok := g.deps[id]; !ok {
		return fmt.Errorf("resolve %s: unknown dependency", id)
	}
	if _, ok := g.modules[target]; !ok {
		return fmt.Errorf("resolve %s: unknown target module %s", id, target)
	}
	g.resolved[id] = target
	return nil
}

// Freeze stops all further mutation. Calling it twice is harmless.
func (g *ModuleGraph) Freeze() {
	g.mu.Lock()
	g.frozen = true
	g.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (g *ModuleGraph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// ModuleByDependencyID returns the module a dependency resolved to.
func (g *ModuleGraph) ModuleByDependencyID(id dependency.ID) (identifier.Identifier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.resolved[id]
	return m, ok
}

// Module returns a module by identifier.
func (g *ModuleGraph) Module(id identifier.Identifier) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	return m, ok
}

// Modules returns all modules in insertion order.
func (g *ModuleGraph) Modules() []*Module {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Module, len(g.order))
	copy(out, g.order)
	return out
}

// Dependency returns a registered dependency and the module it came from.
func (g *ModuleGraph) Dependency(id dependency.ID) (dependency.Dependency, identifier.Identifier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.deps[id]
	return d, g.origin[id], ok
}

// DependencyCount returns the number of registered dependencies.
func (g *ModuleGraph) DependencyCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.deps)
}
