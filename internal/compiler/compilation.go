package compiler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/codegen"
	"github.com/rocketlyz/rspack/internal/config"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/graph"
	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/loader"
	"github.com/rocketlyz/rspack/internal/observability"
	"github.com/rocketlyz/rspack/internal/parser/javascript"
)

// ModuleNotFoundError reports a strict request no file satisfies.
type ModuleNotFoundError struct {
	Module  identifier.Identifier
	Request string
	Type    dependency.Type
	Span    *dependency.Span
	Err     error
}

func (e *ModuleNotFoundError) Error() string {
	loc := ""
	if e.Span != nil {
		loc = " at " + e.Span.String()
	}
	return fmt.Sprintf("%s: cannot resolve %s %q%s: %v", e.Module, e.Type, e.Request, loc, e.Err)
}

func (e *ModuleNotFoundError) Unwrap() error { return e.Err }

// builtModule is a module that went through its loaders and the parser.
// targets[i] is the module deps[i] resolved to, empty when unresolved.
type builtModule struct {
	resource loader.ResourceData
	tree     *ast.Tree
	deps     []dependency.ModuleDependency
	targets  []identifier.Identifier
	size     int
	cached   bool
}

// compilation is the state of one Run.
type compilation struct {
	c      *Compiler
	id     string
	logger zerolog.Logger
	sem    *semaphore.Weighted

	mu          sync.Mutex
	entries     []identifier.Identifier
	scheduled   map[identifier.Identifier]bool
	built       map[identifier.Identifier]*builtModule
	fileDeps    map[string]struct{}
	missingDeps map[string]struct{}
	assets      map[string]loader.Asset
	warnings    []string
	errs        *multierror.Error

	graph   *graph.ModuleGraph
	chunks  *graph.ChunkGraph
	outputs []*codegen.ModuleOutput
	emitted []AssetStats
}

func newCompilation(c *Compiler, id string) *compilation {
	return &compilation{
		c:           c,
		id:          id,
		logger:      c.logger.With().Str("compilation", id).Logger(),
		sem:         semaphore.NewWeighted(int64(c.parallelism())),
		scheduled:   make(map[identifier.Identifier]bool),
		built:       make(map[identifier.Identifier]*builtModule),
		fileDeps:    make(map[string]struct{}),
		missingDeps: make(map[string]struct{}),
		assets:      make(map[string]loader.Asset),
		graph:       graph.NewModuleGraph(),
	}
}

// fail records a module error. With fail_fast it returns err so the
// errgroup cancels the remaining work; otherwise it returns nil and the
// build continues.
func (comp *compilation) fail(err error) error {
	if comp.c.cfg.FailFast {
		return err
	}
	comp.mu.Lock()
	comp.errs = multierror.Append(comp.errs, err)
	comp.mu.Unlock()
	comp.logger.Error().Err(err).Msg("module failed")
	return nil
}

func (comp *compilation) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	comp.mu.Lock()
	comp.warnings = append(comp.warnings, msg)
	comp.mu.Unlock()
	comp.logger.Warn().Msg(msg)
}

// claim reports whether id still needs building and marks it scheduled.
func (comp *compilation) claim(id identifier.Identifier) bool {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	if comp.scheduled[id] {
		return false
	}
	comp.scheduled[id] = true
	return true
}

// make builds every module reachable from the entries.
func (comp *compilation) make(ctx context.Context) error {
	ctx, span := observability.StartPhaseSpan(ctx, "make")
	defer span.End()

	cfg := comp.c.cfg
	eg, egCtx := errgroup.WithContext(ctx)
	for _, entry := range cfg.Entry {
		res, err := comp.c.resolver.ResolveEntry(cfg.Context, entry)
		if err != nil {
			if ferr := comp.fail(fmt.Errorf("entry %q: %w", entry, err)); ferr != nil {
				observability.RecordError(span, ferr)
				return ferr
			}
			continue
		}
		comp.addMissing(res.Missing)
		id := identifier.Identifier(res.Resource.Resource)
		comp.entries = append(comp.entries, id)
		if comp.claim(id) {
			comp.schedule(egCtx, eg, res.Resource)
		}
	}

	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = comp.errs.ErrorOrNil()
	}
	observability.RecordError(span, err)
	return err
}

func (comp *compilation) schedule(ctx context.Context, eg *errgroup.Group, resource loader.ResourceData) {
	eg.Go(func() error {
		return comp.buildModule(ctx, eg, resource)
	})
}

// buildModule loads, parses and resolves one module, scheduling every
// target it discovers.
func (comp *compilation) buildModule(ctx context.Context, eg *errgroup.Group, resource loader.ResourceData) error {
	if err := comp.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b, err := comp.load(ctx, resource)
	comp.sem.Release(1)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		return comp.fail(err)
	}

	id := identifier.Identifier(resource.Resource)
	b.targets = make([]identifier.Identifier, len(b.deps))
	for i, dep := range b.deps {
		res, err := comp.c.resolver.Resolve(resource.Path, dep.Request())
		if err != nil {
			if dep.Optional() {
				comp.warn("%s: %s %q not resolved: %v", id, dep.Type(), dep.UserRequest(), err)
				continue
			}
			nf := &ModuleNotFoundError{Module: id, Request: dep.UserRequest(), Type: dep.Type(), Span: dep.Span(), Err: err}
			if ferr := comp.fail(nf); ferr != nil {
				return ferr
			}
			continue
		}
		comp.addMissing(res.Missing)
		target := identifier.Identifier(res.Resource.Resource)
		b.targets[i] = target
		if comp.claim(target) {
			comp.schedule(ctx, eg, res.Resource)
		}
	}

	comp.mu.Lock()
	comp.built[id] = b
	comp.mu.Unlock()
	return nil
}

// load runs the module's loader chain, consulting the cache, and parses the
// result.
func (comp *compilation) load(ctx context.Context, resource loader.ResourceData) (*builtModule, error) {
	c := comp.c
	uses := config.LoadersFor(c.rules, c.cfg.Context, resource.Path, resource.Query)
	chain := make([]loader.Loader, 0, len(uses))
	for _, use := range uses {
		l, err := c.registry.Create(use.Loader, use.Options)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", resource, err)
		}
		chain = append(chain, l)
	}

	key := loader.CacheKey(resource, chain)
	result, cached := c.cache.Lookup(ctx, key)
	if !cached {
		var err error
		result, err = loader.RunLoaders(ctx, resource, chain,
			loader.WithFs(c.fs),
			loader.WithPlugins(c.plugins...),
			loader.WithLogger(comp.logger),
			loader.WithMetrics(c.metrics),
		)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Save(ctx, key, result); err != nil {
			comp.logger.Warn().Err(err).Str("resource", resource.String()).Msg("loader result not cached")
		}
	}
	comp.collect(resource, result)

	src, err := result.Content.AsText()
	if err != nil {
		return nil, fmt.Errorf("module %s: loader output is not JavaScript text: %w", resource, err)
	}
	m, err := javascript.Parse(ctx, c.parse, []byte(src))
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", resource, err)
	}
	comp.logger.Debug().
		Str("resource", resource.String()).
		Int("loaders", len(chain)).
		Int("dependencies", len(m.Dependencies)).
		Bool("cached", cached).
		Msg("built module")
	return &builtModule{resource: resource, tree: m.Tree, deps: m.Dependencies, size: len(src), cached: cached}, nil
}

// collect merges what a loader run reported into the compilation.
func (comp *compilation) collect(resource loader.ResourceData, r *loader.Result) {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	for _, f := range r.FileDependencies {
		comp.fileDeps[f] = struct{}{}
	}
	for _, f := range r.MissingDependencies {
		comp.missingDeps[f] = struct{}{}
	}
	for _, a := range r.Assets {
		comp.assets[a.Name] = a
	}
	for _, w := range r.Warnings {
		comp.warnings = append(comp.warnings, fmt.Sprintf("%s: %s", resource, w))
	}
}

func (comp *compilation) addMissing(paths []string) {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	for _, p := range paths {
		comp.missingDeps[p] = struct{}{}
	}
}

// link registers the built modules in the module graph. Modules are added
// depth-first from the entries in source order, so dependency ids and
// insertion order do not depend on build scheduling.
func (comp *compilation) link() error {
	visited := make(map[identifier.Identifier]bool)
	var visit func(id identifier.Identifier) error
	visit = func(id identifier.Identifier) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		b, ok := comp.built[id]
		if !ok {
			return fmt.Errorf("module %s was never built", id)
		}
		if _, err := comp.graph.AddModule(id, b.resource.Resource); err != nil {
			return err
		}
		for i, dep := range b.deps {
			depID, err := comp.graph.AddDependency(id, dep)
			if err != nil {
				return err
			}
			target := b.targets[i]
			if target == "" {
				continue
			}
			if err := visit(target); err != nil {
				return err
			}
			if err := comp.graph.SetResolved(depID, target); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range comp.entries {
		if err := visit(e); err != nil {
			return err
		}
	}
	comp.graph.Freeze()
	return nil
}

// seal links the graph, assigns module ids and generates every module.
func (comp *compilation) seal(ctx context.Context) error {
	ctx, span := observability.StartPhaseSpan(ctx, "seal")
	defer span.End()

	if err := comp.link(); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("link: %w", err)
	}
	chunks, err := graph.NewChunkGraph(comp.graph, graph.ModuleIDStrategy(comp.c.cfg.Optimization.ModuleIDs), comp.c.cfg.Context)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	comp.chunks = chunks

	modules := comp.graph.Modules()
	inputs := make([]*codegen.Module, 0, len(modules))
	for _, m := range modules {
		inputs = append(inputs, &codegen.Module{
			Identifier:   m.Identifier,
			Tree:         comp.built[m.Identifier].tree,
			Dependencies: m.Dependencies,
		})
	}

	gen := &codegen.Generator{
		Modules:     comp.graph,
		Chunks:      chunks,
		Parallelism: comp.c.parallelism(),
		Metrics:     comp.c.metrics,
		Logger:      comp.logger,
	}
	outputs, err := gen.Generate(ctx, inputs)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	comp.outputs = outputs
	return nil
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
