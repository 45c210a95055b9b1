package codegen

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/observability"
)

// Module is one parsed module ready for generation.
type Module struct {
	Identifier   identifier.Identifier
	Tree         *ast.Tree
	Dependencies []dependency.Dependency
}

// ModuleOutput is the generated source of one module.
type ModuleOutput struct {
	Identifier          identifier.Identifier
	Source              []byte
	Replacements        []ast.Replacement
	RuntimeRequirements []string
	Visitors            int
}

// GenerateModule collects the visitors of every generatable dependency,
// applies them to the module's tree in one traversal and prints the result.
func GenerateModule(ctx *Context, m *Module) (*ModuleOutput, error) {
	var combined Result
	for _, dep := range m.Dependencies {
		g, ok := dep.(Generatable)
		if !ok {
			continue
		}
		res, err := g.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate %s dependency at %s: %w", dep.Type(), dep.ASTPath(), err)
		}
		combined.Merge(res)
	}

	if err := Apply(m.Tree, combined.Visitors); err != nil {
		return nil, fmt.Errorf("apply visitors to %s: %w", m.Identifier, err)
	}

	src, reps := ast.PrintWithReplacements(m.Tree)
	return &ModuleOutput{
		Identifier:          m.Identifier,
		Source:              src,
		Replacements:        reps,
		RuntimeRequirements: combined.RuntimeRequirements,
		Visitors:            len(combined.Visitors),
	}, nil
}

// FrozenResolver is a module resolver that can report whether it still
// accepts mutations.
type FrozenResolver interface {
	ModuleResolver
	Frozen() bool
}

// Generator runs GenerateModule over many modules in parallel.
type Generator struct {
	Modules     FrozenResolver
	Chunks      ChunkGraph
	Parallelism int
	Metrics     *observability.BuildMetrics
	Logger      zerolog.Logger
}

// Generate produces outputs in the order of modules. Generation refuses to
// start until the module graph is frozen; the first fatal error cancels
// the remaining modules.
func (g *Generator) Generate(ctx context.Context, modules []*Module) ([]*ModuleOutput, error) {
	if !g.Modules.Frozen() {
		return nil, ErrGraphNotFrozen
	}

	limit := g.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	outputs := make([]*ModuleOutput, len(modules))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, m := range modules {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			_, span := observability.StartCodegenSpan(egCtx, m.Identifier.String(), len(m.Dependencies))
			defer span.End()

			start := time.Now()
			out, err := GenerateModule(&Context{Module: m.Identifier, Modules: g.Modules, Chunks: g.Chunks}, m)
			if err != nil {
				observability.RecordError(span, err)
				return err
			}
			observability.RecordCodegenResult(span, out.Visitors)
			if g.Metrics != nil {
				g.Metrics.RecordCodegen(time.Since(start), out.Visitors)
			}
			g.Logger.Debug().
				Str("module", m.Identifier.String()).
				Int("visitors", out.Visitors).
				Msg("generated module")
			outputs[i] = out
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
