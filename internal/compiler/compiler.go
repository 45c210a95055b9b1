// Package compiler drives a build: entries are loaded through their loader
// chains, parsed, linked into the module graph, generated and emitted as a
// single bundle.
package compiler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/cache"
	"github.com/rocketlyz/rspack/internal/config"
	"github.com/rocketlyz/rspack/internal/loader"
	"github.com/rocketlyz/rspack/internal/loader/builtin"
	"github.com/rocketlyz/rspack/internal/observability"
	"github.com/rocketlyz/rspack/internal/parser/javascript"
	"github.com/rocketlyz/rspack/internal/resolve"
)

// Compiler builds the project described by a config. A Compiler may run
// many times, e.g. once per change in watch mode; runs must not overlap.
type Compiler struct {
	cfg      *config.Config
	rules    []*config.Rule
	fs       afero.Fs
	parse    javascript.ParseFunc
	registry *builtin.Registry
	plugins  []loader.Plugin
	cache    *cache.Cache
	resolver *resolve.Resolver
	logger   zerolog.Logger
	metrics  *observability.BuildMetrics
	emit     bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFs sets the file system sources are read from and output is written
// to. The default is the OS file system.
func WithFs(fs afero.Fs) Option {
	return func(c *Compiler) { c.fs = fs }
}

// WithParser replaces the tree-sitter JavaScript parser.
func WithParser(parse javascript.ParseFunc) Option {
	return func(c *Compiler) { c.parse = parse }
}

// WithRegistry sets the loaders rules may name. The default holds the
// builtin loaders.
func WithRegistry(r *builtin.Registry) Option {
	return func(c *Compiler) { c.registry = r }
}

// WithLoaderPlugins installs loader runner plugins for every module.
func WithLoaderPlugins(plugins ...loader.Plugin) Option {
	return func(c *Compiler) { c.plugins = append(c.plugins, plugins...) }
}

// WithCache reuses loader results across runs.
func WithCache(cc *cache.Cache) Option {
	return func(c *Compiler) { c.cache = cc }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithMetrics records loader, codegen and compilation metrics.
func WithMetrics(m *observability.BuildMetrics) Option {
	return func(c *Compiler) { c.metrics = m }
}

// WithEmit controls whether the bundle and assets are written. Without
// emitting, a run still builds and generates every module.
func WithEmit(emit bool) Option {
	return func(c *Compiler) { c.emit = emit }
}

// New validates the rules of cfg and returns a compiler.
func New(cfg *config.Config, opts ...Option) (*Compiler, error) {
	c := &Compiler{
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		parse:    javascript.TreeSitter,
		registry: builtin.Default(),
		logger:   zerolog.Nop(),
		emit:     true,
	}
	for _, opt := range opts {
		opt(c)
	}

	rules, err := cfg.CompileRules()
	if err != nil {
		return nil, err
	}
	c.rules = rules
	c.resolver = resolve.New(c.fs, cfg.Resolve.Extensions, cfg.Resolve.MainFiles)
	return c, nil
}

func (c *Compiler) parallelism() int {
	if c.cfg.Parallelism > 0 {
		return c.cfg.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// Run performs one build. The returned stats are never nil: a failed run
// still reports the files it read so watch mode can retry after a fix.
// Without fail_fast every module error is collected and returned together.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	comp := newCompilation(c, uuid.NewString())

	ctx, span := observability.StartCompilationSpan(ctx, comp.id, len(c.cfg.Entry))
	defer span.End()

	comp.logger.Info().Int("entries", len(c.cfg.Entry)).Msg("compilation started")
	err := comp.run(ctx)
	observability.RecordError(span, err)

	stats := comp.stats()
	stats.Duration = time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordCompilation(stats.Duration, err == nil)
	}
	if err != nil {
		comp.logger.Error().Err(err).Dur("duration", stats.Duration).Msg("compilation failed")
		return stats, err
	}
	comp.logger.Info().
		Int("modules", len(stats.Modules)).
		Int("warnings", len(stats.Warnings)).
		Dur("duration", stats.Duration).
		Msg("compilation finished")
	return stats, nil
}

func (comp *compilation) run(ctx context.Context) error {
	if err := comp.make(ctx); err != nil {
		return err
	}
	if err := comp.seal(ctx); err != nil {
		return err
	}
	if !comp.c.emit {
		return nil
	}
	if err := comp.emitAssets(ctx); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}
