package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/observability"
)

// ErrNoContent is returned when a normal step produces no content.
var ErrNoContent = errors.New("loader returned no content")

// Result is the output of a pipeline run. Dependency lists are sorted and
// free of duplicates; assets are sorted by name; warnings keep the order
// they were raised in.
type Result struct {
	Content             Content
	SourceMap           []byte
	FileDependencies    []string
	ContextDependencies []string
	MissingDependencies []string
	Assets              []Asset
	Warnings            []Warning
	// PitchedBy names the loader whose pitch ended the pipeline, empty
	// when the normal phase ran.
	PitchedBy identifier.Identifier
}

// ShortCircuited reports whether a pitch step produced the content.
func (r *Result) ShortCircuited() bool { return r.PitchedBy != "" }

type options struct {
	fs      afero.Fs
	plugins []Plugin
	logger  zerolog.Logger
	metrics *observability.BuildMetrics
}

// Option configures a pipeline run.
type Option func(*options)

// WithFs sets the file system resources are read from. The default is the
// OS file system.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithPlugins installs plugins consulted before and during the run.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}

// WithLogger sets the logger passed to loaders.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records run durations and failures.
func WithMetrics(m *observability.BuildMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// RunLoaders runs chain over resource. Any loader error or panic stops the
// pipeline and is returned as a *LoaderError naming the loader and the
// resource; no later loader runs.
func RunLoaders(ctx context.Context, resource ResourceData, chain []Loader, opts ...Option) (*Result, error) {
	o := options{fs: afero.NewOsFs(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := observability.StartLoaderSpan(ctx, resource.String(), len(chain))
	defer span.End()
	start := time.Now()

	res, err := run(ctx, resource, chain, &o)

	if o.metrics != nil {
		o.metrics.RecordLoaderRun(time.Since(start), res != nil && res.ShortCircuited(), err)
		var le *LoaderError
		if errors.As(err, &le) {
			o.metrics.RecordLoaderFailure(le.Loader.String(), le.Phase.String())
		}
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordLoaderResult(span, res.ShortCircuited(), len(res.FileDependencies))
	return res, nil
}

func run(ctx context.Context, resource ResourceData, chain []Loader, o *options) (*Result, error) {
	chain = append([]Loader(nil), chain...)
	for _, p := range o.plugins {
		next, err := p.ApplyLoaders(ctx, resource, chain)
		if err != nil {
			return nil, fmt.Errorf("plugin %s on %s: %w", p.Name(), resource, err)
		}
		chain = next
	}

	lc := newContext(resource, chain, o.fs, o.logger)

	lc.phase = PhasePitch
	for i := len(chain) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, lc.fail(err)
		}
		lc.index = i
		var pr PitchResult
		err := guard(func() (err error) {
			pr, err = chain[i].Pitch(ctx, lc)
			return err
		})
		if err != nil {
			return nil, lc.fail(err)
		}
		if pr.ShortCircuited() {
			lc.content = *pr.content
			o.logger.Debug().
				Str("resource", resource.String()).
				Str("loader", chain[i].Identifier().String()).
				Msg("pitch short-circuited")
			return lc.result(chain[i].Identifier()), nil
		}
	}

	lc.phase = PhaseRead
	lc.index = -1
	content, err := readResource(ctx, resource, o)
	if err != nil {
		return nil, lc.fail(err)
	}
	lc.content = content

	lc.phase = PhaseNormal
	for i, l := range chain {
		if err := ctx.Err(); err != nil {
			return nil, lc.fail(err)
		}
		lc.index = i
		in := lc.content
		if a, ok := l.(ContentAccepter); ok {
			if in, err = in.Convert(a.Accepts()); err != nil {
				return nil, lc.fail(err)
			}
		}
		var out Output
		err := guard(func() (err error) {
			out, err = l.Normal(ctx, lc, in)
			return err
		})
		if err == nil && out.Content.IsZero() {
			err = ErrNoContent
		}
		if err != nil {
			return nil, lc.fail(err)
		}
		lc.content = out.Content
		lc.sourceMap = out.SourceMap
		for _, dep := range out.FileDependencies {
			lc.AddFileDependency(dep)
		}
	}
	return lc.result(""), nil
}

// readResource asks resource processors first, then reads the file system.
func readResource(ctx context.Context, resource ResourceData, o *options) (Content, error) {
	for _, p := range o.plugins {
		rp, ok := p.(ResourceProcessor)
		if !ok {
			continue
		}
		var (
			c       Content
			handled bool
		)
		err := guard(func() (err error) {
			c, handled, err = rp.ProcessResource(ctx, resource, o.fs)
			return err
		})
		if err != nil {
			return Content{}, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if handled {
			return c, nil
		}
	}
	data, err := afero.ReadFile(o.fs, resource.Path)
	if err != nil {
		return Content{}, err
	}
	return Bytes(data), nil
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return fn()
}

func (c *Context) fail(err error) *LoaderError {
	le := &LoaderError{Resource: c.Resource.String(), Phase: c.phase, Err: err}
	if l := c.Current(); l != nil {
		le.Loader = l.Identifier()
	}
	return le
}

func (c *Context) result(pitchedBy identifier.Identifier) *Result {
	if c.phase == PhaseNormal && c.Resource.Path != "" {
		c.fileDeps[c.Resource.Path] = struct{}{}
	}
	return &Result{
		Content:             c.content,
		SourceMap:           c.sourceMap,
		FileDependencies:    sortedKeys(c.fileDeps),
		ContextDependencies: sortedKeys(c.contextDeps),
		MissingDependencies: sortedKeys(c.missingDeps),
		Assets:              c.sortedAssets(),
		Warnings:            c.warnings,
		PitchedBy:           pitchedBy,
	}
}
