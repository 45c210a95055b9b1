package loader

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/identifier"
)

// Asset is an auxiliary file a loader emits next to the module.
type Asset struct {
	Name    string
	Content []byte
	Loader  identifier.Identifier
}

// Warning is a non-fatal diagnostic raised by a loader.
type Warning struct {
	Loader  identifier.Identifier
	Message string
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Loader, w.Message) }

// Context is the working state of one pipeline run. It is owned by that
// run and must not be retained by loaders after they return.
type Context struct {
	Resource ResourceData

	fs     afero.Fs
	logger zerolog.Logger
	chain  []Loader
	index  int
	phase  Phase

	content   Content
	sourceMap []byte

	fileDeps    map[string]struct{}
	contextDeps map[string]struct{}
	missingDeps map[string]struct{}
	assets      map[string]Asset
	warnings    []Warning
}

func newContext(resource ResourceData, chain []Loader, fs afero.Fs, logger zerolog.Logger) *Context {
	return &Context{
		Resource:    resource,
		fs:          fs,
		logger:      logger,
		chain:       chain,
		fileDeps:    make(map[string]struct{}),
		contextDeps: make(map[string]struct{}),
		missingDeps: make(map[string]struct{}),
		assets:      make(map[string]Asset),
	}
}

// Fs is the file system loaders should read auxiliary files from.
func (c *Context) Fs() afero.Fs { return c.fs }

// Logger returns a logger tagged with the current loader.
func (c *Context) Logger() zerolog.Logger {
	if l := c.Current(); l != nil {
		return c.logger.With().Str("loader", l.Identifier().String()).Logger()
	}
	return c.logger
}

// Index is the position of the running loader in the chain.
func (c *Context) Index() int { return c.index }

// Phase is the phase currently executing.
func (c *Context) Phase() Phase { return c.phase }

// Current returns the running loader, nil outside a loader call.
func (c *Context) Current() Loader {
	if c.index < 0 || c.index >= len(c.chain) {
		return nil
	}
	return c.chain[c.index]
}

// Loaders returns the chain being run.
func (c *Context) Loaders() []Loader {
	out := make([]Loader, len(c.chain))
	copy(out, c.chain)
	return out
}

// Content is the content entering the current normal step, or the
// resource content once reading is done.
func (c *Context) Content() Content { return c.content }

// SourceMap is the map produced by the previous normal step.
func (c *Context) SourceMap() []byte { return c.sourceMap }

// AddFileDependency records a file whose change invalidates the resource.
func (c *Context) AddFileDependency(path string) { c.fileDeps[path] = struct{}{} }

// AddContextDependency records a directory whose change invalidates the
// resource.
func (c *Context) AddContextDependency(dir string) { c.contextDeps[dir] = struct{}{} }

// AddMissingDependency records a path that was looked up but absent.
func (c *Context) AddMissingDependency(path string) { c.missingDeps[path] = struct{}{} }

// EmitAsset records an auxiliary output file. Emitting the same name twice
// keeps the last content.
func (c *Context) EmitAsset(name string, content []byte) {
	a := Asset{Name: name, Content: content}
	if l := c.Current(); l != nil {
		a.Loader = l.Identifier()
	}
	c.assets[name] = a
}

// EmitWarning records a diagnostic attributed to the running loader.
func (c *Context) EmitWarning(format string, args ...any) {
	w := Warning{Message: fmt.Sprintf(format, args...)}
	if l := c.Current(); l != nil {
		w.Loader = l.Identifier()
	}
	c.warnings = append(c.warnings, w)
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Context) sortedAssets() []Asset {
	if len(c.assets) == 0 {
		return nil
	}
	out := make([]Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
