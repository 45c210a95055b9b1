package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/loader"
	"github.com/rocketlyz/rspack/internal/observability"
)

// entry is the stored form of a loader.Result. Files maps every file and
// missing dependency to its content hash at store time; missing files map
// to "".
type entry struct {
	Kind                string            `json:"kind"`
	Content             []byte            `json:"content"`
	SourceMap           []byte            `json:"source_map,omitempty"`
	FileDependencies    []string          `json:"file_dependencies,omitempty"`
	ContextDependencies []string          `json:"context_dependencies,omitempty"`
	MissingDependencies []string          `json:"missing_dependencies,omitempty"`
	Assets              []entryAsset      `json:"assets,omitempty"`
	Warnings            []entryWarning    `json:"warnings,omitempty"`
	PitchedBy           string            `json:"pitched_by,omitempty"`
	Files               map[string]string `json:"files"`
}

type entryAsset struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
	Loader  string `json:"loader"`
}

type entryWarning struct {
	Loader  string `json:"loader"`
	Message string `json:"message"`
}

func newEntry(r *loader.Result, files map[string]string) *entry {
	e := &entry{
		Kind:                r.Content.Kind().String(),
		Content:             r.Content.AsBytes(),
		SourceMap:           r.SourceMap,
		FileDependencies:    r.FileDependencies,
		ContextDependencies: r.ContextDependencies,
		MissingDependencies: r.MissingDependencies,
		PitchedBy:           r.PitchedBy.String(),
		Files:               files,
	}
	for _, a := range r.Assets {
		e.Assets = append(e.Assets, entryAsset{Name: a.Name, Content: a.Content, Loader: a.Loader.String()})
	}
	for _, w := range r.Warnings {
		e.Warnings = append(e.Warnings, entryWarning{Loader: w.Loader.String(), Message: w.Message})
	}
	return e
}

func (e *entry) result() (*loader.Result, error) {
	r := &loader.Result{
		SourceMap:           e.SourceMap,
		FileDependencies:    e.FileDependencies,
		ContextDependencies: e.ContextDependencies,
		MissingDependencies: e.MissingDependencies,
		PitchedBy:           identifier.Identifier(e.PitchedBy),
	}
	switch e.Kind {
	case loader.KindText.String():
		r.Content = loader.Text(string(e.Content))
	case loader.KindBytes.String():
		r.Content = loader.Bytes(e.Content)
	default:
		return nil, fmt.Errorf("unknown content kind %q", e.Kind)
	}
	for _, a := range e.Assets {
		r.Assets = append(r.Assets, loader.Asset{Name: a.Name, Content: a.Content, Loader: identifier.Identifier(a.Loader)})
	}
	for _, w := range e.Warnings {
		r.Warnings = append(r.Warnings, loader.Warning{Loader: identifier.Identifier(w.Loader), Message: w.Message})
	}
	return r, nil
}

// Cache validates and (de)serializes loader results over a Store. A nil
// Cache or one over a nil Store never hits.
type Cache struct {
	store   Store
	fs      afero.Fs
	logger  zerolog.Logger
	metrics *observability.BuildMetrics
}

// New returns a cache over store. fs is where file dependencies are
// re-hashed on lookup.
func New(store Store, fsys afero.Fs, logger zerolog.Logger, metrics *observability.BuildMetrics) *Cache {
	return &Cache{store: store, fs: fsys, logger: logger, metrics: metrics}
}

// Enabled reports whether lookups can hit.
func (c *Cache) Enabled() bool { return c != nil && c.store != nil }

// Lookup returns the result stored under key if every file it was built
// from still has the same content. Store and decode failures are logged
// and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (*loader.Result, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("loader cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt loader cache entry")
		return nil, false
	}
	for path, want := range e.Files {
		got, err := c.hash(path)
		if err != nil || got != want {
			c.logger.Debug().Str("key", key).Str("file", path).Msg("loader cache entry is stale")
			return nil, false
		}
	}
	r, err := e.result()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt loader cache entry")
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	return r, true
}

// Save stores r under key with the current hashes of its file and missing
// dependencies. Results whose dependencies cannot be read are not stored.
func (c *Cache) Save(ctx context.Context, key string, r *loader.Result) error {
	if !c.Enabled() {
		return nil
	}
	files := make(map[string]string, len(r.FileDependencies)+len(r.MissingDependencies))
	for _, deps := range [][]string{r.FileDependencies, r.MissingDependencies} {
		for _, path := range deps {
			h, err := c.hash(path)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", path, err)
			}
			files[path] = h
		}
	}
	data, err := json.Marshal(newEntry(r, files))
	if err != nil {
		return fmt.Errorf("encode loader result: %w", err)
	}
	return c.store.Set(ctx, key, data)
}

// Invalidate drops key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Delete(ctx, key)
}

// hash returns the content hash of path, or "" when it does not exist.
func (c *Cache) hash(path string) (string, error) {
	data, err := afero.ReadFile(c.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return loader.ContentHash(data), nil
}
