package compiler

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/dependency/esm"
	"github.com/rocketlyz/rspack/internal/observability"
)

//go:embed templates/runtime.js.tmpl
var templates embed.FS

var runtimeTemplate = template.Must(
	template.New("runtime.js.tmpl").
		Funcs(template.FuncMap{"quote": ast.Quote}).
		ParseFS(templates, "templates/runtime.js.tmpl"),
)

type bundleModule struct {
	ID     string
	Source string
}

type bundleData struct {
	Modules       []bundleModule
	Entries       []string
	DynamicImport bool
}

// bundle renders the generated modules into one script that runs the
// entries in order. Runtime helpers are included only when a module needs
// them.
func (comp *compilation) bundle() ([]byte, error) {
	data := bundleData{}
	for _, out := range comp.outputs {
		data.Modules = append(data.Modules, bundleModule{
			ID:     comp.chunks.ModuleID(out.Identifier),
			Source: strings.TrimRight(string(out.Source), "\n"),
		})
		for _, req := range out.RuntimeRequirements {
			if req == esm.RuntimeDynamicImport {
				data.DynamicImport = true
			}
		}
	}
	for _, e := range comp.entries {
		data.Entries = append(data.Entries, comp.chunks.ModuleID(e))
	}

	var buf bytes.Buffer
	if err := runtimeTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// emitAssets writes the bundle and every loader asset under the output
// path.
func (comp *compilation) emitAssets(ctx context.Context) error {
	_, span := observability.StartPhaseSpan(ctx, "emit")
	defer span.End()

	out := comp.c.cfg.Output
	fs := comp.c.fs
	if err := fs.MkdirAll(out.Path, 0o755); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("create output directory: %w", err)
	}

	bundle, err := comp.bundle()
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	files := []struct {
		name string
		data []byte
	}{{out.Filename, bundle}}
	for _, name := range sortedAssetNames(comp.assets) {
		files = append(files, struct {
			name string
			data []byte
		}{name, comp.assets[name].Content})
	}

	for _, f := range files {
		target := filepath.Join(out.Path, filepath.FromSlash(f.name))
		if rel, err := filepath.Rel(out.Path, target); err != nil || escapes(rel) {
			err := fmt.Errorf("asset %q escapes the output directory", f.name)
			observability.RecordError(span, err)
			return err
		}
		if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.name, err)
		}
		if err := afero.WriteFile(fs, target, f.data, 0o644); err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		comp.emitted = append(comp.emitted, AssetStats{Name: f.name, Size: len(f.data)})
		comp.logger.Debug().Str("asset", f.name).Int("size", len(f.data)).Msg("emitted")
	}
	return nil
}

// escapes reports whether a filepath.Rel result leaves its base directory.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
