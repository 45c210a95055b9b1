package builtin

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/loader"
)

const PitchStaticName = "builtin:pitch-static"

// PitchStaticOptions configure builtin:pitch-static. Exactly one of
// Content and File is set.
type PitchStaticOptions struct {
	Content string `mapstructure:"content"`
	File    string `mapstructure:"file"`
}

// PitchStatic ends every pipeline it is part of during pitching, replacing
// the resource with fixed content or the content of another file.
type PitchStatic struct {
	loader.Base
	opts PitchStaticOptions
}

// NewPitchStatic is the builtin:pitch-static factory.
func NewPitchStatic(options map[string]any) (loader.Loader, error) {
	var o PitchStaticOptions
	if err := decodeOptions(options, &o); err != nil {
		return nil, err
	}
	if (o.Content == "") == (o.File == "") {
		return nil, fmt.Errorf("exactly one of content and file is required")
	}
	return &PitchStatic{Base: loader.Base{ID: identify(PitchStaticName, options)}, opts: o}, nil
}

func (p *PitchStatic) Pitch(_ context.Context, lc *loader.Context) (loader.PitchResult, error) {
	if p.opts.File == "" {
		return loader.ShortCircuit(loader.Text(p.opts.Content)), nil
	}
	data, err := afero.ReadFile(lc.Fs(), p.opts.File)
	if err != nil {
		lc.AddMissingDependency(p.opts.File)
		return loader.PitchResult{}, err
	}
	lc.AddFileDependency(p.opts.File)
	return loader.ShortCircuit(loader.Bytes(data)), nil
}

// Normal is never reached through the runner; it passes content through.
func (p *PitchStatic) Normal(_ context.Context, _ *loader.Context, in loader.Content) (loader.Output, error) {
	return loader.Output{Content: in}, nil
}
