package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rocketlyz/rspack/internal/loader"
)

const (
	BannerName  = "builtin:banner"
	ReplaceName = "builtin:replace"
)

// BannerOptions configure builtin:banner.
type BannerOptions struct {
	Banner string `mapstructure:"banner"`
	Footer string `mapstructure:"footer"`
}

// Banner prepends and appends fixed lines to text content.
type Banner struct {
	loader.Base
	opts BannerOptions
}

// NewBanner is the builtin:banner factory.
func NewBanner(options map[string]any) (loader.Loader, error) {
	var o BannerOptions
	if err := decodeOptions(options, &o); err != nil {
		return nil, err
	}
	if o.Banner == "" && o.Footer == "" {
		return nil, fmt.Errorf("banner or footer is required")
	}
	return &Banner{Base: loader.Base{ID: identify(BannerName, options)}, opts: o}, nil
}

func (b *Banner) Accepts() loader.ContentKind { return loader.KindText }

func (b *Banner) Normal(_ context.Context, _ *loader.Context, in loader.Content) (loader.Output, error) {
	text, err := in.AsText()
	if err != nil {
		return loader.Output{}, err
	}
	var sb strings.Builder
	if b.opts.Banner != "" {
		sb.WriteString(b.opts.Banner)
		sb.WriteByte('\n')
	}
	sb.WriteString(text)
	if b.opts.Footer != "" {
		if !strings.HasSuffix(text, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.opts.Footer)
		sb.WriteByte('\n')
	}
	return loader.Output{Content: loader.Text(sb.String())}, nil
}

// ReplaceOptions configure builtin:replace.
type ReplaceOptions struct {
	Search  string `mapstructure:"search"`
	Replace string `mapstructure:"replace"`
	Regex   bool   `mapstructure:"regex"`
	// Strict turns "search not found" from a warning into an error.
	Strict bool `mapstructure:"strict"`
}

// Replace substitutes every occurrence of a string or pattern.
type Replace struct {
	loader.Base
	opts ReplaceOptions
	re   *regexp.Regexp
}

// NewReplace is the builtin:replace factory.
func NewReplace(options map[string]any) (loader.Loader, error) {
	var o ReplaceOptions
	if err := decodeOptions(options, &o); err != nil {
		return nil, err
	}
	if o.Search == "" {
		return nil, fmt.Errorf("search is required")
	}
	l := &Replace{Base: loader.Base{ID: identify(ReplaceName, options)}, opts: o}
	if o.Regex {
		re, err := regexp.Compile(o.Search)
		if err != nil {
			return nil, fmt.Errorf("compile search pattern: %w", err)
		}
		l.re = re
	}
	return l, nil
}

func (r *Replace) Accepts() loader.ContentKind { return loader.KindText }

func (r *Replace) Normal(_ context.Context, lc *loader.Context, in loader.Content) (loader.Output, error) {
	text, err := in.AsText()
	if err != nil {
		return loader.Output{}, err
	}
	var (
		out   string
		found bool
	)
	if r.re != nil {
		found = r.re.MatchString(text)
		out = r.re.ReplaceAllString(text, r.opts.Replace)
	} else {
		found = strings.Contains(text, r.opts.Search)
		out = strings.ReplaceAll(text, r.opts.Search, r.opts.Replace)
	}
	if !found {
		if r.opts.Strict {
			return loader.Output{}, fmt.Errorf("%q not found", r.opts.Search)
		}
		lc.EmitWarning("%q not found", r.opts.Search)
	}
	return loader.Output{Content: loader.Text(out)}, nil
}
