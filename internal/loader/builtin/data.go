package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/rocketlyz/rspack/internal/loader"
)

const (
	JSONName = "builtin:json"
	YAMLName = "builtin:yaml"
	TOMLName = "builtin:toml"
	RawName  = "builtin:raw"
)

// dataLoader turns a structured document into a CommonJS module exporting
// its value.
type dataLoader struct {
	loader.Base
	decode func(text string) (any, error)
}

func (d *dataLoader) Accepts() loader.ContentKind { return loader.KindText }

func (d *dataLoader) Normal(_ context.Context, _ *loader.Context, in loader.Content) (loader.Output, error) {
	text, err := in.AsText()
	if err != nil {
		return loader.Output{}, err
	}
	v, err := d.decode(text)
	if err != nil {
		return loader.Output{}, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return loader.Output{}, fmt.Errorf("encode module value: %w", err)
	}
	return loader.Output{Content: loader.Text("module.exports = " + string(data) + ";\n")}, nil
}

func newDataLoader(name string, options map[string]any, decode func(string) (any, error)) (loader.Loader, error) {
	if err := decodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return &dataLoader{Base: loader.Base{ID: identify(name, options)}, decode: decode}, nil
}

// NewJSON is the builtin:json factory.
func NewJSON(options map[string]any) (loader.Loader, error) {
	return newDataLoader(JSONName, options, func(text string) (any, error) {
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return v, nil
	})
}

// NewYAML is the builtin:yaml factory.
func NewYAML(options map[string]any) (loader.Loader, error) {
	return newDataLoader(YAMLName, options, func(text string) (any, error) {
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return normalizeKeys(v), nil
	})
}

// NewTOML is the builtin:toml factory.
func NewTOML(options map[string]any) (loader.Loader, error) {
	return newDataLoader(TOMLName, options, func(text string) (any, error) {
		var v map[string]any
		if err := toml.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		return v, nil
	})
}

// normalizeKeys rewrites YAML mappings with non-string keys so they can be
// encoded as JSON objects.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeKeys(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalizeKeys(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalizeKeys(e)
		}
		return t
	default:
		return v
	}
}

// Raw exports the resource content as a string. Binary content is exported
// as a base64 data URL.
type Raw struct {
	loader.Base
	mimeType string
}

// NewRaw is the builtin:raw factory. Option "mimetype" sets the media type
// of data URLs (default application/octet-stream).
func NewRaw(options map[string]any) (loader.Loader, error) {
	var o struct {
		MimeType string `mapstructure:"mimetype"`
	}
	if err := decodeOptions(options, &o); err != nil {
		return nil, err
	}
	if o.MimeType == "" {
		o.MimeType = "application/octet-stream"
	}
	return &Raw{Base: loader.Base{ID: identify(RawName, options)}, mimeType: o.MimeType}, nil
}

func (r *Raw) Accepts() loader.ContentKind { return loader.KindBytes }

func (r *Raw) Normal(_ context.Context, _ *loader.Context, in loader.Content) (loader.Output, error) {
	data := in.AsBytes()
	value := string(data)
	if !utf8.Valid(data) {
		value = "data:" + r.mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	quoted, err := json.Marshal(value)
	if err != nil {
		return loader.Output{}, err
	}
	return loader.Output{Content: loader.Text("module.exports = " + string(quoted) + ";\n")}, nil
}
