// Package builtin provides the loaders that ship with the bundler and the
// registry configuration resolves loader names against.
package builtin

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/loader"
)

// Factory builds a configured loader from its options.
type Factory func(options map[string]any) (loader.Loader, error)

// Registry maps loader names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty loader registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding every builtin loader.
func Default() *Registry {
	r := NewRegistry()
	r.Register(BannerName, NewBanner)
	r.Register(ReplaceName, NewReplace)
	r.Register(JSONName, NewJSON)
	r.Register(YAMLName, NewYAML)
	r.Register(TOMLName, NewTOML)
	r.Register(RawName, NewRaw)
	r.Register(PitchStaticName, NewPitchStatic)
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds the loader registered under name.
func (r *Registry) Create(name string, options map[string]any) (loader.Loader, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no loader registered as %q", name)
	}
	l, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("loader %s: %w", name, err)
	}
	return l, nil
}

// Names lists registered loaders in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// decodeOptions fills out from a loose option map, rejecting unknown keys.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// identify embeds the options in the identifier. json.Marshal sorts map
// keys, so equal options always produce equal identifiers.
func identify(name string, options map[string]any) identifier.Identifier {
	if len(options) == 0 {
		return identifier.Identifier(name)
	}
	data, err := json.Marshal(options)
	if err != nil {
		return identifier.Identifier(fmt.Sprintf("%s?%v", name, options))
	}
	return identifier.Identifier(name + "?" + string(data))
}
