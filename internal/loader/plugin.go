package loader

import (
	"context"

	"github.com/spf13/afero"
)

// Plugin lets the host intercept a resource's loader chain before it runs.
// ApplyLoaders may return the chain unchanged, reordered, extended or
// trimmed. Plugins run in registration order, each seeing the previous
// plugin's chain.
type Plugin interface {
	Name() string
	ApplyLoaders(ctx context.Context, resource ResourceData, chain []Loader) ([]Loader, error)
}

// ResourceProcessor is implemented by plugins that supply resource content
// instead of the file system. ok is false when the plugin does not handle
// the resource; the next processor, then the file system, is tried.
type ResourceProcessor interface {
	ProcessResource(ctx context.Context, resource ResourceData, fs afero.Fs) (content Content, ok bool, err error)
}
