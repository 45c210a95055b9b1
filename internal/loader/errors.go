package loader

import (
	"errors"
	"fmt"

	"github.com/rocketlyz/rspack/internal/identifier"
)

// ErrLoaderPanic marks a LoaderError raised by a panicking loader.
var ErrLoaderPanic = errors.New("loader panicked")

// LoaderError reports the loader and resource of a failed pipeline. For a
// failed resource read Loader is empty.
type LoaderError struct {
	Loader   identifier.Identifier
	Resource string
	Phase    Phase
	Err      error
}

func (e *LoaderError) Error() string {
	if e.Loader == "" {
		return fmt.Sprintf("%s %s: %v", e.Phase, e.Resource, e.Err)
	}
	return fmt.Sprintf("loader %s (%s) on %s: %v", e.Loader, e.Phase, e.Resource, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }
