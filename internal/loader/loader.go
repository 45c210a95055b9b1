// Package loader runs chains of content transformations over a resource.
//
// A chain is run in two phases. Pitching walks the chain from last to
// first and may short-circuit with ready content; otherwise the resource
// is read and the normal phase walks the chain from first to last, each
// loader's output feeding the next. The runner keeps no state outside the
// per-run Context, so repeated runs over the same inputs are identical.
package loader

import (
	"context"
	"fmt"

	"github.com/rocketlyz/rspack/internal/identifier"
)

// Phase is the part of the pipeline a loader is executing in.
type Phase uint8

const (
	PhasePitch Phase = iota + 1
	PhaseRead
	PhaseNormal
)

func (p Phase) String() string {
	switch p {
	case PhasePitch:
		return "pitch"
	case PhaseRead:
		return "read"
	case PhaseNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Loader is one named step of a chain. Identifier must include the
// loader's options so that two differently configured instances never
// share a cache key.
type Loader interface {
	identifier.Identifiable
	Pitch(ctx context.Context, lc *Context) (PitchResult, error)
	Normal(ctx context.Context, lc *Context, in Content) (Output, error)
}

// ContentAccepter is implemented by loaders that need their input as a
// specific kind. The runner converts before calling Normal.
type ContentAccepter interface {
	Accepts() ContentKind
}

// PitchResult is what a pitch step returns: continue, or end the pipeline
// with content.
type PitchResult struct {
	content *Content
}

// Continue lets pitching move on to the previous loader.
func Continue() PitchResult { return PitchResult{} }

// ShortCircuit ends pitching and skips the normal phase; c becomes the
// pipeline's output verbatim.
func ShortCircuit(c Content) PitchResult { return PitchResult{content: &c} }

// ShortCircuited reports whether the result ends the pipeline.
func (r PitchResult) ShortCircuited() bool { return r.content != nil }

// Output is the result of a normal step.
type Output struct {
	Content          Content
	SourceMap        []byte
	FileDependencies []string
}

// Base provides a no-op Pitch and a fixed identifier for loaders that
// only transform in the normal phase.
type Base struct {
	ID identifier.Identifier
}

func (b Base) Identifier() identifier.Identifier { return b.ID }

func (Base) Pitch(context.Context, *Context) (PitchResult, error) { return Continue(), nil }

// DisplayWithSuffix returns the loader's identifier with an extra suffix,
// used when one loader appears several times in a chain.
func DisplayWithSuffix(l Loader, suffix string) string {
	if suffix == "" {
		return l.Identifier().String()
	}
	return fmt.Sprintf("%s|%s", l.Identifier(), suffix)
}
