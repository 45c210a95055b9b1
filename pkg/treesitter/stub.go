//go:build !cgo

package treesitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketlyz/rspack/internal/ast"
)

// errNoCgo is returned by every parser in a build without cgo.
var errNoCgo = errors.New("tree-sitter needs cgo; rebuild with CGO_ENABLED=1")

// Parser cannot parse without cgo. NewParser never returns one.
type Parser struct{}

func NewParser(language string) (*Parser, error) {
	return nil, fmt.Errorf("parser for %s: %w", language, errNoCgo)
}

func (*Parser) Language() string { return "" }

func (*Parser) Parse(context.Context, []byte) (*ast.Tree, error) { return nil, errNoCgo }

func (*Parser) Close() {}
