//go:build cgo

package treesitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/rocketlyz/rspack/internal/ast"
)

// Parser wraps a tree-sitter parser for a given language. It is not safe
// for concurrent use; create one per goroutine.
type Parser struct {
	parser   *sitter.Parser
	language string
}

// NewParser creates a tree-sitter parser for the given language.
// The language must be registered via Register() before calling this.
func NewParser(language string) (*Parser, error) {
	langFn, ok := GetLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s (not registered)", language)
	}
	lang, ok := langFn().(*sitter.Language)
	if !ok || lang == nil {
		return nil, fmt.Errorf("language %s did not provide a tree-sitter grammar", language)
	}

	p := sitter.NewParser()
	p.SetLanguage(lang)
	return &Parser{parser: p, language: language}, nil
}

// Language returns the parser's language name.
func (p *Parser) Language() string { return p.language }

// Parse parses source into an ast tree. Every tree-sitter node, named or
// not, becomes an ast node carrying its field name, so ast paths mirror
// the grammar. String literals become leaves with their cooked value.
func (p *Parser) Parse(ctx context.Context, source []byte) (*ast.Tree, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, firstError(root, source)
	}
	return ast.NewTree(source, convert(root, source))
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
		p.parser = nil
	}
}

func convert(n *sitter.Node, source []byte) *ast.Node {
	out := ast.NewNode(n.Type(), int(n.StartByte()), int(n.EndByte()))
	if out.Kind == ast.KindString {
		out.Value = CookString(string(source[out.Start:out.End]))
		return out
	}
	count := int(n.ChildCount())
	if count == 0 {
		return out
	}
	out.Children = make([]*ast.Node, 0, count)
	for i := 0; i < count; i++ {
		c := convert(n.Child(i), source)
		c.Field = n.FieldNameForChild(i)
		out.Children = append(out.Children, c)
	}
	return out
}

func firstError(n *sitter.Node, source []byte) *SyntaxError {
	if n.Type() == "ERROR" || n.IsMissing() {
		pt := n.StartPoint()
		e := &SyntaxError{Offset: int(n.StartByte()), Line: int(pt.Row) + 1, Column: int(pt.Column) + 1}
		if end := int(n.EndByte()); end > e.Offset {
			e.Near = string(source[e.Offset:min(end, e.Offset+20)])
		}
		return e
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			return firstError(c, source)
		}
	}
	pt := n.StartPoint()
	return &SyntaxError{Offset: int(n.StartByte()), Line: int(pt.Row) + 1, Column: int(pt.Column) + 1}
}
