// Package asttest builds ast trees for a small JavaScript subset without
// tree-sitter: call statements such as `module.hot.decline("./a");`,
// `require('b')` and `import("c")`, with comments between them. Trees have
// the same shape the tree-sitter front end produces for those statements.
package asttest

import (
	"fmt"
	"strings"

	"github.com/rocketlyz/rspack/internal/ast"
)

// Parse builds a tree for src or returns an error for unsupported syntax.
func Parse(src string) (*ast.Tree, error) {
	p := &parser{src: src}
	root := ast.NewNode(ast.KindProgram, 0, len(src))
	for {
		p.skipSpace()
		if p.pos >= len(src) {
			break
		}
		if c := p.comment(); c != nil {
			root.Children = append(root.Children, c)
			continue
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, stmt)
	}
	return ast.NewTree([]byte(src), root)
}

// MustParse is Parse for fixtures known to be valid.
func MustParse(src string) *ast.Tree {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && strings.ContainsRune(" \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) comment() *ast.Node {
	rest := p.src[p.pos:]
	start := p.pos
	switch {
	case strings.HasPrefix(rest, "//"):
		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			end = len(rest)
		}
		p.pos += end
	case strings.HasPrefix(rest, "/*"):
		end := strings.Index(rest, "*/")
		if end < 0 {
			end = len(rest) - 2
		}
		p.pos += end + 2
	default:
		return nil
	}
	return ast.NewNode(ast.KindComment, start, p.pos)
}

func (p *parser) statement() (*ast.Node, error) {
	start := p.pos
	call, err := p.call()
	if err != nil {
		return nil, err
	}
	stmt := ast.NewNode(ast.KindExpressionStmt, start, call.End, call)
	if p.pos < len(p.src) && p.src[p.pos] == ';' {
		stmt.Children = append(stmt.Children, ast.NewNode(";", p.pos, p.pos+1))
		p.pos++
		stmt.End = p.pos
	}
	return stmt, nil
}

func (p *parser) call() (*ast.Node, error) {
	start := p.pos
	callee, err := p.callee()
	if err != nil {
		return nil, err
	}
	callee.Field = "function"
	p.skipSpace()
	args, err := p.arguments()
	if err != nil {
		return nil, err
	}
	args.Field = "arguments"
	return ast.NewNode(ast.KindCallExpression, start, args.End, callee, args), nil
}

func (p *parser) callee() (*ast.Node, error) {
	start := p.pos
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("offset %d: expected identifier", p.pos)
	}
	var n *ast.Node
	if name == "import" {
		n = ast.NewNode(ast.KindImport, start, p.pos)
	} else {
		n = ast.NewNode(ast.KindIdentifier, start, p.pos)
	}
	for p.pos < len(p.src) && p.src[p.pos] == '.' {
		dot := ast.NewNode(".", p.pos, p.pos+1)
		p.pos++
		propStart := p.pos
		if p.ident() == "" {
			return nil, fmt.Errorf("offset %d: expected property name", p.pos)
		}
		prop := ast.NewNode(ast.KindPropertyIdentifier, propStart, p.pos).WithField("property")
		n = ast.NewNode(ast.KindMemberExpression, start, p.pos, n.WithField("object"), dot, prop)
	}
	return n, nil
}

func (p *parser) arguments() (*ast.Node, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, fmt.Errorf("offset %d: expected '('", p.pos)
	}
	args := ast.NewNode(ast.KindArguments, p.pos, p.pos)
	args.Children = append(args.Children, ast.NewNode("(", p.pos, p.pos+1))
	p.pos++
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated argument list")
		}
		switch c := p.src[p.pos]; {
		case c == ')':
			args.Children = append(args.Children, ast.NewNode(")", p.pos, p.pos+1))
			p.pos++
			args.End = p.pos
			return args, nil
		case c == ',':
			args.Children = append(args.Children, ast.NewNode(",", p.pos, p.pos+1))
			p.pos++
		case c == '"' || c == '\'':
			s, err := p.str()
			if err != nil {
				return nil, err
			}
			args.Children = append(args.Children, s)
		case c == '[':
			arr, err := p.array()
			if err != nil {
				return nil, err
			}
			args.Children = append(args.Children, arr)
		default:
			start := p.pos
			if p.ident() == "" {
				return nil, fmt.Errorf("offset %d: unexpected %q", p.pos, c)
			}
			args.Children = append(args.Children, ast.NewNode(ast.KindIdentifier, start, p.pos))
		}
	}
}

func (p *parser) array() (*ast.Node, error) {
	arr := ast.NewNode(ast.KindArray, p.pos, p.pos, ast.NewNode("[", p.pos, p.pos+1))
	p.pos++
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated array")
		}
		switch c := p.src[p.pos]; {
		case c == ']':
			arr.Children = append(arr.Children, ast.NewNode("]", p.pos, p.pos+1))
			p.pos++
			arr.End = p.pos
			return arr, nil
		case c == ',':
			arr.Children = append(arr.Children, ast.NewNode(",", p.pos, p.pos+1))
			p.pos++
		case c == '"' || c == '\'':
			s, err := p.str()
			if err != nil {
				return nil, err
			}
			arr.Children = append(arr.Children, s)
		default:
			return nil, fmt.Errorf("offset %d: unexpected %q in array", p.pos, c)
		}
	}
}

func (p *parser) str() (*ast.Node, error) {
	quote := p.src[p.pos]
	start := p.pos
	end := strings.IndexByte(p.src[start+1:], quote)
	if end < 0 {
		return nil, fmt.Errorf("offset %d: unterminated string", start)
	}
	p.pos = start + end + 2
	return ast.NewNode(ast.KindString, start, p.pos).WithValue(p.src[start+1 : p.pos-1]), nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (p.pos > start && c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}
