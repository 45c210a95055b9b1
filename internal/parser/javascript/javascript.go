// Package javascript parses JavaScript modules and discovers the
// references code generation rewrites.
package javascript

import (
	"context"
	"strings"

	"github.com/rocketlyz/rspack/internal/ast"
	"github.com/rocketlyz/rspack/internal/dependency"
	"github.com/rocketlyz/rspack/internal/dependency/commonjs"
	"github.com/rocketlyz/rspack/internal/dependency/esm"
	"github.com/rocketlyz/rspack/internal/dependency/hmr"
	"github.com/rocketlyz/rspack/pkg/treesitter"
	jsgrammar "github.com/rocketlyz/rspack/pkg/treesitter/languages/javascript"
)

// ParseFunc turns module source into a tree.
type ParseFunc func(ctx context.Context, source []byte) (*ast.Tree, error)

// TreeSitter parses with the tree-sitter JavaScript grammar. A parser is
// created per call so modules can be parsed in parallel.
func TreeSitter(ctx context.Context, source []byte) (*ast.Tree, error) {
	p, err := treesitter.NewParser(jsgrammar.Name)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Parse(ctx, source)
}

// Module is a parsed module with the references found in it.
type Module struct {
	Tree         *ast.Tree
	Dependencies []dependency.ModuleDependency
}

// Parse parses source with parse and scans the tree.
func Parse(ctx context.Context, parse ParseFunc, source []byte) (*Module, error) {
	tree, err := parse(ctx, source)
	if err != nil {
		return nil, err
	}
	return &Module{Tree: tree, Dependencies: Scan(tree)}, nil
}

// Scan walks tree in source order and creates a dependency for every
// require("x"), import("x"), module.hot.accept("x" | ["x", ...]) and
// module.hot.decline("x" | ["x", ...]) with a string literal request.
// Calls with computed requests are skipped.
func Scan(tree *ast.Tree) []dependency.ModuleDependency {
	var deps []dependency.ModuleDependency
	tree.Walk(func(n *ast.Node, path ast.Path) bool {
		if n.Kind != ast.KindCallExpression {
			return true
		}
		callee, ci := n.FieldChild("function")
		args, ai := n.FieldChild("arguments")
		if callee == nil || args == nil || args.Kind != ast.KindArguments {
			return true
		}
		calleePath := path.Child(callee.Field, ci)
		argsPath := path.Child(args.Field, ai)

		switch {
		case callee.Kind == ast.KindIdentifier && callee.Text(tree.Source) == "require":
			if s, p := firstString(args, argsPath); s != nil {
				deps = append(deps, commonjs.NewRequireDependency(s.Value, dependency.SpanOf(s), p, calleePath))
			}
		case callee.Kind == ast.KindImport:
			if s, p := firstString(args, argsPath); s != nil {
				deps = append(deps, esm.NewDynamicImportDependency(s.Value, dependency.SpanOf(s), p, calleePath))
			}
		case callee.Kind == ast.KindMemberExpression:
			switch compact(callee.Text(tree.Source)) {
			case "module.hot.decline":
				for _, r := range hotRequests(args, argsPath) {
					deps = append(deps, hmr.NewModuleHotDeclineDependency(r.node.Value, dependency.SpanOf(r.node), r.path))
				}
			case "module.hot.accept":
				for _, r := range hotRequests(args, argsPath) {
					deps = append(deps, hmr.NewModuleHotAcceptDependency(r.node.Value, dependency.SpanOf(r.node), r.path))
				}
			}
		}
		return true
	})
	return deps
}

// firstString returns the first argument if it is a string literal.
func firstString(args *ast.Node, argsPath ast.Path) (*ast.Node, ast.Path) {
	for i, c := range args.Children {
		switch c.Kind {
		case "(", ast.KindComment:
			continue
		case ast.KindString:
			return c, argsPath.Child(c.Field, i)
		}
		return nil, nil
	}
	return nil, nil
}

type located struct {
	node *ast.Node
	path ast.Path
}

// hotRequests returns the string requests of a hot accept/decline call:
// the first argument, or every string element when it is an array.
func hotRequests(args *ast.Node, argsPath ast.Path) []located {
	for i, c := range args.Children {
		switch c.Kind {
		case "(", ast.KindComment:
			continue
		case ast.KindString:
			return []located{{node: c, path: argsPath.Child(c.Field, i)}}
		case ast.KindArray:
			arrPath := argsPath.Child(c.Field, i)
			var out []located
			for j, e := range c.Children {
				if e.Kind == ast.KindString {
					out = append(out, located{node: e, path: arrPath.Child(e.Field, j)})
				}
			}
			return out
		}
		return nil
	}
	return nil
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
