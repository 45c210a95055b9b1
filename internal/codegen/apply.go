package codegen

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rocketlyz/rspack/internal/ast"
)

type trie struct {
	children map[ast.Step]*trie
	visitors []Visitor
}

func (t *trie) insert(v Visitor) error {
	cur := t
	for i, step := range v.Path {
		if len(cur.visitors) > 0 {
			return fmt.Errorf("%w: %s is below an edited node at %s", ErrOverlappingVisitors, v.Path, v.Path[:i])
		}
		if cur.children == nil {
			cur.children = make(map[ast.Step]*trie)
		}
		next, ok := cur.children[step]
		if !ok {
			next = &trie{}
			cur.children[step] = next
		}
		cur = next
	}
	if len(cur.children) > 0 {
		return fmt.Errorf("%w: %s is above another edited node", ErrOverlappingVisitors, v.Path)
	}
	cur.visitors = append(cur.visitors, v)
	return nil
}

// Apply runs every visitor against tree in one traversal. Only nodes on the
// way to an edited node are visited, so the cost follows the number of
// visitors, not the module size. Visitors sharing a path run in the order
// given.
func Apply(tree *ast.Tree, visitors []Visitor) error {
	if len(visitors) == 0 {
		return nil
	}
	root := &trie{}
	for _, v := range visitors {
		if err := root.insert(v); err != nil {
			return err
		}
	}
	return walk(tree.Root, root, nil)
}

func walk(n *ast.Node, t *trie, path ast.Path) error {
	for _, v := range t.visitors {
		if err := v.Edit(n); err != nil {
			var stale *ast.StaleASTPathError
			if errors.As(err, &stale) {
				return err
			}
			return &ast.StaleASTPathError{Path: path, Depth: len(path), Reason: err.Error()}
		}
	}

	steps := make([]ast.Step, 0, len(t.children))
	for s := range t.children {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Index != steps[j].Index {
			return steps[i].Index < steps[j].Index
		}
		return steps[i].Field < steps[j].Field
	})

	for _, s := range steps {
		child, err := ast.StepInto(n, s)
		childPath := path.Child(s.Field, s.Index)
		if err != nil {
			return &ast.StaleASTPathError{Path: childPath, Depth: len(path), Reason: err.Error()}
		}
		if err := walk(child, t.children[s], childPath); err != nil {
			return err
		}
	}
	return nil
}
