// Package ast holds the parse tree that code generation patches in place.
//
// Nodes keep byte offsets into the original source. Printing a tree copies
// every unmodified region straight from the source, so only nodes touched by
// an edit differ from the input.
package ast

import "fmt"

// Node kinds produced by the JavaScript front end and inspected by the
// dependency scanner. The names follow the tree-sitter JavaScript grammar.
const (
	KindProgram            = "program"
	KindExpressionStmt     = "expression_statement"
	KindCallExpression     = "call_expression"
	KindMemberExpression   = "member_expression"
	KindIdentifier         = "identifier"
	KindPropertyIdentifier = "property_identifier"
	KindArguments          = "arguments"
	KindString             = "string"
	KindArray              = "array"
	KindImport             = "import"
	KindComment            = "comment"
)

// Node is one syntax node. Start and End are byte offsets into Tree.Source.
type Node struct {
	Kind     string
	Field    string // field name under the parent, empty for unnamed slots
	Start    int
	End      int
	Value    string // cooked value of string literals
	Children []*Node

	parent   *Node
	raw      string
	modified bool
	dirty    bool
}

// NewNode builds a node spanning [start, end).
func NewNode(kind string, start, end int, children ...*Node) *Node {
	return &Node{Kind: kind, Start: start, End: end, Children: children}
}

// WithField sets the node's field name and returns it, for tree builders.
func (n *Node) WithField(field string) *Node {
	n.Field = field
	return n
}

// WithValue sets the cooked value and returns the node.
func (n *Node) WithValue(v string) *Node {
	n.Value = v
	return n
}

// Parent returns the enclosing node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Modified reports whether an edit replaced this node's text.
func (n *Node) Modified() bool { return n.modified }

// Text returns the node's current text: the replacement if modified,
// otherwise the original source slice.
func (n *Node) Text(src []byte) string {
	if n.modified {
		return n.raw
	}
	return string(src[n.Start:n.End])
}

// FieldChild returns the first child stored under field.
func (n *Node) FieldChild(field string) (*Node, int) {
	for i, c := range n.Children {
		if c.Field == field {
			return c, i
		}
	}
	return nil, -1
}

// Replace swaps the node's printed text for raw. Children are no longer
// printed once a node is replaced.
func (n *Node) Replace(raw string) {
	n.raw = raw
	n.modified = true
	for p := n.parent; p != nil && !p.dirty; p = p.parent {
		p.dirty = true
	}
}

// SetString rewrites a string literal's value and its literal text.
func (n *Node) SetString(value, raw string) error {
	if n.Kind != KindString {
		return fmt.Errorf("set string on %s node", n.Kind)
	}
	n.Value = value
	n.Replace(raw)
	return nil
}

// Tree is a parsed module: the source bytes and the root node.
type Tree struct {
	Source []byte
	Root   *Node
}

// NewTree links parent pointers and checks that every child lies inside
// its parent and after its previous sibling.
func NewTree(src []byte, root *Node) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("nil root")
	}
	if root.Start < 0 || root.End > len(src) || root.Start > root.End {
		return nil, fmt.Errorf("root span [%d,%d) outside source of %d bytes", root.Start, root.End, len(src))
	}
	if err := link(root); err != nil {
		return nil, err
	}
	return &Tree{Source: src, Root: root}, nil
}

func link(n *Node) error {
	pos := n.Start
	for i, c := range n.Children {
		if c == nil {
			return fmt.Errorf("%s: nil child %d", n.Kind, i)
		}
		if c.Start < pos || c.End > n.End || c.Start > c.End {
			return fmt.Errorf("%s: child %d (%s) span [%d,%d) not inside [%d,%d)", n.Kind, i, c.Kind, c.Start, c.End, pos, n.End)
		}
		c.parent = n
		if err := link(c); err != nil {
			return err
		}
		pos = c.End
	}
	return nil
}

// Walk visits nodes depth first, passing each node's path. Returning false
// from fn skips the node's children.
func (t *Tree) Walk(fn func(n *Node, path Path) bool) {
	var visit func(n *Node, path Path)
	visit = func(n *Node, path Path) {
		if !fn(n, path) {
			return
		}
		for i, c := range n.Children {
			visit(c, path.Child(c.Field, i))
		}
	}
	visit(t.Root, nil)
}
