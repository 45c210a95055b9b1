package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Step addresses one child: its position under the parent and, when the
// grammar names the slot, the field name. Field is checked on lookup so a
// reshaped tree is detected instead of silently patching the wrong node.
type Step struct {
	Field string `json:"field,omitempty"`
	Index int    `json:"index"`
}

func (s Step) String() string {
	if s.Field == "" {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Field + "[" + strconv.Itoa(s.Index) + "]"
}

// Path is a structural address from the root to a node. The empty path is
// the root itself.
type Path []Step

// Child returns a new path extended by one step. The receiver is not
// modified, so sibling paths never share a backing array.
func (p Path) Child(field string, index int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Field: field, Index: index})
}

// HasPrefix reports whether q addresses p or one of p's ancestors.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both paths address the same node.
func (p Path) Equal(q Path) bool {
	return len(p) == len(q) && p.HasPrefix(q)
}

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range p {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// StaleASTPathError means a recorded path no longer addresses a node in the
// current tree. It is an internal invariant violation, never a user error.
type StaleASTPathError struct {
	Path   Path
	Depth  int
	Reason string
}

func (e *StaleASTPathError) Error() string {
	return fmt.Sprintf("stale AST path %s at step %d: %s", e.Path, e.Depth, e.Reason)
}

// Lookup resolves path against the tree.
func (t *Tree) Lookup(path Path) (*Node, error) {
	n := t.Root
	for depth, step := range path {
		next, err := StepInto(n, step)
		if err != nil {
			return nil, &StaleASTPathError{Path: path, Depth: depth, Reason: err.Error()}
		}
		n = next
	}
	return n, nil
}

// StepInto returns the child of n addressed by step.
func StepInto(n *Node, step Step) (*Node, error) {
	if step.Index < 0 || step.Index >= len(n.Children) {
		return nil, fmt.Errorf("%s has %d children, want index %d", n.Kind, len(n.Children), step.Index)
	}
	c := n.Children[step.Index]
	if c.Field != step.Field {
		return nil, fmt.Errorf("%s child %d is field %q, want %q", n.Kind, step.Index, c.Field, step.Field)
	}
	return c, nil
}
