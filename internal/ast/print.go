package ast

import "bytes"

// Replacement records one rewritten span of the original source and where
// the new text landed in the output. Source-map consumers shift mappings
// after Start by the length difference.
type Replacement struct {
	Start     int `json:"start"`
	End       int `json:"end"`
	OutStart  int `json:"out_start"`
	OutLength int `json:"out_length"`
}

// Print renders the tree. Unmodified subtrees and the gaps between children
// (whitespace, comments, punctuation) are copied byte for byte.
func Print(t *Tree) []byte {
	out, _ := PrintWithReplacements(t)
	return out
}

// PrintWithReplacements renders the tree and reports each replaced span in
// source order.
func PrintWithReplacements(t *Tree) ([]byte, []Replacement) {
	var (
		buf  bytes.Buffer
		reps []Replacement
	)
	buf.Grow(len(t.Source))
	buf.Write(t.Source[:t.Root.Start])

	var emit func(n *Node)
	emit = func(n *Node) {
		switch {
		case n.modified:
			reps = append(reps, Replacement{Start: n.Start, End: n.End, OutStart: buf.Len(), OutLength: len(n.raw)})
			buf.WriteString(n.raw)
		case !n.dirty:
			buf.Write(t.Source[n.Start:n.End])
		default:
			pos := n.Start
			for _, c := range n.Children {
				buf.Write(t.Source[pos:c.Start])
				emit(c)
				pos = c.End
			}
			buf.Write(t.Source[pos:n.End])
		}
	}
	emit(t.Root)

	buf.Write(t.Source[t.Root.End:])
	return buf.Bytes(), reps
}
