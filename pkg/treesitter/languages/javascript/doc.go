// Package javascript registers the tree-sitter JavaScript grammar when
// built with cgo.
package javascript

// Name is the language name the grammar is registered under.
const Name = "javascript"
