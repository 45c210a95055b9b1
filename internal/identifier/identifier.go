// Package identifier names modules and loaders across the build.
package identifier

// Identifier is an interned-by-value name such as a module's absolute
// resource path or a loader's "builtin:yaml" name plus options.
type Identifier string

func (i Identifier) String() string { return string(i) }

// Identifiable is implemented by anything the build addresses by name.
type Identifiable interface {
	Identifier() Identifier
}
