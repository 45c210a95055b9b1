package loader

import "strings"

// ResourceData identifies what is being loaded: a path plus the optional
// query and fragment of the request, e.g. "./a.js?raw#top".
type ResourceData struct {
	Resource string
	Path     string
	Query    string
	Fragment string
}

// ParseResource splits a resource string into path, query and fragment.
// Query and fragment keep their leading '?' and '#'. A '#' at the very
// start of the path is part of the path.
func ParseResource(resource string) ResourceData {
	rd := ResourceData{Resource: resource}
	rest := resource

	if i := strings.IndexByte(rest[min(1, len(rest)):], '#'); i >= 0 {
		i += min(1, len(rest))
		rd.Fragment = rest[i:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rd.Query = rest[i:]
		rest = rest[:i]
	}
	rd.Path = rest
	return rd
}

func (r ResourceData) String() string {
	if r.Resource != "" {
		return r.Resource
	}
	return r.Path + r.Query + r.Fragment
}
