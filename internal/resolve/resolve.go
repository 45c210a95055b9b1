// Package resolve maps request strings found in modules to files.
//
// Only relative and absolute requests are supported. A request resolves to
// the first existing candidate among: the path itself, the path with each
// configured extension appended, and each main file (with extensions)
// inside the path when it is a directory.
package resolve

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/loader"
)

// ErrNotFound is returned when no candidate exists.
var ErrNotFound = errors.New("module not found")

// ErrUnsupportedRequest is returned for bare package requests.
var ErrUnsupportedRequest = errors.New("unsupported request")

// Resolver resolves requests against a file system.
type Resolver struct {
	Fs         afero.Fs
	Extensions []string
	MainFiles  []string
}

// New returns a resolver with the given extensions and main files.
func New(fs afero.Fs, extensions, mainFiles []string) *Resolver {
	if len(mainFiles) == 0 {
		mainFiles = []string{"index"}
	}
	return &Resolver{Fs: fs, Extensions: extensions, MainFiles: mainFiles}
}

// Result is a resolved request.
type Result struct {
	Resource loader.ResourceData
	// Missing lists candidates tried before the match, for watch mode.
	Missing []string
}

// Resolve resolves request as written in the module at issuer. The query
// and fragment of the request are kept on the resolved resource.
func (r *Resolver) Resolve(issuer, request string) (*Result, error) {
	req := loader.ParseResource(request)
	var base string
	switch {
	case isRelative(req.Path):
		base = path.Join(path.Dir(issuer), req.Path)
	case strings.HasPrefix(req.Path, "/"):
		base = path.Clean(req.Path)
	default:
		return nil, fmt.Errorf("resolve %q from %s: %w", request, issuer, ErrUnsupportedRequest)
	}
	return r.lookup(issuer, request, base, req)
}

// ResolveEntry resolves an entry request against the context directory.
// Entries without a leading "./" are still taken as relative to context.
func (r *Resolver) ResolveEntry(context, request string) (*Result, error) {
	req := loader.ParseResource(request)
	base := path.Clean(req.Path)
	if !strings.HasPrefix(req.Path, "/") {
		base = path.Join(context, req.Path)
	}
	return r.lookup(context, request, base, req)
}

func isRelative(p string) bool {
	return strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") || p == "." || p == ".."
}

func (r *Resolver) lookup(issuer, request, base string, req loader.ResourceData) (*Result, error) {

	res := &Result{}
	for _, candidate := range r.candidates(base) {
		info, err := r.Fs.Stat(candidate)
		if err != nil || info.IsDir() {
			res.Missing = append(res.Missing, candidate)
			continue
		}
		res.Resource = loader.ResourceData{
			Resource: candidate + req.Query + req.Fragment,
			Path:     candidate,
			Query:    req.Query,
			Fragment: req.Fragment,
		}
		return res, nil
	}
	return nil, fmt.Errorf("resolve %q from %s: %w", request, issuer, ErrNotFound)
}

func (r *Resolver) candidates(base string) []string {
	out := []string{base}
	for _, ext := range r.Extensions {
		out = append(out, base+ext)
	}
	for _, main := range r.MainFiles {
		p := path.Join(base, main)
		out = append(out, p)
		for _, ext := range r.Extensions {
			out = append(out, p+ext)
		}
	}
	return out
}
