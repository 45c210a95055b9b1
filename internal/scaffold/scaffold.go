// Package scaffold creates new projects from the embedded templates.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

//go:embed all:templates
var templates embed.FS

// DefaultProjectName is the folder used when none is given.
const DefaultProjectName = "rspack-project"

// DefaultTemplate is the template used when none is given.
const DefaultTemplate = "react"

// ErrTargetExists is returned when the project folder already exists.
var ErrTargetExists = errors.New("target directory already exists")

// renamed maps template file names that cannot be shipped as-is.
var renamed = map[string]string{
	"_gitignore": ".gitignore",
}

// Templates lists the available template names.
func Templates() []string {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, strings.TrimPrefix(e.Name(), "template-"))
		}
	}
	sort.Strings(names)
	return names
}

// FormatTargetDir trims whitespace and trailing slashes.
func FormatTargetDir(dir string) string {
	return strings.TrimRight(strings.TrimSpace(dir), "/")
}

// PackageManager returns the package manager named by an
// npm_config_user_agent value such as "pnpm/7.0.0 npm/? node/v18.0.0",
// defaulting to npm.
func PackageManager(userAgent string) string {
	if userAgent == "" {
		return "npm"
	}
	pkg := strings.SplitN(userAgent, " ", 2)[0]
	if name := strings.SplitN(pkg, "/", 2)[0]; name != "" {
		return name
	}
	return "npm"
}

// Create copies template into root, which must not exist yet, and returns
// the created files relative to root in lexical order.
func Create(fsys afero.Fs, root, template string) ([]string, error) {
	src := path.Join("templates", "template-"+template)
	if _, err := fs.Stat(templates, src); err != nil {
		return nil, fmt.Errorf("unknown template %q (available: %s)", template, strings.Join(Templates(), ", "))
	}
	if ok, err := afero.Exists(fsys, root); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%s: %w", root, ErrTargetExists)
	}

	var created []string
	err := fs.WalkDir(templates, src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, src), "/")
		if to, ok := renamed[d.Name()]; ok {
			rel = path.Join(path.Dir(rel), to)
		}
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if d.IsDir() {
			return fsys.MkdirAll(dst, 0o755)
		}
		data, err := templates.ReadFile(p)
		if err != nil {
			return err
		}
		if err := afero.WriteFile(fsys, dst, data, 0o644); err != nil {
			return err
		}
		created = append(created, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("copy template %s: %w", template, err)
	}
	sort.Strings(created)
	return created, nil
}

// PrintNextSteps tells the user how to start the new project.
func PrintNextSteps(w io.Writer, dir, packageManager string) {
	fmt.Fprint(w, "\nDone. Now run:\n\n")
	fmt.Fprintf(w, "  cd %s\n", dir)
	fmt.Fprintf(w, "  %s install\n", packageManager)
	fmt.Fprintf(w, "  %s run dev\n", packageManager)
}
