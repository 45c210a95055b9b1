// Package watch reruns a build whenever one of the files it read changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collects bursts of events, such as an editor's
// write-then-rename, into one rebuild.
const DefaultDebounce = 100 * time.Millisecond

// BuildFunc runs one build and returns the files it depends on. A failed
// build still reports the files it read so a fix triggers a rebuild.
type BuildFunc func(ctx context.Context, changed []string) (files []string, err error)

// Watcher drives rebuilds from file system events.
type Watcher struct {
	Debounce time.Duration
	Logger   zerolog.Logger
	// OnError receives build errors. Without it they are logged.
	OnError func(error)
}

// Run builds once, then rebuilds after every change to a reported file
// until ctx is done. Directories of reported files are watched rather than
// the files, so replaced files keep being tracked. A reported file under a
// directory that does not exist yet is watched through its nearest existing
// ancestor, and creating any directory on the way triggers a rebuild.
func (w *Watcher) Run(ctx context.Context, build BuildFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var tracked *tracker
	watchedDirs := make(map[string]bool)
	var changed []string

	for {
		files, err := build(ctx, changed)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.report(err)
		}
		tracked = newTracker(files, isDir)
		for _, dir := range tracked.roots {
			if watchedDirs[dir] {
				continue
			}
			if err := fw.Add(dir); err != nil {
				w.Logger.Debug().Err(err).Str("dir", dir).Msg("cannot watch directory")
				continue
			}
			watchedDirs[dir] = true
		}
		w.Logger.Info().Int("files", len(files)).Msg("watching for changes")

		changed, err = w.wait(ctx, fw, tracked, debounce)
		if err != nil {
			return err
		}
		if changed == nil {
			return nil
		}
		w.Logger.Info().Strs("changed", changed).Msg("rebuilding")
	}
}

// wait blocks until a tracked file changes and the debounce window passes
// without further events. It returns nil when ctx is done.
func (w *Watcher) wait(ctx context.Context, fw *fsnotify.Watcher, tracked *tracker, debounce time.Duration) ([]string, error) {
	pending := newFileSet()
	var timer <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil, nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			if !tracked.relevant(ev) {
				continue
			}
			pending.add(filepath.Clean(ev.Name))
			timer = time.After(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			w.Logger.Warn().Err(err).Msg("watch error")

		case <-timer:
			return pending.sorted(), nil
		}
	}
}

func (w *Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(err)
		return
	}
	w.Logger.Error().Err(err).Msg("build failed")
}

type fileSet map[string]bool

func newFileSet(files ...string) fileSet {
	s := make(fileSet, len(files))
	for _, f := range files {
		s.add(filepath.Clean(f))
	}
	return s
}

func (s fileSet) add(f string) { s[f] = true }

func (s fileSet) sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// tracker knows which events matter after a build.
type tracker struct {
	files fileSet
	// awaiting holds directories on the way to a tracked file that do not
	// exist yet.
	awaiting fileSet
	// roots are the existing directories to watch.
	roots []string
}

func newTracker(files []string, exists func(dir string) bool) *tracker {
	t := &tracker{files: newFileSet(files...), awaiting: newFileSet()}
	roots := newFileSet()
	for f := range t.files {
		dir := filepath.Dir(f)
		for !t.awaiting[dir] && !roots[dir] && !exists(dir) {
			t.awaiting.add(dir)
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		if !t.awaiting[dir] {
			roots.add(dir)
		}
	}
	t.roots = roots.sorted()
	return t
}

// relevant reports whether ev touches a tracked file or creates a
// directory a tracked file is waiting for. Chmod alone is ignored.
func (t *tracker) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	return t.files[name] || (ev.Op.Has(fsnotify.Create) && t.awaiting[name])
}
