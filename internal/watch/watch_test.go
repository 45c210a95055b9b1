package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	existing := map[string]bool{"/": true, "/a": true, "/d": true}
	exists := func(dir string) bool { return existing[dir] }

	tr := newTracker([]string{"/a/b.js", "/a/./c.js", "/d/e.js"}, exists)
	assert.Equal(t, []string{"/a", "/d"}, tr.roots)
	assert.Empty(t, tr.awaiting)

	assert.True(t, tr.relevant(fsnotify.Event{Name: "/a/c.js", Op: fsnotify.Write}))
	assert.True(t, tr.relevant(fsnotify.Event{Name: "/a/b.js", Op: fsnotify.Remove}))
	assert.False(t, tr.relevant(fsnotify.Event{Name: "/a/c.js", Op: fsnotify.Chmod}))
	assert.False(t, tr.relevant(fsnotify.Event{Name: "/a/other.js", Op: fsnotify.Write}))
}

func TestTrackerWatchesNearestExistingAncestor(t *testing.T) {
	existing := map[string]bool{"/": true, "/src": true}
	exists := func(dir string) bool { return existing[dir] }

	tr := newTracker([]string{"/src/lib/index.js", "/src/lib/util/x.js", "/src/a.js"}, exists)
	assert.Equal(t, []string{"/src"}, tr.roots)
	assert.Equal(t, []string{"/src/lib", "/src/lib/util"}, tr.awaiting.sorted())

	assert.True(t, tr.relevant(fsnotify.Event{Name: "/src/lib", Op: fsnotify.Create}))
	assert.False(t, tr.relevant(fsnotify.Event{Name: "/src/lib", Op: fsnotify.Write}))
	assert.False(t, tr.relevant(fsnotify.Event{Name: "/src/other", Op: fsnotify.Create}))
}

func TestRunRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "index.js")
	other := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(file, []byte("1"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var calls [][]string
	builds := make(chan int, 8)
	w := &Watcher{Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()}

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) ([]string, error) {
			mu.Lock()
			calls = append(calls, changed)
			n := len(calls)
			mu.Unlock()
			builds <- n
			return []string{file}, nil
		})
	}()

	require.Equal(t, 1, <-builds)
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(file, []byte("2"), 0o644))

	select {
	case n := <-builds:
		assert.Equal(t, 2, n)
	case <-ctx.Done():
		t.Fatal("no rebuild after change")
	}

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Nil(t, calls[0])
	assert.Equal(t, []string{file}, calls[1])
}

func TestRunRebuildsWhenMissingDirectoryAppears(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "lib", "index.js")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builds := make(chan []string, 8)
	w := &Watcher{Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()}
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) ([]string, error) {
			builds <- changed
			return []string{missing}, nil
		})
	}()

	require.Nil(t, <-builds)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.MkdirAll(filepath.Dir(missing), 0o755))
	require.NoError(t, os.WriteFile(missing, []byte("1"), 0o644))

	select {
	case changed := <-builds:
		assert.NotEmpty(t, changed)
	case <-ctx.Done():
		t.Fatal("no rebuild after the missing directory was created")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRunReportsBuildErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var got error
	w := &Watcher{
		Logger: zerolog.Nop(),
		OnError: func(err error) {
			got = err
			cancel()
		},
	}
	boom := errors.New("boom")
	err := w.Run(ctx, func(context.Context, []string) ([]string, error) {
		return nil, boom
	})
	require.NoError(t, err)
	assert.ErrorIs(t, got, boom)
}
