package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/rocketlyz/rspack/internal/loader"
)

const (
	keysDir    = "keys"
	objectsDir = "objects"
)

// FilesystemStore stores values as content-addressed objects. Each key file
// holds the hash of its object, so results shared by several keys are
// stored once.
type FilesystemStore struct {
	mu      sync.RWMutex
	fs      afero.Fs
	rootDir string
}

// NewFilesystemStore creates or opens a store at rootDir.
func NewFilesystemStore(fsys afero.Fs, rootDir string) (*FilesystemStore, error) {
	for _, dir := range []string{filepath.Join(rootDir, keysDir), filepath.Join(rootDir, objectsDir)} {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
	}
	return &FilesystemStore{fs: fsys, rootDir: rootDir}, nil
}

func (s *FilesystemStore) keyPath(key string) string {
	return filepath.Join(s.rootDir, keysDir, shard(key), key)
}

func (s *FilesystemStore) objectPath(hash string) string {
	return filepath.Join(s.rootDir, objectsDir, shard(hash), hash)
}

func shard(name string) string {
	if len(name) < 2 {
		return "00"
	}
	return name[:2]
}

func (s *FilesystemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, err := afero.ReadFile(s.fs, s.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read key %s: %w", key, err)
	}
	data, err := afero.ReadFile(s.fs, s.objectPath(string(hash)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read object %s: %w", hash, err)
	}
	if loader.ContentHash(data) != string(hash) {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *FilesystemStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := loader.ContentHash(value)
	obj := s.objectPath(hash)
	if ok, _ := afero.Exists(s.fs, obj); !ok {
		if err := s.writeAtomic(obj, value); err != nil {
			return fmt.Errorf("store object %s: %w", hash, err)
		}
	}
	if err := s.writeAtomic(s.keyPath(key), []byte(hash)); err != nil {
		return fmt.Errorf("store key %s: %w", key, err)
	}
	return nil
}

func (s *FilesystemStore) writeAtomic(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, path)
}

// Delete removes the key. Objects are left for Prune.
func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fs.Remove(s.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Prune removes objects no key refers to and returns how many it removed.
func (s *FilesystemStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]bool)
	err := afero.Walk(s.fs, filepath.Join(s.rootDir, keysDir), func(path string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		hash, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return err
		}
		live[string(hash)] = true
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan keys: %w", err)
	}

	var dead []string
	err = afero.Walk(s.fs, filepath.Join(s.rootDir, objectsDir), func(path string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !live[info.Name()] {
			dead = append(dead, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan objects: %w", err)
	}
	for _, path := range dead {
		if err := s.fs.Remove(path); err != nil {
			return 0, fmt.Errorf("remove object: %w", err)
		}
	}
	return len(dead), nil
}

func (s *FilesystemStore) Close() error { return nil }
