package tools

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
)

// Tree lists the files of a project directory, skipping ignored paths. The
// listing is cached until Invalidate is called or, while Watch runs, until a
// file system change is observed.
type Tree struct {
	root   string
	ignore []string

	mu    sync.Mutex
	files []string
	valid bool
}

func NewTree(root string, ignore []string) *Tree {
	return &Tree{root: root, ignore: ignore}
}

func (t *Tree) Files() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.valid {
		return append([]string(nil), t.files...), nil
	}

	files, err := t.walk()
	if err != nil {
		return nil, err
	}
	t.files = files
	t.valid = true
	return append([]string(nil), files...), nil
}

// Invalidate drops the cached listing.
func (t *Tree) Invalidate() {
	t.mu.Lock()
	t.valid = false
	t.mu.Unlock()
}

// Watch invalidates the cache on every create, remove or rename under the
// root until ctx is done.
func (t *Tree) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrapf(err, "failed to start file watcher")
	}

	err = filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != t.root && t.ignored(t.rel(path)) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			logging.Debug("could not watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "failed to walk '%s'", t.root)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if t.ignored(t.rel(event.Name)) {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if isDir(event.Name) {
						_ = w.Add(event.Name)
					}
				}
				t.Invalidate()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn("file watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (t *Tree) walk() ([]string, error) {
	var files []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == t.root {
			return nil
		}
		rel := t.rel(path)
		if t.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list project files")
	}
	sort.Strings(files)
	return files, nil
}

func (t *Tree) rel(path string) string {
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (t *Tree) ignored(rel string) bool {
	for _, pattern := range t.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
