package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
)

// LocalFS is a FileSystem rooted at a project directory. Paths are resolved
// against the root and may not leave it.
type LocalFS struct {
	root   string
	access config.FilesystemAccess
}

func NewLocalFS(root string, access config.FilesystemAccess) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve project root '%s'", root)
	}
	return &LocalFS{root: abs, access: access}, nil
}

// Root returns the absolute project directory.
func (f *LocalFS) Root() string { return f.root }

func (f *LocalFS) Read(path string) ([]byte, error) {
	rel, abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	hidden, err := isPathRestricted(rel, f.access.Hidden)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, errors.New("access denied: path '%s' is hidden", path)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return content, nil
}

func (f *LocalFS) Write(path string, data []byte) error {
	rel, abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	hidden, err := isPathRestricted(rel, f.access.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	readOnly, err := isPathRestricted(rel, f.access.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for '%s'", path)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return nil
}

// resolve returns the slash-separated path relative to the root and the
// absolute path on disk.
func (f *LocalFS) resolve(path string) (string, string, error) {
	if strings.TrimSpace(path) == "" {
		return "", "", errors.New("empty path")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.root, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.New("access denied: path '%s' is outside the project", path)
	}
	return filepath.ToSlash(rel), abs, nil
}
