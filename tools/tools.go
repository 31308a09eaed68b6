package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/aiteam/logging"
)

// FileSystem reads and writes project files. Read of a missing file returns
// an error wrapping fs.ErrNotExist.
type FileSystem interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}

// Terminal starts a shell command. The returned error reports only a
// synchronous refusal; the command's own outcome is not observed.
type Terminal interface {
	Run(ctx context.Context, command string) error
}

// Reviewer shows a proposed file change to a human. The decision comes back
// later through the agent controller.
type Reviewer interface {
	PresentDiff(path, current, proposed string)
}

// ProjectTree lists project files as slash-separated relative paths.
type ProjectTree interface {
	Files() ([]string, error)
}

// Editor exposes the file the user currently has open, if any.
type Editor interface {
	OpenFile() (path, text string, ok bool)
}

// StaticEditor is an Editor that always reports the same file.
type StaticEditor struct {
	Path string
	Text string
}

func (e StaticEditor) OpenFile() (string, string, bool) {
	return e.Path, e.Text, e.Path != ""
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command matches the allow-list. Patterns are
// regular expressions; an invalid one falls back to exact comparison.
func isCommandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logging.Warn("invalid regex in allowed_commands", "pattern", pattern, "error", err)
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
