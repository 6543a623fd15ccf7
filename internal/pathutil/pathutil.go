// Package pathutil validates and resolves file paths named in the site
// configuration.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, null bytes and any ".." segment.
// Segments are checked before cleaning: "scripts/../../etc/passwd" cleans
// to "../etc/passwd" but "scripts/../etc/passwd" cleans to "etc/passwd",
// and both must be refused.
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}

	for _, segment := range strings.Split(filepath.ToSlash(filePath), "/") {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", filePath)
		}
	}
	return nil
}

// ResolveRelative validates filePath and, when it is relative, anchors it at
// baseDir (usually the directory of the configuration file). An empty
// baseDir leaves relative paths relative to the working directory.
func ResolveRelative(baseDir, filePath string) (string, error) {
	if err := ValidateFilePath(filePath); err != nil {
		return "", err
	}
	if filepath.IsAbs(filePath) || baseDir == "" {
		return filepath.Clean(filePath), nil
	}
	return filepath.Join(baseDir, filePath), nil
}
