// Package local implements the filesystem-backed content store for one
// mirror run.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes mirrored content under a single run directory.
type Store struct {
	baseDir string
}

// New creates the run directory if needed and verifies it is writable.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("base directory path is not a directory")
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	}

	// Probe write permissions up front so the run fails before any
	// network work rather than after.
	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the absolute run directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Put writes data under the run directory at relPath (slash-separated)
// and returns the absolute file path. The write goes to a temp file in
// the destination directory first and is renamed into place, so a
// partially written file is never observable at the final path.
func (s *Store) Put(relPath string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(relPath))

	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %q", relPath)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize file: %w", err)
	}

	return fullPath, nil
}
