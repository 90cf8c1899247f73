// Package fileutil holds the file lifecycle helpers used by the pipeline:
// moving finished images into the archive and landing uploads in the inbox.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxUniqueAttempts bounds the name-suffix search on collisions.
const maxUniqueAttempts = 1000

// MoveToDir renames src into dir and returns the destination path. An
// existing file of the same name is never overwritten; a numeric suffix is
// added instead. If src already lives in dir it is left where it is.
//
// Only rename is attempted. A cross-device move fails rather than falling
// back to a copy, so the move is atomic or does not happen.
func MoveToDir(src, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("destination directory is empty")
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("resolve source: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	if filepath.Dir(absSrc) == filepath.Clean(absDir) {
		if _, err := os.Stat(absSrc); err != nil {
			return "", err
		}
		return absSrc, nil
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	dst, err := uniquePath(absDir, filepath.Base(absSrc))
	if err != nil {
		return "", err
	}
	if err := os.Rename(absSrc, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// WriteUnique streams r into dir under name (or a suffixed variant when name
// is taken) and returns the final path. Data is first written to a hidden
// temporary file and renamed into place, so directory watchers never observe
// a partial file under the final name.
func WriteUnique(dir, name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file: %w", err)
	}

	dst, err := uniquePath(dir, name)
	if err != nil {
		cleanup()
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return "", fmt.Errorf("publish file: %w", err)
	}
	return dst, nil
}

// uniquePath returns dir/name, or dir/stem-N.ext for the first N that does not exist.
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate, nil
	} else if err != nil {
		return "", err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxUniqueAttempts; i++ {
		candidate = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}
