// Package dirfs is the filesystem capability consumed by transfer sessions:
// listing the regular files of one served directory and opening them for
// read. Implementations back it with the OS or with in-memory fixtures.
package dirfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrInvalidName = errors.New("dirfs: invalid file name")
)

// Dir serves one directory of regular files.
type Dir interface {
	// ListFiles returns the names of regular files, sorted.
	ListFiles() ([]string, error)
	// Open opens one named file for reading.
	Open(name string) (io.ReadCloser, error)
}

type osDir struct {
	root string
}

// OS returns a Dir backed by the given directory on the local filesystem.
func OS(root string) Dir {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		resolved = "."
	}
	return osDir{root: resolved}
}

func (d osDir) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("dirfs: list %s: %w", d.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (d osDir) Open(name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(d.root, name))
}

// validateName keeps requests inside the served directory.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// MemDir is an in-memory Dir fixture keyed by file name.
type MemDir struct {
	files map[string][]byte
}

func Mem(files map[string][]byte) *MemDir {
	copied := make(map[string][]byte, len(files))
	for name, content := range files {
		copied[name] = append([]byte(nil), content...)
	}
	return &MemDir{files: copied}
}

func (d *MemDir) ListFiles() ([]string, error) {
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *MemDir) Open(name string) (io.ReadCloser, error) {
	content, ok := d.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
