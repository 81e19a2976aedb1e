// Package mxr allocates output artifact paths for measurement runs.
package mxr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultDir  = "./mxr_files"
	DefaultName = "newMXR_0.mxr"

	// maxIndex bounds the search for a free newMXR_<i>.mxr name.
	maxIndex = 1000
)

var ErrTooManyFiles = errors.New("mxr: too many files in the folder")

// Allocator hands out MXR paths that neither exist on disk nor were returned
// before by the same Allocator. It is safe for concurrent use.
type Allocator struct {
	Dir string

	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewAllocator(dir string) *Allocator {
	if dir == "" {
		dir = DefaultDir
	}
	return &Allocator{Dir: dir}
}

// Next returns the path for name inside the directory when it is free, and
// otherwise the first free newMXR_<i>.mxr with i >= 1. An empty name means
// DefaultName. The directory is created if needed.
func (a *Allocator) Next(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mxr: %w", err)
	}
	if a.reserved == nil {
		a.reserved = make(map[string]struct{})
	}
	if name == "" {
		name = DefaultName
	}

	p := filepath.Join(a.Dir, name)
	free, err := a.free(p)
	if err != nil {
		return "", err
	}
	for i := 1; !free; i++ {
		if i > maxIndex {
			return "", ErrTooManyFiles
		}
		p = filepath.Join(a.Dir, fmt.Sprintf("newMXR_%d.mxr", i))
		if free, err = a.free(p); err != nil {
			return "", err
		}
	}
	a.reserved[p] = struct{}{}
	return p, nil
}

// Release forgets a path returned by Next, e.g. when the run that was going
// to create it failed to start.
func (a *Allocator) Release(p string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, p)
}

func (a *Allocator) free(p string) (bool, error) {
	if _, ok := a.reserved[p]; ok {
		return false, nil
	}
	_, err := os.Stat(p)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("mxr: %w", err)
	}
}
