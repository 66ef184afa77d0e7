//go:build (darwin || linux || freebsd) && (amd64 || arm64)

// Package bindings loads the C runtime shared library with purego so that
// native allocations can be made without CGO.
package bindings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"github.com/obinnaokechukwu/wrapcache/internal/platform"
)

// ErrLibraryNotFound is returned when the C runtime library cannot be found.
var ErrLibraryNotFound = errors.New("wrapcache: C runtime library not found")

var (
	libC uintptr

	loaded   bool
	loadOnce sync.Once
	loadErr  error
)

// IsLoaded returns true if the C runtime has been successfully loaded.
func IsLoaded() bool {
	return loaded
}

// Load loads the C runtime library.
// It is safe to call multiple times; subsequent calls are no-ops.
func Load() error {
	loadOnce.Do(func() {
		name, versions := platform.CRuntime()
		libC, loadErr = loadLibrary(name, versions)
		if loadErr != nil {
			loadErr = fmt.Errorf("loading C runtime: %w", loadErr)
			return
		}
		loaded = true
	})
	return loadErr
}

// LibC returns the C runtime library handle, or 0 if it is not loaded.
func LibC() uintptr {
	return libC
}

// loadLibrary attempts to load a library by trying versioned names.
func loadLibrary(name string, versions []int) (uintptr, error) {
	for _, searchPath := range LibrarySearchPaths() {
		// Versioned names first (more specific)
		for _, ver := range versions {
			fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, ver))
			if lib, err := tryOpen(fullPath); err == nil {
				return lib, nil
			}
		}
		fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, 0))
		if lib, err := tryOpen(fullPath); err == nil {
			return lib, nil
		}
	}

	// Let the dynamic loader search
	for _, ver := range versions {
		if lib, err := tryOpen(platform.FormatLibraryName(name, ver)); err == nil {
			return lib, nil
		}
	}
	if lib, err := tryOpen(platform.FormatLibraryName(name, 0)); err == nil {
		return lib, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
}

func tryOpen(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

// FindLibrary searches for a library and returns its full path.
// This is useful for diagnostics.
func FindLibrary(name string, versions []int) (string, error) {
	for _, searchPath := range LibrarySearchPaths() {
		for _, ver := range versions {
			fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, ver))
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
		fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, 0))
		if _, err := os.Stat(fullPath); err == nil {
			return fullPath, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
}

// LibrarySearchPaths returns platform-specific library search paths.
func LibrarySearchPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "linux":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths,
			"/lib/x86_64-linux-gnu",
			"/lib/aarch64-linux-gnu",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/lib64",
			"/usr/lib64",
			"/lib",
			"/usr/lib",
		)

	case "darwin":
		// libSystem lives in the dyld shared cache; the path still resolves.
		paths = append(paths, "/usr/lib")

	case "freebsd":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths, "/lib", "/usr/lib")
	}

	return paths
}
