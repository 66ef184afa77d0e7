//go:build (darwin || linux || freebsd) && (amd64 || arm64)

// Package platform describes how shared libraries are named on the current
// operating system, and which library provides the C runtime.
package platform

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Is64Bit indicates whether the platform is 64-bit.
// Handles are stored as uintptr, and purego is only used on 64-bit targets.
const Is64Bit = unsafe.Sizeof(uintptr(0)) == 8

// LibraryExtension is the file extension for shared libraries on this platform.
var LibraryExtension string

// LibraryPrefix is the prefix for shared library names on this platform.
var LibraryPrefix = "lib"

func init() {
	switch runtime.GOOS {
	case "darwin":
		LibraryExtension = ".dylib"
	default: // linux, freebsd
		LibraryExtension = ".so"
	}
}

// FormatLibraryName returns the platform-specific library filename.
// If version is 0, returns the unversioned library name.
//
// Examples:
//   - Linux:   FormatLibraryName("c", 6)        -> "libc.so.6"
//   - macOS:   FormatLibraryName("System.B", 0) -> "libSystem.B.dylib"
func FormatLibraryName(name string, version int) string {
	switch runtime.GOOS {
	case "darwin":
		if version > 0 {
			return fmt.Sprintf("%s%s.%d%s", LibraryPrefix, name, version, LibraryExtension)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	default:
		if version > 0 {
			return fmt.Sprintf("%s%s%s.%d", LibraryPrefix, name, LibraryExtension, version)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	}
}

// CRuntime returns the base name of the library exporting malloc and free,
// and the major versions worth trying, most specific first.
func CRuntime() (name string, versions []int) {
	switch runtime.GOOS {
	case "darwin":
		return "System.B", nil
	case "freebsd":
		return "c", []int{7}
	default:
		return "c", []int{6}
	}
}
