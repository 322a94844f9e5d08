// Package ferrors holds the sentinel errors shared by the inode, directory,
// path-resolution, and top-level filesys packages, so callers can use
// errors.Is regardless of which layer raised the failure: one error value
// per failure kind an operation can report.
package ferrors

import "errors"

var (
	// ErrNotFound is returned when a path component or directory entry does
	// not exist.
	ErrNotFound = errors.New("filesys: not found")

	// ErrExists is returned when an add/create would duplicate an existing
	// name in a directory.
	ErrExists = errors.New("filesys: already exists")

	// ErrInvalidName is returned for an empty name or one longer than
	// NAME_MAX.
	ErrInvalidName = errors.New("filesys: invalid name")

	// ErrNotDir is returned when a non-directory inode is traversed as if
	// it were a directory.
	ErrNotDir = errors.New("filesys: not a directory")

	// ErrIsDir is returned when a directory inode is used where a file was
	// expected.
	ErrIsDir = errors.New("filesys: is a directory")

	// ErrDirNotEmpty is returned when removing a directory that still has
	// entries beyond "." and "..", or that is open elsewhere.
	ErrDirNotEmpty = errors.New("filesys: directory not empty or in use")

	// ErrNoSpace is returned when the free-sector allocator cannot satisfy
	// a request.
	ErrNoSpace = errors.New("filesys: out of space")

	// ErrWriteDenied is returned by write_at when the target inode's
	// deny-write count is positive.
	ErrWriteDenied = errors.New("filesys: write denied")
)
