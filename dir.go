package filesys

import (
	"github.com/eduos/filesys/internal/directory"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/inode"
	"github.com/eduos/filesys/internal/resolver"
)

// Dir is a handle to an open directory, usable both as a traversal root
// (CWD) for path resolution and as a syscall-layer directory fd.
type Dir struct {
	fs *FileSystem
	d  *directory.Dir
}

// Close releases d's reference on its backing inode.
func (d *Dir) Close() error { return directory.Close(d.d) }

// Inumber returns the sector number of d's backing inode.
func (d *Dir) Inumber() uint32 { return d.d.Sector() }

// IsDir always reports true for a Dir handle; provided for symmetry with
// File.IsDir so callers holding either kind of handle can ask uniformly.
func (d *Dir) IsDir() bool { return true }

// Mkdir creates a new, empty subdirectory at path (resolved relative to d),
// seeded with "." and ".." entries. It fails with
// ErrExists if the name is already taken in the parent and ErrInvalidName
// for an empty or too-long leaf name.
func (d *Dir) Mkdir(path string) error {
	parent, name, err := resolver.ResolveParent(d.fs.mgr, d.d, path)
	if err != nil {
		return err
	}
	defer directory.Close(parent)

	if _, _, ok, err := directory.Lookup(parent, name); err != nil {
		return err
	} else if ok {
		return ferrors.ErrExists
	}

	sector, ok, err := d.fs.free.Allocate(1)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.ErrNoSpace
	}

	if err := directory.Create(d.fs.mgr, sector, parent.Sector(), RootEntryCapacity); err != nil {
		d.fs.free.Release(sector, 1)
		return err
	}

	// The child was allocated but never linked in; release its sectors
	// rather than leaking them.
	if err := directory.Add(parent, name, sector); err != nil {
		child := inode.Open(d.fs.mgr, sector)
		inode.Remove(child)
		inode.Close(child)
		return err
	}
	return nil
}

// Chdir resolves path (relative to d) to a directory and returns a fresh
// handle onto it, to be used as the caller's new CWD. The caller is
// responsible for closing both the old and new handles as appropriate.
func (d *Dir) Chdir(path string) (*Dir, error) {
	target, err := resolver.ResolveDir(d.fs.mgr, d.d, path)
	if err != nil {
		return nil, err
	}
	return &Dir{fs: d.fs, d: target}, nil
}

// OpenDir resolves path (relative to d) and returns a directory handle over
// it, for callers that want to Readdir it without making it the CWD.
func (d *Dir) OpenDir(path string) (*Dir, error) {
	return d.Chdir(path)
}

// Readdir returns the next entry name in d, advancing its cursor. "." and
// ".." are real entries returned like any other;
// callers that wish to hide them skip the first two successful calls.
func (d *Dir) Readdir() (name string, ok bool, err error) {
	return directory.Readdir(d.d)
}

// RewindReaddir resets d's enumeration cursor to the start of its entries.
func (d *Dir) RewindReaddir() { directory.RewindReaddir(d.d) }
