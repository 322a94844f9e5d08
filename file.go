package filesys

import (
	"github.com/eduos/filesys/internal/directory"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/inode"
	"github.com/eduos/filesys/internal/resolver"
)

// File is a handle to an open file inode, carrying the byte cursor that
// Seek, Tell, Read, and Write act on.
type File struct {
	fs  *FileSystem
	in  *inode.Inode
	pos uint32
}

// Create creates a new, empty (or initialSize-byte) file at path, resolved
// relative to d, and returns an open handle to it. It fails with ErrExists
// if the name is already taken and ErrInvalidName for an empty or too-long
// leaf name.
func (d *Dir) Create(path string, initialSize uint32) (*File, error) {
	parent, name, err := resolver.ResolveParent(d.fs.mgr, d.d, path)
	if err != nil {
		return nil, err
	}
	defer directory.Close(parent)

	if _, _, ok, err := directory.Lookup(parent, name); err != nil {
		return nil, err
	} else if ok {
		return nil, ferrors.ErrExists
	}

	sector, ok, err := d.fs.free.Allocate(1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ferrors.ErrNoSpace
	}

	if err := inode.Create(d.fs.mgr, sector, initialSize, false); err != nil {
		d.fs.free.Release(sector, 1)
		return nil, err
	}

	if err := directory.Add(parent, name, sector); err != nil {
		child := inode.Open(d.fs.mgr, sector)
		inode.Remove(child)
		inode.Close(child)
		return nil, err
	}

	in := inode.Open(d.fs.mgr, sector)
	if err := in.SetParent(parent.Sector()); err != nil {
		inode.Close(in)
		return nil, err
	}
	return &File{fs: d.fs, in: in}, nil
}

// Open resolves path (relative to d) to an existing file and returns an
// open handle to it. It fails with ErrIsDir if path names a directory.
func (d *Dir) Open(path string) (*File, error) {
	sector, isDir, err := resolver.ResolveFile(d.fs.mgr, d.d, path)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, ferrors.ErrIsDir
	}
	return &File{fs: d.fs, in: inode.Open(d.fs.mgr, sector)}, nil
}

// Remove unlinks path (resolved relative to d): it erases the directory
// entry and marks the target inode removed, deferring actual deallocation
// until every open handle to it closes.
func (d *Dir) Remove(path string) error {
	parent, name, err := resolver.ResolveParent(d.fs.mgr, d.d, path)
	if err != nil {
		return err
	}
	defer directory.Close(parent)
	return directory.Remove(d.fs.mgr, parent, name)
}

// Close releases f's reference on its backing inode, finalizing deletion
// if it was the last reference to a removed inode.
func (f *File) Close() error { return inode.Close(f.in) }

// Inumber returns the sector number of f's backing inode.
func (f *File) Inumber() uint32 { return f.in.Sector() }

// IsDir always reports false for a File handle.
func (f *File) IsDir() bool { return false }

// Length returns f's current byte length.
func (f *File) Length() (uint32, error) { return f.in.Length() }

// Seek repositions f's cursor to pos. Seeking past the current length is
// permitted; it takes effect as a hole-filling write the next time Write is
// called there.
func (f *File) Seek(pos uint32) { f.pos = pos }

// Tell returns f's current cursor position.
func (f *File) Tell() uint32 { return f.pos }

// Read reads into p starting at f's cursor, advancing it by the number of
// bytes actually read. A short read signals EOF, never an error.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.in.ReadAt(p, f.pos)
	f.pos += uint32(n)
	return n, err
}

// Write writes p at f's cursor, growing the file if needed, and advances
// the cursor by the number of bytes actually written.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.in.WriteAt(p, f.pos)
	f.pos += uint32(n)
	return n, err
}

// DenyWrite and AllowWrite implement the open-for-execute write-denial
// protocol: while any DenyWrite is outstanding, Write fails.
func (f *File) DenyWrite()  { f.in.DenyWrite() }
func (f *File) AllowWrite() { f.in.AllowWrite() }
