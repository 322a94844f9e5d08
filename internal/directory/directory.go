// Package directory implements the directory layer: a directory is a file
// inode whose data is a densely packed array of fixed-size directory-entry
// records, supporting name lookup, add/remove with slot reuse, and
// cursor-based enumeration.
package directory

import (
	"encoding/binary"
	"fmt"

	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/inode"
)

// NameMax is the longest entry name, not counting the NUL terminator.
const NameMax = inode.NameMax

// entrySize is the fixed declared size of one on-disk directory-entry
// record: a uint32 sector, a NameMax+1-byte NUL-terminated name, an in-use
// byte, and trailing padding to a round, naturally aligned size.
const entrySize = 24

// Entry is one directory-entry record.
type Entry struct {
	Sector uint32
	Name   string
	InUse  bool
}

func marshalEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Sector)
	copy(buf[4:4+NameMax+1], e.Name)
	if e.InUse {
		buf[4+NameMax+1] = 1
	}
	return buf
}

func unmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) != entrySize {
		return Entry{}, fmt.Errorf("directory: entry buffer has length %d, want %d", len(buf), entrySize)
	}
	var e Entry
	e.Sector = binary.LittleEndian.Uint32(buf[0:4])
	name := buf[4 : 4+NameMax+1]
	nul := len(name)
	for i, b := range name {
		if b == 0 {
			nul = i
			break
		}
	}
	e.Name = string(name[:nul])
	e.InUse = buf[4+NameMax+1] != 0
	return e, nil
}

// Dir is the in-memory handle to an open directory: exclusive ownership of
// one inode reference, plus the byte cursor Readdir advances.
type Dir struct {
	in  *inode.Inode
	pos uint32
}

// Create formats a brand-new directory inode at sector with entryCapacity
// pre-allocated entry slots, and links "." (self) and ".." (parent) as its
// first two entries. For the root directory, parent == sector.
func Create(mgr *inode.Manager, sector, parent uint32, entryCapacity uint32) error {
	if err := inode.Create(mgr, sector, entryCapacity*entrySize, true); err != nil {
		return err
	}

	in := inode.Open(mgr, sector)
	defer inode.Close(in)

	d := &Dir{in: in}
	if err := rawAdd(d, ".", sector); err != nil {
		return err
	}
	return rawAdd(d, "..", parent)
}

// Open returns the directory handle for sector, taking a fresh reference on
// its backing inode.
func Open(mgr *inode.Manager, sector uint32) (*Dir, error) {
	in := inode.Open(mgr, sector)
	isDir, err := in.IsDir()
	if err != nil {
		inode.Close(in)
		return nil, err
	}
	if !isDir {
		inode.Close(in)
		return nil, ferrors.ErrNotDir
	}
	return &Dir{in: in}, nil
}

// Close releases d's exclusive reference on its backing inode.
func Close(d *Dir) error {
	return inode.Close(d.in)
}

// Inode returns the backing in-memory inode, for callers that need to open
// a second handle onto the same directory (e.g. chdir retaining a
// reference the resolver's handle is about to close).
func (d *Dir) Inode() *inode.Inode { return d.in }

// Sector is the inumber of the directory's backing inode.
func (d *Dir) Sector() uint32 { return d.in.Sector() }

// validateName rejects empty names and names longer than NameMax.
func validateName(name string) error {
	if name == "" || len(name) > NameMax {
		return ferrors.ErrInvalidName
	}
	return nil
}

// Lookup linearly scans d's entries for an in-use entry named name,
// returning it along with its byte offset within the directory's data.
func Lookup(d *Dir, name string) (Entry, uint32, bool, error) {
	length, err := d.in.Length()
	if err != nil {
		return Entry{}, 0, false, err
	}

	buf := make([]byte, entrySize)
	for off := uint32(0); off+entrySize <= length; off += entrySize {
		n, err := d.in.ReadAt(buf, off)
		if err != nil {
			return Entry{}, 0, false, err
		}
		if n != entrySize {
			break
		}
		e, err := unmarshalEntry(buf)
		if err != nil {
			return Entry{}, 0, false, err
		}
		if e.InUse && e.Name == name {
			return e, off, true, nil
		}
	}
	return Entry{}, 0, false, nil
}

// Add writes a new entry (name, sector) into d, reusing the lowest
// not-in-use slot if one exists, else appending at the end. It rejects an
// invalid or duplicate name.
func Add(d *Dir, name string, sector uint32) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, _, ok, err := Lookup(d, name); err != nil {
		return err
	} else if ok {
		return ferrors.ErrExists
	}
	return rawAdd(d, name, sector)
}

// rawAdd writes the entry without duplicate/name-length checking, used by
// Create to lay down "." and "..".
func rawAdd(d *Dir, name string, sector uint32) error {
	length, err := d.in.Length()
	if err != nil {
		return err
	}

	buf := make([]byte, entrySize)
	target := length
	for off := uint32(0); off+entrySize <= length; off += entrySize {
		n, err := d.in.ReadAt(buf, off)
		if err != nil {
			return err
		}
		if n != entrySize {
			break
		}
		e, err := unmarshalEntry(buf)
		if err != nil {
			return err
		}
		if !e.InUse {
			target = off
			break
		}
	}

	record := marshalEntry(Entry{Sector: sector, Name: name, InUse: true})
	n, err := d.in.WriteAt(record, target)
	if err != nil {
		return err
	}
	if n != entrySize {
		return fmt.Errorf("directory: short write adding entry %q", name)
	}
	return nil
}

// Remove looks up name, marks its on-disk slot not-in-use (preserving the
// slot for reuse), and marks the target inode removed. It opens and closes
// only its own reference to the target; the target is deallocated when the
// last reference, including any held by callers, is closed.
func Remove(mgr *inode.Manager, d *Dir, name string) error {
	e, off, ok, err := Lookup(d, name)
	if !ok {
		if err != nil {
			return err
		}
		return ferrors.ErrNotFound
	}

	target := inode.Open(mgr, e.Sector)
	defer inode.Close(target)

	isDir, err := target.IsDir()
	if err != nil {
		return err
	}
	if isDir {
		empty, err := isEmptyDir(target)
		if err != nil {
			return err
		}
		if !empty || target.IsOpen() {
			return ferrors.ErrDirNotEmpty
		}
	}

	record := marshalEntry(Entry{Sector: e.Sector, Name: name, InUse: false})
	n, err := d.in.WriteAt(record, off)
	if err != nil {
		return err
	}
	if n != entrySize {
		return fmt.Errorf("directory: short write removing entry %q", name)
	}

	inode.Remove(target)
	return nil
}

// isEmptyDir reports whether in (known to be a directory inode) holds no
// in-use entries beyond "." and "..".
func isEmptyDir(in *inode.Inode) (bool, error) {
	length, err := in.Length()
	if err != nil {
		return false, err
	}

	buf := make([]byte, entrySize)
	seen := 0
	for off := uint32(0); off+entrySize <= length; off += entrySize {
		n, err := in.ReadAt(buf, off)
		if err != nil {
			return false, err
		}
		if n != entrySize {
			break
		}
		e, err := unmarshalEntry(buf)
		if err != nil {
			return false, err
		}
		if !e.InUse {
			continue
		}
		seen++
		if seen > 2 {
			return false, nil
		}
	}
	return true, nil
}

// Readdir returns the next in-use entry's name starting at d's cursor,
// advancing the cursor past it, or ok=false once the data is exhausted.
// Callers that want to hide "." and ".." skip the first two successful
// calls.
func Readdir(d *Dir) (name string, ok bool, err error) {
	length, err := d.in.Length()
	if err != nil {
		return "", false, err
	}

	buf := make([]byte, entrySize)
	for d.pos+entrySize <= length {
		off := d.pos
		d.pos += entrySize

		n, err := d.in.ReadAt(buf, off)
		if err != nil {
			return "", false, err
		}
		if n != entrySize {
			return "", false, nil
		}
		e, err := unmarshalEntry(buf)
		if err != nil {
			return "", false, err
		}
		if e.InUse {
			return e.Name, true, nil
		}
	}
	return "", false, nil
}

// RewindReaddir resets d's enumeration cursor to the start of its data.
func RewindReaddir(d *Dir) { d.pos = 0 }
