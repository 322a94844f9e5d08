// Package resolver implements path resolution: tokenizing a
// slash-separated path and walking it one component at a time, rooted at
// either the filesystem root or a caller-supplied CWD handle.
//
// Every step closes exactly the handle it opened and never holds more than
// the current step's two handles at once, so no intermediate directory
// reference survives an error return.
package resolver

import (
	"strings"

	"github.com/eduos/filesys/internal/directory"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/inode"
)

// RootSector is the sector the filesystem root directory lives at.
const RootSector = inode.RootSector

// split tokenizes path into its slash-separated components, reporting
// whether the path is absolute (one or more leading slashes). Empty
// components from repeated slashes are dropped.
func split(path string) (components []string, absolute bool) {
	absolute = strings.HasPrefix(path, "/")
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			components = append(components, c)
		}
	}
	return components, absolute
}

// startDir returns the directory to begin traversal from: the root if
// absolute, else a fresh reference onto cwd's backing inode so the walk can
// close intermediate handles uniformly without ever closing the caller's
// cwd out from under it.
func startDir(mgr *inode.Manager, cwd *directory.Dir, absolute bool) (*directory.Dir, error) {
	if absolute {
		return directory.Open(mgr, RootSector)
	}
	return directory.Open(mgr, cwd.Sector())
}

// ResolveDir resolves every component of path to a directory, starting from
// root (if absolute) or cwd (if relative). It fails with ferrors.ErrNotFound
// if any component is missing and ferrors.ErrNotDir if a non-final
// component is not a directory.
func ResolveDir(mgr *inode.Manager, cwd *directory.Dir, path string) (*directory.Dir, error) {
	components, absolute := split(path)

	cur, err := startDir(mgr, cwd, absolute)
	if err != nil {
		return nil, err
	}

	for _, comp := range components {
		if len(comp) > directory.NameMax {
			directory.Close(cur)
			return nil, ferrors.ErrInvalidName
		}

		e, _, ok, err := directory.Lookup(cur, comp)
		if err != nil {
			directory.Close(cur)
			return nil, err
		}
		if !ok {
			directory.Close(cur)
			return nil, ferrors.ErrNotFound
		}

		next, err := directory.Open(mgr, e.Sector)
		directory.Close(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	return cur, nil
}

// ResolveParent resolves every component of path except the last, returning
// the parent directory (the caller owns closing it) and the final
// component's name, so the caller can create or remove that leaf. An empty
// or root-only path (no final component) is an invalid-name error: there is
// no leaf to operate on.
func ResolveParent(mgr *inode.Manager, cwd *directory.Dir, path string) (*directory.Dir, string, error) {
	components, absolute := split(path)
	if len(components) == 0 {
		return nil, "", ferrors.ErrInvalidName
	}

	cur, err := startDir(mgr, cwd, absolute)
	if err != nil {
		return nil, "", err
	}

	for _, comp := range components[:len(components)-1] {
		if len(comp) > directory.NameMax {
			directory.Close(cur)
			return nil, "", ferrors.ErrInvalidName
		}

		e, _, ok, err := directory.Lookup(cur, comp)
		if err != nil {
			directory.Close(cur)
			return nil, "", err
		}
		if !ok {
			directory.Close(cur)
			return nil, "", ferrors.ErrNotFound
		}

		next, err := directory.Open(mgr, e.Sector)
		directory.Close(cur)
		if err != nil {
			return nil, "", err
		}
		cur = next
	}

	final := components[len(components)-1]
	if len(final) > directory.NameMax {
		directory.Close(cur)
		return nil, "", ferrors.ErrInvalidName
	}
	return cur, final, nil
}

// ResolveFile resolves path to the inode sector of its final component,
// which may name either a file or a directory; ResolveDir is used when the
// caller specifically needs the final component to be traversable. It
// fails with ErrNotDir if any non-final component is not a directory,
// reported by directory.Open when ResolveParent tries to open that
// component as a directory.
func ResolveFile(mgr *inode.Manager, cwd *directory.Dir, path string) (sector uint32, isDir bool, err error) {
	components, _ := split(path)
	if len(components) == 0 {
		return RootSector, true, nil
	}

	parent, name, err := ResolveParent(mgr, cwd, path)
	if err != nil {
		return 0, false, err
	}
	defer directory.Close(parent)

	e, _, ok, err := directory.Lookup(parent, name)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ferrors.ErrNotFound
	}

	in := inode.Open(mgr, e.Sector)
	defer inode.Close(in)
	dir, err := in.IsDir()
	if err != nil {
		return 0, false, err
	}
	return e.Sector, dir, nil
}
