package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/cache"
	"github.com/eduos/filesys/internal/directory"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/freemap"
	"github.com/eduos/filesys/internal/inode"
)

func newFixture(t *testing.T, sectors uint32) *inode.Manager {
	t.Helper()
	dev := blockdev.NewMemDevice(sectors)
	c := cache.New(dev, nil)
	fm, err := freemap.Create(c, sectors)
	require.NoError(t, err)
	// Tests place inodes at the fixed sectors 2 and 3; reserve them so the
	// allocator never hands them out as data sectors.
	_, ok, err := fm.Allocate(2)
	require.NoError(t, err)
	require.True(t, ok)
	return inode.NewManager(c, fm)
}

func TestCreateRootSeedsDotAndDotDot(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))

	d, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(d)

	self, off, ok, err := directory.Lookup(d, ".")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, inode.RootSector, self.Sector)
	assert.EqualValues(t, 0, off)

	parent, _, ok, err := directory.Lookup(d, "..")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, inode.RootSector, parent.Sector)
}

func TestAddRejectsDuplicateAndInvalidNames(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))
	d, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(d)

	require.NoError(t, inode.Create(mgr, 2, 0, false))
	require.NoError(t, directory.Add(d, "file.txt", 2))

	err = directory.Add(d, "file.txt", 2)
	assert.ErrorIs(t, err, ferrors.ErrExists)

	err = directory.Add(d, "", 2)
	assert.ErrorIs(t, err, ferrors.ErrInvalidName)

	err = directory.Add(d, "fifteencharname", 2) // 15 chars, one over NameMax
	assert.ErrorIs(t, err, ferrors.ErrInvalidName)

	require.NoError(t, inode.Create(mgr, 3, 0, false))
	require.NoError(t, directory.Add(d, "fourteenchars.", 3)) // exactly NameMax
}

func TestAddReusesRemovedSlot(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))
	d, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(d)

	require.NoError(t, inode.Create(mgr, 2, 0, false))
	require.NoError(t, directory.Add(d, "a", 2))

	lengthBefore, err := d.Inode().Length()
	require.NoError(t, err)

	require.NoError(t, directory.Remove(mgr, d, "a"))

	require.NoError(t, inode.Create(mgr, 3, 0, false))
	require.NoError(t, directory.Add(d, "b", 3))

	lengthAfter, err := d.Inode().Length()
	require.NoError(t, err)
	assert.Equal(t, lengthBefore, lengthAfter, "reused slot must not grow the directory")
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))
	root, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(root)

	require.NoError(t, directory.Create(mgr, 2, inode.RootSector, 16))
	require.NoError(t, directory.Add(root, "sub", 2))

	require.NoError(t, inode.Create(mgr, 3, 0, false))
	sub, err := directory.Open(mgr, 2)
	require.NoError(t, err)
	require.NoError(t, directory.Add(sub, "leaf", 3))
	require.NoError(t, directory.Close(sub))

	err = directory.Remove(mgr, root, "sub")
	assert.ErrorIs(t, err, ferrors.ErrDirNotEmpty)
}

func TestRemoveRejectsOpenDirectory(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))
	root, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(root)

	require.NoError(t, directory.Create(mgr, 2, inode.RootSector, 16))
	require.NoError(t, directory.Add(root, "sub", 2))

	sub, err := directory.Open(mgr, 2)
	require.NoError(t, err)
	defer directory.Close(sub)

	err = directory.Remove(mgr, root, "sub")
	assert.ErrorIs(t, err, ferrors.ErrDirNotEmpty)
}

func TestReaddirSkipsRemovedEntriesAndYieldsDotEntries(t *testing.T) {
	mgr := newFixture(t, 256)
	require.NoError(t, directory.Create(mgr, inode.RootSector, inode.RootSector, 16))
	d, err := directory.Open(mgr, inode.RootSector)
	require.NoError(t, err)
	defer directory.Close(d)

	require.NoError(t, inode.Create(mgr, 2, 0, false))
	require.NoError(t, inode.Create(mgr, 3, 0, false))
	require.NoError(t, directory.Add(d, "x", 2))
	require.NoError(t, directory.Add(d, "sub", 3))

	var names []string
	for {
		name, ok, err := directory.Readdir(d)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.Equal(t, []string{".", "..", "x", "sub"}, names)

	directory.RewindReaddir(d)
	require.NoError(t, directory.Remove(mgr, d, "x"))

	var visible []string
	for {
		name, ok, err := directory.Readdir(d)
		require.NoError(t, err)
		if !ok {
			break
		}
		if name == "." || name == ".." {
			continue
		}
		visible = append(visible, name)
	}
	assert.Equal(t, []string{"sub"}, visible)
}
