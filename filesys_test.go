package filesys_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduos/filesys"
	"github.com/eduos/filesys/internal/blockdev"
)

// newFormatted brings up a freshly formatted FileSystem over an in-memory
// device with n sectors.
func newFormatted(t *testing.T, n uint32) *filesys.FileSystem {
	t.Helper()
	dev := blockdev.NewMemDevice(n)
	fs, err := filesys.Init(filesys.Config{Device: dev, Format: true})
	require.NoError(t, err)
	return fs
}

// Scenario 1: create, write, close, reopen, read back.
func TestScenario1_CreateWriteReopenRead(t *testing.T) {
	fs := newFormatted(t, 512)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	f, err := root.Create("a", 0)
	require.NoError(t, err)
	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, f.Close())

	f2, err := root.Open("a")
	require.NoError(t, err)
	defer f2.Close()

	out := make([]byte, 5)
	n, err = f2.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
}

// Scenario 2: mkdir, chdir, create a file and a subdirectory; readdir
// yields "." and ".." first, then exactly the two created entries.
func TestScenario2_MkdirChdirReaddir(t *testing.T) {
	fs := newFormatted(t, 512)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	require.NoError(t, root.Mkdir("/d"))
	d, err := root.Chdir("/d")
	require.NoError(t, err)
	defer d.Close()

	f, err := d.Create("x", 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, d.Mkdir("/d/sub"))

	listing, err := root.OpenDir("/d")
	require.NoError(t, err)
	defer listing.Close()

	var names []string
	for {
		name, ok, err := listing.Readdir()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, name)
	}
	require.Len(t, names, 4)
	assert.Equal(t, []string{".", ".."}, names[:2])
	assert.ElementsMatch(t, []string{"x", "sub"}, names[2:])
}

// Scenario 3: many single-byte writes to one file coalesce at the device
// level, demonstrating the sector cache absorbs repeated small writes to
// the same sector rather than issuing a device write per call.
func TestScenario3_SingleByteWritesCoalesceAtDevice(t *testing.T) {
	fs := newFormatted(t, 1024)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	f, err := root.Create("big", 0)
	require.NoError(t, err)

	const total = 64 * 1024
	before := fs.FSWrites()
	for i := 0; i < total; i++ {
		n, err := f.Write([]byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.NoError(t, f.Close())
	writes := fs.FSWrites() - before

	// Without cache coalescing this would require on the order of `total`
	// device writes (one per byte); the 64-slot sector cache absorbs all
	// but a small, eviction-bounded fraction of them.
	assert.Less(t, writes, uint64(total/32))
}

// Scenario 4: after a cache reset, reading the same small file twice
// strictly increases the hit rate between the two reads.
func TestScenario4_HitRateIncreasesOnWarmReread(t *testing.T) {
	fs := newFormatted(t, 256)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	payload := make([]byte, blockdev.SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	f, err := root.Create("warm", 0)
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.ResetCache())

	f2, err := root.Open("warm")
	require.NoError(t, err)
	defer f2.Close()

	out := make([]byte, blockdev.SectorSize)
	_, err = f2.Read(out)
	require.NoError(t, err)
	firstRate := fs.HitRate()

	f2.Seek(0)
	_, err = f2.Read(out)
	require.NoError(t, err)
	secondRate := fs.HitRate()

	assert.Less(t, firstRate, secondRate)
}

// Scenario 5: removing a file while a handle to it remains open defers
// deallocation; reads through the still-open handle keep succeeding.
func TestScenario5_RemoveDefersUntilLastClose(t *testing.T) {
	fs := newFormatted(t, 256)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	f, err := root.Create("a", 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("still here"))
	require.NoError(t, err)

	held, err := root.Open("a")
	require.NoError(t, err)

	require.NoError(t, root.Remove("a"))

	out := make([]byte, len("still here"))
	n, err := held.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(out[:n]))

	require.NoError(t, f.Close())
	require.NoError(t, held.Close())

	_, err = root.Open("a")
	assert.ErrorIs(t, err, filesys.ErrNotFound)
}

// Scenario 6: growing a file across the indirect-block boundary and then
// removing it entirely returns its sectors to the free map, up to the
// pre-growth baseline.
func TestScenario6_GrowThenRemoveReturnsFreeSpace(t *testing.T) {
	fs := newFormatted(t, 2048)
	root, err := fs.RootDir()
	require.NoError(t, err)
	defer root.Close()

	before := fs.FreeSectors()

	f, err := root.Create("big", 0)
	require.NoError(t, err)

	const grown = 300 * 1024 // past the 70KiB direct+indirect boundary
	_, err = f.Write(make([]byte, grown))
	require.NoError(t, err)

	length, err := f.Length()
	require.NoError(t, err)
	assert.EqualValues(t, grown, length)

	mid := fs.FreeSectors()
	assert.Less(t, mid, before)

	require.NoError(t, root.Remove("big"))
	require.NoError(t, f.Close())

	after := fs.FreeSectors()
	assert.Equal(t, before, after)
}
