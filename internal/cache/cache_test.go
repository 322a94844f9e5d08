package cache_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/cache"
)

func newCache(n uint32) (*cache.Cache, *blockdev.MemDevice) {
	dev := blockdev.NewMemDevice(n)
	return cache.New(dev, nil), dev
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	c, _ := newCache(4)
	in := bytes.Repeat([]byte{0x11}, blockdev.SectorSize)
	require.NoError(t, c.Write(1, in))

	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, c.Read(1, out))
	assert.Equal(t, in, out)
}

func TestWriteFlushIsVisibleOnDevice(t *testing.T) {
	c, dev := newCache(4)
	in := bytes.Repeat([]byte{0x22}, blockdev.SectorSize)
	require.NoError(t, c.Write(3, in))
	require.NoError(t, c.Flush())

	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, dev.ReadSector(3, out))
	assert.Equal(t, in, out)
}

func TestHitRateIncreasesOnRepeatedAccess(t *testing.T) {
	c, _ := newCache(4)
	buf := make([]byte, blockdev.SectorSize)
	require.NoError(t, c.Read(0, buf)) // miss
	after1 := c.HitRate()
	require.NoError(t, c.Read(0, buf)) // hit
	after2 := c.HitRate()
	assert.Less(t, after1, after2)
}

func TestHitRateFormula(t *testing.T) {
	c, _ := newCache(4)
	buf := make([]byte, blockdev.SectorSize)
	require.NoError(t, c.Read(0, buf)) // miss: 0 hits, 1 miss -> 0%
	assert.Equal(t, 0, c.HitRate())
	require.NoError(t, c.Read(0, buf)) // hit: 1 hit, 1 miss -> 50%
	assert.Equal(t, 50, c.HitRate())
}

func TestResetZeroesCountersAndInvalidatesSlots(t *testing.T) {
	c, dev := newCache(4)
	buf := make([]byte, blockdev.SectorSize)
	require.NoError(t, c.Write(0, bytes.Repeat([]byte{0x9}, blockdev.SectorSize)))
	require.NoError(t, c.Read(0, buf))
	require.NoError(t, c.Reset())
	assert.Equal(t, 0, c.HitRate())

	// Reset flushes first, so the write from before reset must have reached
	// the device even though the slot holding it was then invalidated.
	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, dev.ReadSector(0, out))
	assert.Equal(t, byte(0x9), out[0])
}

func TestEvictionWritesBackDirtySector(t *testing.T) {
	c, dev := newCache(cache.NumSlots)
	// Fill every slot with a dirty write.
	for i := uint32(0); i < cache.NumSlots; i++ {
		require.NoError(t, c.Write(i, bytes.Repeat([]byte{byte(i)}, blockdev.SectorSize)))
	}
	// One more write forces an eviction of some earlier, dirty sector.
	require.NoError(t, c.Write(cache.NumSlots, bytes.Repeat([]byte{0xFF}, blockdev.SectorSize)))

	// At least one of the original sectors must have been flushed to disk
	// by the eviction (we don't know which without instrumenting the clock
	// hand, so just check the new sector reads back correctly through the
	// cache, and that total device writes grew by at least one).
	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, c.Read(cache.NumSlots, out))
	assert.Equal(t, byte(0xFF), out[0])
	assert.GreaterOrEqual(t, dev.Writes(), uint64(1))
}

func TestConcurrentReadersAndWritersDoNotCorruptUnrelatedSectors(t *testing.T) {
	c, _ := newCache(16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(sector uint32) {
			defer wg.Done()
			val := byte(sector)
			in := bytes.Repeat([]byte{val}, blockdev.SectorSize)
			for j := 0; j < 50; j++ {
				require.NoError(t, c.Write(sector, in))
				out := make([]byte, blockdev.SectorSize)
				require.NoError(t, c.Read(sector, out))
				assert.Equal(t, in, out)
			}
		}(uint32(i))
	}
	wg.Wait()
}

func TestNoTwoSlotsShareASectorAfterManyAllocations(t *testing.T) {
	c, _ := newCache(8)
	buf := make([]byte, blockdev.SectorSize)
	for i := uint32(0); i < 200; i++ {
		require.NoError(t, c.Write(i%8, buf))
		require.NoError(t, c.Read((i+3)%8, buf))
	}
	// 8 sectors fit without eviction, so exactly 8 slot allocations (misses)
	// out of 400 accesses means each sector was given exactly one slot:
	// floor(100*392/400) = 98.
	assert.Equal(t, 98, c.HitRate())
}
