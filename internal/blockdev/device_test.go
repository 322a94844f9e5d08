package blockdev_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduos/filesys/internal/blockdev"
)

func TestMemDeviceRoundTrip(t *testing.T) {
	d := blockdev.NewMemDevice(4)
	in := bytes.Repeat([]byte{0xAB}, blockdev.SectorSize)
	require.NoError(t, d.WriteSector(2, in))

	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, d.ReadSector(2, out))
	assert.Equal(t, in, out)

	assert.EqualValues(t, 1, d.Writes())
	assert.EqualValues(t, 1, d.Reads())
}

func TestMemDeviceOutOfRange(t *testing.T) {
	d := blockdev.NewMemDevice(2)
	buf := make([]byte, blockdev.SectorSize)
	assert.Error(t, d.ReadSector(2, buf))
	assert.Error(t, d.WriteSector(99, buf))
}

func TestMemDeviceBadBufferSize(t *testing.T) {
	d := blockdev.NewMemDevice(2)
	assert.Error(t, d.ReadSector(0, make([]byte, 10)))
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := blockdev.CreateFileDevice(path, 8)
	require.NoError(t, err)
	defer d.Close()

	in := bytes.Repeat([]byte{0x42}, blockdev.SectorSize)
	require.NoError(t, d.WriteSector(5, in))

	out := make([]byte, blockdev.SectorSize)
	require.NoError(t, d.ReadSector(5, out))
	assert.Equal(t, in, out)

	d2, err := blockdev.OpenFileDevice(path, 8)
	require.NoError(t, err)
	defer d2.Close()
	out2 := make([]byte, blockdev.SectorSize)
	require.NoError(t, d2.ReadSector(5, out2))
	assert.Equal(t, in, out2)
}
