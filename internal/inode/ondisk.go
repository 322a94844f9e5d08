// Package inode implements the on-disk inode layout, the block-map
// translation between byte offsets and physical sectors, and the in-memory
// open-inode registry that deduplicates handles by sector number.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/eduos/filesys/internal/blockdev"
)

const (
	// DirectPointers is the number of direct block pointers in an inode.
	DirectPointers = 12

	// PointersPerSector is how many uint32 sector pointers fit in one
	// sector, used for both the indirect and double-indirect blocks.
	PointersPerSector = blockdev.SectorSize / 4

	// SectorSize is re-exported for callers that only import this package.
	SectorSize = blockdev.SectorSize

	// NameMax is the longest directory-entry name, not counting the NUL
	// terminator the on-disk record reserves a byte for.
	NameMax = 14

	// RootSector is the fixed sector the root directory's inode lives at.
	// Sector 0 is reserved for the free map (see internal/freemap), so the
	// root directory is the first inode allocated after it.
	RootSector = 1

	magic = 0x4544534f // "EDSO", arbitrary but stable on-disk tag
)

const (
	directBytes         = DirectPointers * SectorSize
	indirectBytes       = PointersPerSector * SectorSize
	indirectCoverage    = directBytes + indirectBytes
	doubleIndirectBytes = PointersPerSector * PointersPerSector * SectorSize

	// MaxFileSize is the largest length an inode's block map can address:
	// (12 + 128 + 128*128) = 16,524 sectors.
	MaxFileSize = indirectCoverage + doubleIndirectBytes
)

// onDisk is the fixed 512-byte on-disk inode record.
type onDisk struct {
	Direct         [DirectPointers]uint32
	Indirect       uint32
	DoubleIndirect uint32
	IsDir          bool
	Parent         uint32
	Offset         uint32
	Length         uint32
}

func marshalTo(buf []byte, d *onDisk) {
	for i := range buf {
		buf[i] = 0
	}
	off := 0
	for _, p := range d.Direct {
		binary.LittleEndian.PutUint32(buf[off:], p)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], d.Indirect)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.DoubleIndirect)
	off += 4
	isDir := uint32(0)
	if d.IsDir {
		isDir = 1
	}
	binary.LittleEndian.PutUint32(buf[off:], isDir)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.Parent)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.Offset)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], magic)
}

func unmarshal(buf []byte) (onDisk, error) {
	var d onDisk
	if len(buf) != SectorSize {
		return d, fmt.Errorf("inode: sector buffer has length %d, want %d", len(buf), SectorSize)
	}
	off := 0
	for i := range d.Direct {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	d.Indirect = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	d.DoubleIndirect = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	d.IsDir = binary.LittleEndian.Uint32(buf[off:]) != 0
	off += 4
	d.Parent = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	d.Offset = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	d.Length = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	got := binary.LittleEndian.Uint32(buf[off:])
	if got != magic {
		return d, fmt.Errorf("inode: bad magic %#x, want %#x", got, magic)
	}
	return d, nil
}
