package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/eduos/filesys/internal/cache"
	"github.com/eduos/filesys/internal/ferrors"
)

func readPointerSector(c *cache.Cache, sector uint32) ([]uint32, error) {
	buf := make([]byte, SectorSize)
	if err := c.Read(sector, buf); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, PointersPerSector)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ptrs, nil
}

func writePointerSector(c *cache.Cache, sector uint32, ptrs []uint32) error {
	buf := make([]byte, SectorSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return c.Write(sector, buf)
}

// sectorForOffset translates a byte offset into the physical sector holding
// it, per d's block map. A zero result means the slot was never
// materialized (a hole); Resize in this package always pre-materializes
// every slot a length requires, so callers only see holes past length.
func sectorForOffset(mgr *Manager, d *onDisk, offset uint32) (uint32, error) {
	idx := offset / SectorSize
	switch {
	case idx < DirectPointers:
		return d.Direct[idx], nil

	case idx < DirectPointers+PointersPerSector:
		if d.Indirect == 0 {
			return 0, nil
		}
		ptrs, err := readPointerSector(mgr.Cache, d.Indirect)
		if err != nil {
			return 0, err
		}
		return ptrs[idx-DirectPointers], nil

	case idx < DirectPointers+PointersPerSector+PointersPerSector*PointersPerSector:
		if d.DoubleIndirect == 0 {
			return 0, nil
		}
		outer, err := readPointerSector(mgr.Cache, d.DoubleIndirect)
		if err != nil {
			return 0, err
		}
		rel := idx - (DirectPointers + PointersPerSector)
		outerIdx := rel / PointersPerSector
		innerIdx := rel % PointersPerSector
		if outer[outerIdx] == 0 {
			return 0, nil
		}
		inner, err := readPointerSector(mgr.Cache, outer[outerIdx])
		if err != nil {
			return 0, err
		}
		return inner[innerIdx], nil

	default:
		return 0, fmt.Errorf("inode: offset %d exceeds maximum file size %d", offset, MaxFileSize)
	}
}

// Resize grows or shrinks in's block map to exactly newSize bytes,
// allocating or releasing sectors level by level as needed, then updates
// the stored length.
func (in *Inode) Resize(newSize uint32) error {
	return resizeSector(in.mgr, in.sector, newSize)
}

// resizeSector is Resize's implementation, taking a bare sector number so
// Create can also drive it before an *Inode handle exists.
func resizeSector(mgr *Manager, sector uint32, newSize uint32) error {
	if newSize > MaxFileSize {
		return fmt.Errorf("inode: requested size %d exceeds maximum file size %d", newSize, MaxFileSize)
	}

	buf := make([]byte, SectorSize)
	if err := mgr.Cache.Read(sector, buf); err != nil {
		return err
	}
	d, err := unmarshal(buf)
	if err != nil {
		return err
	}

	var allocated []uint32
	if err := growTree(mgr, &d, newSize, &allocated); err != nil {
		// Best-effort rollback: release whatever this attempt allocated.
		// The on-disk record was never rewritten, so the inode's persisted
		// state is untouched; only the free map needs undoing.
		for _, s := range allocated {
			mgr.Free.Release(s, 1)
		}
		return err
	}

	d.Length = newSize
	marshalTo(buf, &d)
	return mgr.Cache.Write(sector, buf)
}

// growTree grows or shrinks d's block map in place to cover exactly size
// bytes, recording every freshly allocated sector in *allocated so a failed
// attempt can be unwound.
func growTree(mgr *Manager, d *onDisk, size uint32, allocated *[]uint32) error {
	zero := make([]byte, SectorSize)

	for i := uint32(0); i < DirectPointers; i++ {
		threshold := SectorSize * i
		switch {
		case size < threshold && d.Direct[i] != 0:
			if err := mgr.Free.Release(d.Direct[i], 1); err != nil {
				return err
			}
			d.Direct[i] = 0
		case size >= threshold && d.Direct[i] == 0:
			s, ok, err := mgr.Free.Allocate(1)
			if err != nil {
				return err
			}
			if !ok {
				return ferrors.ErrNoSpace
			}
			if err := mgr.Cache.Write(s, zero); err != nil {
				return err
			}
			d.Direct[i] = s
			*allocated = append(*allocated, s)
		}
	}

	if d.Indirect == 0 && size < directBytes {
		return nil
	}

	var indirectPtrs []uint32
	if d.Indirect == 0 {
		s, ok, err := mgr.Free.Allocate(1)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.ErrNoSpace
		}
		d.Indirect = s
		*allocated = append(*allocated, s)
		indirectPtrs = make([]uint32, PointersPerSector)
	} else {
		var err error
		indirectPtrs, err = readPointerSector(mgr.Cache, d.Indirect)
		if err != nil {
			return err
		}
	}

	for i := uint32(0); i < PointersPerSector; i++ {
		threshold := SectorSize * (DirectPointers + i)
		switch {
		case size < threshold && indirectPtrs[i] != 0:
			if err := mgr.Free.Release(indirectPtrs[i], 1); err != nil {
				return err
			}
			indirectPtrs[i] = 0
		case size >= threshold && indirectPtrs[i] == 0:
			s, ok, err := mgr.Free.Allocate(1)
			if err != nil {
				return err
			}
			if !ok {
				return ferrors.ErrNoSpace
			}
			if err := mgr.Cache.Write(s, zero); err != nil {
				return err
			}
			indirectPtrs[i] = s
			*allocated = append(*allocated, s)
		}
	}

	if size < directBytes {
		if err := mgr.Free.Release(d.Indirect, 1); err != nil {
			return err
		}
		d.Indirect = 0
	} else if err := writePointerSector(mgr.Cache, d.Indirect, indirectPtrs); err != nil {
		return err
	}

	if d.DoubleIndirect == 0 && size < indirectCoverage {
		return nil
	}

	var outerPtrs []uint32
	if d.DoubleIndirect == 0 {
		s, ok, err := mgr.Free.Allocate(1)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.ErrNoSpace
		}
		d.DoubleIndirect = s
		*allocated = append(*allocated, s)
		outerPtrs = make([]uint32, PointersPerSector)
	} else {
		var err error
		outerPtrs, err = readPointerSector(mgr.Cache, d.DoubleIndirect)
		if err != nil {
			return err
		}
	}

	for i := uint32(0); i < PointersPerSector; i++ {
		outerThreshold := indirectCoverage + i*PointersPerSector*SectorSize
		needOuter := size >= outerThreshold
		freshOuter := false
		if needOuter && outerPtrs[i] == 0 {
			s, ok, err := mgr.Free.Allocate(1)
			if err != nil {
				return err
			}
			if !ok {
				return ferrors.ErrNoSpace
			}
			outerPtrs[i] = s
			freshOuter = true
			*allocated = append(*allocated, s)
		}
		if outerPtrs[i] == 0 {
			continue
		}

		var innerPtrs []uint32
		if freshOuter {
			innerPtrs = make([]uint32, PointersPerSector)
		} else {
			var err error
			innerPtrs, err = readPointerSector(mgr.Cache, outerPtrs[i])
			if err != nil {
				return err
			}
		}

		for j := uint32(0); j < PointersPerSector; j++ {
			threshold := indirectCoverage + (i*PointersPerSector+j)*SectorSize
			switch {
			case size < threshold && innerPtrs[j] != 0:
				if err := mgr.Free.Release(innerPtrs[j], 1); err != nil {
					return err
				}
				innerPtrs[j] = 0
			case size >= threshold && innerPtrs[j] == 0:
				s, ok, err := mgr.Free.Allocate(1)
				if err != nil {
					return err
				}
				if !ok {
					return ferrors.ErrNoSpace
				}
				if err := mgr.Cache.Write(s, zero); err != nil {
					return err
				}
				innerPtrs[j] = s
				*allocated = append(*allocated, s)
			}
		}

		if err := writePointerSector(mgr.Cache, outerPtrs[i], innerPtrs); err != nil {
			return err
		}
		if size < outerThreshold {
			if err := mgr.Free.Release(outerPtrs[i], 1); err != nil {
				return err
			}
			outerPtrs[i] = 0
		}
	}

	if size < indirectCoverage {
		if err := mgr.Free.Release(d.DoubleIndirect, 1); err != nil {
			return err
		}
		d.DoubleIndirect = 0
	} else if err := writePointerSector(mgr.Cache, d.DoubleIndirect, outerPtrs); err != nil {
		return err
	}

	return nil
}
