package inode

import (
	"sync"

	"github.com/eduos/filesys/internal/cache"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/freemap"
	"github.com/jacobsa/syncutil"
)

// Manager owns the sector cache and free map and deduplicates open inodes
// by sector number: all handles to the same on-disk inode share one
// registry entry.
type Manager struct {
	Cache *cache.Cache
	Free  *freemap.FreeMap

	mu     sync.Mutex
	inodes map[uint32]*Inode
}

// NewManager constructs a Manager over an already-open cache and free map.
func NewManager(c *cache.Cache, f *freemap.FreeMap) *Manager {
	return &Manager{Cache: c, Free: f, inodes: make(map[uint32]*Inode)}
}

// Inode is the in-memory handle to an open inode. Content itself is never
// cached in memory here: every operation re-reads the on-disk record through
// the sector cache, which is the sole arbiter of data consistency. Inode
// only guards the open-count/removed/deny-write metadata triple.
type Inode struct {
	sector uint32
	mgr    *Manager

	mu             syncutil.InvariantMutex
	openCount      int  // GUARDED_BY(mu)
	removed        bool // GUARDED_BY(mu)
	denyWriteCount int  // GUARDED_BY(mu)
}

func (in *Inode) checkInvariants() {
	if in.denyWriteCount < 0 || in.denyWriteCount > in.openCount {
		panic("inode: deny-write count out of [0, openCount] range")
	}
	if in.openCount < 0 {
		panic("inode: negative open count")
	}
}

// Sector returns the sector number this inode's on-disk record lives at,
// which doubles as its inumber.
func (in *Inode) Sector() uint32 { return in.sector }

// Inumber is an alias for Sector, named for the filesys-facing API.
func (in *Inode) Inumber() uint32 { return in.sector }

// IsRoot reports whether this is the root directory's inode.
func (in *Inode) IsRoot() bool { return in.sector == RootSector }

// IsOpen reports whether any handle beyond the caller's own holds this
// inode open (open count > 1).
func (in *Inode) IsOpen() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openCount > 1
}

// Create formats a brand-new inode at sector, which the caller has already
// reserved, allocating and zeroing its first data sector and optionally
// growing it to length bytes immediately.
func Create(mgr *Manager, sector uint32, length uint32, isDir bool) error {
	d := onDisk{IsDir: isDir}
	s, ok, err := mgr.Free.Allocate(1)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.ErrNoSpace
	}
	zero := make([]byte, SectorSize)
	if err := mgr.Cache.Write(s, zero); err != nil {
		return err
	}
	d.Direct[0] = s

	buf := make([]byte, SectorSize)
	marshalTo(buf, &d)
	if err := mgr.Cache.Write(sector, buf); err != nil {
		return err
	}

	if length > 0 {
		if err := resizeSector(mgr, sector, length); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the in-memory handle for sector, creating the registry entry
// on first open and incrementing its open count on every open.
func Open(mgr *Manager, sector uint32) *Inode {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if in, ok := mgr.inodes[sector]; ok {
		in.mu.Lock()
		in.openCount++
		in.mu.Unlock()
		return in
	}

	in := &Inode{sector: sector, mgr: mgr, openCount: 1}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	mgr.inodes[sector] = in
	return in
}

// Reopen increments in's open count for a second caller-side handle on an
// inode the caller already holds a reference to (e.g. "." and re-chdir to
// the current directory).
func Reopen(in *Inode) *Inode {
	in.mu.Lock()
	in.openCount++
	in.mu.Unlock()
	return in
}

// Remove marks in for deletion: its entire block tree, indirect sectors
// included, is released once the last open handle closes.
func Remove(in *Inode) {
	in.mu.Lock()
	in.removed = true
	in.mu.Unlock()
}

// Close decrements in's open count. At zero it drops the registry entry and,
// if the inode was removed, releases its entire block tree and its own
// sector back to the free map.
func Close(in *Inode) error {
	mgr := in.mgr
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	in.mu.Lock()
	in.openCount--
	count := in.openCount
	removed := in.removed
	in.mu.Unlock()

	if count > 0 {
		return nil
	}
	delete(mgr.inodes, in.sector)
	if removed {
		return releaseAllBlocks(mgr, in.sector)
	}
	return nil
}

// DenyWrite increments in's deny-write count; subsequent WriteAt calls
// return ErrWriteDenied until a matching AllowWrite.
func (in *Inode) DenyWrite() {
	in.mu.Lock()
	in.denyWriteCount++
	in.mu.Unlock()
}

// AllowWrite reverses one DenyWrite.
func (in *Inode) AllowWrite() {
	in.mu.Lock()
	in.denyWriteCount--
	in.mu.Unlock()
}

func releaseAllBlocks(mgr *Manager, sector uint32) error {
	buf := make([]byte, SectorSize)
	if err := mgr.Cache.Read(sector, buf); err != nil {
		return err
	}
	d, err := unmarshal(buf)
	if err != nil {
		return err
	}

	for _, p := range d.Direct {
		if p != 0 {
			if err := mgr.Free.Release(p, 1); err != nil {
				return err
			}
		}
	}

	if d.Indirect != 0 {
		ptrs, err := readPointerSector(mgr.Cache, d.Indirect)
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if p != 0 {
				if err := mgr.Free.Release(p, 1); err != nil {
					return err
				}
			}
		}
		if err := mgr.Free.Release(d.Indirect, 1); err != nil {
			return err
		}
	}

	if d.DoubleIndirect != 0 {
		outer, err := readPointerSector(mgr.Cache, d.DoubleIndirect)
		if err != nil {
			return err
		}
		for _, o := range outer {
			if o == 0 {
				continue
			}
			inner, err := readPointerSector(mgr.Cache, o)
			if err != nil {
				return err
			}
			for _, p := range inner {
				if p != 0 {
					if err := mgr.Free.Release(p, 1); err != nil {
						return err
					}
				}
			}
			if err := mgr.Free.Release(o, 1); err != nil {
				return err
			}
		}
		if err := mgr.Free.Release(d.DoubleIndirect, 1); err != nil {
			return err
		}
	}

	return mgr.Free.Release(sector, 1)
}
