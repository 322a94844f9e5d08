// Package filesys is the top-level, syscall-layer-facing API: file and
// directory operations plus cache observability, implemented over the
// sector cache (internal/cache), the inode layer (internal/inode), the
// directory layer (internal/directory), and the path resolver
// (internal/resolver).
//
// The package exposes plain blocking handles ((*File, error) /
// (*Dir, error)); the process file-descriptor table belongs to the caller.
package filesys

import (
	"fmt"

	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/cache"
	"github.com/eduos/filesys/internal/directory"
	"github.com/eduos/filesys/internal/ferrors"
	"github.com/eduos/filesys/internal/freemap"
	"github.com/eduos/filesys/internal/inode"
	"github.com/eduos/filesys/internal/metrics"
)

// Re-export the error sentinels under the filesys package, so callers
// depend only on this package, not the internal ones.
var (
	ErrNotFound    = ferrors.ErrNotFound
	ErrExists      = ferrors.ErrExists
	ErrInvalidName = ferrors.ErrInvalidName
	ErrNotDir      = ferrors.ErrNotDir
	ErrIsDir       = ferrors.ErrIsDir
	ErrDirNotEmpty = ferrors.ErrDirNotEmpty
	ErrNoSpace     = ferrors.ErrNoSpace
	ErrWriteDenied = ferrors.ErrWriteDenied
)

// RootEntryCapacity is the number of directory-entry slots pre-allocated
// for a directory at creation time; the root gets the same capacity at
// format time.
const RootEntryCapacity = 16

// Config selects the backing device and whether to format it fresh.
type Config struct {
	// Device is the block device the filesystem is built atop. Required.
	Device blockdev.Device

	// Format, if true, wipes any existing content: creates the free map and
	// the root directory from scratch. If false, Init opens the existing
	// on-disk structures.
	Format bool

	// Metrics, if non-nil, receives cache hit/miss/eviction counters.
	// May be left nil for tests and one-off tools.
	Metrics *metrics.CacheMetrics
}

// FileSystem is the process-global filesystem instance: the sector cache,
// free map, and open-inode registry, bundled into one value owned by the
// Init/Done lifecycle rather than ambient singletons.
type FileSystem struct {
	cache *cache.Cache
	free  *freemap.FreeMap
	mgr   *inode.Manager
}

// Init brings up a FileSystem over cfg.Device, formatting it if cfg.Format
// is set.
func Init(cfg Config) (*FileSystem, error) {
	if cfg.Device == nil {
		panic("filesys: Init requires a non-nil Device")
	}

	c := cache.New(cfg.Device, cfg.Metrics)
	fs := &FileSystem{cache: c}

	if cfg.Format {
		fm, err := freemap.Create(c, cfg.Device.NumSectors())
		if err != nil {
			return nil, fmt.Errorf("filesys: format free map: %w", err)
		}
		fs.free = fm
		fs.mgr = inode.NewManager(c, fm)

		if err := directory.Create(fs.mgr, resolverRootSector, resolverRootSector, RootEntryCapacity); err != nil {
			return nil, fmt.Errorf("filesys: format root directory: %w", err)
		}
		return fs, nil
	}

	fm, err := freemap.Open(c, cfg.Device.NumSectors())
	if err != nil {
		return nil, fmt.Errorf("filesys: open free map: %w", err)
	}
	fs.free = fm
	fs.mgr = inode.NewManager(c, fm)
	return fs, nil
}

const resolverRootSector = inode.RootSector

// Done persists the free map and flushes the sector cache. Call it on
// shutdown unconditionally; unflushed dirty slots are lost otherwise.
func (fs *FileSystem) Done() error {
	if err := fs.free.Close(); err != nil {
		return fmt.Errorf("filesys: close free map: %w", err)
	}
	return fs.cache.Flush()
}

// RootDir opens a handle onto the filesystem root, suitable as an initial
// CWD for a fresh session.
func (fs *FileSystem) RootDir() (*Dir, error) {
	d, err := directory.Open(fs.mgr, resolverRootSector)
	if err != nil {
		return nil, err
	}
	return &Dir{fs: fs, d: d}, nil
}

// HitRate, ResetCache, FSReads, and FSWrites surface the sector cache's
// observability counters.
func (fs *FileSystem) HitRate() int      { return fs.cache.HitRate() }
func (fs *FileSystem) ResetCache() error { return fs.cache.Reset() }
func (fs *FileSystem) FSReads() uint64   { return fs.cache.Reads() }
func (fs *FileSystem) FSWrites() uint64  { return fs.cache.Writes() }

// FreeSectors returns the number of currently unallocated sectors, for
// tests and capacity-reporting tools.
func (fs *FileSystem) FreeSectors() uint32 { return fs.free.FreeCount() }
