// Package cache implements the sector buffer cache: a fixed 64-slot,
// concurrency-safe, write-back cache mediating all access to a
// blockdev.Device, using a clock/second-chance eviction policy with the
// classical reference-bit convention (set on access, cleared by the
// sweep).
package cache

import (
	"sync"

	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/metrics"
)

// NumSlots is the fixed cache capacity.
const NumSlots = 64

type slot struct {
	mu        sync.Mutex
	valid     bool
	dirty     bool
	reference bool
	sector    uint32
	buf       [blockdev.SectorSize]byte
}

// Cache is the sector buffer cache. The zero value is not usable;
// construct with New.
type Cache struct {
	dev blockdev.Device

	// globalMu orders slot-allocation decisions only: finding an empty slot
	// or running the clock sweep. It is never held while blocked on a
	// particular slot's mutex beyond that slot's own critical section, and
	// a slot mutex is never held while acquiring globalMu.
	globalMu sync.Mutex

	slots     [NumSlots]slot
	lastEvict int

	// hits counts every served lookup; misses counts exactly one per slot
	// allocation. The pair is not sampled atomically.
	mu     sync.Mutex
	hits   uint64
	misses uint64

	metrics *metrics.CacheMetrics
}

// New constructs a Cache mediating access to dev. metrics may be nil, in
// which case hit/miss counts are tracked only internally and evictions are
// not counted.
func New(dev blockdev.Device, m *metrics.CacheMetrics) *Cache {
	return &Cache{dev: dev, lastEvict: NumSlots - 1, metrics: m}
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}
}

// Read copies the SectorSize bytes of sector into out.
func (c *Cache) Read(sector uint32, out []byte) error {
	if err := checkLen(out); err != nil {
		return err
	}

	if s := c.lookupHit(sector); s != nil {
		copy(out, s.buf[:])
		s.reference = true
		s.mu.Unlock()
		c.recordHit()
		return nil
	}

	s, err := c.allocateForLoad(sector)
	if err != nil {
		return err
	}
	copy(out, s.buf[:])
	s.mu.Unlock()
	return nil
}

// Write copies the SectorSize bytes of in into sector, marking it dirty.
func (c *Cache) Write(sector uint32, in []byte) error {
	if err := checkLen(in); err != nil {
		return err
	}

	if s := c.lookupHit(sector); s != nil {
		copy(s.buf[:], in)
		s.dirty = true
		s.reference = true
		s.mu.Unlock()
		c.recordHit()
		return nil
	}

	s, err := c.allocateForStore(sector, in)
	if err != nil {
		return err
	}
	s.mu.Unlock()
	return nil
}

// lookupHit scans valid slots for sector. On a match it returns the slot
// locked (caller must unlock); on no match it returns nil with no lock held.
func (c *Cache) lookupHit(sector uint32) *slot {
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		if s.valid && s.sector == sector {
			return s
		}
		s.mu.Unlock()
	}
	return nil
}

// allocateForLoad finds or evicts a slot for sector and loads its content
// from the device, counting the allocation as a miss. Returns the slot
// locked.
func (c *Cache) allocateForLoad(sector uint32) (*slot, error) {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()

	// A concurrent allocation may have raced us to the same sector while we
	// waited on globalMu; re-check under the global lock before allocating.
	if s := c.lookupHit(sector); s != nil {
		c.recordHit()
		return s, nil
	}

	s, err := c.findSlot()
	if err != nil {
		return nil, err
	}
	if err := c.dev.ReadSector(sector, s.buf[:]); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.sector = sector
	s.valid = true
	s.dirty = false
	s.reference = true
	c.recordMiss()
	return s, nil
}

// allocateForStore finds or evicts a slot for sector and fills it with in
// without reading the device first (full-sector overwrite), counting the
// allocation as a miss. Returns the slot locked.
func (c *Cache) allocateForStore(sector uint32, in []byte) (*slot, error) {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()

	if s := c.lookupHit(sector); s != nil {
		copy(s.buf[:], in)
		s.dirty = true
		s.reference = true
		c.recordHit()
		return s, nil
	}

	s, err := c.findSlot()
	if err != nil {
		return nil, err
	}
	copy(s.buf[:], in)
	s.sector = sector
	s.valid = true
	s.dirty = true
	s.reference = true
	c.recordMiss()
	return s, nil
}

// findSlot locates an invalid slot, or runs the clock sweep to evict one.
// Must be called with globalMu held. Returns the chosen slot locked.
func (c *Cache) findSlot() (*slot, error) {
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		if !s.valid {
			return s, nil
		}
		s.mu.Unlock()
	}
	return c.evict()
}

// evict runs the clock/second-chance sweep and returns the victim slot
// locked, having flushed it if dirty. Must be called with globalMu held.
func (c *Cache) evict() (*slot, error) {
	i := (c.lastEvict + 1) % NumSlots
	for {
		s := &c.slots[i]
		s.mu.Lock()
		if !s.reference {
			if s.dirty {
				if err := c.dev.WriteSector(s.sector, s.buf[:]); err != nil {
					s.mu.Unlock()
					return nil, err
				}
				s.dirty = false
			}
			c.lastEvict = i
			if c.metrics != nil {
				c.metrics.Evictions.Inc()
			}
			return s, nil
		}
		s.reference = false
		s.mu.Unlock()
		i = (i + 1) % NumSlots
	}
}

// Flush writes every dirty valid slot back to the device. Slots remain
// valid. Required at filesystem shutdown.
func (c *Cache) Flush() error {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()

	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		if s.valid && s.dirty {
			if err := c.dev.WriteSector(s.sector, s.buf[:]); err != nil {
				s.mu.Unlock()
				return err
			}
			s.dirty = false
		}
		s.mu.Unlock()
	}
	return nil
}

// Reset flushes, then invalidates every slot and zeroes the hit/miss
// counters.
func (c *Cache) Reset() error {
	if err := c.Flush(); err != nil {
		return err
	}

	c.globalMu.Lock()
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		s.valid = false
		s.dirty = false
		s.reference = false
		s.mu.Unlock()
	}
	c.lastEvict = NumSlots - 1
	c.globalMu.Unlock()

	c.mu.Lock()
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
	return nil
}

// HitRate returns floor(100*hits/(hits+misses)), or zero with no accesses.
func (c *Cache) HitRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return int(100 * c.hits / total)
}

// Reads and Writes surface the underlying device's counters.
func (c *Cache) Reads() uint64  { return c.dev.Reads() }
func (c *Cache) Writes() uint64 { return c.dev.Writes() }

func checkLen(buf []byte) error {
	if len(buf) != blockdev.SectorSize {
		return errBadLen(len(buf))
	}
	return nil
}

type errBadLen int

func (e errBadLen) Error() string {
	return "cache: buffer has wrong length for a sector"
}
