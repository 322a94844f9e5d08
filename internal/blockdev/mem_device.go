package blockdev

// MemDevice is an in-memory Device: a fixed-size backing array guarded by
// nothing, because the sector cache is this module's only serialization
// point for device access.
type MemDevice struct {
	counters
	sectors [][SectorSize]byte
}

var _ Device = (*MemDevice)(nil)

// NewMemDevice allocates a zero-filled in-memory device with n sectors.
func NewMemDevice(n uint32) *MemDevice {
	return &MemDevice{sectors: make([][SectorSize]byte, n)}
}

func (d *MemDevice) NumSectors() uint32 { return uint32(len(d.sectors)) }

func (d *MemDevice) ReadSector(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if err := checkSector(sector, d.NumSectors()); err != nil {
		return err
	}
	copy(buf, d.sectors[sector][:])
	d.reads.Add(1)
	return nil
}

func (d *MemDevice) WriteSector(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if err := checkSector(sector, d.NumSectors()); err != nil {
		return err
	}
	copy(d.sectors[sector][:], buf)
	d.writes.Add(1)
	return nil
}
