package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a flat file holding the raw sector image,
// one sector per SectorSize-byte region. Reads and writes use positioned
// pread(2)/pwrite(2) via golang.org/x/sys/unix rather than Seek+Read/Write,
// so concurrent callers never race on the file's shared offset.
type FileDevice struct {
	counters
	f          *os.File
	numSectors uint32
}

var _ Device = (*FileDevice)(nil)

// OpenFileDevice opens an existing disk image of exactly numSectors sectors.
func OpenFileDevice(path string, numSectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	want := int64(numSectors) * SectorSize
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	if fi.Size() != want {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s has size %d, want %d for %d sectors", path, fi.Size(), want, numSectors)
	}
	return &FileDevice{f: f, numSectors: numSectors}, nil
}

// CreateFileDevice creates (or truncates) a zero-filled disk image of
// numSectors sectors at path.
func CreateFileDevice(path string, numSectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(numSectors) * SectorSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
	}
	return &FileDevice{f: f, numSectors: numSectors}, nil
}

func (d *FileDevice) NumSectors() uint32 { return d.numSectors }

func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) ReadSector(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if err := checkSector(sector, d.numSectors); err != nil {
		return err
	}
	off := int64(sector) * SectorSize
	n, err := unix.Pread(int(d.f.Fd()), buf, off)
	if err != nil {
		return fmt.Errorf("blockdev: pread sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short pread on sector %d: got %d bytes", sector, n)
	}
	d.reads.Add(1)
	return nil
}

func (d *FileDevice) WriteSector(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if err := checkSector(sector, d.numSectors); err != nil {
		return err
	}
	off := int64(sector) * SectorSize
	n, err := unix.Pwrite(int(d.f.Fd()), buf, off)
	if err != nil {
		return fmt.Errorf("blockdev: pwrite sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short pwrite on sector %d: got %d bytes", sector, n)
	}
	d.writes.Add(1)
	return nil
}
