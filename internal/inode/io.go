package inode

import "github.com/eduos/filesys/internal/ferrors"

// readDisk re-reads in's on-disk record fresh. The inode layer keeps no
// cached copy of content or metadata, relying entirely on the sector cache
// below it for consistency.
func (in *Inode) readDisk() (onDisk, error) {
	buf := make([]byte, SectorSize)
	if err := in.mgr.Cache.Read(in.sector, buf); err != nil {
		return onDisk{}, err
	}
	return unmarshal(buf)
}

// Length returns the inode's current byte length.
func (in *Inode) Length() (uint32, error) {
	d, err := in.readDisk()
	if err != nil {
		return 0, err
	}
	return d.Length, nil
}

// IsDir reports whether the inode represents a directory.
func (in *Inode) IsDir() (bool, error) {
	d, err := in.readDisk()
	if err != nil {
		return false, err
	}
	return d.IsDir, nil
}

// Parent returns the sector of the directory containing this inode, as
// recorded at creation time.
func (in *Inode) Parent() (uint32, error) {
	d, err := in.readDisk()
	if err != nil {
		return 0, err
	}
	return d.Parent, nil
}

// SetParent stamps the directory this inode lives in, used when linking a
// freshly created inode into its containing directory.
func (in *Inode) SetParent(parent uint32) error {
	d, err := in.readDisk()
	if err != nil {
		return err
	}
	d.Parent = parent
	buf := make([]byte, SectorSize)
	marshalTo(buf, &d)
	return in.mgr.Cache.Write(in.sector, buf)
}

// ReadAt copies min(len(p), length-off) bytes starting at off into p and
// returns the count read. Reading at or past length returns 0, nil, never
// io.EOF; end-of-file detection is left to the caller comparing the
// returned count.
func (in *Inode) ReadAt(p []byte, off uint32) (int, error) {
	d, err := in.readDisk()
	if err != nil {
		return 0, err
	}
	if off >= d.Length {
		return 0, nil
	}

	var read int
	remaining := len(p)
	position := off
	for remaining > 0 && position < d.Length {
		sector, err := sectorForOffset(in.mgr, &d, position)
		if err != nil {
			return read, err
		}

		sectorOff := position % SectorSize
		chunk := uint32(remaining)
		if left := d.Length - position; left < chunk {
			chunk = left
		}
		if left := SectorSize - sectorOff; left < chunk {
			chunk = left
		}
		if chunk == 0 {
			break
		}

		dst := p[read : read+int(chunk)]
		if sectorOff == 0 && chunk == SectorSize {
			if sector == 0 {
				for i := range dst {
					dst[i] = 0
				}
			} else if err := in.mgr.Cache.Read(sector, dst); err != nil {
				return read, err
			}
		} else {
			bounce := make([]byte, SectorSize)
			if sector != 0 {
				if err := in.mgr.Cache.Read(sector, bounce); err != nil {
					return read, err
				}
			}
			copy(dst, bounce[sectorOff:sectorOff+chunk])
		}

		read += int(chunk)
		remaining -= int(chunk)
		position += chunk
	}
	return read, nil
}

// WriteAt copies p into the inode starting at off, growing the inode first
// if off+len(p) exceeds its current length. It returns ferrors.ErrWriteDenied
// if the inode's deny-write count is positive, without touching content.
func (in *Inode) WriteAt(p []byte, off uint32) (int, error) {
	in.mu.Lock()
	denied := in.denyWriteCount > 0
	in.mu.Unlock()
	if denied {
		return 0, ferrors.ErrWriteDenied
	}
	if len(p) == 0 {
		return 0, nil
	}

	need := off + uint32(len(p))
	d, err := in.readDisk()
	if err != nil {
		return 0, err
	}
	if need > d.Length {
		if err := in.Resize(need); err != nil {
			return 0, err
		}
		d, err = in.readDisk()
		if err != nil {
			return 0, err
		}
	}

	var written int
	remaining := len(p)
	position := off
	for remaining > 0 {
		sector, err := sectorForOffset(in.mgr, &d, position)
		if err != nil {
			return written, err
		}

		sectorOff := position % SectorSize
		chunk := uint32(remaining)
		if left := SectorSize - sectorOff; left < chunk {
			chunk = left
		}

		src := p[written : written+int(chunk)]
		if sectorOff == 0 && chunk == SectorSize {
			if err := in.mgr.Cache.Write(sector, src); err != nil {
				return written, err
			}
		} else {
			bounce := make([]byte, SectorSize)
			if err := in.mgr.Cache.Read(sector, bounce); err != nil {
				return written, err
			}
			copy(bounce[sectorOff:sectorOff+chunk], src)
			if err := in.mgr.Cache.Write(sector, bounce); err != nil {
				return written, err
			}
		}

		written += int(chunk)
		remaining -= int(chunk)
		position += chunk
	}
	return written, nil
}
