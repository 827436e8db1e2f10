// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diskio provides the storage core's external collaborators:
// the raw block device and the free-sector allocator. These sit below
// the core itself, but concrete implementations are provided here so
// the buffer cache and inode layer can be exercised end to end.
package diskio

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gopintos/storage/sector"
)

// Disk is the raw block device collaborator: synchronous, whole-sector
// reads and writes that may block.
type Disk interface {
	ReadSector(id sector.ID, buf []byte) error
	WriteSector(id sector.ID, buf []byte) error
}

// FileDisk backs a Disk with a real file descriptor, issuing
// unix.Pread/unix.Pwrite against a backing fd.
type FileDisk struct {
	mu sync.Mutex
	fd int
}

// OpenFileDisk opens (creating if needed) a disk image file of at
// least nsectors sectors and returns a FileDisk backed by it.
func OpenFileDisk(path string, nsectors int64) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, err
	}
	size := nsectors * sector.Size
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if st.Size < size {
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return &FileDisk{fd: fd}, nil
}

func (d *FileDisk) ReadSector(id sector.ID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := unix.Pread(d.fd, buf[:sector.Size], int64(id)*sector.Size)
	return err
}

func (d *FileDisk) WriteSector(id sector.ID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := unix.Pwrite(d.fd, buf[:sector.Size], int64(id)*sector.Size)
	return err
}

// Close releases the backing file descriptor.
func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd == -1 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// MemDisk backs a Disk with a fixed in-memory map of sectors, for fast
// unit tests that don't need a real file behind the interface.
type MemDisk struct {
	mu      sync.Mutex
	sectors map[sector.ID]*[sector.Size]byte
}

// NewMemDisk returns an empty in-memory disk. Unwritten sectors read as
// all zero bytes.
func NewMemDisk() *MemDisk {
	return &MemDisk{sectors: make(map[sector.ID]*[sector.Size]byte)}
}

func (d *MemDisk) ReadSector(id sector.ID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sectors[id]; ok {
		copy(buf[:sector.Size], s[:])
	} else {
		for i := range buf[:sector.Size] {
			buf[i] = 0
		}
	}
	return nil
}

func (d *MemDisk) WriteSector(id sector.ID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sectors[id]
	if !ok {
		s = &[sector.Size]byte{}
		d.sectors[id] = s
	}
	copy(s[:], buf[:sector.Size])
	return nil
}
