// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diskio

import (
	"sync"

	"github.com/gopintos/storage/sector"
)

// FreeMap is the free-sector allocator collaborator: contiguous-extent
// allocation and release. Create calls it for a fresh extent; Close of
// a removed inode calls it to release one.
type FreeMap interface {
	// Allocate reserves count contiguous sectors and returns the first
	// one. ok is false (out-of-disk-space) if no run of that length is
	// free; the free map is left unchanged on failure.
	Allocate(count int64) (first sector.ID, ok bool)
	// Release returns count sectors starting at first to the free pool.
	Release(first sector.ID, count int64)
}

// BitmapFreeMap is a first-fit contiguous-run allocator over a fixed
// number of sectors, the reference shape of the on-disk free-sector
// bitmap.
type BitmapFreeMap struct {
	mu   sync.Mutex
	free []bool // true = free
}

// NewBitmapFreeMap returns an allocator over nsectors sectors, all
// initially free except any in reserved (e.g. sectors already consumed
// by a superblock or root directory laid out ahead of time).
func NewBitmapFreeMap(nsectors int64, reserved ...sector.ID) *BitmapFreeMap {
	b := &BitmapFreeMap{free: make([]bool, nsectors)}
	for i := range b.free {
		b.free[i] = true
	}
	for _, r := range reserved {
		if r.Valid() && int64(r) < nsectors {
			b.free[r] = false
		}
	}
	return b
}

func (b *BitmapFreeMap) Allocate(count int64) (sector.ID, bool) {
	if count <= 0 {
		return sector.NoID, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	run := int64(0)
	start := int64(0)
	for i := int64(0); i < int64(len(b.free)); i++ {
		if b.free[i] {
			if run == 0 {
				start = i
			}
			run++
			if run == count {
				for j := start; j < start+count; j++ {
					b.free[j] = false
				}
				return sector.ID(start), true
			}
		} else {
			run = 0
		}
	}
	return sector.NoID, false
}

func (b *BitmapFreeMap) Release(first sector.ID, count int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := int64(first); i < int64(first)+count; i++ {
		if i >= 0 && i < int64(len(b.free)) {
			b.free[i] = true
		}
	}
}
