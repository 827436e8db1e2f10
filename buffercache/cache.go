// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buffercache implements a fixed-capacity sector buffer cache:
// a linear-scan lookup, fill-on-miss, and clock (second-chance)
// eviction with dirty writeback.
package buffercache

import (
	"sync"

	"github.com/gopintos/storage/diskio"
	"github.com/gopintos/storage/internal/assert"
	"github.com/gopintos/storage/sector"
)

// N is the fixed number of cache slots.
const N = 64

type slot struct {
	mu sync.Mutex

	buf    [sector.Size]byte
	id     sector.ID
	alloc  bool // has this slot ever been filled since init
	access bool // recently-touched hint for the clock policy
	dirty  bool
}

// Stats counts cache activity; it exists to let tests observe the
// clock policy's progress without reaching into unexported state.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Cache is the N-slot clock-eviction sector cache. The zero value is
// not usable; construct with New.
type Cache struct {
	disk diskio.Disk

	slots [N]*slot

	// evictMu serializes victim selection during misses. Lock order is
	// always eviction lock -> slot lock, never the reverse, and no
	// goroutine ever holds two slot locks simultaneously.
	evictMu sync.Mutex
	hand    int

	statsMu sync.Mutex
	stats   Stats
}

// New returns an empty cache (no slot holds a resident sector) backed
// by disk.
func New(disk diskio.Disk) *Cache {
	c := &Cache{disk: disk}
	for i := range c.slots {
		c.slots[i] = &slot{id: sector.NoID}
	}
	return c
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) bump(delta func(*Stats)) {
	c.statsMu.Lock()
	delta(&c.stats)
	c.statsMu.Unlock()
}

// Read copies length bytes from the cached image of id, starting at
// offset, into dst. Misses fault the sector in first.
func (c *Cache) Read(id sector.ID, dst []byte, offset, length int) error {
	assert.True(offset >= 0 && length >= 0 && offset+length <= sector.Size,
		"buffercache: read out of bounds offset=%d length=%d", offset, length)
	s, err := c.acquire(id, false)
	if err != nil {
		return err
	}
	copy(dst[:length], s.buf[offset:offset+length])
	s.mu.Unlock()
	return nil
}

// Write copies length bytes from src into the cached image of id,
// starting at offset, marking the slot dirty. Misses fault the whole
// sector in first, so bytes outside [offset, offset+length) retain
// their previously-stored contents.
func (c *Cache) Write(id sector.ID, src []byte, offset, length int) error {
	assert.True(offset >= 0 && length >= 0 && offset+length <= sector.Size,
		"buffercache: write out of bounds offset=%d length=%d", offset, length)
	s, err := c.acquire(id, true)
	if err != nil {
		return err
	}
	copy(s.buf[offset:offset+length], src[:length])
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// acquire returns the slot holding id's resident image, locked, with
// the access/dirty hint for isWrite already applied on the hit path.
// On a miss it performs clock eviction and fills the sector before
// returning. The caller must unlock the returned slot.
func (c *Cache) acquire(id sector.ID, isWrite bool) (*slot, error) {
	for _, s := range c.slots {
		s.mu.Lock()
		if s.alloc && s.id == id {
			if isWrite {
				s.dirty = true
			} else {
				s.access = true
			}
			c.bump(func(st *Stats) { st.Hits++ })
			return s, nil
		}
		s.mu.Unlock()
	}

	c.bump(func(st *Stats) { st.Misses++ })
	return c.evict(id, isWrite)
}

// evict runs the clock/second-chance replacement policy to find or
// claim a slot for id. It is entered on a miss and always returns with
// the eviction lock released and the chosen slot's lock held.
func (c *Cache) evict(id sector.ID, isWrite bool) (*slot, error) {
	c.evictMu.Lock()

	for inspected := 0; ; inspected++ {
		assert.True(inspected <= 2*N, "buffercache: clock made no progress after %d inspections", inspected)

		idx := c.hand
		c.hand = (c.hand + 1) % N
		s := c.slots[idx]
		s.mu.Lock()

		if !s.alloc {
			if err := c.disk.ReadSector(id, s.buf[:]); err != nil {
				s.mu.Unlock()
				c.evictMu.Unlock()
				return nil, err
			}
			s.id = id
			s.alloc = true
			s.access = false
			s.dirty = false
			c.evictMu.Unlock()
			if isWrite {
				s.dirty = true
			} else {
				s.access = true
			}
			return s, nil
		}

		if !s.access {
			c.bump(func(st *Stats) { st.Evictions++ })
			if s.dirty {
				if err := c.disk.WriteSector(s.id, s.buf[:]); err != nil {
					s.mu.Unlock()
					c.evictMu.Unlock()
					return nil, err
				}
				c.bump(func(st *Stats) { st.Writebacks++ })
			}
			if err := c.disk.ReadSector(id, s.buf[:]); err != nil {
				s.mu.Unlock()
				c.evictMu.Unlock()
				return nil, err
			}
			s.id = id
			s.alloc = true
			if isWrite {
				s.dirty = true
				s.access = false
			} else {
				s.access = false
				s.dirty = false
			}
			c.evictMu.Unlock()
			return s, nil
		}

		s.access = false
		s.mu.Unlock()
	}
}
