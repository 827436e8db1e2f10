// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inode implements the open-inode layer: open-inode
// deduplication by on-disk sector, reference counting, deferred
// deletion, bounded read/write at arbitrary byte offsets, and
// write-deny reservations. All disk traffic flows through a
// buffercache.Cache.
package inode

import (
	"sync"
	"syscall"

	"github.com/gopintos/storage/buffercache"
	"github.com/gopintos/storage/diskio"
	"github.com/gopintos/storage/internal/assert"
	"github.com/gopintos/storage/sector"
)

// Inode is an open in-memory handle shared by every opener of one
// on-disk inode. The zero value is not usable; handles are returned by
// Table.Open/Table.Reopen.
type Inode struct {
	sector sector.ID // header sector; dedup key

	mu           sync.Mutex
	openCnt      int
	denyWriteCnt int
	removed      bool
	data         onDiskHeader
}

// Sector returns the on-disk sector of this inode's header.
func (i *Inode) Sector() sector.ID { return i.sector }

// Length returns the inode's current byte length. It never grows
// after Create, so no lock is needed to read it.
func (i *Inode) Length() int64 { return i.data.length }

// Table is the set of currently-open in-memory inodes, deduplicated by
// on-disk sector: a map keyed by identity, guarded by one mutex (see
// DESIGN.md for why an explicit lock is used here).
type Table struct {
	cache   *buffercache.Cache
	freemap diskio.FreeMap

	mu   sync.Mutex
	open map[sector.ID]*Inode
}

// NewTable returns an empty open-inode table backed by cache and
// freemap.
func NewTable(cache *buffercache.Cache, freemap diskio.FreeMap) *Table {
	return &Table{
		cache:   cache,
		freemap: freemap,
		open:    make(map[sector.ID]*Inode),
	}
}

// CacheStats returns the backing buffer cache's hit/miss/eviction
// counters, for diagnostics.
func (t *Table) CacheStats() buffercache.Stats {
	return t.cache.Stats()
}

// Create allocates a contiguous extent of ceil(length/S) sectors,
// writes the header at sec, and zeroes every data sector. The free map
// is left unchanged on failure.
func (t *Table) Create(sec sector.ID, length int64) error {
	assert.True(length >= 0, "inode: negative length %d", length)

	count := sector.Count(length)
	var start sector.ID
	if count > 0 {
		var ok bool
		start, ok = t.freemap.Allocate(count)
		if !ok {
			return syscall.ENOSPC
		}
	} else {
		start = sector.NoID
	}

	hdr := onDiskHeader{start: start, length: length, magic: Magic}
	buf := encodeHeader(hdr)
	if err := t.cache.Write(sec, buf[:], 0, sector.Size); err != nil {
		if count > 0 {
			t.freemap.Release(start, count)
		}
		return err
	}

	var zero [sector.Size]byte
	for s := sector.ID(0); s < sector.ID(count); s++ {
		if err := t.cache.Write(start+s, zero[:], 0, sector.Size); err != nil {
			t.freemap.Release(start, count)
			return err
		}
	}
	return nil
}

// Open returns the open-inode for sec, incrementing its open count if
// one already exists, or reading the header through the cache and
// installing a fresh entry otherwise.
func (t *Table) Open(sec sector.ID) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.open[sec]; ok {
		existing.mu.Lock()
		existing.openCnt++
		existing.mu.Unlock()
		return existing, nil
	}

	var buf [sector.Size]byte
	if err := t.cache.Read(sec, buf[:], 0, sector.Size); err != nil {
		return nil, err
	}
	hdr := decodeHeader(buf[:])
	assert.True(hdr.magic == Magic, "inode: corrupt header at sector %d: magic %#x", sec, hdr.magic)

	in := &Inode{sector: sec, openCnt: 1, data: hdr}
	t.open[sec] = in
	return in, nil
}

// Reopen increments in's open count and returns it unchanged. Safe to
// call with a nil handle.
func (t *Table) Reopen(in *Inode) *Inode {
	if in == nil {
		return nil
	}
	in.mu.Lock()
	in.openCnt++
	in.mu.Unlock()
	return in
}

// Close decrements in's open count; at zero it is removed from the
// table and, if Remove was called on it, its header and data extent
// are released back to the free map. Safe to call with a nil handle.
func (t *Table) Close(in *Inode) error {
	if in == nil {
		return nil
	}

	t.mu.Lock()
	in.mu.Lock()
	assert.True(in.openCnt > 0, "inode: close of sector %d with openCnt=%d", in.sector, in.openCnt)
	in.openCnt--
	if in.openCnt > 0 {
		in.mu.Unlock()
		t.mu.Unlock()
		return nil
	}
	delete(t.open, in.sector)
	removed := in.removed
	data := in.data
	in.mu.Unlock()
	t.mu.Unlock()

	if !removed {
		return nil
	}
	if count := sector.Count(data.length); count > 0 {
		t.freemap.Release(data.start, count)
	}
	t.freemap.Release(in.sector, 1)
	return nil
}

// Remove marks in for deletion once its last opener closes it. It does
// not affect current openers.
func (t *Table) Remove(in *Inode) {
	in.mu.Lock()
	in.removed = true
	in.mu.Unlock()
}

// DenyWrite and AllowWrite form a matched pair per opener, bounded by
// deny_write_cnt <= open_cnt.
func (t *Table) DenyWrite(in *Inode) {
	in.mu.Lock()
	in.denyWriteCnt++
	assert.True(in.denyWriteCnt <= in.openCnt, "inode: deny_write_cnt %d exceeds open_cnt %d", in.denyWriteCnt, in.openCnt)
	in.mu.Unlock()
}

func (t *Table) AllowWrite(in *Inode) {
	in.mu.Lock()
	assert.True(in.denyWriteCnt > 0, "inode: allow_write with deny_write_cnt=0")
	in.denyWriteCnt--
	in.mu.Unlock()
}

// chunkSize returns the bytes transferable for one sector-bounded
// iteration starting at byte position pos, given the inode's
// byte-to-sector mapping.
func chunkSize(remaining int, pos, length int64) int {
	sectorLeft := sector.Size - int(pos%sector.Size)
	fileLeft := int64(0)
	if length > pos {
		fileLeft = length - pos
	}
	n := remaining
	if sectorLeft < n {
		n = sectorLeft
	}
	if fileLeft < int64(n) {
		n = int(fileLeft)
	}
	return n
}

// ReadAt copies up to size bytes from in, starting at offset, into
// dst, clipped by the inode's current length. It returns the number
// of bytes actually transferred; reading past end-of-file is a short
// count, not an error.
func (t *Table) ReadAt(in *Inode, dst []byte, size int, offset int64) (int, error) {
	length := in.Length()
	total := 0
	pos := offset
	for total < size && pos < length {
		n := chunkSize(size-total, pos, length)
		if n <= 0 {
			break
		}
		secIdx := in.data.start + sector.ID(pos/sector.Size)
		secOff := int(pos % sector.Size)
		if err := t.cache.Read(secIdx, dst[total:total+n], secOff, n); err != nil {
			return total, err
		}
		total += n
		pos += int64(n)
	}
	return total, nil
}

// WriteAt copies up to size bytes from src into in, starting at
// offset, clipped by the inode's current length. It refuses all bytes
// (returns 0) while a deny-write reservation is outstanding. Neither
// WriteAt nor any other operation grows the file.
func (t *Table) WriteAt(in *Inode, src []byte, size int, offset int64) (int, error) {
	in.mu.Lock()
	denied := in.denyWriteCnt > 0
	in.mu.Unlock()
	if denied {
		return 0, nil
	}

	length := in.Length()
	total := 0
	pos := offset
	for total < size && pos < length {
		n := chunkSize(size-total, pos, length)
		if n <= 0 {
			break
		}
		secIdx := in.data.start + sector.ID(pos/sector.Size)
		secOff := int(pos % sector.Size)
		if err := t.cache.Write(secIdx, src[total:total+n], secOff, n); err != nil {
			return total, err
		}
		total += n
		pos += int64(n)
	}
	return total, nil
}
