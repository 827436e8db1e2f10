// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frametable

import "sync"

// PageSize is the simulated physical page size.
const PageSize = 4096

// PalZero, like pintos's PAL_ZERO, asks the allocator to zero the page
// before handing it out.
const PalZero uint32 = 1 << 0

// PoolAllocator is a fixed arena of simulated physical pages with a
// LIFO free list of reusable page IDs.
type PoolAllocator struct {
	mu    sync.Mutex
	pages [][PageSize]byte
	free  []uintptr
	next  uintptr
}

// NewPoolAllocator returns an allocator over capacity simulated pages.
func NewPoolAllocator(capacity int) *PoolAllocator {
	return &PoolAllocator{pages: make([][PageSize]byte, capacity)}
}

func (p *PoolAllocator) GetPage(flags uint32) (uintptr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var id uintptr
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else if int(p.next) < len(p.pages) {
		p.next++
		id = p.next
	} else {
		return 0, false
	}

	if flags&PalZero != 0 {
		page := &p.pages[id-1]
		for i := range page {
			page[i] = 0
		}
	}
	return id, true
}

func (p *PoolAllocator) FreePage(kpage uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, kpage)
}

// Bytes returns the backing storage for kpage, letting a caller read
// or write the simulated page's contents.
func (p *PoolAllocator) Bytes(kpage uintptr) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[kpage-1][:]
}

// PTE is one simulated page-table entry: the slot a SimplePageTable
// hands back from Lookup, whose kpage field FreePage reads via
// GetPage.
type PTE struct {
	vaddr    uintptr
	kpage    uintptr
	mapped   bool
	writable bool
}

// Vaddr returns the virtual address this pte is the slot for.
func (p *PTE) Vaddr() uintptr { return p.vaddr }

// SimplePageTable simulates one task's address space as a plain
// map[vaddr]*PTE guarded by a mutex.
type SimplePageTable struct {
	mu      sync.Mutex
	entries map[uintptr]*PTE
}

// NewSimplePageTable returns an empty page table.
func NewSimplePageTable() *SimplePageTable {
	return &SimplePageTable{entries: make(map[uintptr]*PTE)}
}

func (pt *SimplePageTable) Lookup(vaddr uintptr, create bool) (*PTE, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if e, ok := pt.entries[vaddr]; ok {
		return e, true
	}
	if !create {
		return nil, false
	}
	e := &PTE{vaddr: vaddr}
	pt.entries[vaddr] = e
	return e, true
}

func (pt *SimplePageTable) GetPage(pte *PTE) (uintptr, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pte == nil || !pte.mapped {
		return 0, false
	}
	return pte.kpage, true
}

// SetPage installs kpage at pte, rejecting an already-bound slot — the
// precondition the frame table's GetPage relies on.
func (pt *SimplePageTable) SetPage(pte *PTE, kpage uintptr, writable bool) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pte.mapped {
		return false
	}
	pte.kpage = kpage
	pte.mapped = true
	pte.writable = writable
	return true
}

func (pt *SimplePageTable) Clear(pte *PTE) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pte.mapped = false
	pte.kpage = 0
}
