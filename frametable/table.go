// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frametable implements a frame table: a mapping from each
// owned kernel page frame to the set of page-table entries referencing
// it, plus a global ordered list of live frames.
package frametable

import (
	"sync"

	"github.com/gopintos/storage/internal/assert"
)

// Allocator is the physical frame allocator collaborator: GetPage
// returns a kernel page or none; FreePage releases one.
type Allocator interface {
	GetPage(flags uint32) (kpage uintptr, ok bool)
	FreePage(kpage uintptr)
}

// PageTable is the virtual-memory page-table collaborator. PTE is an
// opaque per-vaddr handle:
// Lookup returns (creating if needed) the slot for a virtual address;
// GetPage reports what that slot currently maps, if anything; SetPage
// installs a mapping, refusing one that already exists; Clear unbinds
// it.
type PageTable interface {
	Lookup(vaddr uintptr, create bool) (pte *PTE, ok bool)
	GetPage(pte *PTE) (kpage uintptr, mapped bool)
	SetPage(pte *PTE, kpage uintptr, writable bool) (installed bool)
	Clear(pte *PTE)
}

type frameEntry struct {
	kpage     uintptr
	referents map[*PTE]struct{}
}

// Table is the frame table. The zero value is not usable; construct
// with New.
type Table struct {
	alloc Allocator
	pt    PageTable

	mu      sync.Mutex
	byKpage map[uintptr]*frameEntry
	order   []*frameEntry
}

// New returns an empty frame table driving alloc and pt.
func New(alloc Allocator, pt PageTable) *Table {
	return &Table{
		alloc:   alloc,
		pt:      pt,
		byKpage: make(map[uintptr]*frameEntry),
	}
}

// GetPage obtains a kernel page from the frame allocator and installs
// it into the page table at vaddr with the given writable bit. On any
// failure — no free page, no pte slot, vaddr already mapped — it
// releases any page obtained and returns ok=false. On success it
// locates or creates the frame entry for the kernel page, records pte
// as a referent, and returns the kernel page.
func (t *Table) GetPage(flags uint32, vaddr uintptr, writable bool) (uintptr, bool) {
	kpage, ok := t.alloc.GetPage(flags)
	if !ok {
		return 0, false
	}

	pte, ok := t.pt.Lookup(vaddr, true)
	if !ok {
		t.alloc.FreePage(kpage)
		return 0, false
	}
	if _, mapped := t.pt.GetPage(pte); mapped {
		t.alloc.FreePage(kpage)
		return 0, false
	}
	if !t.pt.SetPage(pte, kpage, writable) {
		t.alloc.FreePage(kpage)
		return 0, false
	}

	t.mu.Lock()
	fe, ok := t.byKpage[kpage]
	if !ok {
		fe = &frameEntry{kpage: kpage, referents: make(map[*PTE]struct{})}
		t.byKpage[kpage] = fe
		t.order = append(t.order, fe)
	}
	fe.referents[pte] = struct{}{}
	t.mu.Unlock()

	return kpage, true
}

// FreePage drops pte's reference to its frame, unbinds the page-table
// entry, and — when that was the frame's last referent — destroys the
// frame entry and releases the kernel page.
func (t *Table) FreePage(pte *PTE) {
	kpage, mapped := t.pt.GetPage(pte)
	assert.True(mapped, "frametable: free_page on a pte with no mapping")

	t.mu.Lock()
	fe, ok := t.byKpage[kpage]
	assert.True(ok, "frametable: free_page: no frame entry for kpage %#x", kpage)
	delete(fe.referents, pte)
	empty := len(fe.referents) == 0
	if empty {
		delete(t.byKpage, kpage)
		t.removeFromOrderLocked(fe)
	}
	t.mu.Unlock()

	t.pt.Clear(pte)
	if empty {
		t.alloc.FreePage(kpage)
	}
}

// Frames returns a stable-ordered snapshot of the kernel pages
// currently owned by the frame table.
func (t *Table) Frames() []uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uintptr, len(t.order))
	for i, fe := range t.order {
		out[i] = fe.kpage
	}
	return out
}

func (t *Table) removeFromOrderLocked(fe *frameEntry) {
	for i, e := range t.order {
		if e == fe {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
