// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diskio

import (
	"testing"

	"github.com/gopintos/storage/sector"
)

func TestBitmapFreeMapFirstFit(t *testing.T) {
	b := NewBitmapFreeMap(8)

	first, ok := b.Allocate(3)
	if !ok || first != 0 {
		t.Fatalf("Allocate(3) = %v, %v; want 0, true", first, ok)
	}

	second, ok := b.Allocate(2)
	if !ok || second != 3 {
		t.Fatalf("Allocate(2) = %v, %v; want 3, true", second, ok)
	}

	b.Release(first, 3)

	third, ok := b.Allocate(3)
	if !ok || third != 0 {
		t.Fatalf("Allocate(3) after release = %v, %v; want 0, true (first-fit should reuse the freed run)", third, ok)
	}
}

func TestBitmapFreeMapOutOfSpaceLeavesMapUnchanged(t *testing.T) {
	b := NewBitmapFreeMap(4)

	if _, ok := b.Allocate(5); ok {
		t.Fatal("Allocate(5) over a 4-sector map should fail")
	}
	first, ok := b.Allocate(4)
	if !ok || first != sector.ID(0) {
		t.Fatalf("Allocate(4) after failed Allocate(5) = %v, %v; want 0, true", first, ok)
	}
}

func TestMemDiskReadsZeroBeforeWrite(t *testing.T) {
	d := NewMemDisk()
	buf := make([]byte, sector.Size)
	for i := range buf {
		buf[i] = 0xFF
	}
	if err := d.ReadSector(5, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 before any write", i, b)
		}
	}
}
