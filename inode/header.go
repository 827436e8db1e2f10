// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inode

import (
	"encoding/binary"

	"github.com/gopintos/storage/sector"
)

// Magic tags a valid on-disk inode header.
const Magic uint32 = 0x494E4F44

// onDiskHeader is the one-sector on-disk layout: start (4 bytes LE),
// length (4 bytes signed LE), magic (4 bytes LE), 500 bytes padding.
type onDiskHeader struct {
	start  sector.ID
	length int64
	magic  uint32
}

func encodeHeader(h onDiskHeader) [sector.Size]byte {
	var buf [sector.Size]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.start))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(h.length)))
	binary.LittleEndian.PutUint32(buf[8:12], h.magic)
	return buf
}

func decodeHeader(buf []byte) onDiskHeader {
	return onDiskHeader{
		start:  sector.ID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		length: int64(int32(binary.LittleEndian.Uint32(buf[4:8]))),
		magic:  binary.LittleEndian.Uint32(buf[8:12]),
	}
}
