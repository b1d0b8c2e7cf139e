// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec provides fixed-offset, little-endian primitive accessors
// over a raw byte slice, the zero-copy analogue of the teacher's
// PoolKey.ToBytes/FromBytes pair (dex/types.go) generalized from one
// ad hoc struct to every fixed-layout region an account buffer holds.
// Every accessor reads or writes in place; none allocates.
package codec

import (
	"encoding/binary"

	"github.com/luxfi/percolator/internal/ids"
)

// U16 reads a little-endian uint16 at offset off.
func U16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off : off+2]) }

// PutU16 writes v as little-endian at offset off.
func PutU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }

// U32 reads a little-endian uint32 at offset off.
func U32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }

// PutU32 writes v as little-endian at offset off.
func PutU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }

// U64 reads a little-endian uint64 at offset off.
func U64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off : off+8]) }

// PutU64 writes v as little-endian at offset off.
func PutU64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }

// I64 reads a little-endian int64 at offset off.
func I64(b []byte, off int) int64 { return int64(U64(b, off)) }

// PutI64 writes v as little-endian at offset off.
func PutI64(b []byte, off int, v int64) { PutU64(b, off, uint64(v)) }

// Bool reads a single byte as a boolean at offset off.
func Bool(b []byte, off int) bool { return b[off] != 0 }

// PutBool writes v as a single byte at offset off.
func PutBool(b []byte, off int, v bool) {
	if v {
		b[off] = 1
	} else {
		b[off] = 0
	}
}

// IdAt reads a 32-byte ids.Id at offset off.
func IdAt(b []byte, off int) ids.Id {
	var id ids.Id
	copy(id[:], b[off:off+ids.Len])
	return id
}

// PutIdAt writes a 32-byte ids.Id at offset off.
func PutIdAt(b []byte, off int, id ids.Id) {
	copy(b[off:off+ids.Len], id[:])
}

// Bytes16 reads a 16-byte field at offset off.
func Bytes16(b []byte, off int) [16]byte {
	var out [16]byte
	copy(out[:], b[off:off+16])
	return out
}

// PutBytes16 writes a 16-byte field at offset off.
func PutBytes16(b []byte, off int, v [16]byte) {
	copy(b[off:off+16], v[:])
}

// NoIndex is the sentinel for "no link" in freelist/list index fields,
// the fixed-width analogue of a nil pointer.
const NoIndex uint32 = 0xFFFFFFFF
