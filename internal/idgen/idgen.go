// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package idgen derives deterministic identities for Percolator entities
// (market ids, Cap nonces, Escrow keys) from their scoping tuple, the same
// way the teacher's dex/pool_manager.go derives pool and position ids:
// BLAKE3 over the concatenated, length-prefixed components.
package idgen

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/luxfi/percolator/internal/ids"
)

// hasher accumulates length-prefixed fields so distinct field boundaries
// never alias (e.g. ("ab","c") vs ("a","bc")).
type hasher struct {
	h *blake3.Hasher
}

func newHasher(domain string) *hasher {
	h := blake3.New()
	h.Write([]byte(domain))
	return &hasher{h: h}
}

func (h *hasher) bytes(b []byte) *hasher {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	h.h.Write(lenBuf[:])
	h.h.Write(b)
	return h
}

func (h *hasher) u64(v uint64) *hasher {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return h.bytes(buf[:])
}

func (h *hasher) id() ids.Id {
	var out ids.Id
	h.h.Digest().Read(out[:])
	return out
}

// MarketID derives a deterministic market identity from a Slab identity and
// an instrument index, mirroring PoolKey.ID() in the teacher.
func MarketID(slab ids.Id, instrumentIdx uint16) ids.Id {
	return newHasher("percolator/market").bytes(slab[:]).u64(uint64(instrumentIdx)).id()
}

// CapNonce derives a fresh, unpredictable-enough nonce for a capability
// token scoped to (user, slab, mint, routeID, step). Determinism here is a
// feature: replaying the same route never collides with a live Cap because
// routeID is always fresh (monotonic route counter upstream).
func CapNonce(user, slab, mint ids.Id, routeID uint64, step uint32) uint64 {
	digest := newHasher("percolator/cap-nonce").
		bytes(user[:]).bytes(slab[:]).bytes(mint[:]).u64(routeID).u64(uint64(step)).id()
	return binary.LittleEndian.Uint64(digest[:8])
}

// EscrowKey derives the lookup key for an Escrow(user, slab, mint) triple.
func EscrowKey(user, slab, mint ids.Id) ids.Id {
	return newHasher("percolator/escrow").bytes(user[:]).bytes(slab[:]).bytes(mint[:]).id()
}
