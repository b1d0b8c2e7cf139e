// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the fixed-width identity type shared by every
// account-resident entity in Percolator: markets, slabs, accounts, mints,
// and oracle feeds. The hosting chain is unspecified (see spec §1), so
// identities are plain 32-byte arrays rather than a chain-specific address
// type — the ergonomics (zero value, hex Stringer, byte round-trip) mirror
// the teacher's github.com/luxfi/geth/common.Address.
package ids

import (
	"encoding/hex"
	"errors"
)

// Len is the fixed byte width of an Id.
const Len = 32

// Id is an opaque 32-byte identity: a market, a Slab, a user account, a
// collateral mint, or an oracle feed.
type Id [Len]byte

// Empty is the zero identity, used as a sentinel for "unset".
var Empty Id

// IsEmpty reports whether id is the zero identity.
func (id Id) IsEmpty() bool {
	return id == Empty
}

// String renders the identity as a 0x-prefixed hex string.
func (id Id) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns a copy of the identity's underlying bytes.
func (id Id) Bytes() []byte {
	out := make([]byte, Len)
	copy(out, id[:])
	return out
}

// FromBytes builds an Id from a byte slice, which must be exactly Len bytes.
func FromBytes(b []byte) (Id, error) {
	var id Id
	if len(b) != Len {
		return id, errors.New("ids: wrong length")
	}
	copy(id[:], b)
	return id, nil
}

// FromSlice builds an Id by copying the first Len bytes of b, padding with
// zeroes if b is shorter.
func FromSlice(b []byte) Id {
	var id Id
	copy(id[:], b)
	return id
}
