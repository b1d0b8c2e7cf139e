// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hostapi formalizes the host assumptions Percolator's core
// operations rely on without depending on any particular chain runtime
// (spec §1 places transaction dispatch, account storage, and signature
// verification out of scope). This mirrors the teacher's dex/pool_manager.go
// StateDB interface, which abstracts the pool manager away from any concrete
// EVM implementation — here generalized from key/value EVM storage to raw
// fixed-size account buffers and an explicit cross-program invocation point,
// since the target account model is Solana-like rather than EVM-like.
package hostapi

import (
	"github.com/luxfi/percolator/internal/ids"
)

// AccountBuffer is the raw, fixed-size byte-slice backing of one on-chain
// account. Every Slab, Router, and Risk Engine account is a single
// AccountBuffer; all structure is imposed by the codec layer, never by the
// host.
type AccountBuffer interface {
	// Data returns the account's backing bytes. Mutations through the
	// returned slice are visible to subsequent Data calls for the same
	// account within a single instruction.
	Data() []byte

	// Len reports the account's fixed byte length.
	Len() int

	// Owner reports the program identity that owns (and so may mutate)
	// this account.
	Owner() ids.Id

	// IsWritable reports whether the instruction granted write access to
	// this account.
	IsWritable() bool
}

// Clock abstracts ledger time. Every timestamp and batch-id comparison in
// the Slab and Router goes through Clock rather than time.Now, so tests can
// drive deterministic sequences of batch opens and expiries.
type Clock interface {
	// UnixSeconds returns the current ledger timestamp.
	UnixSeconds() int64

	// Slot returns the current ledger slot/block height. The Slab and
	// Router read UnixSeconds only; nothing in them calls Slot.
	Slot() uint64
}

// SignerSet reports which identities authorized the current instruction,
// standing in for on-chain signature verification (spec §1 Non-goals).
type SignerSet interface {
	// IsSigner reports whether id authorized the current instruction.
	IsSigner(id ids.Id) bool
}

// Invoker issues a cross-program invocation, a single narrow seam to an
// external program the way the teacher's PoolManager treats hook calls
// (callHook) and the locker callback (executeCallback). The Router's
// MultiReserve/MultiCommit do not go through Invoker: they call Slab
// methods directly on in-process *slab.Slab values.
type Invoker interface {
	// Invoke dispatches a single discriminator-prefixed instruction to the
	// program owning the given accounts and returns its raw result bytes.
	Invoke(program ids.Id, accounts []AccountBuffer, instruction []byte) ([]byte, error)
}

// Host bundles the three ambient capabilities every core operation may
// need. Operations accept a Host instead of taking Clock/SignerSet/Invoker
// as three separate parameters once more than one is required, the same
// way the teacher threads a single StateDB through PoolManager's methods.
type Host interface {
	Clock
	SignerSet
	Invoker
}
