// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router implements the portfolio-margin coordinator: it fans
// atomic trades out across one or more Slabs using scoped, expiring
// capability tokens, and maintains each user's net-exposure Portfolio
// (spec §3.2, §4.6, §4.7). Grounded on the teacher's PoolManager
// (dex/pool_manager.go) for its map-keyed account-set model — Router
// state is naturally many small, independently addressed accounts
// (Vault, Escrow, Cap, Portfolio), the same shape PoolManager uses for
// its own map[[32]byte]*Pool/*Position tables, as opposed to Slab's
// single fixed-size arena blob.
package router

import (
	"github.com/luxfi/log"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/slab"
)

// MarginMode distinguishes netted (Cross) exposures from excluded
// (Isolated) ones in a Portfolio's margin computation — the teacher's
// dex/margin.go Cross/Isolated/Portfolio account-kind distinction,
// generalized to per-Exposure granularity (spec §4.13 supplement).
type MarginMode uint8

const (
	MarginCross MarginMode = iota
	MarginIsolated
)

// SlabRegistryEntry is a governance-whitelisted Slab (spec §3.2).
type SlabRegistryEntry struct {
	SlabID         ids.Id
	CodeVersionHash [32]byte
	OracleID       ids.Id
	IMRBps         uint16
	MMRBps         uint16
	MaxFeeBps      uint16
	Enabled        bool
}

// Vault custodies one collateral asset across all users (spec §3.2).
type Vault struct {
	Mint    ids.Id
	Balance fx.U128
}

// UserBalance is a user's free (unescrowed) claim against a Vault.
type UserBalance struct {
	User ids.Id
	Mint ids.Id
	Free fx.U128
}

// Escrow is a per-(user, slab, mint) reservation of user funds earmarked
// for one Slab (spec §3.2).
type Escrow struct {
	User    ids.Id
	Slab    ids.Id
	Mint    ids.Id
	Balance fx.U128
}

// CapState is a capability token's lifecycle position (spec §3.3).
type CapState uint8

const (
	CapMinted CapState = iota
	CapActive
	CapConsumed
	CapExpiredState
	CapBurned
)

// Cap is a scoped, expiring capability token authorizing one Slab to
// debit one Escrow up to amount_remaining (spec §3.2, §3.3).
type Cap struct {
	ScopeUser       ids.Id
	ScopeSlab       ids.Id
	ScopeMint       ids.Id
	AmountMax       fx.U128
	AmountRemaining fx.U128
	ExpiryTs        int64
	Nonce           uint64
	State           CapState
}

// Exposure is one (slab, instrument) position contributing to a
// Portfolio's net margin computation (spec §3.2).
type Exposure struct {
	Slab          ids.Id
	InstrumentIdx uint16
	Qty           fx.I128
	EntryPx       int64
	Mode          MarginMode
}

// Portfolio is a user's cross-Slab margin account (spec §3.2).
type Portfolio struct {
	User           ids.Id
	Equity         fx.I128
	IMRequired     fx.U128
	MMRequired     fx.U128
	FreeCollateral fx.I128
	LastMarkTs     int64
	Exposures      []Exposure
}

// RouteStep is one leg of a MultiReserve plan (spec §4.6).
type RouteStep struct {
	SlabID        ids.Id
	InstrumentIdx uint16
	Side          slab.Side
	Qty           int64
	LimitPx       int64
	Mode          MarginMode
}

// ManifestEntry records one committed-or-pending leg of a route (spec §4.6).
type ManifestEntry struct {
	SlabID        ids.Id
	InstrumentIdx uint16
	Side          slab.Side
	HoldID        uint64
	CapNonce      uint64
	MaxCharge     fx.U128
}

// Route is the record of a MultiReserve call, consumed by MultiCommit
// (spec §4.6, §4.7).
type Route struct {
	RouteID   uint64
	User      ids.Id
	Mint      ids.Id
	Manifest  []ManifestEntry
	CreatedTs int64
	Done      bool
}

type userMintKey struct {
	user ids.Id
	mint ids.Id
}

type escrowKey struct {
	user ids.Id
	slab ids.Id
	mint ids.Id
}

type slabUserKey struct {
	slab ids.Id
	user ids.Id
}

// Router holds every Router-scoped account and the resolved Slab
// instances it invokes, standing in for cross-program invocation since
// Percolator's host runtime is unspecified (spec §1) — calls that would
// be CPI in production are direct Go method calls on these *slab.Slab
// values here; the hostapi.Invoker seam is not used.
type Router struct {
	Authority    ids.Id
	Registry     map[ids.Id]*SlabRegistryEntry
	Slabs        map[ids.Id]*slab.Slab
	Vaults       map[ids.Id]*Vault
	UserBalances map[userMintKey]*UserBalance
	Escrows      map[escrowKey]*Escrow
	Caps         map[uint64]*Cap
	Portfolios   map[ids.Id]*Portfolio
	Routes       map[uint64]*Route

	routeCtr uint64
	capCtr   uint64

	// slabAccountIdx caches each user's account index within a Slab,
	// opened lazily on first touch.
	slabAccountIdx map[slabUserKey]uint32

	// Log receives structured records for governance operations
	// (RegisterSlab, SetSlabEnabled); nil disables logging.
	Log log.Logger
}

// NewRouter constructs an empty Router under the given governance
// authority (spec §3.2 SlabRegistry authority).
func NewRouter(authority ids.Id) *Router {
	return &Router{
		Authority:      authority,
		Registry:       make(map[ids.Id]*SlabRegistryEntry),
		Slabs:          make(map[ids.Id]*slab.Slab),
		Vaults:         make(map[ids.Id]*Vault),
		UserBalances:   make(map[userMintKey]*UserBalance),
		Escrows:        make(map[escrowKey]*Escrow),
		Caps:           make(map[uint64]*Cap),
		Portfolios:     make(map[ids.Id]*Portfolio),
		Routes:         make(map[uint64]*Route),
		slabAccountIdx: make(map[slabUserKey]uint32),
	}
}
