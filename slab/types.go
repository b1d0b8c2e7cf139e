// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package slab implements the per-market order book, two-phase
// reserve/commit matching engine, anti-toxicity controls, funding accrual,
// and liquidation sweep. A Slab is the account-resident state of one
// market, grounded on the teacher's PoolManager (dex/pool_manager.go) —
// the pool-per-key singleton state container — generalized from an
// AMM pool's tick/liquidity state to an order book's accounts, orders,
// reservations, and positions.
//
// Every pool (accounts, orders, positions, reservations, slices) is a
// fixed-size Go slice allocated once by NewSlab from LayoutParams, with an
// integer-index freelist kept as a separate []uint32 stack — the
// arena-plus-index-not-pointer strategy spec's design notes mandate in
// place of the teacher's map[[32]byte]*T pool/position maps.
package slab

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/ids"
)

// NoIndex is the sentinel meaning "no slot", the fixed-width analogue of a
// nil pointer used throughout every freelist and linked list in the arena.
const NoIndex uint32 = 0xFFFFFFFF

// Side is the direction of an order, reservation, or exposure.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

// LayoutParams sizes every pool at Initialize time. Spec's open question
// on v0 (60KB, small caps) vs v1 (10MB, large caps) tiers is resolved by
// treating capacities as a layout-time parameter rather than a compile-time
// constant; production deployments pick v1-sized params, tests pick small
// ones for coverage of the Full/exhaustion paths.
type LayoutParams struct {
	NumAccounts      uint32
	NumOrders        uint32
	NumPositions     uint32
	NumReservations  uint32
	NumSlices        uint32
	NumInstruments   uint16
	TradeRingCapacity uint32
	NumAggressors    uint32
}

// DefaultV0Layout is the compact 60KB-class tier referenced in spec §9.
var DefaultV0Layout = LayoutParams{
	NumAccounts:       50,
	NumOrders:         300,
	NumPositions:      100,
	NumReservations:   64,
	NumSlices:         256,
	NumInstruments:    4,
	TradeRingCapacity: 128,
	NumAggressors:     50,
}

// DefaultV1Layout is the production 10MB-class tier referenced in spec §9.
var DefaultV1Layout = LayoutParams{
	NumAccounts:       65536,
	NumOrders:         262144,
	NumPositions:      131072,
	NumReservations:   8192,
	NumSlices:         32768,
	NumInstruments:    64,
	TradeRingCapacity: 65536,
	NumAggressors:     16384,
}

// Header holds market-wide parameters and monotonic counters (spec §3.1).
type Header struct {
	TickSize        uint64
	LotSize         uint64
	MinOrderSize    uint64
	MakerFeeBps     int64
	TakerFeeBps     int64
	IMRBps          uint16
	MMRBps          uint16
	KillBandBps     uint16
	FundingCoeffBps int64
	BatchWindowMs   uint64
	FreezeWindowMs  uint64
	ReserveTTLMs    uint64
	MaxOracleAgeMs  uint64
	ARGTaxKBps      int64
	JITPenalty      bool
	Halted          bool

	QuoteCacheSeqno uint64
	OrderIDCtr      uint64
	HoldIDCtr       uint64

	BatchID      uint64
	BatchOpenTs  int64

	LPOwner    ids.Id
	RouterID   ids.Id

	// DesignatedLPs enumerates the identities allowed to post during the
	// freeze window (spec §4.3). Fixed-capacity, not a growable slice, to
	// respect the no-heap-growth invariant; unused slots are ids.Empty.
	DesignatedLPs [8]ids.Id
}

// IsDesignatedLP reports whether id may post during the freeze window.
func (h *Header) IsDesignatedLP(id ids.Id) bool {
	for _, lp := range h.DesignatedLPs {
		if lp == id {
			return true
		}
	}
	return false
}

// QuoteCache snapshots top-of-book for external readers (spec §3.1).
type QuoteCache struct {
	BestBid       int64
	BestAsk       int64
	TotalBidQty   uint64
	TotalAskQty   uint64
	LastTradePx   int64
	LastTradeTs   int64
	Seqno         uint64
}

// Instrument holds one contract's mark/index state and book heads.
type Instrument struct {
	Active        bool
	ID            ids.Id
	IndexPrice    int64
	MarkPrice     int64
	CumFunding    fx.I128
	LastFundingTs int64
	BidHead       uint32 // NoIndex if empty
	AskHead       uint32 // NoIndex if empty
	OpenInterest  uint64
	ContractSize  int64
}

// Account is a per-user row in the Slab's accounts table.
type Account struct {
	InUse  bool
	Owner  ids.Id
	Cash   fx.I128

	// Positions lists the position-pool slots held by this account, fixed
	// capacity per instrument count; NoIndex where unused.
	Positions [256]uint32
}

// Position is one (account, instrument) open position (spec §3.1).
type Position struct {
	InUse              bool
	AccountIdx         uint32
	InstrumentIdx      uint16
	Qty                int64
	VWAPEntry           uint64
	CumFundingSnapshot fx.I128
}

// Order is one resting book entry, doubly-linked within its
// (instrument, side) list (spec §3.1, §4.1).
type Order struct {
	InUse         bool
	OrderID       uint64
	AccountIdx    uint32
	InstrumentIdx uint16
	Side          Side
	Price         int64
	QtyRemaining  int64
	ReservedQty   int64
	CreatedTs     int64
	PrevIdx       uint32
	NextIdx       uint32
}

// ReservationState is the reserve/commit/cancel state machine position of
// a reservation (spec §4.2).
type ReservationState uint8

const (
	ReservationReserved ReservationState = iota
	ReservationCommitted
	ReservationCanceled
	ReservationExpired
)

// Reservation is a live hold against one or more maker orders (spec §3.1).
type Reservation struct {
	InUse          bool
	State          ReservationState
	HoldID         uint64
	AccountIdx     uint32
	InstrumentIdx  uint16
	Side           Side
	RequestedQty   int64
	FilledQty      int64
	SliceHead      uint32 // NoIndex if none
	ExpiryTs       int64
	ReserveOraclePx int64
	SeqnoAtReserve uint64
	BatchIDAtReserve uint64
}

// Slice records one maker touched by a reservation (spec §3.1).
type Slice struct {
	InUse             bool
	MakerOrderIdx     uint32
	Qty               int64
	Price             int64
	MakerFeeBpsSnap   int64
	NextIdx           uint32
}

// Trade is one executed fill, stored in the fixed-capacity ring (spec §3.1).
type Trade struct {
	Ts            int64
	BuyerIdx      uint32
	SellerIdx     uint32
	InstrumentIdx uint16
	Price         int64
	Qty           int64
	Seqno         uint64
}

// AggressorKey identifies one (account, instrument) pair within a batch.
type AggressorKey struct {
	AccountIdx    uint32
	InstrumentIdx uint16
}

// AggressorEntry accumulates same-batch buy/sell notional for the
// Aggressor Roundtrip Guard (spec §4.3).
type AggressorEntry struct {
	InUse        bool
	Key          AggressorKey
	BuyNotional  fx.U128
	SellNotional fx.U128
}

// FundingAccrual tracks aggregate long/short funding paid and owed for
// conservation bookkeeping (spec §3.1).
type FundingAccrual struct {
	LongPaid  fx.I128
	ShortPaid fx.I128
}
