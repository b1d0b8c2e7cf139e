// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"github.com/luxfi/log"

	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
)

// Slab is the account-resident state of one market: header, quote cache,
// instrument table, and the five fixed-capacity pools (accounts, orders,
// positions, reservations, slices) plus the trade ring and aggressor
// table. All pools are allocated by NewSlab from LayoutParams and never
// grow; each pool's freelist is a separate []uint32 stack of free slot
// indices, while the live elements stay directly in the pool's backing
// slice, mirroring the teacher's pattern of storing a pool's live elements
// directly in its backing array.
type Slab struct {
	ID     ids.Id
	Params LayoutParams

	Header     Header
	QuoteCache QuoteCache

	Instruments  []Instrument
	Accounts     []Account
	Positions    []Position
	accountFree  []uint32
	positionFree []uint32

	Orders     []Order
	orderFree  []uint32

	Reservations []Reservation
	reservationFree []uint32

	Slices     []Slice
	sliceFree  []uint32

	TradeRing     []Trade
	tradeRingHead uint32 // index of the next slot to overwrite
	tradeRingLen  uint32

	Aggressors map[AggressorKey]uint32 // account/instrument -> index into aggressorPool
	aggressorPool []AggressorEntry
	aggressorFree []uint32

	Funding FundingAccrual

	// Log receives structured records for keeper-triggered operations
	// (BatchOpen, UpdateFunding, Liquidate); nil disables logging, the
	// same optional-logger shape the teacher's threshold client takes.
	Log log.Logger
}

// NewSlab allocates every pool per params but leaves the Slab
// uninitialized (zero header); Initialize finishes setup.
func NewSlab(id ids.Id, params LayoutParams) *Slab {
	s := &Slab{
		ID:           id,
		Params:       params,
		Instruments:  make([]Instrument, params.NumInstruments),
		Accounts:     make([]Account, params.NumAccounts),
		Positions:    make([]Position, params.NumPositions),
		Orders:       make([]Order, params.NumOrders),
		Reservations: make([]Reservation, params.NumReservations),
		Slices:       make([]Slice, params.NumSlices),
		TradeRing:    make([]Trade, params.TradeRingCapacity),
		Aggressors:   make(map[AggressorKey]uint32, params.NumAggressors),
		aggressorPool: make([]AggressorEntry, params.NumAggressors),
	}
	s.accountFree = freelistOf(params.NumAccounts)
	s.positionFree = freelistOf(params.NumPositions)
	s.orderFree = freelistOf(params.NumOrders)
	s.reservationFree = freelistOf(params.NumReservations)
	s.sliceFree = freelistOf(params.NumSlices)
	s.aggressorFree = freelistOf(params.NumAggressors)
	for i := range s.Instruments {
		s.Instruments[i].BidHead = NoIndex
		s.Instruments[i].AskHead = NoIndex
	}
	return s
}

// freelistOf returns [n-1, n-2, ..., 1, 0] so popping from the tail hands
// out slot 0 first — deterministic allocation order, useful for tests.
func freelistOf(n uint32) []uint32 {
	out := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		out[i] = n - 1 - i
	}
	return out
}

func popFree(free *[]uint32) (uint32, bool) {
	n := len(*free)
	if n == 0 {
		return 0, false
	}
	idx := (*free)[n-1]
	*free = (*free)[:n-1]
	return idx, true
}

func pushFree(free *[]uint32, idx uint32) {
	*free = append(*free, idx)
}

// InitParams are the Initialize-instruction payload fields (spec §6.2,
// discriminator 0).
type InitParams struct {
	LPOwner      ids.Id
	RouterID     ids.Id
	TickSize     uint64
	LotSize      uint64
	MinOrderSize uint64
	MakerFeeBps  int64
	TakerFeeBps  int64
	IMRBps       uint16
	MMRBps       uint16
	KillBandBps  uint16
	FundingCoeffBps int64
	BatchWindowMs   uint64
	FreezeWindowMs  uint64
	ReserveTTLMs    uint64
	MaxOracleAgeMs  uint64
	ARGTaxKBps      int64
}

// Initialize sets header and params on a freshly allocated Slab (spec §3.1
// lifecycle, §6.2 discriminator 0).
func (s *Slab) Initialize(clock hostapi.Clock, p InitParams) error {
	if p.TickSize == 0 || p.LotSize == 0 {
		return xerrors.ErrInvalidPrice.Wrap("tick/lot size must be nonzero")
	}
	s.Header = Header{
		TickSize:        p.TickSize,
		LotSize:         p.LotSize,
		MinOrderSize:    p.MinOrderSize,
		MakerFeeBps:     p.MakerFeeBps,
		TakerFeeBps:     p.TakerFeeBps,
		IMRBps:          p.IMRBps,
		MMRBps:          p.MMRBps,
		KillBandBps:     p.KillBandBps,
		FundingCoeffBps: p.FundingCoeffBps,
		BatchWindowMs:   p.BatchWindowMs,
		FreezeWindowMs:  p.FreezeWindowMs,
		ReserveTTLMs:    p.ReserveTTLMs,
		MaxOracleAgeMs:  p.MaxOracleAgeMs,
		ARGTaxKBps:      p.ARGTaxKBps,
		LPOwner:         p.LPOwner,
		RouterID:        p.RouterID,
		BatchID:         1,
		BatchOpenTs:     clock.UnixSeconds(),
	}
	return nil
}

// RegisterInstrument activates a slot in the instrument table.
func (s *Slab) RegisterInstrument(idx uint16, id ids.Id, contractSize int64) error {
	if int(idx) >= len(s.Instruments) {
		return xerrors.ErrInstrumentNotFound.Wrap("instrument index %d out of range", idx)
	}
	s.Instruments[idx] = Instrument{
		Active:       true,
		ID:           id,
		BidHead:      NoIndex,
		AskHead:      NoIndex,
		ContractSize: contractSize,
	}
	return nil
}

func (s *Slab) instrument(idx uint16) (*Instrument, error) {
	if int(idx) >= len(s.Instruments) || !s.Instruments[idx].Active {
		return nil, xerrors.ErrInstrumentNotFound
	}
	return &s.Instruments[idx], nil
}

func (s *Slab) account(idx uint32) (*Account, error) {
	if int(idx) >= len(s.Accounts) || !s.Accounts[idx].InUse {
		return nil, xerrors.ErrAccountNotFound
	}
	return &s.Accounts[idx], nil
}

// OpenAccount allocates an accounts-table slot for owner, returning its
// index. Lazily called the first time a new user touches the Slab.
func (s *Slab) OpenAccount(owner ids.Id) (uint32, error) {
	idx, ok := popFree(&s.accountFree)
	if !ok {
		return 0, xerrors.ErrReservationFull.Wrap("accounts table exhausted")
	}
	s.Accounts[idx] = Account{InUse: true, Owner: owner}
	for i := range s.Accounts[idx].Positions {
		s.Accounts[idx].Positions[i] = NoIndex
	}
	return idx, nil
}

func (s *Slab) bumpSeqno() {
	s.Header.QuoteCacheSeqno++
	s.QuoteCache.Seqno = s.Header.QuoteCacheSeqno
}
