// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package risk implements the Risk Engine account slab: a parallel
// accounting model for capital, PnL warmup vesting, auto-deleveraging,
// and crisis-mode loss socialization, verified in isolation from the
// order-book mechanics Slab implements (spec §3.4, §4.8). Grounded on
// the same arena-plus-freelist arrangement as slab.Slab
// (slab/slab.go), since both are meant to be account-resident fixed-size
// state with no heap growth after initialization.
package risk

import (
	"github.com/luxfi/log"

	"github.com/luxfi/percolator/internal/fx"
)

// AccountKind distinguishes a regular user account from a liquidity
// provider account (spec §3.4).
type AccountKind uint8

const (
	KindUser AccountKind = iota
	KindLP
)

// Account is one Risk Engine account row (spec §3.4).
type Account struct {
	InUse  bool
	Kind   AccountKind
	Capital      fx.U128
	Pnl          fx.I128
	PositionSize int64
	EntryPrice   uint64

	WarmupStartedAtSlot uint64
	WarmupPaused        bool
	ReservedPnl         fx.I128

	// haircutEpoch is the global ScaleEpoch this account last materialized
	// its crisis haircut against (C2-C8: materialization idempotent).
	haircutEpoch uint64
}

// InsuranceFund backstops PnL warmup conversion and ADL shortfalls (spec
// §3.4).
type InsuranceFund struct {
	Balance                 fx.U128
	ProtectedFloor          fx.U128
	FeeRevenue              fx.U128
	WarmupInsuranceReserved fx.U128
}

// Engine is the fixed-capacity Risk Engine account slab plus global
// accounting state (spec §3.4).
type Engine struct {
	Accounts []Account
	free     []uint32

	Vault             fx.U128
	Insurance         InsuranceFund
	LossAccum         fx.U128
	CurrentSlot       uint64
	WithdrawalOnly    bool
	WarmedPosTotal    fx.U128
	WarmedNegTotal    fx.U128
	WarmupPeriodSlots uint64

	// Crisis haircut scales, 1e6-denominated (1_000_000 = no haircut),
	// mutated only by ApplyHaircutScales and materialized lazily per
	// account on next touch (spec §4.8 "O(1) socialization").
	ScalePrincipal fx.U128
	ScalePnl       fx.U128
	ScaleWarming   fx.U128
	ScaleEpoch     uint64

	// Log receives structured records for crisis-mode operations
	// (ApplyHaircutScales, SetWithdrawalOnly, ApplyADL); nil disables
	// logging.
	Log log.Logger
}

const haircutScaleOne int64 = 1_000_000

// NewEngine allocates a fixed-capacity account slab of size n (spec §3.4
// "fixed array of up to 4096 Accounts").
func NewEngine(n uint32, warmupPeriodSlots uint64) *Engine {
	e := &Engine{
		Accounts:          make([]Account, n),
		WarmupPeriodSlots: warmupPeriodSlots,
	}
	e.free = make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		e.free[i] = n - 1 - i
	}
	one, _ := fx.NewU128FromI64(haircutScaleOne)
	e.ScalePrincipal = one
	e.ScalePnl = one
	e.ScaleWarming = one
	return e
}
