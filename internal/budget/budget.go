// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package budget holds the static per-instruction compute-unit table (spec
// §5) that every Slab and Router instruction is charged against, the same
// role the teacher's RequiredGas (dex/module.go) plays for EVM gas: a
// switch on instruction discriminator to a fixed cost, checked by the
// dispatcher before executing the instruction body.
package budget

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/percolator/internal/xerrors"
)

// Discriminator identifies a Slab or Router instruction. Values are
// disjoint across both programs so a single table can describe the whole
// system, mirroring the teacher's uint32 method selectors.
type Discriminator uint8

// Slab instructions.
const (
	SlabCommit             Discriminator = 1
	SlabPlaceOrder         Discriminator = 2
	SlabCancelOrder        Discriminator = 3
	SlabReserve            Discriminator = 4
	SlabUpdateFunding      Discriminator = 5
	SlabCancelReservation  Discriminator = 6
	SlabBatchOpen          Discriminator = 7
	SlabLiquidate          Discriminator = 8
	SlabRegisterInstrument Discriminator = 9
)

// Router instructions.
const (
	RouterMultiReserve Discriminator = iota + 64
	RouterMultiCommit
	RouterMultiCancel
	RouterDeposit
	RouterWithdraw
	RouterRegisterSlab
	RouterSetSlabEnabled
)

// Compute-unit ceilings per spec §5. MultiReserve/MultiCommit costs scale
// with N (the number of Slabs in the route); the table stores the
// per-Slab-leg base units plus the table has a MaxRouteLegs ceiling, not
// a single flat constant.
const (
	UnitsPlaceOrder          uint64 = 40_000
	UnitsCancelOrder         uint64 = 20_000
	UnitsReserve             uint64 = 100_000
	UnitsCommit              uint64 = 150_000
	UnitsCancelReservation   uint64 = 30_000
	UnitsBatchOpen           uint64 = 50_000
	UnitsUpdateFunding       uint64 = 60_000
	UnitsLiquidate           uint64 = 200_000
	UnitsRegisterInstrument  uint64 = 20_000

	UnitsMultiReservePerLeg uint64 = 100_000
	UnitsMultiCommitPerLeg  uint64 = 150_000
	UnitsDeposit            uint64 = 15_000
	UnitsWithdraw           uint64 = 15_000
	UnitsRegisterSlab       uint64 = 10_000
	UnitsSetSlabEnabled     uint64 = 5_000

	// MaxRouteLegs bounds N in MultiReserve/MultiCommit (spec's N=3 worked
	// example; three legs is the documented ceiling, not merely typical).
	MaxRouteLegs = 3
)

// Cost returns the compute-unit ceiling for a fixed-arity instruction. Use
// RouteCost for MultiReserve/MultiCommit/MultiCancel, whose cost depends on
// the number of legs in the route.
func Cost(d Discriminator) (uint64, error) {
	switch d {
	case SlabPlaceOrder:
		return UnitsPlaceOrder, nil
	case SlabCancelOrder:
		return UnitsCancelOrder, nil
	case SlabReserve:
		return UnitsReserve, nil
	case SlabCommit:
		return UnitsCommit, nil
	case SlabCancelReservation:
		return UnitsCancelReservation, nil
	case SlabBatchOpen:
		return UnitsBatchOpen, nil
	case SlabUpdateFunding:
		return UnitsUpdateFunding, nil
	case SlabLiquidate:
		return UnitsLiquidate, nil
	case SlabRegisterInstrument:
		return UnitsRegisterInstrument, nil
	case RouterDeposit:
		return UnitsDeposit, nil
	case RouterWithdraw:
		return UnitsWithdraw, nil
	case RouterRegisterSlab:
		return UnitsRegisterSlab, nil
	case RouterSetSlabEnabled:
		return UnitsSetSlabEnabled, nil
	default:
		return 0, xerrors.ErrInvalidInstrument.Wrap("no static cost for discriminator %d", d)
	}
}

// RouteCost returns the compute-unit ceiling for a MultiReserve/MultiCommit
// instruction spanning legs Slabs, erroring if legs exceeds MaxRouteLegs.
// The per-leg multiplication widens through uint256.Int rather than plain
// uint64, the same overflow-safe widening the teacher reaches for around
// gas/balance multiplication in dex/module.go, before narrowing back to
// uint64.
func RouteCost(d Discriminator, legs int) (uint64, error) {
	if legs <= 0 || legs > MaxRouteLegs {
		return 0, xerrors.ErrInvalidInstrument.Wrap("route legs %d out of range [1,%d]", legs, MaxRouteLegs)
	}
	var perLeg uint64
	switch d {
	case RouterMultiReserve:
		perLeg = UnitsMultiReservePerLeg
	case RouterMultiCommit:
		perLeg = UnitsMultiCommitPerLeg
	case RouterMultiCancel:
		perLeg = UnitsCancelReservation
	default:
		return 0, xerrors.ErrInvalidInstrument.Wrap("discriminator %d is not a route instruction", d)
	}
	total := new(uint256.Int).Mul(uint256.NewInt(perLeg), uint256.NewInt(uint64(legs)))
	if !total.IsUint64() {
		return 0, xerrors.ErrOverflow.Wrap("route cost overflow for %d legs", legs)
	}
	return total.Uint64(), nil
}
