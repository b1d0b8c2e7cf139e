// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/xerrors"
)

// StartWarmup begins vesting an account's current positive pnl as of
// nowSlot (spec §3.4 warmup_started_at_slot). Calling it again resets the
// vesting clock — callers should only call this once per profit event,
// the same one-shot-per-event shape as the teacher's accrual-index reset
// in dex/interest_rate.go.
func (e *Engine) StartWarmup(idx uint32, nowSlot uint64) error {
	acct, err := e.account(idx)
	if err != nil {
		return err
	}
	e.materializeHaircut(acct)
	acct.WarmupStartedAtSlot = nowSlot
	return nil
}

// vestedFraction1e6 returns the linear vesting fraction, 1e6-scaled, of
// elapsed slots over the warmup period (spec §4.8: "vests linearly over
// warmup_period_slots from warmup_started_at_slot").
func (e *Engine) vestedFraction1e6(startedAt, nowSlot uint64) int64 {
	if e.WarmupPeriodSlots == 0 {
		return haircutScaleOne
	}
	if nowSlot <= startedAt {
		return 0
	}
	elapsed := nowSlot - startedAt
	if elapsed >= e.WarmupPeriodSlots {
		return haircutScaleOne
	}
	return int64(elapsed) * haircutScaleOne / int64(e.WarmupPeriodSlots)
}

// SettleWarmupToCapital converts the vested portion of positive pnl into
// capital, and — per invariant N1 — immediately realizes negative pnl
// against capital: the loss is subtracted from capital down to zero and
// any excess stays as negative pnl (negative pnl is never warmed). Paused during crisis lockdown or per-account
// WarmupPaused (spec §4.8).
func (e *Engine) SettleWarmupToCapital(idx uint32, nowSlot uint64) error {
	acct, err := e.account(idx)
	if err != nil {
		return err
	}
	e.materializeHaircut(acct)

	if acct.Pnl.Sign() < 0 {
		// N1: negative PnL realized immediately; capital absorbs the loss
		// down to zero, the excess stays in pnl as unrecovered loss.
		loss := acct.Pnl.Neg()
		capI := fx.I128FromBytes16(acct.Capital.Bytes16())
		if capI.Cmp(loss) <= 0 {
			acct.Capital = fx.ZeroU128()
			acct.Pnl = capI.Sub(loss) // remaining loss beyond capital, still negative
		} else {
			newCap := capI.Sub(loss)
			acct.Capital, _ = fx.NewU128FromI64(i128ToI64(newCap))
			acct.Pnl = fx.ZeroI128()
		}
		return nil
	}

	if e.WithdrawalOnly || acct.WarmupPaused {
		return xerrors.ErrWarmupPaused
	}
	if e.Insurance.Balance.Cmp(e.Insurance.ProtectedFloor) <= 0 {
		return xerrors.ErrInsuranceFloor
	}

	frac := e.vestedFraction1e6(acct.WarmupStartedAtSlot, nowSlot)
	if frac <= 0 {
		return nil
	}
	vestedAmt := divI128ByScale(acct.Pnl.MulI64(frac), haircutScaleOne)
	if vestedAmt.Sign() <= 0 {
		return nil
	}
	vestedU, err := fx.NewU128FromI64(i128ToI64(vestedAmt))
	if err != nil {
		return err
	}
	newCap, err := acct.Capital.Add(vestedU)
	if err != nil {
		return err
	}
	acct.Capital = newCap
	acct.Pnl = acct.Pnl.Sub(vestedAmt)

	nw, err := e.WarmedPosTotal.Add(vestedU)
	if err == nil {
		e.WarmedPosTotal = nw
	}
	return nil
}

func divI128ByScale(v fx.I128, scale int64) fx.I128 {
	neg := v.Sign() < 0
	abs := v
	if neg {
		abs = v.Neg()
	}
	lo := i128ToI64(abs)
	res := fx.NewI128FromI64(lo / scale)
	if neg {
		res = res.Neg()
	}
	return res
}

func i128ToI64(v fx.I128) int64 {
	b := v.Bytes16()
	var lo uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
	}
	return int64(lo)
}
