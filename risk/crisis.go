// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/fx"
)

// ApplyHaircutScales updates the global crisis haircut scales in O(1)
// rather than iterating every account (spec §4.8 "O(1) socialization"):
// each account materializes the new scale lazily on next touch. Scales
// are 1e6-denominated, monotonically non-increasing (C2: haircut scales
// monotonic) — a scale can only move further from haircutScaleOne, never
// back toward it, since crisis losses are never un-realized.
func (e *Engine) ApplyHaircutScales(principal1e6, pnl1e6, warming1e6 int64) {
	clampDown := func(cur fx.U128, next int64) fx.U128 {
		nv, err := fx.NewU128FromI64(next)
		if err != nil {
			return cur
		}
		if nv.Cmp(cur) < 0 {
			return nv
		}
		return cur
	}
	e.ScalePrincipal = clampDown(e.ScalePrincipal, principal1e6)
	e.ScalePnl = clampDown(e.ScalePnl, pnl1e6)
	e.ScaleWarming = clampDown(e.ScaleWarming, warming1e6)
	e.ScaleEpoch++
	if e.Log != nil {
		e.Log.Warn("crisis haircut scales applied",
			zap.Uint64("scale_epoch", e.ScaleEpoch),
			zap.String("scale_principal", e.ScalePrincipal.String()),
			zap.String("scale_pnl", e.ScalePnl.String()),
			zap.String("scale_warming", e.ScaleWarming.String()),
		)
	}
}

// SetWithdrawalOnly toggles crisis lockdown (spec §3.4).
func (e *Engine) SetWithdrawalOnly(on bool) {
	e.WithdrawalOnly = on
	if e.Log != nil {
		e.Log.Warn("withdrawal_only toggled", zap.Bool("withdrawal_only", on))
	}
}

// materializeHaircut applies any outstanding global scale change to acct,
// idempotently (C2-C8: materialization idempotent) — an account already
// current at e.ScaleEpoch is left untouched.
func (e *Engine) materializeHaircut(acct *Account) {
	if acct.haircutEpoch == e.ScaleEpoch {
		return
	}
	acct.Capital, _ = acct.Capital.MulDivBps(scaleToBps(e.ScalePrincipal))
	if acct.Pnl.Sign() > 0 {
		// Loss-waterfall ordering (C8): only warming/positive pnl absorbs
		// a crisis haircut before principal — never realized losses.
		scaled := acct.Pnl.MulI64(scaleToBps(e.ScalePnl))
		acct.Pnl = divI128ByScale(scaled, fx.BpsDenom)
	}
	acct.haircutEpoch = e.ScaleEpoch
}

// scaleToBps converts a 1e6-scaled factor into bps (1e4-scaled) for reuse
// with fx.U128.MulDivBps, which operates in bps.
func scaleToBps(scale fx.U128) int64 {
	b := scale.Bytes16()
	var lo uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
	}
	return int64(lo) / 100
}
