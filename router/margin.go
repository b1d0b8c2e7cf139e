// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
)

// recomputeMargin folds every Exposure into the Portfolio's net-exposure
// IM/MM requirement, grounded on the teacher's cross-margin netting in
// dex/margin.go: Cross-mode exposures on the same instrument net against
// each other — by the instrument's global identity, regardless of which
// Slab carries the leg — before the registry's imr/mmr bps is applied.
// This cross-slab netting is what yields portfolio margin's
// capital-efficiency gain over per-slab gross margining (spec §3.2
// invariant 3, §4.7 step 4: "sum signed qty per instrument across all
// slabs"). Isolated-mode exposures (spec §4.13 supplement) are excluded
// from netting and margined individually.
func (r *Router) recomputeMargin(user ids.Id) {
	pf, ok := r.Portfolios[user]
	if !ok {
		return
	}

	type netEntry struct {
		qty    fx.I128
		markPx int64
		imrBps uint16
		mmrBps uint16
	}
	// crossNet keys on the instrument's global Instrument.ID, not the
	// (slab, instrumentIdx) pair, so the same instrument traded across two
	// different Slabs nets into one bucket (spec §3.2 invariant 3).
	crossNet := make(map[ids.Id]*netEntry)

	var imRequired, mmRequired fx.U128

	for _, e := range pf.Exposures {
		sl, ok := r.Slabs[e.Slab]
		if !ok {
			continue
		}
		entry := r.Registry[e.Slab]
		if entry == nil {
			continue
		}
		inst := sl.Instruments[e.InstrumentIdx]

		if e.Mode == MarginIsolated {
			notional, err := fx.NotionalU128(absI128(e.Qty), inst.MarkPrice)
			if err != nil {
				continue
			}
			im, _ := notional.MulDivBps(int64(entry.IMRBps))
			mm, _ := notional.MulDivBps(int64(entry.MMRBps))
			imRequired, _ = imRequired.Add(im)
			mmRequired, _ = mmRequired.Add(mm)
			continue
		}

		ne, ok := crossNet[inst.ID]
		if !ok {
			ne = &netEntry{markPx: inst.MarkPrice, imrBps: entry.IMRBps, mmrBps: entry.MMRBps}
			crossNet[inst.ID] = ne
		}
		ne.qty = ne.qty.Add(e.Qty)
	}

	// Cross exposures net per global instrument before margin applies —
	// the portfolio-margin discount over gross per-leg margining.
	for _, ne := range crossNet {
		if ne.qty.IsZero() {
			continue
		}
		notional, err := fx.NotionalU128(absI128(ne.qty), ne.markPx)
		if err != nil {
			continue
		}
		im, _ := notional.MulDivBps(int64(ne.imrBps))
		mm, _ := notional.MulDivBps(int64(ne.mmrBps))
		imRequired, _ = imRequired.Add(im)
		mmRequired, _ = mmRequired.Add(mm)
	}

	pf.IMRequired = imRequired
	pf.MMRequired = mmRequired

	ub := r.userBalance(user, pf.freeMint(r))
	pf.FreeCollateral = fx.I128FromBytes16(ub.Free.Bytes16()).Sub(fx.I128FromBytes16(imRequired.Bytes16()))
}

// freeMint reports the mint this Portfolio's collateral is denominated in.
// Percolator treats one Router as single-collateral (spec §3.2 lists one
// Vault per Router), so this returns the mint of the first UserBalance
// found for the user. UserBalances is a map, so when a user holds more
// than one mint the choice follows map iteration order and is not defined.
func (pf *Portfolio) freeMint(r *Router) ids.Id {
	for key := range r.UserBalances {
		if key.user == pf.User {
			return key.mint
		}
	}
	return ids.Empty
}

// CheckMargin enforces I-REQ: a Portfolio's free collateral must stay
// non-negative after every MultiCommit (spec §3.2 invariant, §4.7 step 5).
func (r *Router) CheckMargin(user ids.Id) error {
	pf, ok := r.Portfolios[user]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	if pf.FreeCollateral.Sign() < 0 {
		return xerrors.ErrPortfolioInsufficientMargin
	}
	return nil
}
