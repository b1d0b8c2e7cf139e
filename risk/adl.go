// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/fx"
)

// unwrappedPnl returns positive_pnl - reserved_pnl, the portion of an
// account's profit eligible to be haircut during ADL (spec §4.8). An
// account with non-positive pnl, or whose reserved_pnl already exceeds its
// positive pnl, contributes nothing.
func (a *Account) unwrappedPnl() fx.I128 {
	if a.Pnl.Sign() <= 0 {
		return fx.ZeroI128()
	}
	u := a.Pnl.Sub(a.ReservedPnl)
	if u.Sign() <= 0 {
		return fx.ZeroI128()
	}
	return u
}

// ApplyADL auto-deleverages lossToSocialize across every account's
// unwrapped pnl, proportionally, in two passes (spec §4.8): pass one
// snapshots each account's unwrapped_pnl into a cache and sums it; pass two
// subtracts haircut_i = lossToSocialize * cache_i / sum from pnl only,
// never capital (invariant I1 — ADL never touches principal). haircut_i is
// not capped at cache_i, so a cache sum smaller than lossToSocialize is
// still spread across the holders in full. Any residual left by
// integer-division rounding is subtracted in full from the largest single
// holder's pnl. Only when no account has positive unwrapped pnl does the
// loss go to the insurance fund, down to its protected floor, with anything
// still uncovered becoming socialized loss (loss_accum), following the
// teacher's waterfall ordering in dex/liquidation_engine.go (collateral,
// then insurance, then the protocol-wide shortfall counter).
func (e *Engine) ApplyADL(lossToSocialize fx.U128) error {
	if e.Log != nil {
		e.Log.Warn("adl triggered", zap.String("loss_to_socialize", lossToSocialize.String()))
	}
	e.materializeAll()

	type snap struct {
		idx   uint32
		cache fx.I128
	}
	cache := make([]snap, 0, len(e.Accounts))
	sum := fx.ZeroI128()
	largest := -1
	for i := range e.Accounts {
		if !e.Accounts[i].InUse {
			continue
		}
		u := e.Accounts[i].unwrappedPnl()
		if u.Sign() <= 0 {
			continue
		}
		cache = append(cache, snap{idx: uint32(i), cache: u})
		sum = sum.Add(u)
		if largest == -1 || u.Cmp(cache[largest].cache) > 0 {
			largest = len(cache) - 1
		}
	}

	lossI := fx.I128FromBytes16(lossToSocialize.Bytes16())
	socialized := fx.ZeroI128()
	if sum.Sign() > 0 {
		for _, s := range cache {
			haircut := divI128ByScale(s.cache.MulI64(i128ToI64(lossI)), i128ToI64(sum))
			acct := &e.Accounts[s.idx]
			acct.Pnl = acct.Pnl.Sub(haircut)
			socialized = socialized.Add(haircut)
		}
	}

	residual := lossI.Sub(socialized)
	if residual.Sign() <= 0 {
		return nil
	}

	if largest >= 0 {
		acct := &e.Accounts[cache[largest].idx]
		acct.Pnl = acct.Pnl.Sub(residual)
		return nil
	}

	available := fx.ZeroU128()
	if e.Insurance.Balance.Cmp(e.Insurance.ProtectedFloor) > 0 {
		available, _ = e.Insurance.Balance.Sub(e.Insurance.ProtectedFloor)
	}
	residualU, err := fx.NewU128FromI64(i128ToI64(residual))
	if err != nil {
		return err
	}
	if available.Cmp(residualU) >= 0 {
		nb, err := e.Insurance.Balance.Sub(residualU)
		if err != nil {
			return err
		}
		e.Insurance.Balance = nb
		return nil
	}

	nb, err := e.Insurance.Balance.Sub(available)
	if err == nil {
		e.Insurance.Balance = nb
	}
	uncovered, err := residualU.Sub(available)
	if err != nil {
		return err
	}
	nl, err := e.LossAccum.Add(uncovered)
	if err != nil {
		return err
	}
	e.LossAccum = nl
	if e.Log != nil {
		e.Log.Error("adl loss uncovered by insurance fund", zap.String("uncovered", uncovered.String()))
	}
	return nil
}

// materializeAll forces every live account current with the latest crisis
// haircut epoch before a socialization pass runs, so ADL always haircuts
// post-crisis pnl rather than a stale pre-crisis snapshot.
func (e *Engine) materializeAll() {
	for i := range e.Accounts {
		if e.Accounts[i].InUse {
			e.materializeHaircut(&e.Accounts[i])
		}
	}
}
