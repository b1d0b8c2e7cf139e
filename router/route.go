// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
	"github.com/luxfi/percolator/slab"
)

// MultiReserve fans a multi-leg plan out to Reserve on each leg's Slab,
// minting a scoped Cap against the leg's own max_charge and crediting an
// Escrow so the Slab never needs to trust the user directly (spec §4.6).
// Any leg failure triggers a compensating unwind of every prior leg —
// explicit, not unwind-on-panic (spec §5) — grounded on the teacher's
// locker pattern (PoolManager.Lock/Unlock, dex/hooks.go callHook), where a
// callback's failure must roll back every earlier delta in the same call.
func (r *Router) MultiReserve(host hostapi.Host, user, mint ids.Id, plan []RouteStep) (Route, error) {
	if _, ok := r.Portfolios[user]; !ok {
		return Route{}, xerrors.ErrAccountNotFound.Wrap("portfolio not initialized")
	}
	ub := r.userBalance(user, mint)

	var manifest []ManifestEntry
	unwind := func() {
		for _, m := range manifest {
			if sl, ok := r.Slabs[m.SlabID]; ok {
				_ = sl.Cancel(m.HoldID)
			}
			esc := r.escrow(user, m.SlabID, mint)
			if nb, err := esc.Balance.Sub(m.MaxCharge); err == nil {
				esc.Balance = nb
			}
			if nb, err := ub.Free.Add(m.MaxCharge); err == nil {
				ub.Free = nb
			}
			if cap, ok := r.Caps[m.CapNonce]; ok {
				cap.State = CapBurned
			}
		}
	}

	for _, step := range plan {
		_, sl, err := r.lookupEnabledSlab(step.SlabID)
		if err != nil {
			unwind()
			return Route{}, err
		}

		accountIdx, err := r.slabAccount(sl, step.SlabID, user)
		if err != nil {
			unwind()
			return Route{}, err
		}

		// Percolator leaves the oracle feed itself out of scope (spec §1
		// Non-goals); the Router reads each Slab's own last-known
		// index/mark as the surrogate feed it passes through to Reserve,
		// the same value Commit will see moments later.
		inst := sl.Instruments[step.InstrumentIdx]
		res, err := sl.Reserve(host, slab.ReserveInput{
			AccountIdx:    accountIdx,
			InstrumentIdx: step.InstrumentIdx,
			Side:          step.Side,
			Qty:           step.Qty,
			LimitPx:       step.LimitPx,
			OracleIndexPx: inst.IndexPrice,
			OracleMarkPx:  inst.MarkPrice,
			OracleTs:      host.UnixSeconds(),
			ClientSeqno:   sl.Header.QuoteCacheSeqno,
		})
		if err != nil {
			unwind()
			return Route{}, err
		}

		if ub.Free.Cmp(res.MaxCharge) < 0 {
			_ = sl.Cancel(res.HoldID)
			unwind()
			return Route{}, xerrors.ErrInsufficientEscrow
		}
		nb, err := ub.Free.Sub(res.MaxCharge)
		if err != nil {
			_ = sl.Cancel(res.HoldID)
			unwind()
			return Route{}, err
		}
		ub.Free = nb

		esc := r.escrow(user, step.SlabID, mint)
		neb, err := esc.Balance.Add(res.MaxCharge)
		if err != nil {
			_ = sl.Cancel(res.HoldID)
			unwind()
			return Route{}, err
		}
		esc.Balance = neb

		r.capCtr++
		nonce := r.capCtr
		r.Caps[nonce] = &Cap{
			ScopeUser:       user,
			ScopeSlab:       step.SlabID,
			ScopeMint:       mint,
			AmountMax:       res.MaxCharge,
			AmountRemaining: res.MaxCharge,
			ExpiryTs:        host.UnixSeconds() + 120,
			Nonce:           nonce,
			State:           CapActive,
		}

		manifest = append(manifest, ManifestEntry{
			SlabID:        step.SlabID,
			InstrumentIdx: step.InstrumentIdx,
			Side:          step.Side,
			HoldID:        res.HoldID,
			CapNonce:      nonce,
			MaxCharge:     res.MaxCharge,
		})
	}

	r.routeCtr++
	route := &Route{
		RouteID:   r.routeCtr,
		User:      user,
		Mint:      mint,
		Manifest:  manifest,
		CreatedTs: host.UnixSeconds(),
	}
	r.Routes[route.RouteID] = route
	return *route, nil
}

// MultiCommit executes every leg of a previously reserved route, debiting
// each leg's Cap and Escrow by its actual fill, refunding the unspent
// max_charge delta, and recomputing the user's Portfolio margin (spec
// §4.7). A failed transaction leaves all accounts exactly as before (spec
// §5: atomic rollback is a host guarantee) — the host transaction wrapper
// that isn't modeled here reverts whatever a failed leg already committed
// in the Slab. MultiCommit's own unwind restores the Router-owned
// bookkeeping a second time: canceling every not-yet-committed
// reservation and refunding Escrow/Caps for the whole route, so Router
// state stays consistent even without that host wrapper in place.
func (r *Router) MultiCommit(host hostapi.Host, routeID uint64) ([]slab.FillReceipt, error) {
	route, ok := r.Routes[routeID]
	if !ok {
		return nil, xerrors.ErrRouteNotFound
	}
	if route.Done {
		return nil, xerrors.ErrRouteNotFound.Wrap("route %d already settled", routeID)
	}

	ub := r.userBalance(route.User, route.Mint)
	receipts := make([]slab.FillReceipt, 0, len(route.Manifest))

	fail := func(failedAt int, cause error) ([]slab.FillReceipt, error) {
		for _, m := range route.Manifest[failedAt:] {
			if sl, ok := r.Slabs[m.SlabID]; ok {
				_ = sl.Cancel(m.HoldID)
			}
		}
		for _, m := range route.Manifest {
			esc := r.escrow(route.User, m.SlabID, route.Mint)
			if nb, err := esc.Balance.Sub(m.MaxCharge); err == nil {
				esc.Balance = nb
			}
			if nb, err := ub.Free.Add(m.MaxCharge); err == nil {
				ub.Free = nb
			}
			if cap, ok := r.Caps[m.CapNonce]; ok {
				cap.State = CapBurned
			}
		}
		route.Done = true
		return nil, cause
	}

	for i, m := range route.Manifest {
		cap, ok := r.Caps[m.CapNonce]
		if !ok || cap.State != CapActive {
			return fail(i, xerrors.ErrCapBurned)
		}
		if host.UnixSeconds() >= cap.ExpiryTs {
			cap.State = CapExpiredState
			return fail(i, xerrors.ErrExpired)
		}

		sl, ok := r.Slabs[m.SlabID]
		if !ok {
			return fail(i, xerrors.ErrSlabNotRegistered)
		}

		inst := sl.Instruments[m.InstrumentIdx]
		receipt, err := sl.Commit(host, slab.CommitInput{HoldID: m.HoldID, OracleIndexPx: inst.IndexPrice})
		if err != nil {
			return fail(i, err)
		}

		if cap.AmountRemaining.Cmp(receipt.TotalDebit) < 0 {
			return fail(i, xerrors.ErrCapExhausted)
		}
		remaining, _ := cap.AmountRemaining.Sub(receipt.TotalDebit)
		cap.AmountRemaining = remaining
		cap.State = CapConsumed

		esc := r.escrow(route.User, m.SlabID, route.Mint)
		escRemaining, _ := esc.Balance.Sub(receipt.TotalDebit)
		esc.Balance = escRemaining

		refund, _ := m.MaxCharge.Sub(receipt.TotalDebit)
		if !refund.IsZero() {
			nb, _ := ub.Free.Add(refund)
			ub.Free = nb
		}

		receipts = append(receipts, receipt)
		r.applyExposure(route.User, m, receipt)
	}

	route.Done = true
	r.recomputeMargin(route.User)
	if err := r.CheckMargin(route.User); err != nil {
		return nil, err
	}
	return receipts, nil
}

// applyExposure folds a committed fill into the user's Portfolio net
// position for (slab, instrument), VWAP-blending the entry price the same
// way Slab.applyPositionDelta blends a maker/taker fill.
func (r *Router) applyExposure(user ids.Id, m ManifestEntry, receipt slab.FillReceipt) {
	pf := r.Portfolios[user]
	signedQty := receipt.FilledQty
	if m.Side == slab.SideSell {
		signedQty = -signedQty
	}

	for i := range pf.Exposures {
		e := &pf.Exposures[i]
		if e.Slab != m.SlabID || e.InstrumentIdx != m.InstrumentIdx {
			continue
		}
		newQty := e.Qty.Add(fx.NewI128FromI64(signedQty))
		sameDir := e.Qty.IsZero() || (e.Qty.Sign() > 0) == (signedQty > 0)
		if sameDir {
			total := absI128(e.Qty) + absI64(signedQty)
			if total > 0 {
				e.EntryPx = (absI128(e.Qty)*e.EntryPx + absI64(signedQty)*receipt.AvgPrice) / total
			}
		} else if absI64(signedQty) > absI128(e.Qty) {
			e.EntryPx = receipt.AvgPrice
		}
		e.Qty = newQty
		if e.Qty.IsZero() {
			pf.Exposures = append(pf.Exposures[:i], pf.Exposures[i+1:]...)
		}
		return
	}

	pf.Exposures = append(pf.Exposures, Exposure{
		Slab:          m.SlabID,
		InstrumentIdx: m.InstrumentIdx,
		Qty:           fx.NewI128FromI64(signedQty),
		EntryPx:       receipt.AvgPrice,
		Mode:          MarginCross,
	})
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absI128(v fx.I128) int64 {
	if v.Sign() < 0 {
		return -i128ToI64(v)
	}
	return i128ToI64(v)
}

func i128ToI64(v fx.I128) int64 {
	b := v.Bytes16()
	var lo uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
	}
	return int64(lo)
}
