// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/xerrors"
)

// liquidationBandBps bounds how far a liquidation sweep may walk the book
// away from mark, protecting the victim from excess slippage (spec §4.5).
const liquidationBandBps = 300

// defaultCloseFactorBps caps how much of a single position a single
// Liquidate call may close, so one undercollateralized account can't be
// fully unwound into a thin book in one sweep. Mirrors the
// close-factor/minimum-liquidation-size structure of the teacher's
// LiquidatorConfig (spec §4.13 supplement).
const defaultCloseFactorBps = 5_000

// LiquidateInput is the Liquidate instruction payload (spec §6.2
// discriminator 8).
type LiquidateInput struct {
	VictimIdx uint32
	KeeperIdx uint32
	// CloseFactorBps caps the fraction of each position closed this call,
	// in bps. Zero selects defaultCloseFactorBps.
	CloseFactorBps int64
	// MinCloseQty is the smallest remaining position size worth a partial
	// close; below it the sweep takes the position to zero instead of
	// leaving dust (mirrors the teacher's MinLiquidation floor).
	MinCloseQty int64
}

// LiquidateResult summarizes the closing sweep (spec §4.5).
type LiquidateResult struct {
	ClosedQty      int64
	KeeperFee      fx.U128
	ShortfallToLoss fx.U128
}

// equity computes an account's mark-to-market equity across every open
// position: cash + Σ qty * mark_price (spec §3.1 invariant 4).
func (s *Slab) equity(accountIdx uint32) fx.I128 {
	acct := &s.Accounts[accountIdx]
	total := acct.Cash
	for instIdx, slot := range acct.Positions {
		if slot == NoIndex || !s.Positions[slot].InUse {
			continue
		}
		pos := &s.Positions[slot]
		inst := &s.Instruments[instIdx]
		total = total.Add(fx.NewI128FromI64(pos.Qty).MulI64(inst.MarkPrice))
	}
	return total
}

// mmRequired computes the maintenance margin requirement across a
// victim's positions at mark price.
func (s *Slab) mmRequired(accountIdx uint32) fx.U128 {
	acct := &s.Accounts[accountIdx]
	total := fx.ZeroU128()
	for instIdx, slot := range acct.Positions {
		if slot == NoIndex || !s.Positions[slot].InUse {
			continue
		}
		pos := &s.Positions[slot]
		inst := &s.Instruments[instIdx]
		notional, err := fx.NotionalU128(absI64(pos.Qty), inst.MarkPrice)
		if err != nil {
			continue
		}
		mm, _ := notional.MulDivBps(int64(s.Header.MMRBps))
		total, _ = total.Add(mm)
	}
	return total
}

// Liquidate closes a victim's positions against the book within a band
// around mark, paying the keeper a fee on executed notional and recording
// any shortfall for Risk Engine socialization (spec §4.5).
func (s *Slab) Liquidate(host hostapi.Host, in LiquidateInput, liquidationFeeBps int64, now int64) (LiquidateResult, error) {
	if in.VictimIdx == in.KeeperIdx {
		return LiquidateResult{}, xerrors.ErrSelfLiquidation
	}
	if _, err := s.account(in.VictimIdx); err != nil {
		return LiquidateResult{}, err
	}
	if _, err := s.account(in.KeeperIdx); err != nil {
		return LiquidateResult{}, err
	}

	eq := s.equity(in.VictimIdx)
	mm := s.mmRequired(in.VictimIdx)
	if eq.Cmp(u128ToI128(mm)) >= 0 {
		return LiquidateResult{}, xerrors.ErrUndercollateralized.Wrap("victim is adequately collateralized")
	}

	closeFactorBps := in.CloseFactorBps
	if closeFactorBps <= 0 {
		closeFactorBps = defaultCloseFactorBps
	}

	victim := &s.Accounts[in.VictimIdx]
	var (
		closedQty fx.U128
		keeperFee fx.U128
	)

	for instIdx := range s.Instruments {
		slot := victim.Positions[instIdx]
		if slot == NoIndex || !s.Positions[slot].InUse {
			continue
		}
		pos := &s.Positions[slot]
		inst := &s.Instruments[instIdx]
		if pos.Qty == 0 {
			continue
		}

		closingSide := SideSell
		if pos.Qty < 0 {
			closingSide = SideBuy
		}
		band := inst.MarkPrice * liquidationBandBps / 10_000
		limitPx := inst.MarkPrice + band
		if closingSide == SideSell {
			limitPx = inst.MarkPrice - band
		}

		closeQty := absI64(pos.Qty) * closeFactorBps / 10_000
		if closeQty <= 0 {
			continue
		}
		if remaining := absI64(pos.Qty) - closeQty; remaining > 0 && remaining < in.MinCloseQty {
			closeQty = absI64(pos.Qty) // no dust left behind below the floor
		}

		res, err := s.Reserve(host, ReserveInput{
			AccountIdx:    in.VictimIdx,
			InstrumentIdx: uint16(instIdx),
			Side:          closingSide,
			Qty:           closeQty,
			LimitPx:       limitPx,
			OracleIndexPx: inst.IndexPrice,
			OracleMarkPx:  inst.MarkPrice,
			OracleTs:      now,
			ClientSeqno:   s.Header.QuoteCacheSeqno,
		})
		if err != nil {
			continue // no liquidity within band for this instrument; try the next
		}
		receipt, err := s.Commit(host, CommitInput{HoldID: res.HoldID, OracleIndexPx: inst.IndexPrice})
		if err != nil {
			_ = s.Cancel(res.HoldID)
			continue
		}

		filledNotional, _ := fx.NotionalU128(receipt.FilledQty, receipt.AvgPrice)
		fee, _ := filledNotional.MulDivBps(liquidationFeeBps)
		keeperFee, _ = keeperFee.Add(fee)
		closedQty, _ = closedQty.Add(fx.U128FromBytes16(fx.NewI128FromI64(receipt.FilledQty).Bytes16()))
	}

	keeper := &s.Accounts[in.KeeperIdx]
	keeper.Cash = keeper.Cash.Add(u128ToI128(keeperFee))
	victim.Cash = victim.Cash.Sub(u128ToI128(keeperFee))

	var shortfall fx.U128
	postEq := s.equity(in.VictimIdx)
	if postEq.Sign() < 0 {
		shortfall = fx.U128FromBytes16(postEq.Neg().Bytes16())
	}

	if s.Log != nil {
		s.Log.Info("liquidation executed",
			zap.Uint32("victim", in.VictimIdx),
			zap.Uint32("keeper", in.KeeperIdx),
			zap.String("keeper_fee", keeperFee.String()),
			zap.String("shortfall", shortfall.String()),
		)
	}

	return LiquidateResult{
		ClosedQty:       i128ToI64(fx.I128FromBytes16(closedQty.Bytes16())),
		KeeperFee:       keeperFee,
		ShortfallToLoss: shortfall,
	}, nil
}

func i128ToI64(v fx.I128) int64 {
	// Keeps the low 64 bits of v; a value outside the int64 range is not
	// detected.
	b := v.Bytes16()
	var lo uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
	}
	return int64(lo)
}
