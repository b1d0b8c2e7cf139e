// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/fx"
)

// UpdateFundingInput is the UpdateFunding instruction payload (spec §4.4,
// §6.2 discriminator 5).
type UpdateFundingInput struct {
	InstrumentIdx uint16
	OracleIndexPx int64
	OracleMarkPx  int64
	NowTs         int64
}

// maxFundingRateBps is the ±5%/hour clamp (spec §4.4).
const maxFundingRateBps = 500

// UpdateFunding accrues funding for one instrument from the mark-index
// spread, prorated over the milliseconds elapsed since the last update, and
// idempotent for a repeated or earlier timestamp (spec §4.4, law L2).
func (s *Slab) UpdateFunding(in UpdateFundingInput) error {
	inst, err := s.instrument(in.InstrumentIdx)
	if err != nil {
		return err
	}
	inst.IndexPrice = in.OracleIndexPx
	inst.MarkPrice = in.OracleMarkPx

	if in.NowTs <= inst.LastFundingTs {
		// Idempotent: a repeat call for the same or an earlier timestamp
		// accrues nothing (law L2).
		return nil
	}
	if in.OracleIndexPx == 0 {
		inst.LastFundingTs = in.NowTs
		return nil
	}

	spreadBps := (in.OracleMarkPx - in.OracleIndexPx) * 10_000 / in.OracleIndexPx
	rateBps := spreadBps * s.Header.FundingCoeffBps / 10_000
	rateBps = clampI64(rateBps, -maxFundingRateBps, maxFundingRateBps)

	elapsedMs := in.NowTs - inst.LastFundingTs
	accrual := rateBps * elapsedMs / 3_600_000

	inst.CumFunding = inst.CumFunding.Add(fx.NewI128FromI64(accrual))
	inst.LastFundingTs = in.NowTs

	if accrual > 0 {
		s.Funding.ShortPaid = s.Funding.ShortPaid.Add(fx.NewI128FromI64(accrual))
	} else if accrual < 0 {
		s.Funding.LongPaid = s.Funding.LongPaid.Add(fx.NewI128FromI64(-accrual))
	}
	if s.Log != nil {
		s.Log.Info("funding updated",
			zap.Uint16("instrument", in.InstrumentIdx),
			zap.Int64("rate_bps", rateBps),
			zap.Int64("accrual", accrual),
		)
	}
	return nil
}

func clampI64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SettlePositionFunding lazily applies the funding accrued since a
// position's last snapshot, using (cum_funding − position.cum_funding_snapshot)
// * position.qty (spec §4.4). Called on any position-touching operation.
func (s *Slab) SettlePositionFunding(accountIdx uint32, instrumentIdx uint16) {
	acct := &s.Accounts[accountIdx]
	slot := acct.Positions[instrumentIdx]
	if slot == NoIndex || !s.Positions[slot].InUse {
		return
	}
	pos := &s.Positions[slot]
	inst := &s.Instruments[instrumentIdx]

	delta := inst.CumFunding.Sub(pos.CumFundingSnapshot)
	if delta.IsZero() {
		pos.CumFundingSnapshot = inst.CumFunding
		return
	}

	// Positive cum_funding (mark above index) charges longs and pays
	// shorts: settlement is -(delta * qty) (spec §4.4).
	settlement := delta.MulI64(pos.Qty).Neg()
	acct.Cash = acct.Cash.Add(settlement)
	pos.CumFundingSnapshot = inst.CumFunding
}
