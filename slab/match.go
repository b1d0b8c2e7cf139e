// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/xerrors"
)

// ReserveInput is the Reserve instruction payload (spec §4.2, §6.2
// discriminator 4).
type ReserveInput struct {
	AccountIdx    uint32
	InstrumentIdx uint16
	Side          Side
	Qty           int64
	LimitPx       int64
	OracleIndexPx int64
	OracleMarkPx  int64
	OracleTs      int64
	ClientSeqno   uint64
}

// ReserveResult is returned to the caller (spec §4.2).
type ReserveResult struct {
	HoldID    uint64
	FilledQty int64
	VWAP      int64
	MaxCharge fx.U128
}

// Reserve walks the opposite-side book in price-time order, earmarking
// maker slices up to in.Qty within in.LimitPx (spec §4.2).
func (s *Slab) Reserve(host hostapi.Host, in ReserveInput) (ReserveResult, error) {
	if s.Header.Halted {
		return ReserveResult{}, xerrors.ErrHalted
	}
	now := host.UnixSeconds()
	ageMs := (now - in.OracleTs) * 1000
	if ageMs < 0 {
		ageMs = 0
	}
	if uint64(ageMs) > s.Header.MaxOracleAgeMs {
		return ReserveResult{}, xerrors.ErrOracleStale
	}
	if in.ClientSeqno != s.Header.QuoteCacheSeqno {
		return ReserveResult{}, xerrors.ErrSeqnoMismatch
	}
	acct, err := s.account(in.AccountIdx)
	if err != nil {
		return ReserveResult{}, err
	}
	if err := s.checkFreezeWindow(host, acct.Owner); err != nil {
		return ReserveResult{}, err
	}
	inst, err := s.instrument(in.InstrumentIdx)
	if err != nil {
		return ReserveResult{}, err
	}
	if in.Qty <= 0 {
		return ReserveResult{}, xerrors.ErrInvalidQty
	}

	oppositeHead := inst.AskHead
	if in.Side == SideSell {
		oppositeHead = inst.BidHead
	}

	resIdx, ok := popFree(&s.reservationFree)
	if !ok {
		return ReserveResult{}, xerrors.ErrReservationFull
	}

	var (
		remaining  = in.Qty
		sliceHead  uint32 = NoIndex
		lastSlice  uint32 = NoIndex
		filledQty  int64
		notional   fx.U128
	)

	cur := oppositeHead
	for cur != NoIndex && remaining > 0 {
		maker := &s.Orders[cur]
		next := maker.NextIdx
		available := maker.QtyRemaining - maker.ReservedQty
		if available <= 0 {
			cur = next
			continue
		}
		if in.Side == SideBuy && maker.Price > in.LimitPx {
			break
		}
		if in.Side == SideSell && maker.Price < in.LimitPx {
			break
		}

		take := remaining
		if available < take {
			take = available
		}

		sliceIdx, ok := popFree(&s.sliceFree)
		if !ok {
			// Slice pool exhausted: stop here, return a partial fill
			// rather than fail the whole Reserve (spec §5: reserve
			// policy never panics on a deep book).
			break
		}
		s.Slices[sliceIdx] = Slice{
			InUse:           true,
			MakerOrderIdx:   cur,
			Qty:             take,
			Price:           maker.Price,
			MakerFeeBpsSnap: s.Header.MakerFeeBps,
			NextIdx:         NoIndex,
		}
		if lastSlice == NoIndex {
			sliceHead = sliceIdx
		} else {
			s.Slices[lastSlice].NextIdx = sliceIdx
		}
		lastSlice = sliceIdx

		maker.ReservedQty += take
		remaining -= take
		filledQty += take

		notionalStep, err := fx.NotionalU128(take, maker.Price)
		if err == nil {
			notional, _ = notional.Add(notionalStep)
		}

		cur = next
	}

	if filledQty == 0 {
		pushFree(&s.reservationFree, resIdx)
		return ReserveResult{}, xerrors.ErrInvalidQty.Wrap("no liquidity available to reserve")
	}

	var vwap int64
	if filledQty > 0 {
		vwap = divU128ByI64(notional, filledQty)
	}

	feeCharge, _ := notional.MulDivBps(s.Header.TakerFeeBps)
	maxCharge, _ := notional.Add(feeCharge)

	s.Header.HoldIDCtr++
	holdID := s.Header.HoldIDCtr
	s.Reservations[resIdx] = Reservation{
		InUse:            true,
		State:            ReservationReserved,
		HoldID:           holdID,
		AccountIdx:       in.AccountIdx,
		InstrumentIdx:    in.InstrumentIdx,
		Side:             in.Side,
		RequestedQty:     in.Qty,
		FilledQty:        filledQty,
		SliceHead:        sliceHead,
		ExpiryTs:         now + int64(s.Header.ReserveTTLMs)/1000,
		ReserveOraclePx:  in.OracleIndexPx,
		SeqnoAtReserve:   s.Header.QuoteCacheSeqno,
		BatchIDAtReserve: s.Header.BatchID,
	}

	s.bumpSeqno()

	return ReserveResult{HoldID: holdID, FilledQty: filledQty, VWAP: vwap, MaxCharge: maxCharge}, nil
}

func divU128ByI64(n fx.U128, d int64) int64 {
	if d == 0 {
		return 0
	}
	// n and d are both small enough in practice (bounded by book depth *
	// price) to round-trip through int64 once divided.
	nb := n.Bytes16()
	var lo uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(nb[i])
	}
	return int64(lo) / d
}

func (s *Slab) findReservation(holdID uint64) (uint32, *Reservation, error) {
	for i := range s.Reservations {
		if s.Reservations[i].InUse && s.Reservations[i].HoldID == holdID {
			return uint32(i), &s.Reservations[i], nil
		}
	}
	return 0, nil, xerrors.ErrReservationNotFound
}

// releaseSlices releases a reservation's maker holds and slice pool
// entries without executing a fill (used by Cancel and by Commit's expiry
// path; Commit's kill-band rejection does not call it, leaving the
// reservation intact and callable via Cancel — spec scenario 3).
func (s *Slab) releaseSlices(head uint32) {
	cur := head
	for cur != NoIndex {
		sl := &s.Slices[cur]
		next := sl.NextIdx
		if int(sl.MakerOrderIdx) < len(s.Orders) && s.Orders[sl.MakerOrderIdx].InUse {
			s.Orders[sl.MakerOrderIdx].ReservedQty -= sl.Qty
		}
		sl.InUse = false
		pushFree(&s.sliceFree, cur)
		cur = next
	}
}

// Cancel frees reserved_qty on each slice's maker and returns the
// reservation and its slices to their freelists (spec §4.2).
func (s *Slab) Cancel(holdID uint64) error {
	idx, res, err := s.findReservation(holdID)
	if err != nil {
		return err
	}
	s.releaseSlices(res.SliceHead)
	res.InUse = false
	res.State = ReservationCanceled
	pushFree(&s.reservationFree, idx)
	s.bumpSeqno()
	return nil
}

// CommitInput is the Commit instruction payload (spec §4.2, §6.2
// discriminator 1 "CommitFill").
type CommitInput struct {
	HoldID       uint64
	OracleIndexPx int64
	SameBatchOnly bool
}

// FillReceipt reports the outcome of a successful Commit (spec §4.2).
type FillReceipt struct {
	SlabID    [32]byte
	FilledQty int64
	AvgPrice  int64
	TotalFee  fx.U128
	TotalDebit fx.U128
}

// Commit executes and settles a reserved fill against every slice
// recorded by the matching Reserve (spec §4.2).
func (s *Slab) Commit(host hostapi.Host, in CommitInput) (FillReceipt, error) {
	idx, res, err := s.findReservation(in.HoldID)
	if err != nil {
		return FillReceipt{}, err
	}
	now := host.UnixSeconds()
	if now >= res.ExpiryTs {
		s.releaseSlices(res.SliceHead)
		res.InUse = false
		res.State = ReservationExpired
		pushFree(&s.reservationFree, idx)
		return FillReceipt{}, xerrors.ErrExpired
	}
	if in.SameBatchOnly && res.BatchIDAtReserve != s.Header.BatchID {
		return FillReceipt{}, xerrors.ErrBatchChanged
	}

	// Kill band: Δ = |oracle_now.index - reserve_oracle_px|; reject if
	// Δ*10000 > kill_band_bps*reserve_oracle_px (spec §4.3, boundary B4).
	delta := in.OracleIndexPx - res.ReserveOraclePx
	if delta < 0 {
		delta = -delta
	}
	if res.ReserveOraclePx != 0 {
		lhs := delta * 10_000
		rhs := int64(s.Header.KillBandBps) * res.ReserveOraclePx
		if lhs > rhs {
			return FillReceipt{}, xerrors.ErrKillBandExceeded
		}
	}

	taker, err := s.account(res.AccountIdx)
	if err != nil {
		return FillReceipt{}, err
	}
	inst, err := s.instrument(res.InstrumentIdx)
	if err != nil {
		return FillReceipt{}, err
	}

	var (
		totalFee      fx.U128 // taker fee + maker fee/rebate, reported but not charged to the taker in full
		totalTakerFee fx.U128
		notional      fx.U128
		filled        int64
	)

	cur := res.SliceHead
	for cur != NoIndex {
		sl := &s.Slices[cur]
		next := sl.NextIdx
		if !s.Orders[sl.MakerOrderIdx].InUse {
			cur = next
			continue
		}
		maker := &s.Orders[sl.MakerOrderIdx]

		sliceNotional, _ := fx.NotionalU128(sl.Qty, sl.Price)
		takerFee, _ := sliceNotional.MulDivBps(s.Header.TakerFeeBps)
		makerFeeBps := sl.MakerFeeBpsSnap

		// JIT penalty: zero the rebate if the maker order was placed
		// after the current batch opened (spec §4.3).
		if s.Header.JITPenalty && maker.CreatedTs >= s.Header.BatchOpenTs && makerFeeBps < 0 {
			makerFeeBps = 0
		}
		makerFee, _ := sliceNotional.MulDivBps(absI64(makerFeeBps))

		makerAcct, maErr := s.account(maker.AccountIdx)
		if maErr == nil {
			makerProceeds := u128ToI128(sliceNotional)
			if makerFeeBps < 0 {
				// Rebate: maker receives the notional plus the rebate.
				makerProceeds = makerProceeds.Add(u128ToI128(makerFee))
			} else {
				makerProceeds = makerProceeds.Sub(u128ToI128(makerFee))
			}
			makerAcct.Cash = makerAcct.Cash.Add(makerProceeds)
		}

		// Position transfer: taker position += slice qty with sign;
		// maker position -= slice qty (spec §4.2).
		takerSigned := sl.Qty
		if res.Side == SideSell {
			takerSigned = -sl.Qty
		}
		s.applyPositionDelta(res.AccountIdx, res.InstrumentIdx, takerSigned, sl.Price)
		s.applyPositionDelta(maker.AccountIdx, maker.InstrumentIdx, -takerSigned, sl.Price)

		maker.ReservedQty -= sl.Qty
		maker.QtyRemaining -= sl.Qty
		if maker.QtyRemaining <= 0 {
			s.unlinkOrder(inst, sl.MakerOrderIdx)
		}

		notional, _ = notional.Add(sliceNotional)
		totalTakerFee, _ = totalTakerFee.Add(takerFee)
		totalFee, _ = totalFee.Add(takerFee)
		totalFee, _ = totalFee.Add(makerFee)
		filled += sl.Qty

		s.recordAggressor(res.AccountIdx, res.InstrumentIdx, res.Side, sliceNotional)
		s.recordAggressor(maker.AccountIdx, maker.InstrumentIdx, oppositeSide(res.Side), sliceNotional)

		s.appendTrade(now, res.AccountIdx, maker.AccountIdx, res.InstrumentIdx, sl.Price, sl.Qty, res.Side)

		sl.InUse = false
		pushFree(&s.sliceFree, cur)
		cur = next
	}

	// The taker is debited notional + taker_fee only (spec §4.2's
	// max_charge formula, which Reserve mirrors at line ~151); the maker's
	// own fee/rebate is already settled against the maker's cash above, so
	// folding it into the taker's debit here would double-charge it and
	// could exceed the Cap/Escrow sized by Reserve's max_charge.
	totalDebit, _ := notional.Add(totalTakerFee)
	taker.Cash = taker.Cash.Sub(u128ToI128(totalDebit))

	argTax := s.chargeAggressorRoundtrip(res.AccountIdx, res.InstrumentIdx)
	if !argTax.IsZero() {
		taker.Cash = taker.Cash.Sub(u128ToI128(argTax))
		totalFee, _ = totalFee.Add(argTax)
	}

	var avgPrice int64
	if filled > 0 {
		avgPrice = divU128ByI64(notional, filled)
	}

	res.InUse = false
	res.State = ReservationCommitted
	pushFree(&s.reservationFree, idx)
	s.refreshQuoteCache(inst)
	s.bumpSeqno()

	return FillReceipt{
		SlabID:     s.ID,
		FilledQty:  filled,
		AvgPrice:   avgPrice,
		TotalFee:   totalFee,
		TotalDebit: totalDebit,
	}, nil
}

func oppositeSide(s Side) Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func u128ToI128(u fx.U128) fx.I128 {
	return fx.I128FromBytes16(u.Bytes16())
}

// applyPositionDelta adds qty (signed) to account's open position on
// instrumentIdx, opening a new position-pool slot on first touch and
// recomputing the VWAP entry (spec §3.1, §4.2).
func (s *Slab) applyPositionDelta(accountIdx uint32, instrumentIdx uint16, qty int64, price int64) {
	s.SettlePositionFunding(accountIdx, instrumentIdx)
	acct := &s.Accounts[accountIdx]
	slot := acct.Positions[instrumentIdx]
	if slot == NoIndex || !s.Positions[slot].InUse {
		newIdx, ok := popFree(&s.positionFree)
		if !ok {
			return // position pool exhausted; caller's fill still settles cash
		}
		s.Positions[newIdx] = Position{InUse: true, AccountIdx: accountIdx, InstrumentIdx: instrumentIdx,
			CumFundingSnapshot: s.Instruments[instrumentIdx].CumFunding}
		acct.Positions[instrumentIdx] = newIdx
		slot = newIdx
	}
	pos := &s.Positions[slot]

	newQty := pos.Qty + qty
	if pos.Qty == 0 || (pos.Qty > 0) == (qty > 0) {
		// Same direction (or opening fresh): VWAP blends.
		totalAbs := absI64(pos.Qty) + absI64(qty)
		if totalAbs > 0 {
			blended := (uint64(absI64(pos.Qty))*pos.VWAPEntry + uint64(absI64(qty))*uint64(price)) / uint64(totalAbs)
			pos.VWAPEntry = blended
		}
	} else if absI64(qty) > absI64(pos.Qty) {
		// Flip through zero: new entry price is the fill price.
		pos.VWAPEntry = uint64(price)
	}
	pos.Qty = newQty

	if pos.Qty == 0 {
		pos.InUse = false
		acct.Positions[instrumentIdx] = NoIndex
		pushFree(&s.positionFree, slot)
	}
}

// recordAggressor accumulates same-batch buy/sell notional per (account,
// instrument) for the Aggressor Roundtrip Guard (spec §4.3).
func (s *Slab) recordAggressor(accountIdx uint32, instrumentIdx uint16, side Side, notional fx.U128) {
	key := AggressorKey{AccountIdx: accountIdx, InstrumentIdx: instrumentIdx}
	idx, ok := s.Aggressors[key]
	if !ok {
		newIdx, ok := popFree(&s.aggressorFree)
		if !ok {
			return // table exhausted; ARG simply skips this pair this batch
		}
		s.aggressorPool[newIdx] = AggressorEntry{InUse: true, Key: key}
		s.Aggressors[key] = newIdx
		idx = newIdx
	}
	entry := &s.aggressorPool[idx]
	if side == SideBuy {
		entry.BuyNotional, _ = entry.BuyNotional.Add(notional)
	} else {
		entry.SellNotional, _ = entry.SellNotional.Add(notional)
	}
}

// chargeAggressorRoundtrip taxes the overlap between same-batch buy and
// sell notional for one (account, instrument) pair (spec §4.3).
func (s *Slab) chargeAggressorRoundtrip(accountIdx uint32, instrumentIdx uint16) fx.U128 {
	key := AggressorKey{AccountIdx: accountIdx, InstrumentIdx: instrumentIdx}
	idx, ok := s.Aggressors[key]
	if !ok {
		return fx.ZeroU128()
	}
	entry := &s.aggressorPool[idx]
	if entry.BuyNotional.IsZero() || entry.SellNotional.IsZero() {
		return fx.ZeroU128()
	}
	overlap := entry.BuyNotional
	if entry.SellNotional.Cmp(overlap) < 0 {
		overlap = entry.SellNotional
	}
	tax, _ := overlap.MulDivBps(s.Header.ARGTaxKBps)
	return tax
}

// appendTrade writes one fill into the fixed-capacity ring, overwriting
// the oldest entry without error once full (spec §5, §9 open question).
func (s *Slab) appendTrade(ts int64, takerIdx, makerIdx uint32, instrumentIdx uint16, price, qty int64, takerSide Side) {
	buyer, seller := takerIdx, makerIdx
	if takerSide == SideSell {
		buyer, seller = makerIdx, takerIdx
	}
	n := uint32(len(s.TradeRing))
	if n == 0 {
		return
	}
	slot := s.tradeRingHead
	s.TradeRing[slot] = Trade{
		Ts:            ts,
		BuyerIdx:      buyer,
		SellerIdx:     seller,
		InstrumentIdx: instrumentIdx,
		Price:         price,
		Qty:           qty,
		Seqno:         s.Header.QuoteCacheSeqno,
	}
	s.tradeRingHead = (slot + 1) % n
	if s.tradeRingLen < n {
		s.tradeRingLen++
	}
	s.QuoteCache.LastTradePx = price
	s.QuoteCache.LastTradeTs = ts
}

// BatchOpen transitions to a new batch, clearing the aggressor table and
// opening the freeze window (spec §4.2).
func (s *Slab) BatchOpen(nowTs int64) {
	s.Header.BatchID++
	s.Header.BatchOpenTs = nowTs
	for k, idx := range s.Aggressors {
		s.aggressorPool[idx].InUse = false
		pushFree(&s.aggressorFree, idx)
		delete(s.Aggressors, k)
	}
	if s.Log != nil {
		s.Log.Info("batch opened", zap.Uint64("batch_id", s.Header.BatchID), zap.Int64("ts", nowTs))
	}
}
