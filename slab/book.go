// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
)

// betterPrice reports whether price a takes priority over price b on the
// given side: higher is better for bids, lower is better for asks (spec
// P1, §4.1).
func betterPrice(side Side, a, b int64) bool {
	if side == SideBuy {
		return a > b
	}
	return a < b
}

// PlaceOrder validates and inserts a new resting order into the correct
// (instrument, side) book list, in price-time priority (spec §4.1).
func (s *Slab) PlaceOrder(host hostapi.Host, signers hostapi.SignerSet, accountIdx uint32, instrumentIdx uint16, side Side, price, qty int64) (uint64, error) {
	if s.Header.Halted {
		return 0, xerrors.ErrHalted
	}
	acct, err := s.account(accountIdx)
	if err != nil {
		return 0, err
	}
	if !signers.IsSigner(acct.Owner) {
		return 0, xerrors.ErrSignerMissing
	}
	if err := s.checkFreezeWindow(host, acct.Owner); err != nil {
		return 0, err
	}
	inst, err := s.instrument(instrumentIdx)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, xerrors.ErrInvalidPrice
	}
	if qty <= 0 {
		return 0, xerrors.ErrInvalidQty
	}
	if uint64(price)%s.Header.TickSize != 0 {
		return 0, xerrors.ErrTickMisalignment
	}
	if uint64(qty)%s.Header.LotSize != 0 {
		return 0, xerrors.ErrLotMisalignment
	}
	if uint64(qty) < s.Header.MinOrderSize {
		return 0, xerrors.ErrMinOrderSize
	}

	idx, ok := popFree(&s.orderFree)
	if !ok {
		return 0, xerrors.ErrBookFull
	}

	s.Header.OrderIDCtr++
	orderID := s.Header.OrderIDCtr
	now := host.UnixSeconds()

	s.Orders[idx] = Order{
		InUse:         true,
		OrderID:       orderID,
		AccountIdx:    accountIdx,
		InstrumentIdx: instrumentIdx,
		Side:          side,
		Price:         price,
		QtyRemaining:  qty,
		CreatedTs:     now,
		PrevIdx:       NoIndex,
		NextIdx:       NoIndex,
	}

	s.insertOrder(inst, idx)
	s.refreshQuoteCache(inst)
	s.bumpSeqno()
	return orderID, nil
}

// insertOrder links order idx into its book at the unique correct
// position, maintaining descending-price-then-time for bids and
// ascending-price-then-time for asks (P1).
func (s *Slab) insertOrder(inst *Instrument, idx uint32) {
	o := &s.Orders[idx]
	headIdx := inst.BidHead
	if o.Side == SideSell {
		headIdx = inst.AskHead
	}

	if headIdx == NoIndex {
		o.PrevIdx, o.NextIdx = NoIndex, NoIndex
		s.setHead(inst, o.Side, idx)
		return
	}

	cur := headIdx
	var prev uint32 = NoIndex
	for cur != NoIndex {
		c := &s.Orders[cur]
		if s.ordersLess(o, c) {
			break
		}
		prev = cur
		cur = c.NextIdx
	}

	o.PrevIdx = prev
	o.NextIdx = cur
	if cur != NoIndex {
		s.Orders[cur].PrevIdx = idx
	}
	if prev == NoIndex {
		s.setHead(inst, o.Side, idx)
	} else {
		s.Orders[prev].NextIdx = idx
	}
}

// ordersLess reports whether a sorts strictly before b in book order:
// better price, then earlier created_ts, then lower order_id (P1).
func (s *Slab) ordersLess(a, b *Order) bool {
	if a.Price != b.Price {
		return betterPrice(a.Side, a.Price, b.Price)
	}
	if a.CreatedTs != b.CreatedTs {
		return a.CreatedTs < b.CreatedTs
	}
	return a.OrderID < b.OrderID
}

func (s *Slab) setHead(inst *Instrument, side Side, idx uint32) {
	if side == SideBuy {
		inst.BidHead = idx
	} else {
		inst.AskHead = idx
	}
}

// unlinkOrder removes order idx from its book list and returns it to the
// freelist. Caller must have already zeroed its InUse-dependent state.
func (s *Slab) unlinkOrder(inst *Instrument, idx uint32) {
	o := &s.Orders[idx]
	if o.PrevIdx != NoIndex {
		s.Orders[o.PrevIdx].NextIdx = o.NextIdx
	} else {
		s.setHead(inst, o.Side, o.NextIdx)
	}
	if o.NextIdx != NoIndex {
		s.Orders[o.NextIdx].PrevIdx = o.PrevIdx
	}
	o.InUse = false
	pushFree(&s.orderFree, idx)
}

// CancelOrder removes a resting order with no active reservation (spec
// §4.1).
func (s *Slab) CancelOrder(signers hostapi.SignerSet, orderID uint64) error {
	idx, o, err := s.findOrder(orderID)
	if err != nil {
		return err
	}
	acct, err := s.account(o.AccountIdx)
	if err != nil {
		return err
	}
	if !signers.IsSigner(acct.Owner) {
		return xerrors.ErrSignerMissing
	}
	if o.ReservedQty > 0 {
		return xerrors.ErrOrderReserved
	}
	inst, err := s.instrument(o.InstrumentIdx)
	if err != nil {
		return err
	}
	s.unlinkOrder(inst, idx)
	s.refreshQuoteCache(inst)
	s.bumpSeqno()
	return nil
}

func (s *Slab) findOrder(orderID uint64) (uint32, *Order, error) {
	for i := range s.Orders {
		if s.Orders[i].InUse && s.Orders[i].OrderID == orderID {
			return uint32(i), &s.Orders[i], nil
		}
	}
	return 0, nil, xerrors.ErrOrderNotFound
}

// refreshQuoteCache recomputes the top-of-book snapshot for inst's heads.
// Only the primary instrument (index 0) feeds the Slab-wide QuoteCache,
// matching the teacher's single memory-cached Pool per-key: a market with
// several instruments reports its first as the canonical quote feed.
func (s *Slab) refreshQuoteCache(inst *Instrument) {
	if len(s.Instruments) == 0 || inst != &s.Instruments[0] {
		return
	}
	qc := &s.QuoteCache
	qc.BestBid, qc.TotalBidQty = s.sideDepth(inst.BidHead)
	qc.BestAsk, qc.TotalAskQty = s.sideDepth(inst.AskHead)
}

func (s *Slab) sideDepth(head uint32) (bestPx int64, total uint64) {
	if head == NoIndex {
		return 0, 0
	}
	bestPx = s.Orders[head].Price
	cur := head
	for cur != NoIndex {
		total += uint64(s.Orders[cur].QtyRemaining)
		cur = s.Orders[cur].NextIdx
	}
	return bestPx, total
}

// checkFreezeWindow rejects order placement from non-designated makers
// during the freeze window following a batch open (spec §4.3).
func (s *Slab) checkFreezeWindow(host hostapi.Host, owner ids.Id) error {
	elapsedMs := (host.UnixSeconds() - s.Header.BatchOpenTs) * 1000
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if uint64(elapsedMs) >= s.Header.FreezeWindowMs {
		return nil
	}
	if s.Header.IsDesignatedLP(owner) {
		return nil
	}
	return xerrors.ErrFreezeViolation
}
