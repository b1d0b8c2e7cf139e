// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"errors"
	"testing"

	"github.com/luxfi/percolator/internal/hostapi/hostapitest"
	"github.com/luxfi/percolator/internal/xerrors"
)

func TestPlaceOrder_BestBidAsk(t *testing.T) {
	s, host, acct := newTestSlab(t)

	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideBuy, 99_000, 10); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if _, err := s.PlaceOrder(host, host, acct[testUser2], 0, SideBuy, 99_500, 5); err != nil {
		t.Fatalf("place better bid: %v", err)
	}
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 101_000, 8); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	if s.QuoteCache.BestBid != 99_500 {
		t.Fatalf("best bid = %d, want 99500", s.QuoteCache.BestBid)
	}
	if s.QuoteCache.TotalBidQty != 15 {
		t.Fatalf("total bid qty = %d, want 15", s.QuoteCache.TotalBidQty)
	}
	if s.QuoteCache.BestAsk != 101_000 {
		t.Fatalf("best ask = %d, want 101000", s.QuoteCache.BestAsk)
	}
}

func TestPlaceOrder_PriceTimePriority(t *testing.T) {
	s, host, acct := newTestSlab(t)

	host.Clock.Now = 100
	id1, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideBuy, 99_000, 10)
	if err != nil {
		t.Fatalf("place order 1: %v", err)
	}
	host.Clock.Now = 200
	id2, err := s.PlaceOrder(host, host, acct[testUser2], 0, SideBuy, 99_000, 10)
	if err != nil {
		t.Fatalf("place order 2: %v", err)
	}

	inst := &s.Instruments[0]
	if inst.BidHead == NoIndex {
		t.Fatal("expected a resting bid head")
	}
	head := &s.Orders[inst.BidHead]
	if head.OrderID != id1 {
		t.Fatalf("head order = %d, want earlier order %d", head.OrderID, id1)
	}
	if s.Orders[head.NextIdx].OrderID != id2 {
		t.Fatalf("second order = %d, want %d", s.Orders[head.NextIdx].OrderID, id2)
	}
}

func TestPlaceOrder_ValidationRejections(t *testing.T) {
	s, host, acct := newTestSlab(t)
	s.Header.TickSize = 10
	s.Header.LotSize = 5
	s.Header.MinOrderSize = 20

	cases := []struct {
		name  string
		price int64
		qty   int64
		want  *xerrors.Error
	}{
		{"zero price", 0, 10, xerrors.ErrInvalidPrice},
		{"zero qty", 100, 0, xerrors.ErrInvalidQty},
		{"tick misaligned", 101, 10, xerrors.ErrTickMisalignment},
		{"lot misaligned", 100, 7, xerrors.ErrLotMisalignment},
		{"below min order size", 100, 5, xerrors.ErrMinOrderSize},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideBuy, c.price, c.qty)
			if !errors.Is(err, c.want) {
				t.Fatalf("PlaceOrder(%d,%d) err = %v, want %v", c.price, c.qty, err, c.want)
			}
		})
	}
}

func TestCancelOrder_RemovesRestingOrder(t *testing.T) {
	s, host, acct := newTestSlab(t)
	id, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideBuy, 99_000, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := s.CancelOrder(host, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Instruments[0].BidHead != NoIndex {
		t.Fatal("expected empty bid book after cancel")
	}
	if _, _, err := s.findOrder(id); !errors.Is(err, xerrors.ErrOrderNotFound) {
		t.Fatalf("findOrder after cancel err = %v, want ErrOrderNotFound", err)
	}
}

func TestCancelOrder_RejectsWrongSigner(t *testing.T) {
	s, host, acct := newTestSlab(t)
	id, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideBuy, 99_000, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	nonSigner := hostapitest.NewSigners()
	if err := s.CancelOrder(nonSigner, id); !errors.Is(err, xerrors.ErrSignerMissing) {
		t.Fatalf("cancel with no signer err = %v, want ErrSignerMissing", err)
	}
}

func TestCancelOrder_RejectsReservedOrder(t *testing.T) {
	s, host, acct := newTestSlab(t)
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           5,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	makerID := s.Slices[s.Reservations[0].SliceHead].MakerOrderIdx
	orderID := s.Orders[makerID].OrderID
	if err := s.CancelOrder(host, orderID); !errors.Is(err, xerrors.ErrOrderReserved) {
		t.Fatalf("cancel reserved order err = %v, want ErrOrderReserved", err)
	}
	if err := s.Cancel(res.HoldID); err != nil {
		t.Fatalf("cancel reservation: %v", err)
	}
}
