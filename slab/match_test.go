// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"errors"
	"testing"

	"github.com/luxfi/percolator/internal/xerrors"
)

// TestReserveCommit_WalksBookAndSettles covers the basic reserve-then-commit
// round trip against a single resting maker: fill quantity, VWAP, cash
// transfer, and position transfer (spec scenario 1/2).
func TestReserveCommit_WalksBookAndSettles(t *testing.T) {
	s, host, acct := newTestSlab(t)

	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}

	in := ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           6,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	}
	res, err := s.Reserve(host, in)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.FilledQty != 6 {
		t.Fatalf("filled qty = %d, want 6", res.FilledQty)
	}
	if res.VWAP != 100_000 {
		t.Fatalf("vwap = %d, want 100000", res.VWAP)
	}

	makerCashBefore := s.Accounts[acct[testUser1]].Cash
	takerCashBefore := s.Accounts[acct[testUser2]].Cash

	receipt, err := s.Commit(host, CommitInput{HoldID: res.HoldID, OracleIndexPx: 100_000})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if receipt.FilledQty != 6 {
		t.Fatalf("receipt filled qty = %d, want 6", receipt.FilledQty)
	}

	takerPos := s.Positions[s.Accounts[acct[testUser2]].Positions[0]]
	if takerPos.Qty != 6 {
		t.Fatalf("taker position qty = %d, want 6", takerPos.Qty)
	}
	makerPos := s.Positions[s.Accounts[acct[testUser1]].Positions[0]]
	if makerPos.Qty != -6 {
		t.Fatalf("maker position qty = %d, want -6", makerPos.Qty)
	}

	if s.Accounts[acct[testUser2]].Cash.Cmp(takerCashBefore) >= 0 {
		t.Fatal("taker cash should have decreased")
	}
	if s.Accounts[acct[testUser1]].Cash.Cmp(makerCashBefore) <= 0 {
		t.Fatal("maker should have been credited")
	}

	restingMaker := s.Instruments[0].AskHead
	if restingMaker == NoIndex {
		t.Fatal("expected remaining 4 lots still resting")
	}
	if s.Orders[restingMaker].QtyRemaining != 4 {
		t.Fatalf("remaining resting qty = %d, want 4", s.Orders[restingMaker].QtyRemaining)
	}
}

// TestReserveCancel_ReleasesHoldWithoutSideEffect is round-trip law L1:
// Reserve;Cancel must leave order book state unchanged.
func TestReserveCancel_ReleasesHoldWithoutSideEffect(t *testing.T) {
	s, host, acct := newTestSlab(t)
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	makerIdx := s.Instruments[0].AskHead

	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           6,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if s.Orders[makerIdx].ReservedQty != 6 {
		t.Fatalf("maker reserved qty = %d, want 6", s.Orders[makerIdx].ReservedQty)
	}

	if err := s.Cancel(res.HoldID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Orders[makerIdx].ReservedQty != 0 {
		t.Fatalf("maker reserved qty after cancel = %d, want 0", s.Orders[makerIdx].ReservedQty)
	}
	if s.Orders[makerIdx].QtyRemaining != 10 {
		t.Fatalf("maker remaining qty after cancel = %d, want 10", s.Orders[makerIdx].QtyRemaining)
	}
}

// TestReserve_PartialFillOnThinBook exercises the documented "never panic,
// partial fill instead" reserve policy (spec §5).
func TestReserve_PartialFillOnThinBook(t *testing.T) {
	s, host, acct := newTestSlab(t)
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 4); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           10,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.FilledQty != 4 {
		t.Fatalf("filled qty = %d, want 4 (partial)", res.FilledQty)
	}
}

// TestCommit_KillBandRejectsButReservationSurvives covers scenario 3: a
// large oracle move between Reserve and Commit is rejected, but the
// reservation remains cancelable afterward.
func TestCommit_KillBandRejectsButReservationSurvives(t *testing.T) {
	s, host, acct := newTestSlab(t)
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           6,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Kill band is 100 bps; move the oracle index by 500 bps before commit.
	movedIndexPx := int64(105_000)
	if _, err := s.Commit(host, CommitInput{HoldID: res.HoldID, OracleIndexPx: movedIndexPx}); !errors.Is(err, xerrors.ErrKillBandExceeded) {
		t.Fatalf("commit err = %v, want ErrKillBandExceeded", err)
	}

	if err := s.Cancel(res.HoldID); err != nil {
		t.Fatalf("reservation should still be cancelable after kill-band rejection: %v", err)
	}
}

// TestCommit_JITPenaltyZeroesLateMakerRebate covers scenario 4: a maker
// order placed after the current batch opened gets no rebate even if its
// fee schedule would normally grant one.
func TestCommit_JITPenaltyZeroesLateMakerRebate(t *testing.T) {
	s, host, acct := newTestSlab(t)
	s.Header.JITPenalty = true
	host.Clock.Now = 1000
	s.Header.BatchOpenTs = 500 // batch already open before the maker posts

	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}

	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           6,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	makerCashBefore := s.Accounts[acct[testUser1]].Cash
	if _, err := s.Commit(host, CommitInput{HoldID: res.HoldID, OracleIndexPx: 100_000}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	makerCashAfter := s.Accounts[acct[testUser1]].Cash

	// Without the JIT penalty the maker would have been credited a rebate on
	// top of notional; with it, the maker only receives notional.
	notional := int64(6 * 100_000)
	got := makerCashAfter.Sub(makerCashBefore)
	want := notional
	gotI64 := i128ToI64(got)
	if gotI64 != want {
		t.Fatalf("maker credit = %d, want %d (no rebate under JIT penalty)", gotI64, want)
	}
}

func TestBatchOpen_ClearsAggressorTable(t *testing.T) {
	s, host, acct := newTestSlab(t)
	if _, err := s.PlaceOrder(host, host, acct[testUser1], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	res, err := s.Reserve(host, ReserveInput{
		AccountIdx:    acct[testUser2],
		InstrumentIdx: 0,
		Side:          SideBuy,
		Qty:           6,
		LimitPx:       100_000,
		OracleIndexPx: 100_000,
		OracleMarkPx:  100_000,
		OracleTs:      host.UnixSeconds(),
		ClientSeqno:   s.Header.QuoteCacheSeqno,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := s.Commit(host, CommitInput{HoldID: res.HoldID, OracleIndexPx: 100_000}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(s.Aggressors) == 0 {
		t.Fatal("expected an aggressor entry after a commit")
	}
	s.BatchOpen(host.UnixSeconds())
	if len(s.Aggressors) != 0 {
		t.Fatal("BatchOpen should clear the aggressor table")
	}
}
