// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import "testing"

// TestUpdateFunding_IdempotentWithinBucket covers round-trip law L2: a
// repeat call at the same or an earlier timestamp accrues nothing.
func TestUpdateFunding_IdempotentWithinBucket(t *testing.T) {
	s, _, _ := newTestSlab(t)
	in := UpdateFundingInput{
		InstrumentIdx: 0,
		OracleIndexPx: 100_000,
		OracleMarkPx:  101_000,
		NowTs:         3_600_000,
	}
	if err := s.UpdateFunding(in); err != nil {
		t.Fatalf("first update: %v", err)
	}
	accrued := s.Instruments[0].CumFunding

	if err := s.UpdateFunding(in); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if s.Instruments[0].CumFunding.Cmp(accrued) != 0 {
		t.Fatal("repeat UpdateFunding at the same timestamp must not accrue again")
	}

	in.NowTs = 1_800_000 // earlier than last funding ts
	if err := s.UpdateFunding(in); err != nil {
		t.Fatalf("earlier-ts update: %v", err)
	}
	if s.Instruments[0].CumFunding.Cmp(accrued) != 0 {
		t.Fatal("UpdateFunding at an earlier timestamp must not accrue")
	}
}

// TestUpdateFunding_ClampsToMaxRate covers the ±500bps/hour clamp.
func TestUpdateFunding_ClampsToMaxRate(t *testing.T) {
	s, _, _ := newTestSlab(t)
	s.Header.FundingCoeffBps = 10_000 // 1:1 coefficient so spread alone would exceed the clamp
	in := UpdateFundingInput{
		InstrumentIdx: 0,
		OracleIndexPx: 100_000,
		OracleMarkPx:  150_000, // 5000bps spread, far past the clamp
		NowTs:         3_600_000,
	}
	if err := s.UpdateFunding(in); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := int64(maxFundingRateBps) // one hour elapsed, full clamp applies
	got := i128ToI64(s.Instruments[0].CumFunding)
	if got != want {
		t.Fatalf("accrued funding = %d, want clamp %d", got, want)
	}
}

// TestSettlePositionFunding_ChargesLongsWhenMarkAboveIndex verifies the
// lazy per-position settlement formula: -(cum_funding_delta * qty).
func TestSettlePositionFunding_ChargesLongsWhenMarkAboveIndex(t *testing.T) {
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

	if err := s.UpdateFunding(UpdateFundingInput{
		InstrumentIdx: 0,
		OracleIndexPx: 100_000,
		OracleMarkPx:  101_000,
		NowTs:         3_600_000,
	}); err != nil {
		t.Fatalf("update funding: %v", err)
	}

	cashBefore := s.Accounts[acct[testUser2]].Cash
	s.SettlePositionFunding(acct[testUser2], 0)
	cashAfter := s.Accounts[acct[testUser2]].Cash
	if cashAfter.Cmp(cashBefore) >= 0 {
		t.Fatal("a long position should be charged when mark trades above index")
	}

	// A second settlement at the same cum_funding snapshot must be a no-op.
	cashBefore = s.Accounts[acct[testUser2]].Cash
	s.SettlePositionFunding(acct[testUser2], 0)
	if s.Accounts[acct[testUser2]].Cash.Cmp(cashBefore) != 0 {
		t.Fatal("settling twice at the same snapshot must not double-charge")
	}
}
