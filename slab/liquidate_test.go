// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"errors"
	"testing"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/xerrors"
)

func TestLiquidate_RejectsSelfLiquidation(t *testing.T) {
	s, host, acct := newTestSlab(t)
	_, err := s.Liquidate(host, LiquidateInput{VictimIdx: acct[testUser1], KeeperIdx: acct[testUser1]}, 50, host.UnixSeconds())
	if !errors.Is(err, xerrors.ErrSelfLiquidation) {
		t.Fatalf("err = %v, want ErrSelfLiquidation", err)
	}
}

func TestLiquidate_RejectsAdequatelyCollateralizedVictim(t *testing.T) {
	s, host, acct := newTestSlab(t)
	_, err := s.Liquidate(host, LiquidateInput{VictimIdx: acct[testUser1], KeeperIdx: acct[testUser2]}, 50, host.UnixSeconds())
	if !errors.Is(err, xerrors.ErrUndercollateralized) {
		t.Fatalf("err = %v, want ErrUndercollateralized", err)
	}
}

func TestLiquidate_ClosesOnlyUpToCloseFactorByDefault(t *testing.T) {
	s, host, acct := newTestSlab(t)

	// testUser3 provides a resting ask for the victim's short to buy back
	// against during the closing sweep.
	if _, err := s.PlaceOrder(host, host, acct[testUser3], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place liquidity: %v", err)
	}

	// Give testUser1 a large short position and drain its cash so equity
	// falls below maintenance margin at the current mark.
	victimIdx := acct[testUser1]
	s.applyPositionDelta(victimIdx, 0, -10, 100_000)
	s.Accounts[victimIdx].Cash = fx.NewI128FromI64(-950_000)

	keeperCashBefore := s.Accounts[acct[testUser2]].Cash

	res, err := s.Liquidate(host, LiquidateInput{VictimIdx: victimIdx, KeeperIdx: acct[testUser2]}, 50, host.UnixSeconds())
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// defaultCloseFactorBps caps a single sweep at half the position.
	if res.ClosedQty != 5 {
		t.Fatalf("closed qty = %d, want 5", res.ClosedQty)
	}
	if s.Accounts[acct[testUser2]].Cash.Cmp(keeperCashBefore) <= 0 {
		t.Fatal("keeper should have been paid a liquidation fee")
	}
}

func TestLiquidate_ExplicitCloseFactorFullyUnwinds(t *testing.T) {
	s, host, acct := newTestSlab(t)

	if _, err := s.PlaceOrder(host, host, acct[testUser3], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place liquidity: %v", err)
	}

	victimIdx := acct[testUser1]
	s.applyPositionDelta(victimIdx, 0, -10, 100_000)
	s.Accounts[victimIdx].Cash = fx.NewI128FromI64(-950_000)

	res, err := s.Liquidate(host, LiquidateInput{
		VictimIdx:      victimIdx,
		KeeperIdx:      acct[testUser2],
		CloseFactorBps: 10_000,
	}, 50, host.UnixSeconds())
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if res.ClosedQty != 10 {
		t.Fatalf("closed qty = %d, want 10", res.ClosedQty)
	}
}

func TestLiquidate_MinCloseQtyAvoidsDustRemainder(t *testing.T) {
	s, host, acct := newTestSlab(t)

	if _, err := s.PlaceOrder(host, host, acct[testUser3], 0, SideSell, 100_000, 10); err != nil {
		t.Fatalf("place liquidity: %v", err)
	}

	victimIdx := acct[testUser1]
	s.applyPositionDelta(victimIdx, 0, -10, 100_000)
	s.Accounts[victimIdx].Cash = fx.NewI128FromI64(-950_000)

	// 50% close factor would leave 5 open; a MinCloseQty floor above that
	// forces the sweep to take the whole position instead.
	res, err := s.Liquidate(host, LiquidateInput{
		VictimIdx:   victimIdx,
		KeeperIdx:   acct[testUser2],
		MinCloseQty: 6,
	}, 50, host.UnixSeconds())
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if res.ClosedQty != 10 {
		t.Fatalf("closed qty = %d, want 10", res.ClosedQty)
	}
}
