// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"testing"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi/hostapitest"
	"github.com/luxfi/percolator/internal/ids"
)

var (
	testLPOwner  = ids.Id{0x01}
	testRouterID = ids.Id{0x02}
	testInstID   = ids.Id{0x10}
	testUser1    = ids.Id{0x21}
	testUser2    = ids.Id{0x22}
	testUser3    = ids.Id{0x23}
)

// newTestSlab builds a small, fully initialized Slab with one active
// instrument and three funded accounts, the fixture shared by every test in
// this package.
func newTestSlab(t *testing.T) (*Slab, *hostapitest.Host, map[ids.Id]uint32) {
	t.Helper()
	host := &hostapitest.Host{
		Clock:   &hostapitest.Clock{},
		Signers: hostapitest.NewSigners(testUser1, testUser2, testUser3, testLPOwner, testRouterID),
		Invoker: &hostapitest.Invoker{},
	}
	s := NewSlab(ids.Id{0xAA}, DefaultV0Layout)
	if err := s.Initialize(host, InitParams{
		LPOwner:         testLPOwner,
		RouterID:        testRouterID,
		TickSize:        1,
		LotSize:         1,
		MinOrderSize:    1,
		MakerFeeBps:     -2,
		TakerFeeBps:     5,
		IMRBps:          1000,
		MMRBps:          500,
		KillBandBps:     100,
		FundingCoeffBps: 10_000,
		BatchWindowMs:   1000,
		FreezeWindowMs:  0,
		ReserveTTLMs:    60_000,
		MaxOracleAgeMs:  60_000,
		ARGTaxKBps:      50,
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.RegisterInstrument(0, testInstID, 1); err != nil {
		t.Fatalf("RegisterInstrument: %v", err)
	}
	s.Instruments[0].IndexPrice = 100_000
	s.Instruments[0].MarkPrice = 100_000

	accounts := make(map[ids.Id]uint32)
	for _, owner := range []ids.Id{testUser1, testUser2, testUser3} {
		idx, err := s.OpenAccount(owner)
		if err != nil {
			t.Fatalf("OpenAccount(%v): %v", owner, err)
		}
		s.Accounts[idx].Cash = fx.NewI128FromI64(1_000_000_000)
		accounts[owner] = idx
	}
	return s, host, accounts
}
