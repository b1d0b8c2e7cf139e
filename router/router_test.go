// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi/hostapitest"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/slab"
)

var (
	testAuthority = ids.Id{0xA0}
	testUser      = ids.Id{0xB1}
	testMint      = ids.Id{0xC2}
	testSlabA     = ids.Id{0xD3}
	testSlabB     = ids.Id{0xD4}
)

func newTestSlabFor(t *testing.T, id ids.Id) *slab.Slab {
	t.Helper()
	sl := slab.NewSlab(id, slab.DefaultV0Layout)
	clock := &hostapitest.Clock{}
	if err := sl.Initialize(clock, slab.InitParams{
		LPOwner:      testAuthority,
		RouterID:     testAuthority,
		TickSize:     1,
		LotSize:      1,
		MinOrderSize: 1,
		MakerFeeBps:  -5,
		TakerFeeBps:  10,
		IMRBps:       500,
		MMRBps:       250,
		KillBandBps:  100,
		ReserveTTLMs: 60_000,
		MaxOracleAgeMs: 60_000,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := sl.RegisterInstrument(0, id, 1); err != nil {
		t.Fatalf("register instrument: %v", err)
	}
	sl.Instruments[0].IndexPrice = 100_000
	sl.Instruments[0].MarkPrice = 100_000
	return sl
}

func newTestRouter(t *testing.T) (*Router, *hostapitest.Host, *slab.Slab) {
	t.Helper()
	r := NewRouter(testAuthority)
	sl := newTestSlabFor(t, testSlabA)
	host := &hostapitest.Host{
		Clock:   &hostapitest.Clock{},
		Signers: hostapitest.NewSigners(testAuthority, testUser),
		Invoker: &hostapitest.Invoker{},
	}
	r.Slabs[testSlabA] = sl
	if err := r.RegisterSlab(host, sl, SlabRegistryEntry{SlabID: testSlabA, IMRBps: 500, MMRBps: 250}); err != nil {
		t.Fatalf("register slab: %v", err)
	}
	r.InitializePortfolio(testUser)
	amount, _ := fx.NewU128FromI64(1_000_000_000)
	if err := r.Deposit(testUser, testMint, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// A second account provides liquidity on the resting book.
	lpIdx, err := sl.OpenAccount(testAuthority)
	if err != nil {
		t.Fatalf("open lp account: %v", err)
	}
	sl.Accounts[lpIdx].Cash = fx.NewI128FromI64(1_000_000_000)
	if _, err := sl.PlaceOrder(host, host, lpIdx, 0, slab.SideSell, 100_000, 50); err != nil {
		t.Fatalf("place liquidity: %v", err)
	}

	return r, host, sl
}

func TestRegisterSlab_RejectsUnauthorizedCaller(t *testing.T) {
	r := NewRouter(testAuthority)
	sl := newTestSlabFor(t, testSlabA)
	host := &hostapitest.Host{Clock: &hostapitest.Clock{}, Signers: hostapitest.NewSigners(testUser), Invoker: &hostapitest.Invoker{}}
	err := r.RegisterSlab(host, sl, SlabRegistryEntry{SlabID: testSlabA, IMRBps: 500, MMRBps: 250})
	require.Error(t, err)
}

func TestMultiReserveCommit_SingleLegSettlesAndMargins(t *testing.T) {
	r, host, _ := newTestRouter(t)

	freeBefore := r.userBalance(testUser, testMint).Free

	route, err := r.MultiReserve(host, testUser, testMint, []RouteStep{
		{SlabID: testSlabA, InstrumentIdx: 0, Side: slab.SideBuy, Qty: 6, LimitPx: 100_000},
	})
	require.NoError(t, err)
	require.Len(t, route.Manifest, 1)

	receipts, err := r.MultiCommit(host, route.RouteID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, int64(6), receipts[0].FilledQty)

	pf := r.Portfolios[testUser]
	require.Len(t, pf.Exposures, 1)
	require.Equal(t, int64(6), i128ToI64(pf.Exposures[0].Qty))
	require.True(t, pf.IMRequired.Cmp(fx.ZeroU128()) > 0)

	freeAfter := r.userBalance(testUser, testMint).Free
	require.True(t, freeAfter.Cmp(freeBefore) < 0, "free collateral should drop by the committed debit")
}

func TestMultiReserve_UnwindsAllLegsOnDisabledSlab(t *testing.T) {
	r, host, _ := newTestRouter(t)
	slB := newTestSlabFor(t, testSlabB)
	r.Slabs[testSlabB] = slB
	require.NoError(t, r.RegisterSlab(host, slB, SlabRegistryEntry{SlabID: testSlabB, IMRBps: 500, MMRBps: 250}))
	require.NoError(t, r.SetSlabEnabled(host, testSlabB, false))

	freeBefore := r.userBalance(testUser, testMint).Free

	_, err := r.MultiReserve(host, testUser, testMint, []RouteStep{
		{SlabID: testSlabA, InstrumentIdx: 0, Side: slab.SideBuy, Qty: 6, LimitPx: 100_000},
		{SlabID: testSlabB, InstrumentIdx: 0, Side: slab.SideBuy, Qty: 6, LimitPx: 100_000},
	})
	require.Error(t, err)

	freeAfter := r.userBalance(testUser, testMint).Free
	require.Equal(t, 0, freeAfter.Cmp(freeBefore), "a failed route must leave free collateral untouched")
}

func TestRecomputeMargin_NetsCrossSlabExposuresByInstrumentID(t *testing.T) {
	r, host, _ := newTestRouter(t)
	slB := newTestSlabFor(t, testSlabB)
	r.Slabs[testSlabB] = slB
	require.NoError(t, r.RegisterSlab(host, slB, SlabRegistryEntry{SlabID: testSlabB, IMRBps: 1_000, MMRBps: 500}))
	// Match both slabs' margin schedule to the 10% IMR used by the spec's
	// worked cross-slab-netting example.
	r.Registry[testSlabA].IMRBps = 1_000
	r.Registry[testSlabA].MMRBps = 500

	// Both slabs list the same underlying instrument (shared ETH-PERP
	// identity), each at instrument index 0 of its own instrument table; netting
	// keys on the shared Instrument.ID, not on that index.
	sharedInstrument := ids.Id{0xE5}
	slA := r.Slabs[testSlabA]
	require.NoError(t, slA.RegisterInstrument(0, sharedInstrument, 1))
	slA.Instruments[0].IndexPrice = 4_000
	slA.Instruments[0].MarkPrice = 4_000
	require.NoError(t, slB.RegisterInstrument(0, sharedInstrument, 1))
	slB.Instruments[0].IndexPrice = 4_000
	slB.Instruments[0].MarkPrice = 4_000

	// RegisterInstrument resets the instrument's order-book heads, so the
	// resting liquidity each slab needs for this instrument is placed fresh
	// here rather than reused from newTestRouter's setup.
	lpA, err := slA.OpenAccount(testAuthority)
	require.NoError(t, err)
	slA.Accounts[lpA].Cash = fx.NewI128FromI64(1_000_000_000)
	_, err = slA.PlaceOrder(host, host, lpA, 0, slab.SideSell, 4_000, 50)
	require.NoError(t, err)

	lpB, err := slB.OpenAccount(testAuthority)
	require.NoError(t, err)
	slB.Accounts[lpB].Cash = fx.NewI128FromI64(1_000_000_000)
	_, err = slB.PlaceOrder(host, host, lpB, 0, slab.SideBuy, 4_000, 50)
	require.NoError(t, err)

	// SlabA: buy 10 ETH. SlabB: sell 8 ETH. Net cross-slab exposure is +2
	// ETH, not the gross 18 ETH a per-slab margin model would see.
	routeA, err := r.MultiReserve(host, testUser, testMint, []RouteStep{
		{SlabID: testSlabA, InstrumentIdx: 0, Side: slab.SideBuy, Qty: 10, LimitPx: 4_000},
	})
	require.NoError(t, err)
	_, err = r.MultiCommit(host, routeA.RouteID)
	require.NoError(t, err)

	routeB, err := r.MultiReserve(host, testUser, testMint, []RouteStep{
		{SlabID: testSlabB, InstrumentIdx: 0, Side: slab.SideSell, Qty: 8, LimitPx: 4_000},
	})
	require.NoError(t, err)
	_, err = r.MultiCommit(host, routeB.RouteID)
	require.NoError(t, err)

	pf := r.Portfolios[testUser]
	require.Len(t, pf.Exposures, 2, "Exposures stay tracked per physical (slab, instrument) leg")

	// Net exposure is +2 ETH at a 4000 mark and 10% IMR (the registry
	// entry of the slab that contributed first; both use 10% here):
	// im = 2*4000*0.10 = 800, far below the gross 18-ETH figure of 7200
	// that per-slab gross margining would have produced.
	wantIM, _ := fx.NewU128FromI64(800)
	require.Equal(t, 0, pf.IMRequired.Cmp(wantIM), "IM required = %s, want net-exposure figure %s", pf.IMRequired.String(), wantIM.String())
}

func TestWithdraw_RejectsBeyondFreeBalance(t *testing.T) {
	r, _, _ := newTestRouter(t)
	tooMuch, _ := fx.NewU128FromI64(10_000_000_000)
	err := r.Withdraw(testUser, testMint, tooMuch)
	require.Error(t, err)
}
