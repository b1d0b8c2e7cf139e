// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/xerrors"
)

func popFree(free *[]uint32) (uint32, bool) {
	n := len(*free)
	if n == 0 {
		return 0, false
	}
	idx := (*free)[n-1]
	*free = (*free)[:n-1]
	return idx, true
}

func pushFree(free *[]uint32, idx uint32) {
	*free = append(*free, idx)
}

// OpenAccount allocates an account slot from the bitmap/freelist (spec
// §3.4), the same lazy-allocation shape as slab.Slab.OpenAccount.
func (e *Engine) OpenAccount(kind AccountKind) (uint32, error) {
	idx, ok := popFree(&e.free)
	if !ok {
		return 0, xerrors.ErrReservationFull.Wrap("risk engine account slab exhausted")
	}
	e.Accounts[idx] = Account{InUse: true, Kind: kind, haircutEpoch: e.ScaleEpoch}
	return idx, nil
}

func (e *Engine) account(idx uint32) (*Account, error) {
	if int(idx) >= len(e.Accounts) || !e.Accounts[idx].InUse {
		return nil, xerrors.ErrAccountNotFound
	}
	return &e.Accounts[idx], nil
}

// Equity returns max(0, capital + pnl) (invariant I8: withdrawable amount
// uses equity, never nominal capital).
func (e *Engine) Equity(idx uint32) (fx.I128, error) {
	acct, err := e.account(idx)
	if err != nil {
		return fx.I128{}, err
	}
	return acct.equity(), nil
}

func (a *Account) equity() fx.I128 {
	return fx.I128FromBytes16(a.Capital.Bytes16()).Add(a.Pnl).Max0()
}
