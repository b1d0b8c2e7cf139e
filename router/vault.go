// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
)

func (r *Router) vault(mint ids.Id) *Vault {
	v, ok := r.Vaults[mint]
	if !ok {
		v = &Vault{Mint: mint}
		r.Vaults[mint] = v
	}
	return v
}

func (r *Router) userBalance(user, mint ids.Id) *UserBalance {
	key := userMintKey{user: user, mint: mint}
	ub, ok := r.UserBalances[key]
	if !ok {
		ub = &UserBalance{User: user, Mint: mint}
		r.UserBalances[key] = ub
	}
	return ub
}

func (r *Router) escrow(user, slabID, mint ids.Id) *Escrow {
	key := escrowKey{user: user, slab: slabID, mint: mint}
	e, ok := r.Escrows[key]
	if !ok {
		e = &Escrow{User: user, Slab: slabID, Mint: mint}
		r.Escrows[key] = e
	}
	return e
}

// InitializePortfolio opens an empty margin account for user (spec §3.2).
func (r *Router) InitializePortfolio(user ids.Id) *Portfolio {
	if pf, ok := r.Portfolios[user]; ok {
		return pf
	}
	pf := &Portfolio{User: user}
	r.Portfolios[user] = pf
	return pf
}

// Deposit credits amount into user's free Vault balance (spec §3.2).
func (r *Router) Deposit(user, mint ids.Id, amount fx.U128) error {
	v := r.vault(mint)
	nv, err := v.Balance.Add(amount)
	if err != nil {
		return err
	}
	ub := r.userBalance(user, mint)
	nb, err := ub.Free.Add(amount)
	if err != nil {
		return err
	}
	v.Balance = nv
	ub.Free = nb
	return nil
}

// Withdraw debits amount from user's free Vault balance, rejecting any
// draw against funds currently held in Escrow (spec §3.2 invariants).
func (r *Router) Withdraw(user, mint ids.Id, amount fx.U128) error {
	ub := r.userBalance(user, mint)
	if ub.Free.Cmp(amount) < 0 {
		return xerrors.ErrInsufficientVault
	}
	v := r.vault(mint)
	if v.Balance.Cmp(amount) < 0 {
		return xerrors.ErrInsufficientVault
	}
	nv, err := v.Balance.Sub(amount)
	if err != nil {
		return err
	}
	nb, err := ub.Free.Sub(amount)
	if err != nil {
		return err
	}
	v.Balance = nv
	ub.Free = nb
	return nil
}

// slabAccount returns user's account index within sl, opening one lazily
// on first touch (mirrors the Slab's own OpenAccount lazy-allocation
// convention from slab.go).
func (r *Router) slabAccount(sl interface {
	OpenAccount(ids.Id) (uint32, error)
}, slabID, user ids.Id) (uint32, error) {
	key := slabUserKey{slab: slabID, user: user}
	if idx, ok := r.slabAccountIdx[key]; ok {
		return idx, nil
	}
	idx, err := sl.OpenAccount(user)
	if err != nil {
		return 0, err
	}
	r.slabAccountIdx[key] = idx
	return idx, nil
}
