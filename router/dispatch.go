// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"github.com/luxfi/percolator/internal/budget"
	"github.com/luxfi/percolator/internal/codec"
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/xerrors"
	"github.com/luxfi/percolator/slab"
)

// Run dispatches a Router instruction by its leading discriminator byte,
// the same selector-switch shape as slab.Slab.Run, grounded on the
// teacher's dex/module.go Run() method. MultiReserve/MultiCommit are
// charged per-leg (budget.RouteCost) rather than the flat per-instruction
// table every other discriminator uses (spec §5). Run has no MultiCancel
// case: that discriminator is rejected as unknown.
func (r *Router) Run(host hostapi.Host, signers hostapi.SignerSet, input []byte) ([]byte, error) {
	if len(input) < 1 {
		return nil, xerrors.ErrInstructionTooShort
	}
	discr := budget.Discriminator(input[0])
	payload := input[1:]

	switch discr {
	case budget.RouterDeposit:
		if _, err := budget.Cost(discr); err != nil {
			return nil, err
		}
		return nil, r.runDeposit(payload)
	case budget.RouterWithdraw:
		if _, err := budget.Cost(discr); err != nil {
			return nil, err
		}
		return nil, r.runWithdraw(payload)
	case budget.RouterRegisterSlab:
		if _, err := budget.Cost(discr); err != nil {
			return nil, err
		}
		return nil, r.runRegisterSlab(signers, payload)
	case budget.RouterSetSlabEnabled:
		if _, err := budget.Cost(discr); err != nil {
			return nil, err
		}
		return nil, r.runSetSlabEnabled(signers, payload)
	case budget.RouterMultiReserve:
		return r.runMultiReserve(host, discr, payload)
	case budget.RouterMultiCommit:
		return r.runMultiCommit(host, discr, payload)
	default:
		return nil, xerrors.ErrInvalidInstrument.Wrap("unknown router discriminator %d", discr)
	}
}

func (r *Router) runDeposit(p []byte) error {
	if len(p) < 80 {
		return xerrors.ErrInstructionTooShort
	}
	user := codec.IdAt(p, 0)
	mint := codec.IdAt(p, 32)
	amount := fx.U128FromBytes16(codec.Bytes16(p, 64))
	return r.Deposit(user, mint, amount)
}

func (r *Router) runWithdraw(p []byte) error {
	if len(p) < 80 {
		return xerrors.ErrInstructionTooShort
	}
	user := codec.IdAt(p, 0)
	mint := codec.IdAt(p, 32)
	amount := fx.U128FromBytes16(codec.Bytes16(p, 64))
	return r.Withdraw(user, mint, amount)
}

func (r *Router) runRegisterSlab(signers hostapi.SignerSet, p []byte) error {
	if len(p) < 102 {
		return xerrors.ErrInstructionTooShort
	}
	entry := SlabRegistryEntry{
		SlabID:   codec.IdAt(p, 0),
		OracleID: codec.IdAt(p, 32),
		IMRBps:   codec.U16(p, 64),
		MMRBps:   codec.U16(p, 66),
		MaxFeeBps: codec.U16(p, 68),
	}
	copy(entry.CodeVersionHash[:], p[70:102])
	sl, ok := r.Slabs[entry.SlabID]
	if !ok {
		return xerrors.ErrSlabNotRegistered.Wrap("slab instance must be bound before registration")
	}
	return r.RegisterSlab(signers, sl, entry)
}

func (r *Router) runSetSlabEnabled(signers hostapi.SignerSet, p []byte) error {
	if len(p) < 33 {
		return xerrors.ErrInstructionTooShort
	}
	slabID := codec.IdAt(p, 0)
	return r.SetSlabEnabled(signers, slabID, codec.Bool(p, 32))
}

func (r *Router) runMultiReserve(host hostapi.Host, discr budget.Discriminator, p []byte) ([]byte, error) {
	if len(p) < 65 {
		return nil, xerrors.ErrInstructionTooShort
	}
	user := codec.IdAt(p, 0)
	mint := codec.IdAt(p, 32)
	n := int(p[64])
	if _, err := budget.RouteCost(discr, n); err != nil {
		return nil, err
	}
	off := 65
	plan := make([]RouteStep, 0, n)
	for i := 0; i < n; i++ {
		if len(p) < off+51 {
			return nil, xerrors.ErrInstructionTooShort
		}
		slabID := codec.IdAt(p, off)
		instIdx := codec.U16(p, off+32)
		side := slab.Side(p[off+34])
		qty := codec.I64(p, off+35)
		limitPx := codec.I64(p, off+43)
		plan = append(plan, RouteStep{SlabID: slabID, InstrumentIdx: instIdx, Side: side, Qty: qty, LimitPx: limitPx})
		off += 51
	}

	route, err := r.MultiReserve(host, user, mint, plan)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	codec.PutU64(out, 0, route.RouteID)
	return out, nil
}

func (r *Router) runMultiCommit(host hostapi.Host, discr budget.Discriminator, p []byte) ([]byte, error) {
	if len(p) < 8 {
		return nil, xerrors.ErrInstructionTooShort
	}
	routeID := codec.U64(p, 0)
	route, ok := r.Routes[routeID]
	if !ok {
		return nil, xerrors.ErrRouteNotFound
	}
	if _, err := budget.RouteCost(discr, len(route.Manifest)); err != nil {
		return nil, err
	}
	receipts, err := r.MultiCommit(host, routeID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	codec.PutU64(out, 0, uint64(len(receipts)))
	return out, nil
}
