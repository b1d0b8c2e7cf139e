// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"go.uber.org/zap"

	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/ids"
	"github.com/luxfi/percolator/internal/xerrors"
	"github.com/luxfi/percolator/slab"
)

// RegisterSlab whitelists a Slab under governance authority, binding the
// live Slab instance MultiReserve/MultiCommit will invoke (spec §3.2). The
// registry entry shape and enabled-flag gate are grounded on
// registry/registry.go's PrecompileInfo table and its ChainPrecompiles
// whitelist-by-key lookup idiom, retargeted from a static precompile
// address allocation to a governance-mutable per-market parameter set.
func (r *Router) RegisterSlab(signers hostapi.SignerSet, sl *slab.Slab, entry SlabRegistryEntry) error {
	if !signers.IsSigner(r.Authority) {
		return xerrors.ErrUnauthorized
	}
	if entry.IMRBps == 0 || entry.MMRBps == 0 || entry.IMRBps <= entry.MMRBps {
		return xerrors.ErrInvalidInstrument.Wrap("imr_bps must exceed mmr_bps and both must be nonzero")
	}
	entry.Enabled = true
	r.Registry[entry.SlabID] = &entry
	r.Slabs[entry.SlabID] = sl
	if r.Log != nil {
		r.Log.Info("slab registered",
			zap.Stringer("slab", entry.SlabID),
			zap.Uint16("imr_bps", entry.IMRBps),
			zap.Uint16("mmr_bps", entry.MMRBps),
		)
	}
	return nil
}

// SetSlabEnabled toggles a registered Slab's tradability without removing
// its registry entry (spec §3.2), the same shape as registry.go's
// IsPrecompileEnabled gate guarding a still-allocated address.
func (r *Router) SetSlabEnabled(signers hostapi.SignerSet, slabID ids.Id, enabled bool) error {
	if !signers.IsSigner(r.Authority) {
		return xerrors.ErrUnauthorized
	}
	entry, ok := r.Registry[slabID]
	if !ok {
		return xerrors.ErrSlabNotRegistered
	}
	entry.Enabled = enabled
	if r.Log != nil {
		r.Log.Info("slab enabled flag changed", zap.Stringer("slab", slabID), zap.Bool("enabled", enabled))
	}
	return nil
}

func (r *Router) lookupEnabledSlab(slabID ids.Id) (*SlabRegistryEntry, *slab.Slab, error) {
	entry, ok := r.Registry[slabID]
	if !ok {
		return nil, nil, xerrors.ErrSlabNotRegistered
	}
	if !entry.Enabled {
		return nil, nil, xerrors.ErrSlabDisabled
	}
	sl, ok := r.Slabs[slabID]
	if !ok {
		return nil, nil, xerrors.ErrSlabNotRegistered
	}
	return entry, sl, nil
}
