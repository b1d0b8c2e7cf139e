// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"github.com/luxfi/percolator/internal/fx"
	"github.com/luxfi/percolator/internal/xerrors"
)

// maxRoundingSlackPerAccount bounds the one-sided conservation check's tolerance at
// one raw unit per live account, absorbing the floor-division rounding
// ApplyADL and SettleWarmupToCapital perform per account (spec §4.8
// invariant I2).
const maxRoundingSlackPerAccount = 1

// CheckConservation verifies vault + loss_accum >= sum(capital) +
// sum(pnl) + insurance.balance, within maxRoundingSlackPerAccount per live
// account (invariant I2).
// The check is one-sided: the ledger may hold slightly more than accounts
// claim (rounding working in the protocol's favor) but never less.
func (e *Engine) CheckConservation() error {
	sumCapital := fx.ZeroI128()
	sumPnl := fx.ZeroI128()
	live := 0
	for i := range e.Accounts {
		if !e.Accounts[i].InUse {
			continue
		}
		live++
		sumCapital = sumCapital.Add(fx.I128FromBytes16(e.Accounts[i].Capital.Bytes16()))
		sumPnl = sumPnl.Add(e.Accounts[i].Pnl)
	}

	left := fx.I128FromBytes16(e.Vault.Bytes16()).Add(fx.I128FromBytes16(e.LossAccum.Bytes16()))
	right := sumCapital.Add(sumPnl).Add(fx.I128FromBytes16(e.Insurance.Balance.Bytes16()))

	slack := fx.NewI128FromI64(int64(live) * maxRoundingSlackPerAccount)
	if left.Add(slack).Cmp(right) < 0 {
		return xerrors.ErrConservationViolation.Wrap(
			"vault+loss_accum=%s short of capital+pnl+insurance=%s beyond slack=%s",
			left.String(), right.String(), slack.String())
	}
	return nil
}
