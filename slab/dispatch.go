// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package slab

import (
	"github.com/luxfi/percolator/internal/budget"
	"github.com/luxfi/percolator/internal/codec"
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/xerrors"
)

// Run dispatches one discriminator-prefixed instruction (spec §6.1, §6.2),
// the generalization of the teacher's DEXContract.Run 4-byte-selector
// switch (dex/module.go) to a 1-byte discriminator over a Slab's own
// instruction set, charged against internal/budget's compute-unit table
// instead of EVM gas.
func (s *Slab) Run(host hostapi.Host, signers hostapi.SignerSet, input []byte) ([]byte, error) {
	if len(input) < 1 {
		return nil, xerrors.ErrInstructionTooShort
	}
	discr := budget.Discriminator(input[0])
	payload := input[1:]

	if _, err := budget.Cost(discr); err != nil {
		return nil, err
	}

	switch discr {
	case budget.SlabPlaceOrder:
		return s.runPlaceOrder(host, signers, payload)
	case budget.SlabCancelOrder:
		return nil, s.runCancelOrder(signers, payload)
	case budget.SlabReserve:
		return s.runReserve(host, payload)
	case budget.SlabCommit:
		return s.runCommit(host, payload)
	case budget.SlabCancelReservation:
		return nil, s.runCancel(payload)
	case budget.SlabBatchOpen:
		return nil, s.runBatchOpen(signers, payload)
	case budget.SlabUpdateFunding:
		return nil, s.runUpdateFunding(signers, payload)
	case budget.SlabLiquidate:
		return s.runLiquidate(host, signers, payload)
	default:
		return nil, xerrors.ErrInvalidInstrument.Wrap("unknown slab discriminator %d", discr)
	}
}

func (s *Slab) runPlaceOrder(host hostapi.Host, signers hostapi.SignerSet, p []byte) ([]byte, error) {
	if len(p) < 21 {
		return nil, xerrors.ErrInstructionTooShort
	}
	accountIdx := codec.U32(p, 0)
	instrumentIdx := codec.U16(p, 4)
	price := codec.I64(p, 6)
	qty := codec.I64(p, 14)
	side := Side(p[20])

	orderID, err := s.PlaceOrder(host, signers, accountIdx, instrumentIdx, side, price, qty)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	codec.PutU64(out, 0, orderID)
	return out, nil
}

func (s *Slab) runCancelOrder(signers hostapi.SignerSet, p []byte) error {
	if len(p) < 8 {
		return xerrors.ErrInstructionTooShort
	}
	return s.CancelOrder(signers, codec.U64(p, 0))
}

func (s *Slab) runReserve(host hostapi.Host, p []byte) ([]byte, error) {
	if len(p) < 47 {
		return nil, xerrors.ErrInstructionTooShort
	}
	in := ReserveInput{
		AccountIdx:    codec.U32(p, 0),
		InstrumentIdx: codec.U16(p, 4),
		Side:          Side(p[6]),
		Qty:           codec.I64(p, 7),
		LimitPx:       codec.I64(p, 15),
		OracleIndexPx: codec.I64(p, 23),
		OracleMarkPx:  codec.I64(p, 31),
		OracleTs:      codec.I64(p, 39),
		ClientSeqno:   0,
	}
	if len(p) >= 55 {
		in.ClientSeqno = codec.U64(p, 47)
	}
	res, err := s.Reserve(host, in)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 24)
	codec.PutU64(out, 0, res.HoldID)
	codec.PutI64(out, 8, res.FilledQty)
	codec.PutI64(out, 16, res.VWAP)
	return out, nil
}

func (s *Slab) runCommit(host hostapi.Host, p []byte) ([]byte, error) {
	if len(p) < 8 {
		return nil, xerrors.ErrInstructionTooShort
	}
	in := CommitInput{HoldID: codec.U64(p, 0)}
	if len(p) >= 16 {
		in.OracleIndexPx = codec.I64(p, 8)
	}
	receipt, err := s.Commit(host, in)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	codec.PutI64(out, 0, receipt.FilledQty)
	codec.PutI64(out, 8, receipt.AvgPrice)
	return out, nil
}

func (s *Slab) runCancel(p []byte) error {
	if len(p) < 8 {
		return xerrors.ErrInstructionTooShort
	}
	return s.Cancel(codec.U64(p, 0))
}

func (s *Slab) runBatchOpen(signers hostapi.SignerSet, p []byte) error {
	if !signers.IsSigner(s.Header.LPOwner) && !signers.IsSigner(s.Header.RouterID) {
		return xerrors.ErrUnauthorized
	}
	if len(p) < 8 {
		return xerrors.ErrInstructionTooShort
	}
	s.BatchOpen(codec.I64(p, 0))
	return nil
}

func (s *Slab) runUpdateFunding(signers hostapi.SignerSet, p []byte) error {
	if len(p) < 26 {
		return xerrors.ErrInstructionTooShort
	}
	return s.UpdateFunding(UpdateFundingInput{
		InstrumentIdx: codec.U16(p, 0),
		OracleIndexPx: codec.I64(p, 2),
		OracleMarkPx:  codec.I64(p, 10),
		NowTs:         codec.I64(p, 18),
	})
}

func (s *Slab) runLiquidate(host hostapi.Host, signers hostapi.SignerSet, p []byte) ([]byte, error) {
	if len(p) < 8 {
		return nil, xerrors.ErrInstructionTooShort
	}
	in := LiquidateInput{VictimIdx: codec.U32(p, 0), KeeperIdx: codec.U32(p, 4)}
	if len(p) >= 24 {
		// Optional close-factor override; omitted payloads fall back to
		// defaultCloseFactorBps (spec §4.13 supplement).
		in.CloseFactorBps = codec.I64(p, 8)
		in.MinCloseQty = codec.I64(p, 16)
	}
	res, err := s.Liquidate(host, in, defaultLiquidationFeeBps, host.UnixSeconds())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	codec.PutI64(out, 0, res.ClosedQty)
	return out, nil
}

// defaultLiquidationFeeBps is the keeper's cut of executed liquidation
// notional (spec §4.5).
const defaultLiquidationFeeBps = 50
