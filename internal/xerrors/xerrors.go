// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xerrors is Percolator's tagged error taxonomy. Every core
// operation returns a single *Error discriminant on failure — never a
// chained/wrapped error — so callers (and the Router's unwind logic) can
// switch on Code without string matching. The grouping below mirrors the
// teacher's own per-category `var (...)` error blocks in dex/types.go,
// dex/liquidation.go and dex/margin.go, generalized from bare `error`
// sentinels into a discriminant enum per spec §7.
package xerrors

import "fmt"

// Code is a single error discriminant. No operation returns more than one.
type Code uint16

//go:generate stringer -type=Code
const (
	_ Code = iota

	// Validation
	CodeInvalidInstrument
	CodeInvalidSide
	CodeInvalidPrice
	CodeInvalidQty
	CodeTickMisalignment
	CodeLotMisalignment
	CodeMinOrderSize
	CodeInstructionTooShort

	// Authority
	CodeUnauthorized
	CodeSignerMissing
	CodeInvalidAccountOwner
	CodeSelfLiquidation

	// State
	CodeBookFull
	CodeReservationFull
	CodeSliceFull
	CodeOrderNotFound
	CodeReservationNotFound
	CodeOrderReserved
	CodeHalted
	CodeFreezeViolation
	CodeBatchChanged

	// Anti-toxicity
	CodeKillBandExceeded
	CodeOracleStale
	CodeSeqnoMismatch

	// Time / capability
	CodeExpired
	CodeCapScopeMismatch
	CodeCapExhausted
	CodeCapBurned

	// Accounting
	CodeOverflow
	CodeInsufficientEscrow
	CodeInsufficientVault
	CodeUndercollateralized
	CodePortfolioInsufficientMargin
	CodeConservationViolation

	// Crisis
	CodeWithdrawalOnly
	CodeWarmupPaused
	CodeInsuranceFloor

	// Router / Slab state not otherwise covered by spec §7 but required by
	// the instruction set (registry lookups, route bookkeeping).
	CodeSlabNotRegistered
	CodeSlabDisabled
	CodeRouteNotFound
	CodeAccountNotFound
	CodeInstrumentNotFound
)

// Error is the single error type returned by every Percolator core
// operation. It is never wrapped or chained — a caller switches on Code.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Code.String()
	}
	return e.msg
}

// Is reports whether err carries the same Code, so callers can use
// errors.Is(err, xerrors.ErrOracleStale) without a type assertion.
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	return ok && o.Code == e.Code
}

func newErr(code Code) *Error { return &Error{Code: code} }

// Wrap attaches dynamic context (e.g. the exact field values involved) to a
// sentinel without changing its Code — the caller-visible discriminant
// never changes, only the message.
func (e *Error) Wrap(format string, args ...any) *Error {
	return &Error{Code: e.Code, msg: e.Code.String() + ": " + fmt.Sprintf(format, args...)}
}

// String renders a human label for a Code; used as the default Error()
// message when no dynamic context was attached.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("xerrors.Code(%d)", uint16(c))
}

var codeNames = map[Code]string{
	CodeInvalidInstrument:          "invalid instrument",
	CodeInvalidSide:                "invalid side",
	CodeInvalidPrice:               "invalid price",
	CodeInvalidQty:                 "invalid quantity",
	CodeTickMisalignment:           "price not aligned to tick",
	CodeLotMisalignment:            "quantity not aligned to lot",
	CodeMinOrderSize:               "quantity below minimum order size",
	CodeInstructionTooShort:        "instruction payload too short",
	CodeUnauthorized:               "unauthorized",
	CodeSignerMissing:              "required signer missing",
	CodeInvalidAccountOwner:        "account owner mismatch",
	CodeSelfLiquidation:            "liquidator and victim must differ",
	CodeBookFull:                   "order book pool exhausted",
	CodeReservationFull:            "reservation pool exhausted",
	CodeSliceFull:                  "slice pool exhausted",
	CodeOrderNotFound:              "order not found",
	CodeReservationNotFound:        "reservation not found",
	CodeOrderReserved:              "order has an active reservation",
	CodeHalted:                     "slab is halted",
	CodeFreezeViolation:            "freeze window: only designated makers may post",
	CodeBatchChanged:               "batch id changed since reserve",
	CodeKillBandExceeded:           "oracle drift exceeds kill band",
	CodeOracleStale:                "oracle timestamp too old",
	CodeSeqnoMismatch:              "client seqno does not match quote cache",
	CodeExpired:                    "reservation or capability expired",
	CodeCapScopeMismatch:           "capability scope mismatch",
	CodeCapExhausted:               "capability amount_remaining insufficient",
	CodeCapBurned:                  "capability already burned",
	CodeOverflow:                   "arithmetic overflow",
	CodeInsufficientEscrow:         "escrow balance insufficient",
	CodeInsufficientVault:          "vault free balance insufficient",
	CodeUndercollateralized:        "position undercollateralized",
	CodePortfolioInsufficientMargin: "portfolio margin check failed",
	CodeConservationViolation:      "conservation invariant violated",
	CodeWithdrawalOnly:             "crisis lockdown: withdrawals only",
	CodeWarmupPaused:               "pnl warmup conversion paused",
	CodeInsuranceFloor:             "insurance fund at or below protected floor",
	CodeSlabNotRegistered:          "slab not in registry",
	CodeSlabDisabled:               "slab disabled in registry",
	CodeRouteNotFound:              "route not found",
	CodeAccountNotFound:            "account not found",
	CodeInstrumentNotFound:         "instrument not found",
}

// Sentinel values, one per Code, grouped exactly as spec §7 groups them.

// Errors - Validation
var (
	ErrInvalidInstrument   = newErr(CodeInvalidInstrument)
	ErrInvalidSide         = newErr(CodeInvalidSide)
	ErrInvalidPrice        = newErr(CodeInvalidPrice)
	ErrInvalidQty          = newErr(CodeInvalidQty)
	ErrTickMisalignment    = newErr(CodeTickMisalignment)
	ErrLotMisalignment     = newErr(CodeLotMisalignment)
	ErrMinOrderSize        = newErr(CodeMinOrderSize)
	ErrInstructionTooShort = newErr(CodeInstructionTooShort)
)

// Errors - Authority
var (
	ErrUnauthorized       = newErr(CodeUnauthorized)
	ErrSignerMissing      = newErr(CodeSignerMissing)
	ErrInvalidAccountOwner = newErr(CodeInvalidAccountOwner)
	ErrSelfLiquidation    = newErr(CodeSelfLiquidation)
)

// Errors - State
var (
	ErrBookFull            = newErr(CodeBookFull)
	ErrReservationFull     = newErr(CodeReservationFull)
	ErrSliceFull           = newErr(CodeSliceFull)
	ErrOrderNotFound       = newErr(CodeOrderNotFound)
	ErrReservationNotFound = newErr(CodeReservationNotFound)
	ErrOrderReserved       = newErr(CodeOrderReserved)
	ErrHalted              = newErr(CodeHalted)
	ErrFreezeViolation     = newErr(CodeFreezeViolation)
	ErrBatchChanged        = newErr(CodeBatchChanged)
)

// Errors - Anti-toxicity
var (
	ErrKillBandExceeded = newErr(CodeKillBandExceeded)
	ErrOracleStale      = newErr(CodeOracleStale)
	ErrSeqnoMismatch    = newErr(CodeSeqnoMismatch)
)

// Errors - Time / capability
var (
	ErrExpired         = newErr(CodeExpired)
	ErrCapScopeMismatch = newErr(CodeCapScopeMismatch)
	ErrCapExhausted    = newErr(CodeCapExhausted)
	ErrCapBurned       = newErr(CodeCapBurned)
)

// Errors - Accounting
var (
	ErrOverflow                   = newErr(CodeOverflow)
	ErrInsufficientEscrow         = newErr(CodeInsufficientEscrow)
	ErrInsufficientVault          = newErr(CodeInsufficientVault)
	ErrUndercollateralized        = newErr(CodeUndercollateralized)
	ErrPortfolioInsufficientMargin = newErr(CodePortfolioInsufficientMargin)
	ErrConservationViolation      = newErr(CodeConservationViolation)
)

// Errors - Crisis
var (
	ErrWithdrawalOnly = newErr(CodeWithdrawalOnly)
	ErrWarmupPaused   = newErr(CodeWarmupPaused)
	ErrInsuranceFloor = newErr(CodeInsuranceFloor)
)

// Errors - Router bookkeeping
var (
	ErrSlabNotRegistered = newErr(CodeSlabNotRegistered)
	ErrSlabDisabled      = newErr(CodeSlabDisabled)
	ErrRouteNotFound     = newErr(CodeRouteNotFound)
	ErrAccountNotFound   = newErr(CodeAccountNotFound)
	ErrInstrumentNotFound = newErr(CodeInstrumentNotFound)
)
