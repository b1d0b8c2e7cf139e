// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fx implements Percolator's fixed-point arithmetic: prices and
// quantities are signed 64-bit integers on a shared 1e6 scale (spec §3);
// notional and fee sums are unsigned 128-bit, represented with math/big the
// way the teacher represents every wide value (dex/*.go is pervasively
// *big.Int) — generalized here to a fixed-width checked-arithmetic helper
// rather than arbitrary precision, since the wire layout needs a fixed byte
// width.
package fx

import (
	"math/big"

	"github.com/luxfi/percolator/internal/xerrors"
)

// Scale is the fixed-point denominator shared by every price and quantity.
const Scale int64 = 1_000_000

// BpsDenom is the basis-point denominator used throughout fee/margin math.
const BpsDenom int64 = 10_000

// MaxU128 bounds every accounting sum to 128 bits, matching the wire width.
var MaxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// U128 is an unsigned 128-bit accounting value (notional, fees, capital,
// vault/escrow/cap balances). Backed by math/big per the teacher's
// convention of using *big.Int for every wide ledger sum.
type U128 struct {
	v *big.Int
}

// ZeroU128 returns the additive identity.
func ZeroU128() U128 { return U128{v: big.NewInt(0)} }

// NewU128FromI64 lifts a non-negative i64 into U128.
func NewU128FromI64(x int64) (U128, error) {
	if x < 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("negative value %d lifted to u128", x)
	}
	return U128{v: big.NewInt(x)}, nil
}

func (u U128) big() *big.Int {
	if u.v == nil {
		return big.NewInt(0)
	}
	return u.v
}

// Add returns u+w, checked against the 128-bit ceiling.
func (u U128) Add(w U128) (U128, error) {
	r := new(big.Int).Add(u.big(), w.big())
	if r.Cmp(MaxU128) > 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("u128 add overflow")
	}
	return U128{v: r}, nil
}

// Sub returns u-w; errors (never wraps) if w > u.
func (u U128) Sub(w U128) (U128, error) {
	if u.big().Cmp(w.big()) < 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("u128 sub underflow")
	}
	return U128{v: new(big.Int).Sub(u.big(), w.big())}, nil
}

// Cmp compares u to w (-1, 0, 1).
func (u U128) Cmp(w U128) int { return u.big().Cmp(w.big()) }

// IsZero reports whether u is zero.
func (u U128) IsZero() bool { return u.big().Sign() == 0 }

// MulDivBps computes floor(u * bps / BpsDenom), the shape used throughout
// fee and margin arithmetic (spec §4.2, §4.7).
func (u U128) MulDivBps(bps int64) (U128, error) {
	if bps < 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("negative bps %d", bps)
	}
	r := new(big.Int).Mul(u.big(), big.NewInt(bps))
	r.Quo(r, big.NewInt(BpsDenom))
	if r.Cmp(MaxU128) > 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("u128 muldiv overflow")
	}
	return U128{v: r}, nil
}

// Bytes16 encodes u as 16 little-endian bytes (the account-blob wire width).
func (u U128) Bytes16() [16]byte {
	var out [16]byte
	b := u.big().Bytes() // big-endian, no leading zeroes
	for i := 0; i < len(b) && i < 16; i++ {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// U128FromBytes16 decodes 16 little-endian bytes into a U128.
func U128FromBytes16(b [16]byte) U128 {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = b[i]
	}
	return U128{v: new(big.Int).SetBytes(be)}
}

func (u U128) String() string { return u.big().String() }

// I128 is a signed 128-bit accounting value (pnl, cum_funding_snapshot,
// net exposure). Same rationale as U128.
type I128 struct {
	v *big.Int
}

// ZeroI128 returns the additive identity.
func ZeroI128() I128 { return I128{v: big.NewInt(0)} }

// NewI128FromI64 lifts an i64 into I128.
func NewI128FromI64(x int64) I128 { return I128{v: big.NewInt(x)} }

func (i I128) big() *big.Int {
	if i.v == nil {
		return big.NewInt(0)
	}
	return i.v
}

// Add returns i+w.
func (i I128) Add(w I128) I128 { return I128{v: new(big.Int).Add(i.big(), w.big())} }

// Sub returns i-w.
func (i I128) Sub(w I128) I128 { return I128{v: new(big.Int).Sub(i.big(), w.big())} }

// Neg returns -i.
func (i I128) Neg() I128 { return I128{v: new(big.Int).Neg(i.big())} }

// Sign returns -1, 0, or 1.
func (i I128) Sign() int { return i.big().Sign() }

// Cmp compares i to w.
func (i I128) Cmp(w I128) int { return i.big().Cmp(w.big()) }

// IsZero reports whether i is zero.
func (i I128) IsZero() bool { return i.big().Sign() == 0 }

// MulI64 returns i*k, widening the product; used for funding settlement
// (cum_funding delta * position qty) and similar rate*quantity products.
func (i I128) MulI64(k int64) I128 {
	return I128{v: new(big.Int).Mul(i.big(), big.NewInt(k))}
}

// Max0 returns the greater of i and zero — used for equity = max(0, capital+pnl).
func (i I128) Max0() I128 {
	if i.Sign() < 0 {
		return ZeroI128()
	}
	return i
}

// Bytes16 encodes i as 16 little-endian two's-complement bytes.
func (i I128) Bytes16() [16]byte {
	var out [16]byte
	v := i.big()
	if v.Sign() >= 0 {
		b := v.Bytes()
		for k := 0; k < len(b) && k < 16; k++ {
			out[k] = b[len(b)-1-k]
		}
		return out
	}
	// Two's complement for negative values within 128 bits.
	mod := new(big.Int).Lsh(big.NewInt(1), 128)
	twos := new(big.Int).Add(mod, v)
	b := twos.Bytes()
	for k := 0; k < len(b) && k < 16; k++ {
		out[k] = b[len(b)-1-k]
	}
	return out
}

// I128FromBytes16 decodes 16 little-endian two's-complement bytes.
func I128FromBytes16(b [16]byte) I128 {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = b[i]
	}
	v := new(big.Int).SetBytes(be)
	if v.Bit(127) == 1 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		v.Sub(v, mod)
	}
	return I128{v: v}
}

func (i I128) String() string { return i.big().String() }

// CheckedMulI64 multiplies two i64 scaled values and errors on overflow,
// used for qty*price-style notional computation before widening to U128.
func CheckedMulI64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/a != b {
		return 0, xerrors.ErrOverflow.Wrap("i64 mul overflow %d*%d", a, b)
	}
	return r, nil
}

// CheckedAddI64 adds two i64 values and errors on overflow.
func CheckedAddI64(a, b int64) (int64, error) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, xerrors.ErrOverflow.Wrap("i64 add overflow %d+%d", a, b)
	}
	return r, nil
}

// NotionalU128 computes qty*price widened into U128 (both scaled by Scale),
// returning the raw product still scaled by Scale^2 — callers divide by
// Scale once they've accumulated/weighted as needed (VWAP, fee bases).
func NotionalU128(qty, price int64) (U128, error) {
	if qty < 0 || price < 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("notional requires non-negative qty/price")
	}
	r := new(big.Int).Mul(big.NewInt(qty), big.NewInt(price))
	if r.Cmp(MaxU128) > 0 {
		return U128{}, xerrors.ErrOverflow.Wrap("notional overflow")
	}
	return U128{v: r}, nil
}

// ClampI64 clamps v into [lo, hi].
func ClampI64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
