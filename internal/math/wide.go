package math

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// WideBits is the ceiling for intermediate products. Formulas whose
// intermediates could exceed 128 bits go through this path instead of
// native multiplication.
const WideBits = 192

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncate (default)
	RoundUp
)

// WideProduct multiplies factors in 192-bit arithmetic.
func WideProduct(factors ...Uint128) (*uint256.Int, error) {
	acc := uint256.NewInt(1)
	for _, f := range factors {
		var overflow bool
		acc, overflow = new(uint256.Int).MulOverflow(acc, f.u256())
		if overflow || acc.BitLen() > WideBits {
			return nil, errorsmod.Wrapf(ErrBnConversion, "product exceeds %d bits", WideBits)
		}
	}
	return acc, nil
}

// WideQuotient divides num by den and narrows the result back to 128 bits.
func WideQuotient(num, den *uint256.Int, mode RoundingMode) (Uint128, error) {
	if den.IsZero() {
		return Uint128{}, errorsmod.Wrapf(ErrDivideByZero, "%s / 0", num.Dec())
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(num, den, r)
	if mode == RoundUp && !r.IsZero() {
		q.AddUint64(q, 1)
	}
	if q[2] != 0 || q[3] != 0 {
		return Uint128{}, errorsmod.Wrapf(ErrBnConversion, "%s does not fit in u128", q.Dec())
	}
	return Uint128{Hi: q[1], Lo: q[0]}, nil
}

// MulDiv returns a*b/c with a 192-bit intermediate.
func MulDiv(a, b, c Uint128) (Uint128, error) {
	return MulDivRounding(a, b, c, RoundDown)
}

func MulDivRounding(a, b, c Uint128, mode RoundingMode) (Uint128, error) {
	num, err := WideProduct(a, b)
	if err != nil {
		return Uint128{}, err
	}
	return WideQuotient(num, c.u256(), mode)
}

// MulDivSigned returns a*b/c truncated toward zero.
func MulDivSigned(a Int128, b, c Uint128) (Int128, error) {
	mag, err := MulDiv(a.UnsignedAbs(), b, c)
	if err != nil {
		return Int128{}, err
	}
	return applySign(mag, a.IsNegative())
}

// applySign turns a magnitude into a signed value.
func applySign(mag Uint128, negative bool) (Int128, error) {
	if negative && mag == (Uint128{Hi: 1 << 63}) {
		return MinInt128, nil
	}
	v, err := CastToInt128(mag)
	if err != nil {
		return Int128{}, err
	}
	if negative {
		return v.Neg()
	}
	return v, nil
}

// WideSqrt returns floor(sqrt(x)) narrowed to 128 bits.
func WideSqrt(x *uint256.Int) (Uint128, error) {
	return WideQuotient(new(uint256.Int).Sqrt(x), uint256.NewInt(1), RoundDown)
}
