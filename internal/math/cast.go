package math

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
)

// Narrowing conversions. None of them truncate: an out-of-range value is
// reported as ErrCastOverflow.

func Uint128FromBig(b *big.Int) (Uint128, error) {
	if b.Sign() < 0 || b.Cmp(bigMaxUint128) > 0 {
		return Uint128{}, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in u128", b)
	}
	lo := new(big.Int).And(b, bigMask64).Uint64()
	hi := new(big.Int).Rsh(b, 64).Uint64()
	return Uint128{Hi: hi, Lo: lo}, nil
}

func Int128FromBig(b *big.Int) (Int128, error) {
	if b.Cmp(bigMinInt128) < 0 || b.Cmp(bigMaxInt128) > 0 {
		return Int128{}, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in i128", b)
	}
	v := new(big.Int).Set(b)
	if v.Sign() < 0 {
		v.Add(v, bigTwo128)
	}
	lo := new(big.Int).And(v, bigMask64).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return Int128{Hi: hi, Lo: lo}, nil
}

// CastToInt128 fails when u > MaxInt128.
func CastToInt128(u Uint128) (Int128, error) {
	if u.Hi>>63 != 0 {
		return Int128{}, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in i128", u)
	}
	return Int128{Hi: u.Hi, Lo: u.Lo}, nil
}

// CastToUint128 fails for negative values.
func CastToUint128(i Int128) (Uint128, error) {
	if i.IsNegative() {
		return Uint128{}, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in u128", i)
	}
	return Uint128{Hi: i.Hi, Lo: i.Lo}, nil
}

func CastUint128ToUint64(u Uint128) (uint64, error) {
	if u.Hi != 0 {
		return 0, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in u64", u)
	}
	return u.Lo, nil
}

func CastUint128ToInt64(u Uint128) (int64, error) {
	if u.Hi != 0 || u.Lo>>63 != 0 {
		return 0, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in i64", u)
	}
	return int64(u.Lo), nil
}

func CastInt128ToInt64(i Int128) (int64, error) {
	// Fits iff the high word is the sign extension of the low word.
	if i.Hi != uint64(int64(i.Lo)>>63) {
		return 0, errorsmod.Wrapf(ErrCastOverflow, "%s does not fit in i64", i)
	}
	return int64(i.Lo), nil
}

func CastInt64ToUint64(v int64) (uint64, error) {
	if v < 0 {
		return 0, errorsmod.Wrapf(ErrCastOverflow, "%d does not fit in u64", v)
	}
	return uint64(v), nil
}

func CastUint64ToInt64(v uint64) (int64, error) {
	if v>>63 != 0 {
		return 0, errorsmod.Wrapf(ErrCastOverflow, "%d does not fit in i64", v)
	}
	return int64(v), nil
}
