// internal/math/fixedpoint.go
package math

import (
	"encoding/json"
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
)

// Uint128 is an unsigned 128-bit integer. The zero value is 0.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Int128 is a signed 128-bit integer in two's complement. The zero value is 0.
type Int128 struct {
	Hi uint64
	Lo uint64
}

var (
	MaxUint128 = Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	MaxInt128  = Int128{Hi: 1<<63 - 1, Lo: ^uint64(0)}
	MinInt128  = Int128{Hi: 1 << 63, Lo: 0}

	bigMaxUint128 = MaxUint128.Big()
	bigMaxInt128  = MaxInt128.Big()
	bigMinInt128  = MinInt128.Big()
	bigTwo128     = new(big.Int).Lsh(big.NewInt(1), 128)
	bigMask64     = new(big.Int).SetUint64(^uint64(0))
)

// bigPool holds scratch big.Ints for signed intermediate calculations
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	bigPool.Put(v)
}

// U64 widens v to 128 bits.
func U64(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// I64 widens v to 128 bits, sign-extending.
func I64(v int64) Int128 {
	return Int128{Hi: uint64(v >> 63), Lo: uint64(v)}
}

// ============================================================
// Uint128
// ============================================================

func (u Uint128) IsZero() bool { return u.Hi == 0 && u.Lo == 0 }

func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

func (u Uint128) Lt(v Uint128) bool { return u.Cmp(v) < 0 }
func (u Uint128) Gt(v Uint128) bool { return u.Cmp(v) > 0 }

func (u Uint128) u256() *uint256.Int {
	return &uint256.Int{u.Lo, u.Hi, 0, 0}
}

// Add returns u + v or ErrMathError on overflow.
func (u Uint128) Add(v Uint128) (Uint128, error) {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, carry := bits.Add64(u.Hi, v.Hi, carry)
	if carry != 0 {
		return Uint128{}, overflowf("%s + %s", u, v)
	}
	return Uint128{Hi: hi, Lo: lo}, nil
}

// Sub returns u - v or ErrMathError on underflow.
func (u Uint128) Sub(v Uint128) (Uint128, error) {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, borrow := bits.Sub64(u.Hi, v.Hi, borrow)
	if borrow != 0 {
		return Uint128{}, overflowf("%s - %s", u, v)
	}
	return Uint128{Hi: hi, Lo: lo}, nil
}

// Mul returns u * v or ErrMathError when the product exceeds 128 bits.
func (u Uint128) Mul(v Uint128) (Uint128, error) {
	p := new(uint256.Int).Mul(u.u256(), v.u256())
	if p[2] != 0 || p[3] != 0 {
		return Uint128{}, overflowf("%s * %s", u, v)
	}
	return Uint128{Hi: p[1], Lo: p[0]}, nil
}

// Div returns u / v truncated, or ErrDivideByZero.
func (u Uint128) Div(v Uint128) (Uint128, error) {
	if v.IsZero() {
		return Uint128{}, divideByZero(u)
	}
	q := new(uint256.Int).Div(u.u256(), v.u256())
	return Uint128{Hi: q[1], Lo: q[0]}, nil
}

// Min returns the smaller of u and v.
func (u Uint128) Min(v Uint128) Uint128 {
	if u.Lt(v) {
		return u
	}
	return v
}

func (u Uint128) Max(v Uint128) Uint128 {
	if u.Gt(v) {
		return u
	}
	return v
}

func (u Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

func (u Uint128) String() string {
	if u.Hi == 0 {
		return strconv.FormatUint(u.Lo, 10)
	}
	return u.Big().String()
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	b, err := parseJSONInteger(data)
	if err != nil {
		return err
	}
	v, err := Uint128FromBig(b)
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// ============================================================
// Int128
// ============================================================

func (i Int128) IsZero() bool     { return i.Hi == 0 && i.Lo == 0 }
func (i Int128) IsNegative() bool { return int64(i.Hi) < 0 }

// Sign returns -1, 0 or +1.
func (i Int128) Sign() int {
	switch {
	case i.IsNegative():
		return -1
	case i.IsZero():
		return 0
	}
	return 1
}

func (i Int128) Cmp(j Int128) int {
	switch {
	case int64(i.Hi) < int64(j.Hi):
		return -1
	case int64(i.Hi) > int64(j.Hi):
		return 1
	case i.Lo < j.Lo:
		return -1
	case i.Lo > j.Lo:
		return 1
	}
	return 0
}

// Add returns i + j or ErrMathError on overflow.
func (i Int128) Add(j Int128) (Int128, error) {
	lo, carry := bits.Add64(i.Lo, j.Lo, 0)
	hi, _ := bits.Add64(i.Hi, j.Hi, carry)
	r := Int128{Hi: hi, Lo: lo}
	// Overflow iff both operands share a sign that the result does not.
	if i.IsNegative() == j.IsNegative() && r.IsNegative() != i.IsNegative() {
		return Int128{}, overflowf("%s + %s", i, j)
	}
	return r, nil
}

// Sub returns i - j or ErrMathError on overflow.
func (i Int128) Sub(j Int128) (Int128, error) {
	lo, borrow := bits.Sub64(i.Lo, j.Lo, 0)
	hi, _ := bits.Sub64(i.Hi, j.Hi, borrow)
	r := Int128{Hi: hi, Lo: lo}
	if i.IsNegative() != j.IsNegative() && r.IsNegative() != i.IsNegative() {
		return Int128{}, overflowf("%s - %s", i, j)
	}
	return r, nil
}

// Neg returns -i. Negating MinInt128 overflows.
func (i Int128) Neg() (Int128, error) {
	if i == MinInt128 {
		return Int128{}, overflowf("-(%s)", i)
	}
	lo, borrow := bits.Sub64(0, i.Lo, 0)
	hi, _ := bits.Sub64(0, i.Hi, borrow)
	return Int128{Hi: hi, Lo: lo}, nil
}

// Mul returns i * j or ErrMathError when the product leaves the int128 range.
func (i Int128) Mul(j Int128) (Int128, error) {
	p, a, b, tmp := getBig(), getBig(), getBig(), getBig()
	defer func() { putBig(p); putBig(a); putBig(b); putBig(tmp) }()
	p.Mul(i.setBig(a, tmp), j.setBig(b, tmp))
	r, err := Int128FromBig(p)
	if err != nil {
		return Int128{}, overflowf("%s * %s", i, j)
	}
	return r, nil
}

// Div returns i / j truncated toward zero, or ErrDivideByZero.
func (i Int128) Div(j Int128) (Int128, error) {
	if j.IsZero() {
		return Int128{}, divideByZero(i)
	}
	q, a, b, tmp := getBig(), getBig(), getBig(), getBig()
	defer func() { putBig(q); putBig(a); putBig(b); putBig(tmp) }()
	q.Quo(i.setBig(a, tmp), j.setBig(b, tmp))
	r, err := Int128FromBig(q)
	if err != nil {
		return Int128{}, overflowf("%s / %s", i, j)
	}
	return r, nil
}

// UnsignedAbs returns |i|. It cannot fail: |MinInt128| fits in 128 unsigned bits.
func (i Int128) UnsignedAbs() Uint128 {
	if !i.IsNegative() {
		return Uint128{Hi: i.Hi, Lo: i.Lo}
	}
	lo, borrow := bits.Sub64(0, i.Lo, 0)
	hi, _ := bits.Sub64(0, i.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}
}

func (i Int128) Big() *big.Int {
	return i.setBig(new(big.Int), new(big.Int))
}

// setBig writes i into b, using tmp as scratch for the low word.
func (i Int128) setBig(b, tmp *big.Int) *big.Int {
	b.SetUint64(i.Hi)
	b.Lsh(b, 64)
	b.Or(b, tmp.SetUint64(i.Lo))
	if i.IsNegative() {
		b.Sub(b, bigTwo128)
	}
	return b
}

func (i Int128) String() string {
	return i.Big().String()
}

func (i Int128) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Int128) UnmarshalJSON(data []byte) error {
	b, err := parseJSONInteger(data)
	if err != nil {
		return err
	}
	v, err := Int128FromBig(b)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// parseJSONInteger accepts both "123" and 123.
func parseJSONInteger(data []byte) (*big.Int, error) {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return b, nil
}
