// Package bignum implements the arbitrary-precision rational arithmetic
// used by constant folding (opt) and literal evaluation at the IR/VM
// boundary. A Num is always kept in canonical form: numerator and
// denominator share no common factor and the denominator is positive.
package bignum

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"lukechampine.com/uint128"
)

// Num is a canonical arbitrary-precision rational number.
//
// Small values that fit the uint128 fast path are kept there; once an
// operation would overflow, the value is promoted to the big.Rat tail
// and stays there (we never demote back down, mirroring the GMP mpq_t
// the original BigNum type wraps: once allocated, an mpq_t keeps its
// limb storage).
type Num struct {
	neg      bool
	num, den uint128.Uint128 // only meaningful when big == nil
	big      *big.Rat
}

// Zero is the additive identity.
var Zero = Num{num: uint128.Zero, den: uint128.From64(1)}

func fromInt64(v int64) Num {
	if v < 0 {
		return Num{neg: true, num: uint128.From64(uint64(-v)), den: uint128.From64(1)}
	}
	return Num{num: uint128.From64(uint64(v)), den: uint128.From64(1)}
}

// FromInt64 constructs a Num from a signed machine integer.
func FromInt64(v int64) Num { return fromInt64(v) }

// FromUint64 constructs a Num from an unsigned machine integer.
func FromUint64(v uint64) Num {
	return Num{num: uint128.From64(v), den: uint128.From64(1)}
}

// FromFloat64 constructs a Num representing the exact binary value of
// the given double (numerator/denominator chosen from the IEEE-754
// mantissa/exponent), matching mpq_set_d's exactness guarantee.
func FromFloat64(f float64) Num {
	r := new(big.Rat).SetFloat64(f)
	if r == nil {
		return Zero
	}
	return fromBigRat(r)
}

func fromBigRat(r *big.Rat) Num {
	n := Num{big: r}
	n.canonicalizeBig()
	return n
}

func (n *Num) canonicalizeBig() {
	if n.big != nil && n.big.Sign() == 0 {
		n.big = new(big.Rat) // 0/1
	}
}

func (n Num) isBig() bool { return n.big != nil }

func (n Num) asBigRat() *big.Rat {
	if n.big != nil {
		return n.big
	}
	num := new(big.Int).SetBytes(u128Bytes(n.num))
	den := new(big.Int).SetBytes(u128Bytes(n.den))
	if n.neg {
		num.Neg(num)
	}
	return new(big.Rat).SetFrac(num, den)
}

func u128Bytes(v uint128.Uint128) []byte {
	b := v.Big()
	return b.Bytes()
}

// promote forces both operands into big.Rat form. Used whenever a
// uint128 fast-path operation would overflow.
func promote(a, b Num) (*big.Rat, *big.Rat) {
	return a.asBigRat(), b.asBigRat()
}

func gcdU128(a, b uint128.Uint128) uint128.Uint128 {
	for !b.IsZero() {
		a, b = b, modU128(a, b)
	}
	return a
}

func modU128(a, b uint128.Uint128) uint128.Uint128 {
	q := a.Div(b)
	return a.Sub(q.Mul(b))
}

func (n *Num) canonicalizeSmall() {
	if n.big != nil {
		return
	}
	if n.num.IsZero() {
		n.neg = false
		n.den = uint128.From64(1)
		return
	}
	g := gcdU128(n.num, n.den)
	if !g.Equals(uint128.From64(1)) && !g.IsZero() {
		n.num = n.num.Div(g)
		n.den = n.den.Div(g)
	}
}

// mulOverflowsU128 reports whether a*b overflows 128 bits.
func mulOverflowsU128(a, b uint128.Uint128) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	hi, _ := bits128Mul(a, b)
	return !hi.IsZero()
}

// bits128Mul returns the 256-bit product of a*b split as (hi, lo).
// Implemented via promotion through math/big since uint128 has no
// widening multiply; used only to detect overflow, not on the hot path.
func bits128Mul(a, b uint128.Uint128) (hi, lo uint128.Uint128) {
	prod := new(big.Int).Mul(a.Big(), b.Big())
	bs := prod.Bytes()
	if len(bs) <= 16 {
		return uint128.Zero, uint128.FromBig(prod)
	}
	full := make([]byte, 32)
	copy(full[32-len(bs):], bs)
	hi = uint128.FromBytesBE(full[:16])
	lo = uint128.FromBytesBE(full[16:])
	return hi, lo
}

// Add returns a+b in canonical form.
func Add(a, b Num) Num {
	if a.isBig() || b.isBig() {
		return fromBigRat(new(big.Rat).Add(a.asBigRat(), b.asBigRat()))
	}
	// a.num/a.den + b.num/b.den = (a.num*b.den ± b.num*a.den) / (a.den*b.den)
	if mulOverflowsU128(a.num, b.den) || mulOverflowsU128(b.num, a.den) || mulOverflowsU128(a.den, b.den) {
		ra, rb := promote(a, b)
		return fromBigRat(new(big.Rat).Add(ra, rb))
	}
	lhs := a.num.Mul(b.den)
	rhs := b.num.Mul(a.den)
	den := a.den.Mul(b.den)
	var num uint128.Uint128
	var neg bool
	switch {
	case a.neg == b.neg:
		num = lhs.Add(rhs)
		neg = a.neg
	case lhs.Cmp(rhs) >= 0:
		num = lhs.Sub(rhs)
		neg = a.neg
	default:
		num = rhs.Sub(lhs)
		neg = b.neg
	}
	r := Num{neg: neg, num: num, den: den}
	r.canonicalizeSmall()
	return r
}

// Sub returns a-b.
func Sub(a, b Num) Num { return Add(a, Neg(b)) }

// Neg returns -a.
func Neg(a Num) Num {
	if a.isBig() {
		return fromBigRat(new(big.Rat).Neg(a.big))
	}
	if a.num.IsZero() {
		return a
	}
	a.neg = !a.neg
	return a
}

// Mul returns a*b.
func Mul(a, b Num) Num {
	if a.isBig() || b.isBig() {
		return fromBigRat(new(big.Rat).Mul(a.asBigRat(), b.asBigRat()))
	}
	if mulOverflowsU128(a.num, b.num) || mulOverflowsU128(a.den, b.den) {
		ra, rb := promote(a, b)
		return fromBigRat(new(big.Rat).Mul(ra, rb))
	}
	r := Num{neg: a.neg != b.neg, num: a.num.Mul(b.num), den: a.den.Mul(b.den)}
	r.canonicalizeSmall()
	return r
}

// ErrDivByZero is returned by Div when the divisor is zero.
var ErrDivByZero = errors.New("bignum: division by zero")

// Div returns a/b, or ErrDivByZero if b is zero.
func Div(a, b Num) (Num, error) {
	if b.IsZero() {
		return Zero, ErrDivByZero
	}
	if a.isBig() || b.isBig() {
		rb := b.asBigRat()
		return fromBigRat(new(big.Rat).Quo(a.asBigRat(), rb)), nil
	}
	if mulOverflowsU128(a.num, b.den) || mulOverflowsU128(a.den, b.num) {
		ra, rb := promote(a, b)
		return fromBigRat(new(big.Rat).Quo(ra, rb)), nil
	}
	r := Num{neg: a.neg != b.neg, num: a.num.Mul(b.den), den: a.den.Mul(b.num)}
	r.canonicalizeSmall()
	return r, nil
}

// IsZero reports whether n is exactly zero.
func (n Num) IsZero() bool {
	if n.isBig() {
		return n.big.Sign() == 0
	}
	return n.num.IsZero()
}

// Cmp returns -1, 0, or 1 as n is less than, equal to, or greater than m.
func Cmp(n, m Num) int {
	if n.isBig() || m.isBig() {
		return n.asBigRat().Cmp(m.asBigRat())
	}
	lhs := n.num.Mul(m.den)
	rhs := m.num.Mul(n.den)
	var cmp int
	switch {
	case lhs.Cmp(rhs) < 0:
		cmp = -1
	case lhs.Cmp(rhs) > 0:
		cmp = 1
	default:
		cmp = 0
	}
	switch {
	case n.neg && !m.neg:
		return -1
	case !n.neg && m.neg:
		return 1
	case n.neg && m.neg:
		return -cmp
	default:
		return cmp
	}
}

// CompareInt64 compares n against a native signed integer without
// allocating a Num for rhs, mirroring the original's operator<=>
// overload against long long.
func (n Num) CompareInt64(rhs int64) int { return Cmp(n, FromInt64(rhs)) }

// CompareUint64 compares n against a native unsigned integer.
func (n Num) CompareUint64(rhs uint64) int { return Cmp(n, FromUint64(rhs)) }

// CompareFloat64 compares n against a native double.
func (n Num) CompareFloat64(rhs float64) int { return Cmp(n, FromFloat64(rhs)) }

// IsIntegral reports whether n's denominator is 1.
func (n Num) IsIntegral() bool {
	if n.isBig() {
		return n.big.IsInt()
	}
	return n.den.Equals(uint128.From64(1))
}

// Int64 truncates n toward zero to a signed 64-bit integer.
func (n Num) Int64() int64 {
	if n.isBig() {
		q := new(big.Int).Quo(n.big.Num(), n.big.Denom())
		return q.Int64()
	}
	v := int64(n.num.Div(n.den).Big().Uint64())
	if n.neg {
		return -v
	}
	return v
}

// Uint64 truncates n toward zero to an unsigned 64-bit integer.
func (n Num) Uint64() uint64 {
	if n.isBig() {
		q := new(big.Int).Quo(n.big.Num(), n.big.Denom())
		return q.Uint64()
	}
	return n.num.Div(n.den).Big().Uint64()
}

// Float64 rounds n to the nearest representable double, ties to even.
func (n Num) Float64() float64 {
	f, _ := n.asBigRat().Float64()
	return f
}

// RepresentableAsInt64 reports whether n is integral and fits in an
// int64 without loss, the Go analogue of representableAs<T>().
func (n Num) RepresentableAsInt64() bool {
	if !n.IsIntegral() {
		return false
	}
	bi := new(big.Int).Quo(n.asBigRat().Num(), n.asBigRat().Denom())
	return bi.IsInt64()
}

// RepresentableAsUint64 reports whether n is integral, non-negative,
// and fits in a uint64 without loss.
func (n Num) RepresentableAsUint64() bool {
	if !n.IsIntegral() || n.neg {
		return false
	}
	bi := new(big.Int).Quo(n.asBigRat().Num(), n.asBigRat().Denom())
	return bi.IsUint64()
}

// RepresentableAsFloat64 reports whether n round-trips losslessly
// through a float64 (Float64 then back equals n exactly).
func (n Num) RepresentableAsFloat64() bool {
	f := n.Float64()
	back := FromFloat64(f)
	return Cmp(n, back) == 0
}

// String renders n as "num" for integers or "num/den" otherwise.
func (n Num) String() string {
	r := n.asBigRat()
	if r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}

// ParseString converts s to a Num. Leading/trailing whitespace is
// ignored. If s contains a '.', it is parsed as a floating point
// literal and must not carry a base prefix. If s contains a '/', it is
// parsed as a "num/den" fraction (the form String produces for
// non-integers) and base must be 0. Otherwise base selects the
// radix: 0 auto-detects from a 0x/0X (hex), 0b/0B (binary), leading 0
// (octal) prefix, decimal otherwise; base must be 0 or in [2,16].
func ParseString(s string, base int) (Num, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, errors.New("bignum: empty string")
	}
	if strings.ContainsRune(s, '.') {
		if base != 0 {
			return Zero, errors.New("bignum: base specifier not allowed with floating point literal")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Zero, errors.Wrapf(err, "bignum: parse float %q", s)
		}
		return FromFloat64(f), nil
	}
	if strings.ContainsRune(s, '/') {
		if base != 0 {
			return Zero, errors.New("bignum: base specifier not allowed with fraction literal")
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return Zero, fmt.Errorf("bignum: invalid fraction %q", s)
		}
		return fromBigRat(r), nil
	}
	neg := false
	rest := s
	if strings.HasPrefix(rest, "-") {
		neg = true
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "+") {
		rest = rest[1:]
	}
	radix := base
	if radix == 0 {
		switch {
		case strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0X"):
			radix = 16
			rest = rest[2:]
		case strings.HasPrefix(rest, "0b") || strings.HasPrefix(rest, "0B"):
			radix = 2
			rest = rest[2:]
		case strings.HasPrefix(rest, "0") && len(rest) > 1:
			radix = 8
			rest = rest[1:]
		default:
			radix = 10
		}
	} else if radix < 2 || radix > 16 {
		return Zero, fmt.Errorf("bignum: invalid base %d", base)
	}
	bi, ok := new(big.Int).SetString(rest, radix)
	if !ok {
		return Zero, fmt.Errorf("bignum: invalid numeral %q (base %d)", s, radix)
	}
	if neg {
		bi.Neg(bi)
	}
	return fromBigRat(new(big.Rat).SetInt(bi)), nil
}
