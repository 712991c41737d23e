package bignum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/bignum"
)

func TestAddSubRoundTrip(t *testing.T) {
	a := bignum.FromInt64(54)
	b := bignum.FromInt64(24)
	sum := bignum.Add(a, b)
	back := bignum.Sub(sum, b)
	assert.Equal(t, 0, bignum.Cmp(a, back), "(a+b)-b == a")
}

func TestMulDivRoundTrip(t *testing.T) {
	a := bignum.FromInt64(17)
	b := bignum.FromInt64(5)
	prod := bignum.Mul(a, b)
	back, err := bignum.Div(prod, b)
	require.NoError(t, err)
	assert.Equal(t, 0, bignum.Cmp(a, back))
}

func TestDivByZero(t *testing.T) {
	_, err := bignum.Div(bignum.FromInt64(1), bignum.Zero)
	assert.ErrorIs(t, err, bignum.ErrDivByZero)
}

func TestParseStringRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "54", "-24", "0x2a", "0b101", "3.5"} {
		n, err := bignum.ParseString(s, 0)
		require.NoError(t, err, s)
		back, err := bignum.ParseString(n.String(), 0)
		require.NoError(t, err)
		assert.Equal(t, 0, bignum.Cmp(n, back), "fromString(x.toString()) == x for %q", s)
	}
}

func TestIsIntegralAndConversions(t *testing.T) {
	assert.True(t, bignum.FromInt64(5).IsIntegral())
	half, err := bignum.Div(bignum.FromInt64(1), bignum.FromInt64(2))
	require.NoError(t, err)
	assert.False(t, half.IsIntegral())
	assert.True(t, bignum.FromInt64(5).RepresentableAsInt64())
	assert.Equal(t, int64(-6), bignum.FromInt64(-6).Int64())
}

func TestCompareAgainstNative(t *testing.T) {
	n := bignum.FromInt64(10)
	assert.Equal(t, 0, n.CompareInt64(10))
	assert.Equal(t, 1, n.CompareInt64(5))
	assert.Equal(t, -1, n.CompareInt64(20))
}
