package billing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestToNumberCoercesLooseInput(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "0"},
		{"", "0"},
		{"abc", "0"},
		{"₹1,250.50", "1250.5"},
		{"Rs. 12", "0.12"},
		{"12.5.1", "12.5"},
		{"-7.25", "-7.25"},
		{"12-5", "125"},
		{".5", "0.5"},
		{"-", "0"},
		{42, "42"},
		{int64(-3), "-3"},
		{uint(9), "9"},
		{2.5, "2.5"},
		{math.NaN(), "0"},
		{math.Inf(1), "0"},
		{json.Number("19.99"), "19.99"},
		{dec("3.10"), "3.1"},
		{struct{}{}, "0"},
	}
	for _, tc := range cases {
		got := ToNumber(tc.in)
		assert.Truef(t, got.Equal(dec(tc.want)), "ToNumber(%#v) = %s, want %s", tc.in, got, tc.want)
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "1.01", Round2(dec("1.005")).StringFixed(2))
	assert.Equal(t, "-1.01", Round2(dec("-1.005")).StringFixed(2))
	assert.Equal(t, "2.67", Round2(dec("2.675")).StringFixed(2))
	assert.Equal(t, "450.00", FormatAmount(dec("450")))
}

func TestClampQty(t *testing.T) {
	require.Equal(t, 0, ClampQty("-4"))
	require.Equal(t, 3, ClampQty("3.9"))
	require.Equal(t, 7, ClampQty(7))
	require.Equal(t, 0, ClampQty(-7))
	require.Equal(t, 0, ClampQty("garbage"))
	require.Equal(t, NoUpperBound, ClampQty("99999999999999999999999"))
	require.Equal(t, 5, ClampInt(10, 0, 5))
	require.Equal(t, 2, ClampInt(1, 2, 0))
}
