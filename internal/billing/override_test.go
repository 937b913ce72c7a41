package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePriceLineOverrideBeatsProduct(t *testing.T) {
	set := ParseOverrides(map[string]any{"item:L42": 80, "product:P7": "90"}, nil, nil)
	got := ResolvePrice("L42", "P7", dec("100"), set)
	require.True(t, got.Equal(dec("80")), "got %s", got)

	got = ResolvePrice("L43", "P7", dec("100"), set)
	require.True(t, got.Equal(dec("90")), "got %s", got)
}

func TestResolvePriceFallbackChain(t *testing.T) {
	set := ParseOverrides(nil, nil, "55")
	require.True(t, ResolvePrice("L1", "P1", dec("100"), set).Equal(dec("55")))

	set = ParseOverrides(nil, nil, 0)
	require.Nil(t, set.GlobalDefaultPrice)
	require.True(t, ResolvePrice("L1", "P1", dec("100"), set).Equal(dec("100")))

	require.True(t, ResolvePrice("L1", "P1", dec("-5"), OverrideSet{}).IsZero())
}

func TestResolvePriceZeroOverride(t *testing.T) {
	set := ParseOverrides(map[string]any{"item:L1": 0}, nil, nil)
	assert.True(t, ResolvePrice("L1", "P1", dec("100"), set).Equal(dec("100")), "zero falls through by default")

	set.AllowZeroPrice = true
	assert.True(t, ResolvePrice("L1", "P1", dec("100"), set).IsZero(), "zero wins when allowed")
}

func TestResolveQty(t *testing.T) {
	set := ParseOverrides(nil, map[string]any{"item:L1": 0, "product:P2": "4.7", "item:L3": -2}, nil)
	assert.Equal(t, 0, ResolveQty("L1", "P1", 10, set))
	assert.Equal(t, 4, ResolveQty("L2", "P2", 10, set))
	assert.Equal(t, 0, ResolveQty("L3", "P3", 10, set))
	assert.Equal(t, 10, ResolveQty("L4", "P4", 10, set))
	assert.Equal(t, 0, ResolveQty("L4", "P4", -1, set))
	assert.Equal(t, 6, ResolveQty("", "", 6, ParseOverrides(nil, map[string]any{"item:": 1}, nil)))
}

func TestOverridesAreNotMutated(t *testing.T) {
	set := ParseOverrides(map[string]any{"item:L1": 0, "product:P1": "12"}, map[string]any{"item:L1": 3}, nil)
	before := set.Fingerprint()
	_ = ResolvePrice("L1", "P1", dec("10"), set)
	_ = ResolveQty("L1", "P1", 9, set)
	require.Equal(t, before, set.Fingerprint())
	require.Len(t, set.Price, 2)
}

func TestFingerprintStable(t *testing.T) {
	a := ParseOverrides(map[string]any{"item:A": 1, "item:B": 2}, map[string]any{"product:X": 3}, nil)
	b := ParseOverrides(map[string]any{"item:B": "2", "item:A": "1"}, map[string]any{"product:X": "3"}, nil)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := ParseOverrides(map[string]any{"item:A": 1, "item:B": 3}, map[string]any{"product:X": 3}, nil)
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	price, qty := a.Flat()
	require.Equal(t, map[string]string{"item:A": "1", "item:B": "2"}, price)
	require.Equal(t, map[string]string{"product:X": "3"}, qty)
}

func TestDiscountMath(t *testing.T) {
	assert.Equal(t, DiscountPercent, ParseDiscountType(" % "))
	assert.Equal(t, DiscountAmount, ParseDiscountType("flat"))
	assert.Equal(t, DiscountNone, ParseDiscountType("bogus"))

	assert.True(t, PercentOff(10).Against(dec("50")).Equal(dec("5")))
	assert.True(t, AmountOff("7").Against(dec("50")).Equal(dec("7")))
	assert.True(t, AmountOff(-7).Against(dec("50")).IsZero())
	assert.True(t, NoDiscount.Against(dec("50")).IsZero())
	assert.True(t, Discount{Type: DiscountPercent, Value: decimal.NewFromInt(0)}.IsZero())
}

func TestPriceLineSimple(t *testing.T) {
	lp := PriceLine(10, dec("50"), PercentOff(10))
	require.True(t, lp.NetUnitPrice.Equal(dec("45")))
	require.Equal(t, "450.00", lp.LineAmount.StringFixed(2))
	require.Equal(t, "500.00", lp.GrossAmount.StringFixed(2))
}

func TestPriceLineDiscountAboveUnitPrice(t *testing.T) {
	lp := PriceLine(3, dec("20"), AmountOff(25))
	require.True(t, lp.NetUnitPrice.IsZero())
	require.True(t, lp.LineAmount.IsZero())
}

func TestPriceLineRoundsAtTheCent(t *testing.T) {
	lp := PriceLine(3, dec("33.335"), NoDiscount)
	require.Equal(t, "100.01", lp.LineAmount.StringFixed(2))
}
