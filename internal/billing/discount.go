package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates how a discount value is read.
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

// ParseDiscountType reads the loose spellings used by upstream forms.
func ParseDiscountType(s string) DiscountType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PERCENT", "PERCENTAGE", "PCT", "%":
		return DiscountPercent
	case "AMOUNT", "FLAT", "FIXED", "VALUE":
		return DiscountAmount
	default:
		return DiscountNone
	}
}

// Discount is either a percentage or a currency amount.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// NoDiscount is the zero discount.
var NoDiscount = Discount{Type: DiscountNone}

// PercentOff builds a percentage discount.
func PercentOff(v any) Discount {
	return Discount{Type: DiscountPercent, Value: ToNumber(v)}
}

// AmountOff builds a flat currency discount.
func AmountOff(v any) Discount {
	return Discount{Type: DiscountAmount, Value: ToNumber(v)}
}

// DiscountOf builds a discount from a loose type spelling and value.
func DiscountOf(kind string, v any) Discount {
	return Discount{Type: ParseDiscountType(kind), Value: ToNumber(v)}
}

// Against returns the discount taken from base, never negative. Percent discounts are a
// share of base; amount discounts ignore base.
func (d Discount) Against(base decimal.Decimal) decimal.Decimal {
	var amt decimal.Decimal
	switch d.Type {
	case DiscountPercent:
		amt = base.Mul(d.Value).Div(hundred)
	case DiscountAmount:
		amt = d.Value
	default:
		return decimal.Zero
	}
	return NonNegative(amt)
}

// IsZero reports whether the discount can never take anything off.
func (d Discount) IsZero() bool {
	return d.Type == DiscountNone || d.Type == "" || !d.Value.IsPositive()
}

// PerUnit is the discount taken from one unit at unitPrice.
func (d Discount) PerUnit(unitPrice decimal.Decimal) decimal.Decimal {
	return d.Against(NonNegative(unitPrice))
}
