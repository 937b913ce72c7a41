package billing

import "github.com/shopspring/decimal"

// Charges are the bill-level adjustments applied to a group.
type Charges struct {
	Discount Discount        `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Other    decimal.Decimal `json:"other"`
	RoundOff decimal.Decimal `json:"round_off"`
}

// GroupTotals are the figures shown for one invoice.
type GroupTotals struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountRequested decimal.Decimal `json:"discount_requested"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	DiscountClamped   bool            `json:"discount_clamped"`
	Shipping          decimal.Decimal `json:"shipping"`
	Other             decimal.Decimal `json:"other"`
	RoundOff          decimal.Decimal `json:"round_off"`
	Total             decimal.Decimal `json:"total"`
}

// GrandTotals sum the per-group figures.
type GrandTotals struct {
	Groups         int             `json:"groups"`
	Lines          int             `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Shipping       decimal.Decimal `json:"shipping"`
	Other          decimal.Decimal `json:"other"`
	RoundOff       decimal.Decimal `json:"round_off"`
	Total          decimal.Decimal `json:"total"`
}

// AggregateGroup totals already priced lines and applies the bill charges. The bill
// discount never exceeds the subtotal; round-off may be negative.
func AggregateGroup(lines []PricedLine, charges Charges) GroupTotals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Price.LineAmount)
	}
	subtotal = Round2(subtotal)

	requested := decimal.Zero
	if !charges.Discount.IsZero() {
		requested = Round2(charges.Discount.Against(subtotal))
	}
	discount := decimal.Min(requested, subtotal)
	shipping := Round2(charges.Shipping)
	other := Round2(charges.Other)
	roundOff := Round2(charges.RoundOff)

	total := NonNegative(subtotal.Sub(discount)).Add(shipping).Add(other).Add(roundOff)
	return GroupTotals{
		Subtotal:          subtotal,
		DiscountRequested: requested,
		DiscountAmount:    discount,
		DiscountClamped:   requested.GreaterThan(subtotal),
		Shipping:          shipping,
		Other:             other,
		RoundOff:          roundOff,
		Total:             Round2(total),
	}
}

// SumTotals adds up the groups' own figures.
func SumTotals(groups []Group) GrandTotals {
	g := GrandTotals{
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		Shipping:       decimal.Zero,
		Other:          decimal.Zero,
		RoundOff:       decimal.Zero,
		Total:          decimal.Zero,
	}
	for _, grp := range groups {
		g.Groups++
		g.Lines += len(grp.Lines)
		g.Subtotal = g.Subtotal.Add(grp.Totals.Subtotal)
		g.DiscountAmount = g.DiscountAmount.Add(grp.Totals.DiscountAmount)
		g.Shipping = g.Shipping.Add(grp.Totals.Shipping)
		g.Other = g.Other.Add(grp.Totals.Other)
		g.RoundOff = g.RoundOff.Add(grp.Totals.RoundOff)
		g.Total = g.Total.Add(grp.Totals.Total)
	}
	return g
}
