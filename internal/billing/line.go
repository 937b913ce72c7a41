package billing

import "github.com/shopspring/decimal"

// LinePrice is the priced result for one line.
type LinePrice struct {
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
	NetUnitPrice    decimal.Decimal `json:"net_unit_price"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	LineAmount      decimal.Decimal `json:"line_amount"`
}

// PriceLine applies the item discount per unit before multiplying by qty.
func PriceLine(qty int, unitPrice decimal.Decimal, d Discount) LinePrice {
	qty = ClampInt(qty, 0, NoUpperBound)
	unitPrice = NonNegative(unitPrice)
	perUnit := d.PerUnit(unitPrice)
	net := NonNegative(unitPrice.Sub(perUnit))
	q := decimal.NewFromInt(int64(qty))
	return LinePrice{
		UnitPrice:       unitPrice,
		DiscountPerUnit: perUnit,
		NetUnitPrice:    net,
		GrossAmount:     Round2(unitPrice.Mul(q)),
		LineAmount:      Round2(net.Mul(q)),
	}
}
