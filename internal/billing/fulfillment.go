package billing

// Fulfillment compares a requested (or ordered) quantity with what is available (or
// received).
type Fulfillment struct {
	ShortQty   int  `json:"short_qty"`
	CanFulfill bool `json:"can_fulfill"`
}

// Evaluate returns the shortage of available against requested.
func Evaluate(requested, available int) Fulfillment {
	requested = ClampInt(requested, 0, NoUpperBound)
	available = ClampInt(available, 0, NoUpperBound)
	short := requested - available
	if short < 0 {
		short = 0
	}
	return Fulfillment{ShortQty: short, CanFulfill: available >= requested}
}

// StockTable memoises product availability for the lifetime of one request.
type StockTable map[string]int

// Available reports the stock for productID, falling back to the line's own snapshot.
func (t StockTable) Available(line LineItem) (int, bool) {
	if q, ok := t[line.ProductID]; ok {
		return q, true
	}
	if line.StockAvailable != nil {
		return *line.StockAvailable, true
	}
	return 0, false
}
