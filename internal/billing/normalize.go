package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Unassigned replaces blank grouping keys.
const Unassigned = "Unassigned"

// LineItem is the single shape the engine prices. Upstream records are mapped into it by
// one of the Source adapters below.
type LineItem struct {
	LineID           string          `json:"line_id"`
	ProductID        string          `json:"product_id"`
	Title            string          `json:"title"`
	ClassName        string          `json:"class_name"`
	PublisherName    string          `json:"publisher_name"`
	RequestedQty     int             `json:"requested_qty"`
	DefaultUnitPrice decimal.Decimal `json:"default_unit_price"`
	StockAvailable   *int            `json:"stock_available,omitempty"`
	ItemDiscount     Discount        `json:"item_discount"`
}

// GroupKey returns the key the line is partitioned by under mode.
func (l LineItem) GroupKey(mode GroupMode) string {
	switch mode {
	case GroupByClass:
		return normalizeKey(l.ClassName)
	case GroupByPublisher:
		return normalizeKey(l.PublisherName)
	default:
		return AllGroupKey
	}
}

func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unassigned
	}
	return s
}

// LineSource is implemented by every upstream record that can be billed.
type LineSource interface {
	Line() LineItem
}

// Normalize maps a batch of upstream records into line items.
func Normalize[S LineSource](src []S) []LineItem {
	out := make([]LineItem, 0, len(src))
	for _, s := range src {
		out = append(out, s.Line())
	}
	return out
}

// FallbackPrice returns the first candidate greater than zero, or zero.
func FallbackPrice(candidates ...any) decimal.Decimal {
	for _, c := range candidates {
		if v := ToNumber(c); v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}

// FirstNonBlank returns the first value with non-space content, trimmed.
func FirstNonBlank(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

// RequirementSource is a school requirement row joined with its catalog book.
type RequirementSource struct {
	ItemID         string
	BookID         string
	ItemTitle      string
	BookTitle      string
	ClassName      string
	BookClassName  string
	PublisherName  string
	Qty            any
	Rate           any
	SellingPrice   any
	MRP            any
	StockAvailable *int
}

// Line implements LineSource.
func (r RequirementSource) Line() LineItem {
	return LineItem{
		LineID:           r.ItemID,
		ProductID:        r.BookID,
		Title:            FirstNonBlank(r.ItemTitle, r.BookTitle, r.BookID),
		ClassName:        FirstNonBlank(r.ClassName, r.BookClassName),
		PublisherName:    FirstNonBlank(r.PublisherName),
		RequestedQty:     ClampQty(r.Qty),
		DefaultUnitPrice: FallbackPrice(r.Rate, r.SellingPrice, r.MRP),
		StockAvailable:   r.StockAvailable,
		ItemDiscount:     NoDiscount,
	}
}

// ReceiptSource is a supplier order line being received. Suppliers quote a percent
// discount off the rate.
type ReceiptSource struct {
	OrderLineID     string
	BookID          string
	Title           string
	ClassName       string
	PublisherName   string
	ReceivedQty     any
	Rate            any
	MRP             any
	DiscountPercent any
}

// Line implements LineSource.
func (r ReceiptSource) Line() LineItem {
	return LineItem{
		LineID:           r.OrderLineID,
		ProductID:        r.BookID,
		Title:            FirstNonBlank(r.Title, r.BookID),
		ClassName:        FirstNonBlank(r.ClassName),
		PublisherName:    FirstNonBlank(r.PublisherName),
		RequestedQty:     ClampQty(r.ReceivedQty),
		DefaultUnitPrice: FallbackPrice(r.Rate, r.MRP),
		ItemDiscount:     PercentOff(r.DiscountPercent),
	}
}

// ReportSource is a committed billing row. A flat discount is taken per unit, the same
// as every other path.
type ReportSource struct {
	RowID         string
	BookID        string
	Title         string
	ClassName     string
	SupplierName  string
	Qty           any
	Rate          any
	DiscountType  string
	DiscountValue any
}

// Line implements LineSource.
func (r ReportSource) Line() LineItem {
	return LineItem{
		LineID:           r.RowID,
		ProductID:        r.BookID,
		Title:            FirstNonBlank(r.Title, r.BookID),
		ClassName:        FirstNonBlank(r.ClassName),
		PublisherName:    FirstNonBlank(r.SupplierName),
		RequestedQty:     ClampQty(r.Qty),
		DefaultUnitPrice: FallbackPrice(r.Rate),
		ItemDiscount:     DiscountOf(r.DiscountType, r.DiscountValue),
	}
}
