package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

var (
	// ErrInvalidFilter indicates a malformed report filter.
	ErrInvalidFilter = fmt.Errorf("reports: invalid filter: %w", httpx.ErrValidation)
)

// Filter scopes a billing report. Only SchoolID is required.
type Filter struct {
	SchoolID   string     `json:"school_id" validate:"required"`
	SupplierID string     `json:"supplier_id,omitempty"`
	Session    string     `json:"session,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

// Validate checks the date range.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.SchoolID) == "" {
		return fmt.Errorf("%w: school_id required", ErrInvalidFilter)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("%w: to before from", ErrInvalidFilter)
	}
	return nil
}

// cacheParts renders the filter as stable key segments.
func (f Filter) cacheParts() []string {
	day := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02")
	}
	dash := func(s string) string {
		if s = strings.TrimSpace(s); s == "" {
			return "-"
		}
		return s
	}
	return []string{"reports", "billing", dash(f.SchoolID), dash(f.SupplierID), dash(f.Session), day(f.From), day(f.To)}
}

// Row is one committed supplier order line for a school, with everything received against
// it inside the filter window.
type Row struct {
	SupplierID    string
	SupplierName  string
	ClassName     string
	BookID        string
	Title         string
	Rate          decimal.Decimal
	OrderedQty    int
	ReceivedQty   int
	DiscountType  string
	DiscountValue decimal.Decimal
}

// BookRow converts a persisted row into the rollup input.
func (r Row) BookRow() billing.BookRow {
	line := billing.ReportSource{
		BookID:        r.BookID,
		Title:         r.Title,
		ClassName:     r.ClassName,
		SupplierName:  r.SupplierName,
		Qty:           r.ReceivedQty,
		Rate:          r.Rate,
		DiscountType:  r.DiscountType,
		DiscountValue: r.DiscountValue,
	}.Line()
	return billing.BookRow{
		SupplierID:   r.SupplierID,
		SupplierName: r.SupplierName,
		ClassName:    r.ClassName,
		BookID:       r.BookID,
		Title:        r.Title,
		Rate:         line.DefaultUnitPrice,
		OrderedQty:   r.OrderedQty,
		ReceivedQty:  line.RequestedQty,
		Discount:     line.ItemDiscount,
	}
}
