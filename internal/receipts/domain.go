package receipts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing supplier order.
	ErrNotFound = fmt.Errorf("receipts: not found: %w", httpx.ErrNotFound)
	// ErrInvalidInput indicates malformed receipt input.
	ErrInvalidInput = fmt.Errorf("receipts: invalid input: %w", httpx.ErrValidation)
	// ErrNothingReceived rejects a receipt whose lines are all zero.
	ErrNothingReceived = fmt.Errorf("receipts: nothing received: %w", httpx.ErrRejected)
	// ErrOrderClosed indicates the order no longer accepts deliveries.
	ErrOrderClosed = fmt.Errorf("receipts: order closed: %w", httpx.ErrConflict)
)

// Receipt issue codes.
const (
	IssueShortReceipt = "SHORT_RECEIPT"
	IssueOverReceipt  = "OVER_RECEIPT"
)

// Order is a supplier order placed for a school.
type Order struct {
	ID           string
	SchoolID     string
	SupplierID   string
	SupplierName string
	Session      string
	Status       string
}

// Open reports whether deliveries may still be booked against the order.
func (o Order) Open() bool {
	return o.Status != "CLOSED" && o.Status != "CANCELLED"
}

// OrderLine is one book on a supplier order with what has already arrived.
type OrderLine struct {
	ID                 string
	BookID             string
	Title              string
	ClassName          string
	PublisherName      string
	OrderedQty         int
	PreviouslyReceived int
	Rate               decimal.Decimal
	MRP                decimal.Decimal
	DiscountPercent    decimal.Decimal
}

// Outstanding is what the supplier still owes on the line.
func (l OrderLine) Outstanding() int {
	return billing.ClampInt(l.OrderedQty-l.PreviouslyReceived, 0, billing.NoUpperBound)
}

// ReceiptInput records a delivery against an order.
type ReceiptInput struct {
	OrderID    string             `json:"order_id" validate:"required"`
	Reference  string             `json:"reference" validate:"required,max=64"`
	ReceivedOn string             `json:"received_on" validate:"omitempty,datetime=2006-01-02"`
	Notes      string             `json:"notes" validate:"max=500"`
	Actor      string             `json:"actor"`
	Lines      []ReceiptLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ReceiptLineInput is the delivered quantity for one order line.
type ReceiptLineInput struct {
	OrderLineID string `json:"order_line_id" validate:"required"`
	Qty         any    `json:"qty"`
}

// ReceiptLine is a priced delivered line.
type ReceiptLine struct {
	OrderLineID        string              `json:"order_line_id"`
	BookID             string              `json:"book_id"`
	Title              string              `json:"title"`
	ClassName          string              `json:"class_name"`
	OrderedQty         int                 `json:"ordered_qty"`
	PreviouslyReceived int                 `json:"previously_received"`
	ReceivedQty        int                 `json:"received_qty"`
	Fulfillment        billing.Fulfillment `json:"fulfillment"`
	Price              billing.LinePrice   `json:"price"`
}

// ReceiptPreview is the computed receipt before it is posted.
type ReceiptPreview struct {
	OrderID    string              `json:"order_id"`
	SchoolID   string              `json:"school_id"`
	SupplierID string              `json:"supplier_id"`
	Reference  string              `json:"reference"`
	ReceivedOn time.Time           `json:"received_on"`
	Lines      []ReceiptLine       `json:"lines"`
	Totals     billing.GroupTotals `json:"totals"`
	Issues     []billing.Issue     `json:"issues"`
}

// Receipt is a posted delivery.
type Receipt struct {
	ID uuid.UUID `json:"id"`
	ReceiptPreview
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
