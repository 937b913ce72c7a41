package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing requirement or invoice.
	ErrNotFound = fmt.Errorf("invoicing: not found: %w", httpx.ErrNotFound)
	// ErrInvalidRequest indicates malformed input.
	ErrInvalidRequest = fmt.Errorf("invoicing: invalid request: %w", httpx.ErrValidation)
	// ErrRequirementClosed indicates the requirement no longer accepts invoices.
	ErrRequirementClosed = fmt.Errorf("invoicing: requirement closed: %w", httpx.ErrConflict)
	// ErrKeyHeld indicates an idempotency key with no invoice behind it that could not be released.
	ErrKeyHeld = fmt.Errorf("invoicing: idempotency key held without invoice: %w", httpx.ErrConflict)
)

// Requirement statuses.
const (
	RequirementOpen      = "OPEN"
	RequirementClosed    = "CLOSED"
	RequirementCancelled = "CANCELLED"
)

// Requirement is a school's book requirement for one session.
type Requirement struct {
	ID       string
	SchoolID string
	Session  string
	Status   string
}

// Billable reports whether invoices may still be raised against the requirement.
func (r Requirement) Billable() bool {
	switch strings.ToUpper(r.Status) {
	case RequirementClosed, RequirementCancelled:
		return false
	}
	return true
}

// RequirementItem is a requirement row with its catalogue book.
type RequirementItem struct {
	ItemID        string
	BookID        string
	ItemTitle     string
	BookTitle     string
	ClassName     string
	BookClassName string
	PublisherName string
	Qty           int
	Rate          decimal.Decimal
	SellingPrice  decimal.Decimal
	MRP           decimal.Decimal
}

func (i RequirementItem) source() billing.RequirementSource {
	return billing.RequirementSource{
		ItemID:        i.ItemID,
		BookID:        i.BookID,
		ItemTitle:     i.ItemTitle,
		BookTitle:     i.BookTitle,
		ClassName:     i.ClassName,
		BookClassName: i.BookClassName,
		PublisherName: i.PublisherName,
		Qty:           i.Qty,
		Rate:          i.Rate,
		SellingPrice:  i.SellingPrice,
		MRP:           i.MRP,
	}
}

// ChargesInput is the loose wire shape of bill level charges.
type ChargesInput struct {
	DiscountType  string `json:"discount_type"`
	DiscountValue any    `json:"discount_value"`
	Shipping      any    `json:"shipping"`
	Other         any    `json:"other"`
	RoundOff      any    `json:"round_off"`
}

func (c ChargesInput) charges() billing.Charges {
	return billing.Charges{
		Discount: billing.Discount{Type: billing.ParseDiscountType(c.DiscountType), Value: billing.ToNumber(c.DiscountValue)},
		Shipping: billing.ToNumber(c.Shipping),
		Other:    billing.ToNumber(c.Other),
		RoundOff: billing.ToNumber(c.RoundOff),
	}
}

// PreviewRequest asks for the invoices a requirement would produce.
type PreviewRequest struct {
	RequirementID  string                  `json:"requirement_id" validate:"required"`
	GroupMode      string                  `json:"group_mode"`
	PriceOverrides map[string]any          `json:"price_overrides"`
	QtyOverrides   map[string]any          `json:"qty_overrides"`
	DefaultPrice   any                     `json:"default_price"`
	AllowZeroPrice bool                    `json:"allow_zero_price"`
	Charges        ChargesInput            `json:"charges"`
	GroupCharges   map[string]ChargesInput `json:"group_charges"`
}

func (r PreviewRequest) overrides() billing.OverrideSet {
	set := billing.ParseOverrides(r.PriceOverrides, r.QtyOverrides, r.DefaultPrice)
	set.AllowZeroPrice = r.AllowZeroPrice
	return set
}

func (r PreviewRequest) groupCharges() map[string]billing.Charges {
	if len(r.GroupCharges) == 0 {
		return nil
	}
	out := make(map[string]billing.Charges, len(r.GroupCharges))
	for k, v := range r.GroupCharges {
		out[k] = v.charges()
	}
	return out
}

// CommitRequest persists the selected groups of a preview as invoices. An empty Groups
// list commits every group.
type CommitRequest struct {
	PreviewRequest
	Groups      []string `json:"groups"`
	InvoiceDate string   `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       string   `json:"notes" validate:"max=500"`
	Actor       string   `json:"actor"`
}

// PreviewResponse is the computed preview together with its requirement header.
type PreviewResponse struct {
	RequirementID string `json:"requirement_id"`
	SchoolID      string `json:"school_id"`
	Session       string `json:"session"`
	Fingerprint   string `json:"override_fingerprint"`
	billing.PreviewResult
}

// Invoice is one committed group.
type Invoice struct {
	ID                  uuid.UUID           `json:"id"`
	Ref                 string              `json:"ref"`
	RequirementID       string              `json:"requirement_id"`
	SchoolID            string              `json:"school_id"`
	Session             string              `json:"session"`
	GroupMode           billing.GroupMode   `json:"group_mode"`
	GroupKey            string              `json:"group_key"`
	InvoiceDate         time.Time           `json:"invoice_date"`
	Notes               string              `json:"notes,omitempty"`
	Totals              billing.GroupTotals `json:"totals"`
	OverrideFingerprint string              `json:"override_fingerprint"`
	Lines               []InvoiceLine       `json:"lines"`
	CreatedAt           time.Time           `json:"created_at"`
}

// InvoiceLine is a billed line of an invoice.
type InvoiceLine struct {
	LineID          string          `json:"line_id"`
	BookID          string          `json:"book_id"`
	Title           string          `json:"title"`
	ClassName       string          `json:"class_name"`
	PublisherName   string          `json:"publisher_name"`
	Qty             int             `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
	LineAmount      decimal.Decimal `json:"line_amount"`
}

func invoiceLine(l billing.PricedLine) InvoiceLine {
	return InvoiceLine{
		LineID:          l.LineID,
		BookID:          l.ProductID,
		Title:           l.Title,
		ClassName:       l.ClassName,
		PublisherName:   l.PublisherName,
		Qty:             l.Qty,
		UnitPrice:       l.Price.UnitPrice,
		DiscountPerUnit: l.Price.DiscountPerUnit,
		LineAmount:      l.Price.LineAmount,
	}
}

// Per-group commit results.
const (
	GroupCommitted = "committed"
	GroupDuplicate = "duplicate"
	GroupFailed    = "failed"
)

// GroupResult reports what happened to one group during a commit.
type GroupResult struct {
	GroupKey  string          `json:"group_key"`
	Status    string          `json:"status"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Error     string          `json:"error,omitempty"`
}

func (r GroupResult) ok() bool {
	return r.Status == GroupCommitted || r.Status == GroupDuplicate
}

// CommitStatus summarises a commit across groups.
type CommitStatus string

const (
	CommitAll     CommitStatus = "ALL"
	CommitPartial CommitStatus = "PARTIAL"
	CommitNone    CommitStatus = "NONE"
)

// CommitOutcome lists every attempted group. Groups commit independently, so a
// PARTIAL outcome leaves the successful invoices in place.
type CommitOutcome struct {
	RequirementID string            `json:"requirement_id"`
	Mode          billing.GroupMode `json:"mode"`
	Status        CommitStatus      `json:"status"`
	Results       []GroupResult     `json:"results"`
	Warnings      []billing.Issue   `json:"warnings,omitempty"`
}

func summarize(results []GroupResult) CommitStatus {
	ok := 0
	for _, r := range results {
		if r.ok() {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return CommitAll
	case ok == 0:
		return CommitNone
	default:
		return CommitPartial
	}
}

// RejectionError is returned when a commit cannot proceed. It carries the blocking issues.
type RejectionError struct {
	Issues []billing.Issue
}

func (e *RejectionError) Error() string {
	codes := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		codes = append(codes, is.Code)
	}
	return "invoicing: commit rejected: " + strings.Join(codes, ", ")
}

// Unwrap maps the rejection onto the shared HTTP sentinel.
func (e *RejectionError) Unwrap() error { return httpx.ErrRejected }

// ProblemExtensions exposes the issues in problem responses.
func (e *RejectionError) ProblemExtensions() map[string]any {
	return map[string]any{"issues": e.Issues}
}
