package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetRequirement returns the requirement header.
func (r *Repository) GetRequirement(ctx context.Context, id string) (Requirement, error) {
	var req Requirement
	err := r.pool.QueryRow(ctx, `SELECT id, school_id, session, status FROM requirements WHERE id = $1`, id).
		Scan(&req.ID, &req.SchoolID, &req.Session, &req.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requirement{}, ErrNotFound
	}
	return req, err
}

// ListRequirementItems returns requirement rows joined with their books.
func (r *Repository) ListRequirementItems(ctx context.Context, requirementID string) ([]RequirementItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT i.id, i.book_id, COALESCE(i.title, ''), COALESCE(b.title, ''),
       COALESCE(i.class_name, ''), COALESCE(b.class_name, ''), COALESCE(p.name, ''),
       i.qty, i.rate, b.selling_price, b.mrp
FROM requirement_items i
LEFT JOIN books b ON b.id = i.book_id
LEFT JOIN publishers p ON p.id = b.publisher_id
WHERE i.requirement_id = $1
ORDER BY i.id`, requirementID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: query items: %w", err)
	}
	defer rows.Close()

	var items []RequirementItem
	for rows.Next() {
		var (
			item               RequirementItem
			rate, selling, mrp pgtype.Numeric
		)
		if err := rows.Scan(&item.ItemID, &item.BookID, &item.ItemTitle, &item.BookTitle,
			&item.ClassName, &item.BookClassName, &item.PublisherName,
			&item.Qty, &rate, &selling, &mrp); err != nil {
			return nil, err
		}
		item.Rate = db.Decimal(rate)
		item.SellingPrice = db.Decimal(selling)
		item.MRP = db.Decimal(mrp)
		items = append(items, item)
	}
	return items, rows.Err()
}

// StockForRequirement loads current stock for every book on the requirement.
func (r *Repository) StockForRequirement(ctx context.Context, requirementID string) (billing.StockTable, error) {
	rows, err := r.pool.Query(ctx, `
SELECT s.book_id, s.available
FROM stock s
WHERE s.book_id IN (SELECT book_id FROM requirement_items WHERE requirement_id = $1)`, requirementID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: query stock: %w", err)
	}
	defer rows.Close()

	table := billing.StockTable{}
	for rows.Next() {
		var (
			bookID    string
			available int
		)
		if err := rows.Scan(&bookID, &available); err != nil {
			return nil, err
		}
		table[bookID] = available
	}
	return table, rows.Err()
}

// GetInvoice returns an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var (
		inv  Invoice
		mode string
		date time.Time

		subtotal, requested, discount, shipping, other, roundOff, total pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `
SELECT ref, requirement_id, school_id, session, group_mode, group_key, invoice_date, notes,
       subtotal, discount_requested, discount_amount, discount_clamped, shipping, other, round_off, total,
       override_fingerprint, created_at
FROM invoices WHERE id = $1`, id).Scan(
		&inv.Ref, &inv.RequirementID, &inv.SchoolID, &inv.Session, &mode, &inv.GroupKey, &date, &inv.Notes,
		&subtotal, &requested, &discount, &inv.Totals.DiscountClamped, &shipping, &other, &roundOff, &total,
		&inv.OverrideFingerprint, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = id
	inv.GroupMode = billing.GroupMode(mode)
	inv.InvoiceDate = date
	inv.Totals.Subtotal = db.Decimal(subtotal)
	inv.Totals.DiscountRequested = db.Decimal(requested)
	inv.Totals.DiscountAmount = db.Decimal(discount)
	inv.Totals.Shipping = db.Decimal(shipping)
	inv.Totals.Other = db.Decimal(other)
	inv.Totals.RoundOff = db.Decimal(roundOff)
	inv.Totals.Total = db.Decimal(total)

	rows, err := r.pool.Query(ctx, `
SELECT line_id, book_id, title, class_name, publisher_name, qty, unit_price, discount_per_unit, line_amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line                      InvoiceLine
			unit, perUnit, lineAmount pgtype.Numeric
		)
		if err := rows.Scan(&line.LineID, &line.BookID, &line.Title, &line.ClassName, &line.PublisherName,
			&line.Qty, &unit, &perUnit, &lineAmount); err != nil {
			return Invoice{}, err
		}
		line.UnitPrice = db.Decimal(unit)
		line.DiscountPerUnit = db.Decimal(perUnit)
		line.LineAmount = db.Decimal(lineAmount)
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	tot := inv.Totals
	_, err := t.tx.Exec(ctx, `
INSERT INTO invoices (id, ref, requirement_id, school_id, session, group_mode, group_key, invoice_date, notes,
    subtotal, discount_requested, discount_amount, discount_clamped, shipping, other, round_off, total,
    override_fingerprint, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		inv.ID, inv.Ref, inv.RequirementID, inv.SchoolID, inv.Session, string(inv.GroupMode), inv.GroupKey, inv.InvoiceDate, inv.Notes,
		db.Numeric(tot.Subtotal), db.Numeric(tot.DiscountRequested), db.Numeric(tot.DiscountAmount), tot.DiscountClamped,
		db.Numeric(tot.Shipping), db.Numeric(tot.Other), db.Numeric(tot.RoundOff), db.Numeric(tot.Total),
		inv.OverrideFingerprint, inv.CreatedAt)
	return err
}

func (t *txRepo) InsertInvoiceLine(ctx context.Context, invoiceID uuid.UUID, lineNo int, line InvoiceLine) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO invoice_lines (invoice_id, line_no, line_id, book_id, title, class_name, publisher_name, qty,
    unit_price, discount_per_unit, line_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		invoiceID, lineNo, line.LineID, line.BookID, line.Title, line.ClassName, line.PublisherName, line.Qty,
		db.Numeric(line.UnitPrice), db.Numeric(line.DiscountPerUnit), db.Numeric(line.LineAmount))
	return err
}
