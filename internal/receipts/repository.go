package receipts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

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

// GetOrder returns a supplier order and its lines with quantities already received.
func (r *Repository) GetOrder(ctx context.Context, id string) (Order, []OrderLine, error) {
	var order Order
	err := r.pool.QueryRow(ctx, `
SELECT o.id, o.school_id, o.supplier_id, COALESCE(s.name, ''), o.session, o.status
FROM supplier_orders o
LEFT JOIN suppliers s ON s.id = o.supplier_id
WHERE o.id = $1`, id).Scan(&order.ID, &order.SchoolID, &order.SupplierID, &order.SupplierName, &order.Session, &order.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, nil, ErrNotFound
	}
	if err != nil {
		return Order{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT l.id, l.book_id, COALESCE(b.title, ''), COALESCE(NULLIF(l.class_name, ''), b.class_name, ''),
       COALESCE(p.name, ''), l.qty,
       COALESCE((SELECT SUM(rl.qty) FROM receipt_lines rl WHERE rl.order_line_id = l.id), 0)::int,
       l.rate, b.mrp,
       CASE WHEN upper(l.discount_type) IN ('PERCENT', 'PERCENTAGE', '%') THEN l.discount_value ELSE 0 END
FROM supplier_order_lines l
LEFT JOIN books b ON b.id = l.book_id
LEFT JOIN publishers p ON p.id = b.publisher_id
WHERE l.order_id = $1
ORDER BY l.id`, id)
	if err != nil {
		return Order{}, nil, fmt.Errorf("receipts: query order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var (
			line                OrderLine
			rate, mrp, discount pgtype.Numeric
		)
		if err := rows.Scan(&line.ID, &line.BookID, &line.Title, &line.ClassName, &line.PublisherName,
			&line.OrderedQty, &line.PreviouslyReceived, &rate, &mrp, &discount); err != nil {
			return Order{}, nil, err
		}
		line.Rate = db.Decimal(rate)
		line.MRP = db.Decimal(mrp)
		line.DiscountPercent = db.Decimal(discount)
		lines = append(lines, line)
	}
	return order, lines, rows.Err()
}

func (t *txRepo) InsertReceipt(ctx context.Context, receipt Receipt) error {
	tot := receipt.Totals
	_, err := t.tx.Exec(ctx, `
INSERT INTO receipts (id, order_id, reference, received_on, notes, subtotal, discount_amount, total, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		receipt.ID, receipt.OrderID, receipt.Reference, receipt.ReceivedOn, receipt.Notes,
		db.Numeric(tot.Subtotal), db.Numeric(tot.DiscountAmount), db.Numeric(tot.Total), receipt.CreatedAt)
	return err
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, receiptID uuid.UUID, line ReceiptLine) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO receipt_lines (receipt_id, order_line_id, qty, short_qty, unit_price, discount_per_unit, line_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		receiptID, line.OrderLineID, line.ReceivedQty, line.Fulfillment.ShortQty,
		db.Numeric(line.Price.UnitPrice), db.Numeric(line.Price.DiscountPerUnit), db.Numeric(line.Price.LineAmount))
	return err
}

func (t *txRepo) AddStock(ctx context.Context, bookID string, qty int) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO stock (book_id, available) VALUES ($1, $2)
ON CONFLICT (book_id) DO UPDATE SET available = stock.available + EXCLUDED.available`, bookID, qty)
	return err
}
