package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/schoolbooks/internal/platform/db"
)

// Repository provides PostgreSQL backed report queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookRowsSQL = `
SELECT o.supplier_id,
       COALESCE(s.name, ''),
       COALESCE(NULLIF(l.class_name, ''), b.class_name, ''),
       l.book_id,
       COALESCE(b.title, ''),
       l.rate,
       l.qty,
       COALESCE((
           SELECT SUM(rl.qty)
           FROM receipt_lines rl
           JOIN receipts r ON r.id = rl.receipt_id
           WHERE rl.order_line_id = l.id
             AND ($4::date IS NULL OR r.received_on >= $4::date)
             AND ($5::date IS NULL OR r.received_on <= $5::date)
       ), 0)::int,
       l.discount_type,
       l.discount_value
FROM supplier_order_lines l
JOIN supplier_orders o ON o.id = l.order_id
LEFT JOIN suppliers s ON s.id = o.supplier_id
LEFT JOIN books b ON b.id = l.book_id
WHERE o.school_id = $1
  AND ($2 = '' OR o.supplier_id = $2)
  AND ($3 = '' OR o.session = $3)
ORDER BY l.id`

// ListBookRows returns one row per supplier order line matching the filter.
func (r *Repository) ListBookRows(ctx context.Context, filter Filter) ([]Row, error) {
	rows, err := r.pool.Query(ctx, bookRowsSQL, filter.SchoolID, filter.SupplierID, filter.Session, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("reports: query book rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row           Row
			rate, discVal pgtype.Numeric
		)
		if err := rows.Scan(&row.SupplierID, &row.SupplierName, &row.ClassName, &row.BookID, &row.Title,
			&rate, &row.OrderedQty, &row.ReceivedQty, &row.DiscountType, &discVal); err != nil {
			return nil, err
		}
		row.Rate = db.Decimal(rate)
		row.DiscountValue = db.Decimal(discVal)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListSchoolIDs returns every school with at least one supplier order.
func (r *Repository) ListSchoolIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT school_id FROM supplier_orders ORDER BY school_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
