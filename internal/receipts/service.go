package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
	"github.com/odyssey-erp/schoolbooks/internal/shared"
)

const (
	flowReceipt       = "receipt"
	idempotencyModule = "receipts.post"
)

var receiptNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schoolbooks/receipts"))

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id string) (Order, []OrderLine, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertReceipt(ctx context.Context, receipt Receipt) error
	InsertReceiptLine(ctx context.Context, receiptID uuid.UUID, line ReceiptLine) error
	AddStock(ctx context.Context, bookID string, qty int) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against posting the same delivery twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort records receipt activity.
type MetricsPort interface {
	ObservePreview(flow, mode string)
	ObserveCommit(flow, outcome string, amount float64)
}

// CacheBuster drops cached reports once new deliveries land.
type CacheBuster interface {
	Invalidate(ctx context.Context) error
}

// Service books supplier deliveries.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	reports     CacheBuster
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the receipts service. Every collaborator but repo may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, reports CacheBuster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, reports: reports, logger: logger, now: time.Now}
}

// Preview prices the delivered quantities and reports shortages against what was still
// outstanding on each order line.
func (s *Service) Preview(ctx context.Context, input ReceiptInput) (ReceiptPreview, error) {
	if err := httpx.Validate(input); err != nil {
		return ReceiptPreview{}, err
	}
	order, lines, err := s.repo.GetOrder(ctx, strings.TrimSpace(input.OrderID))
	if err != nil {
		return ReceiptPreview{}, err
	}
	if !order.Open() {
		return ReceiptPreview{}, ErrOrderClosed
	}
	receivedOn, err := s.receivedOn(input.ReceivedOn)
	if err != nil {
		return ReceiptPreview{}, err
	}

	byID := make(map[string]OrderLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	preview := ReceiptPreview{
		OrderID:    order.ID,
		SchoolID:   order.SchoolID,
		SupplierID: order.SupplierID,
		Reference:  strings.TrimSpace(input.Reference),
		ReceivedOn: receivedOn,
	}
	seen := make(map[string]struct{}, len(input.Lines))
	priced := make([]billing.PricedLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		id := strings.TrimSpace(in.OrderLineID)
		ol, ok := byID[id]
		if !ok {
			return ReceiptPreview{}, fmt.Errorf("%w: unknown order line %q", ErrInvalidInput, id)
		}
		if _, dup := seen[id]; dup {
			return ReceiptPreview{}, fmt.Errorf("%w: order line %q repeated", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}

		item := billing.ReceiptSource{
			OrderLineID:     ol.ID,
			BookID:          ol.BookID,
			Title:           ol.Title,
			ClassName:       ol.ClassName,
			PublisherName:   ol.PublisherName,
			ReceivedQty:     in.Qty,
			Rate:            ol.Rate,
			MRP:             ol.MRP,
			DiscountPercent: ol.DiscountPercent,
		}.Line()
		price := billing.PriceLine(item.RequestedQty, item.DefaultUnitPrice, item.ItemDiscount)
		outstanding := ol.Outstanding()
		line := ReceiptLine{
			OrderLineID:        ol.ID,
			BookID:             ol.BookID,
			Title:              item.Title,
			ClassName:          item.ClassName,
			OrderedQty:         ol.OrderedQty,
			PreviouslyReceived: ol.PreviouslyReceived,
			ReceivedQty:        item.RequestedQty,
			Fulfillment:        billing.Evaluate(outstanding, item.RequestedQty),
			Price:              price,
		}
		preview.Lines = append(preview.Lines, line)
		priced = append(priced, billing.PricedLine{LineItem: item, Qty: item.RequestedQty, Price: price})
		preview.Issues = append(preview.Issues, lineIssues(line, outstanding)...)
	}
	preview.Totals = billing.AggregateGroup(priced, billing.Charges{})
	if receivedQty(preview.Lines) == 0 {
		preview.Issues = append(preview.Issues, billing.Issue{
			Code:     billing.IssueNoBillableLines,
			Severity: billing.SeverityError,
			Message:  "no quantity received",
		})
	}
	if s.metrics != nil {
		s.metrics.ObservePreview(flowReceipt, "LINE")
	}
	return preview, nil
}

// Post persists the receipt, its lines and the stock movement in one transaction.
func (s *Service) Post(ctx context.Context, input ReceiptInput) (Receipt, error) {
	preview, err := s.Preview(ctx, input)
	if err != nil {
		return Receipt{}, err
	}
	if receivedQty(preview.Lines) == 0 {
		return Receipt{}, ErrNothingReceived
	}

	key := shared.IdempotencyKey("receipt", preview.OrderID, preview.Reference)
	receipt := Receipt{
		ID:             uuid.NewSHA1(receiptNamespace, []byte(key)),
		ReceiptPreview: preview,
		Notes:          strings.TrimSpace(input.Notes),
		CreatedAt:      s.now().UTC(),
	}
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Receipt{}, err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertReceipt(ctx, receipt); err != nil {
			return err
		}
		for _, line := range receipt.Lines {
			if line.ReceivedQty == 0 {
				continue
			}
			if err := tx.InsertReceiptLine(ctx, receipt.ID, line); err != nil {
				return err
			}
			if err := tx.AddStock(ctx, line.BookID, line.ReceivedQty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveCommit(flowReceipt, "failed", 0)
		}
		return Receipt{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveCommit(flowReceipt, "committed", receipt.Totals.Total.InexactFloat64())
	}
	s.recordAudit(ctx, input.Actor, receipt)
	if s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.String("receipt_id", receipt.ID.String()), slog.Any("error", err))
		}
	}
	return receipt, nil
}

func (s *Service) recordAudit(ctx context.Context, actor string, r Receipt) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "RECEIPT_POST",
		Entity:   "receipt",
		EntityID: r.ID.String(),
		Meta: map[string]any{
			"order_id":  r.OrderID,
			"reference": r.Reference,
			"lines":     len(r.Lines),
			"total":     billing.FormatAmount(r.Totals.Total),
		},
	})
	if err != nil {
		s.logger.Warn("audit receipt", slog.String("receipt_id", r.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) receivedOn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := s.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: received_on", ErrInvalidInput)
	}
	return t, nil
}

func lineIssues(line ReceiptLine, outstanding int) []billing.Issue {
	switch {
	case line.ReceivedQty > outstanding:
		return []billing.Issue{{
			Code:     IssueOverReceipt,
			Severity: billing.SeverityWarning,
			LineID:   line.OrderLineID,
			Message:  fmt.Sprintf("%s received %d against %d outstanding", line.Title, line.ReceivedQty, outstanding),
		}}
	case line.Fulfillment.ShortQty > 0:
		return []billing.Issue{{
			Code:     IssueShortReceipt,
			Severity: billing.SeverityWarning,
			LineID:   line.OrderLineID,
			Message:  fmt.Sprintf("%s is short by %d", line.Title, line.Fulfillment.ShortQty),
		}}
	}
	return nil
}

func receivedQty(lines []ReceiptLine) int {
	total := 0
	for _, l := range lines {
		total += l.ReceivedQty
	}
	return total
}
