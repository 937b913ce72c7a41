package receipts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
	"github.com/odyssey-erp/schoolbooks/internal/shared"
)

type memoryRepo struct {
	orders   map[string]Order
	lines    map[string][]OrderLine
	receipts map[uuid.UUID]Receipt
	stock    map[string]int
	failTx   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: map[string]Order{
			"PO1": {ID: "PO1", SchoolID: "SCH1", SupplierID: "S1", Status: "OPEN"},
			"PO2": {ID: "PO2", SchoolID: "SCH1", SupplierID: "S1", Status: "CLOSED"},
		},
		lines: map[string][]OrderLine{
			"PO1": {
				{ID: "OL1", BookID: "B1", Title: "Maths", ClassName: "5", OrderedQty: 100, Rate: decimal.NewFromInt(50), DiscountPercent: decimal.NewFromInt(10)},
				{ID: "OL2", BookID: "B2", Title: "Science", ClassName: "6", OrderedQty: 20, PreviouslyReceived: 15, Rate: decimal.NewFromInt(40)},
			},
		},
		receipts: map[uuid.UUID]Receipt{},
		stock:    map[string]int{},
	}
}

type memoryTx struct {
	receipts map[uuid.UUID]Receipt
	stock    map[string]int
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{receipts: map[uuid.UUID]Receipt{}, stock: map[string]int{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.failTx {
		return errors.New("serialization failure")
	}
	for id, rc := range tx.receipts {
		r.receipts[id] = rc
	}
	for k, v := range tx.stock {
		r.stock[k] += v
	}
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id string) (Order, []OrderLine, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, nil, ErrNotFound
	}
	return o, append([]OrderLine(nil), r.lines[id]...), nil
}

func (t *memoryTx) InsertReceipt(ctx context.Context, receipt Receipt) error {
	t.receipts[receipt.ID] = receipt
	return nil
}

func (t *memoryTx) InsertReceiptLine(ctx context.Context, receiptID uuid.UUID, line ReceiptLine) error {
	return nil
}

func (t *memoryTx) AddStock(ctx context.Context, bookID string, qty int) error {
	t.stock[bookID] += qty
	return nil
}

type memoryIdempotency map[string]string

func (m memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m[key] = module
	return nil
}

func (m memoryIdempotency) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(m, key)
	return nil
}

type bustCounter struct{ n int }

func (b *bustCounter) Invalidate(ctx context.Context) error {
	b.n++
	return nil
}

type auditRecorder struct{ logs []shared.AuditLog }

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, memoryIdempotency, *bustCounter, *auditRecorder) {
	idem := memoryIdempotency{}
	bust := &bustCounter{}
	audit := &auditRecorder{}
	svc := NewService(repo, audit, idem, nil, bust, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) }
	return svc, idem, bust, audit
}

func delivery() ReceiptInput {
	return ReceiptInput{
		OrderID:   "PO1",
		Reference: "DC-1001",
		Lines: []ReceiptLineInput{
			{OrderLineID: "OL1", Qty: 65},
			{OrderLineID: "OL2", Qty: "8"},
		},
	}
}

func TestPreviewShortageAgainstOutstanding(t *testing.T) {
	svc, _, _, _ := newTestService(newMemoryRepo())
	preview, err := svc.Preview(context.Background(), delivery())
	require.NoError(t, err)
	require.Len(t, preview.Lines, 2)

	maths := preview.Lines[0]
	require.Equal(t, billing.Fulfillment{ShortQty: 35, CanFulfill: false}, maths.Fulfillment)
	require.Equal(t, "45.00", maths.Price.NetUnitPrice.StringFixed(2))
	require.Equal(t, "2925.00", maths.Price.LineAmount.StringFixed(2))

	science := preview.Lines[1]
	require.True(t, science.Fulfillment.CanFulfill)
	require.Equal(t, 8, science.ReceivedQty)

	require.Equal(t, "3245.00", preview.Totals.Total.StringFixed(2))
	codes := map[string]string{}
	for _, is := range preview.Issues {
		codes[is.LineID] = is.Code
	}
	require.Equal(t, map[string]string{"OL1": IssueShortReceipt, "OL2": IssueOverReceipt}, codes)
	require.Equal(t, "2025-06-02", preview.ReceivedOn.Format("2006-01-02"))
}

func TestPreviewRejectsBadLines(t *testing.T) {
	svc, _, _, _ := newTestService(newMemoryRepo())
	in := delivery()
	in.Lines = append(in.Lines, ReceiptLineInput{OrderLineID: "OL1", Qty: 1})
	_, err := svc.Preview(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = delivery()
	in.Lines[0].OrderLineID = "OL9"
	_, err = svc.Preview(context.Background(), in)
	require.ErrorIs(t, err, httpx.ErrValidation)

	in = delivery()
	in.Lines = nil
	_, err = svc.Preview(context.Background(), in)
	require.ErrorIs(t, err, httpx.ErrValidation)

	in = delivery()
	in.OrderID = "PO2"
	_, err = svc.Preview(context.Background(), in)
	require.ErrorIs(t, err, ErrOrderClosed)
}

func TestPostPersistsOnceAndBustsReports(t *testing.T) {
	repo := newMemoryRepo()
	svc, idem, bust, audit := newTestService(repo)

	receipt, err := svc.Post(context.Background(), delivery())
	require.NoError(t, err)
	require.Len(t, repo.receipts, 1)
	require.Equal(t, map[string]int{"B1": 65, "B2": 8}, repo.stock)
	require.Equal(t, 1, bust.n)
	require.Len(t, idem, 1)
	require.Equal(t, "RECEIPT_POST", audit.logs[0].Action)
	require.Equal(t, receipt.ID.String(), audit.logs[0].EntityID)

	_, err = svc.Post(context.Background(), delivery())
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Len(t, repo.receipts, 1)
}

func TestPostReleasesKeyOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failTx = true
	svc, idem, bust, _ := newTestService(repo)
	_, err := svc.Post(context.Background(), delivery())
	require.Error(t, err)
	require.Empty(t, idem)
	require.Zero(t, bust.n)
}

func TestPostReleasesKeyAfterCancellation(t *testing.T) {
	repo := newMemoryRepo()
	repo.failTx = true
	svc, idem, _, _ := newTestService(repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Post(ctx, delivery())
	require.Error(t, err)
	require.Empty(t, idem, "key is released even when the caller has gone")

	repo.failTx = false
	_, err = svc.Post(context.Background(), delivery())
	require.NoError(t, err)
	require.Len(t, repo.receipts, 1)
}

func TestPostRejectsEmptyDelivery(t *testing.T) {
	svc, _, _, _ := newTestService(newMemoryRepo())
	in := delivery()
	in.Lines = []ReceiptLineInput{{OrderLineID: "OL1", Qty: 0}}
	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrNothingReceived)
	require.ErrorIs(t, err, httpx.ErrRejected)
}

func TestReceiptRoutes(t *testing.T) {
	svc, _, _, _ := newTestService(newMemoryRepo())
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)

	body := `{"order_id":"PO1","reference":"DC-7","lines":[{"order_line_id":"OL1","qty":10}]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts/preview", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"short_qty":90`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts", strings.NewReader(`{"order_id":"PO1","lines":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
