package invoicing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/shared"
	"github.com/odyssey-erp/schoolbooks/jobs"
)

const (
	flowRequirement   = "requirement"
	idempotencyModule = "invoicing.commit"
)

// invoiceNamespace seeds deterministic invoice ids.
var invoiceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schoolbooks/invoices"))

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequirement(ctx context.Context, id string) (Requirement, error)
	ListRequirementItems(ctx context.Context, requirementID string) ([]RequirementItem, error)
	StockForRequirement(ctx context.Context, requirementID string) (billing.StockTable, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) error
	InsertInvoiceLine(ctx context.Context, invoiceID uuid.UUID, lineNo int, line InvoiceLine) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against committing the same group twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort records billing activity.
type MetricsPort interface {
	ObservePreview(flow, mode string)
	ObserveCommit(flow, outcome string, amount float64)
	ObserveRejection(code string)
}

// NotifierPort enqueues invoice announcements.
type NotifierPort interface {
	EnqueueInvoiceNotify(ctx context.Context, payload jobs.InvoiceNotifyPayload) error
}

// Deps collects the optional collaborators of Service.
type Deps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Notifier    NotifierPort
	Logger      *slog.Logger
	DefaultMode billing.GroupMode
}

// Service turns requirements into invoices.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	notifier    NotifierPort
	logger      *slog.Logger
	defaultMode billing.GroupMode
	now         func() time.Time
}

// NewService constructs the invoicing service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := deps.DefaultMode
	if mode == "" {
		mode = billing.GroupNone
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		notifier:    deps.Notifier,
		logger:      logger,
		defaultMode: mode,
		now:         time.Now,
	}
}

// Preview computes the invoices a requirement would produce without persisting anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (PreviewResponse, error) {
	requirement, result, set, err := s.compute(ctx, req)
	if err != nil {
		return PreviewResponse{}, err
	}
	if s.metrics != nil {
		s.metrics.ObservePreview(flowRequirement, string(result.Mode))
	}
	return PreviewResponse{
		RequirementID: requirement.ID,
		SchoolID:      requirement.SchoolID,
		Session:       requirement.Session,
		Fingerprint:   set.Fingerprint(),
		PreviewResult: result,
	}, nil
}

// Commit recomputes the preview and persists each selected group as its own invoice.
// Groups commit independently; the outcome reports every group.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitOutcome, error) {
	invoiceDate, err := s.invoiceDate(req.InvoiceDate)
	if err != nil {
		return CommitOutcome{}, err
	}
	requirement, result, set, err := s.compute(ctx, req.PreviewRequest)
	if err != nil {
		return CommitOutcome{}, err
	}
	selected := result.Select(req.Groups)
	if selected.Rejected() {
		issues := selected.Errors()
		if s.metrics != nil {
			for _, is := range issues {
				s.metrics.ObserveRejection(is.Code)
			}
		}
		return CommitOutcome{}, &RejectionError{Issues: issues}
	}

	outcome := CommitOutcome{RequirementID: requirement.ID, Mode: selected.Mode, Warnings: selected.Issues}
	fingerprint := set.Fingerprint()
	for _, g := range selected.Groups {
		res := s.commitGroup(ctx, commitScope{
			requirement: requirement,
			mode:        selected.Mode,
			group:       g,
			fingerprint: fingerprint,
			date:        invoiceDate,
			notes:       strings.TrimSpace(req.Notes),
			actor:       req.Actor,
		})
		outcome.Results = append(outcome.Results, res)
	}
	outcome.Status = summarize(outcome.Results)
	return outcome, nil
}

// GetInvoice loads a committed invoice.
func (s *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: invoice id", ErrInvalidRequest)
	}
	return s.repo.GetInvoice(ctx, parsed)
}

func (s *Service) compute(ctx context.Context, req PreviewRequest) (Requirement, billing.PreviewResult, billing.OverrideSet, error) {
	id := strings.TrimSpace(req.RequirementID)
	if id == "" {
		return Requirement{}, billing.PreviewResult{}, billing.OverrideSet{}, fmt.Errorf("%w: requirement_id required", ErrInvalidRequest)
	}

	var (
		requirement Requirement
		items       []RequirementItem
		stock       billing.StockTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		requirement, err = s.repo.GetRequirement(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.repo.ListRequirementItems(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		stock, err = s.repo.StockForRequirement(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Requirement{}, billing.PreviewResult{}, billing.OverrideSet{}, err
	}
	if !requirement.Billable() {
		return Requirement{}, billing.PreviewResult{}, billing.OverrideSet{}, ErrRequirementClosed
	}

	sources := make([]billing.RequirementSource, 0, len(items))
	for _, item := range items {
		sources = append(sources, item.source())
	}
	mode := s.defaultMode
	if strings.TrimSpace(req.GroupMode) != "" {
		mode = billing.ParseGroupMode(req.GroupMode)
	}
	set := req.overrides()
	result := billing.Preview(billing.PreviewInput{
		Lines:        billing.Normalize(sources),
		Mode:         mode,
		Overrides:    set,
		Charges:      req.Charges.charges(),
		GroupCharges: req.groupCharges(),
		Stock:        stock,
	})
	return requirement, result, set, nil
}

type commitScope struct {
	requirement Requirement
	mode        billing.GroupMode
	group       billing.Group
	fingerprint string
	date        time.Time
	notes       string
	actor       string
}

// contentDigest covers the header fields and every priced line so a changed
// requirement row never collides with an invoice committed earlier.
func (c commitScope) contentDigest() string {
	t := c.group.Totals
	parts := []string{
		string(c.mode),
		c.date.Format("2006-01-02"),
		c.notes,
		t.DiscountRequested.String(),
		t.Shipping.String(),
		t.Other.String(),
		t.RoundOff.String(),
		t.Total.String(),
	}
	for _, l := range c.group.Lines {
		parts = append(parts, fmt.Sprintf("%s|%d|%s|%s|%s",
			l.LineID, l.Qty, l.Price.UnitPrice, l.Price.DiscountPerUnit, l.Price.LineAmount))
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func (s *Service) commitGroup(ctx context.Context, scope commitScope) GroupResult {
	g := scope.group
	key := shared.IdempotencyKey("invoice", scope.requirement.ID, g.Key, scope.fingerprint, scope.contentDigest())
	id := uuid.NewSHA1(invoiceNamespace, []byte(key))
	res := GroupResult{GroupKey: g.Key, InvoiceID: id.String(), Ref: invoiceRef(id), Total: g.Totals.Total}

	inserted := false
	if s.idempotency != nil {
		err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			stored, lookupErr := s.repo.GetInvoice(ctx, id)
			switch {
			case lookupErr == nil:
				res.Ref = stored.Ref
				res.Total = stored.Totals.Total
				res.Status = GroupDuplicate
				s.observeCommit(GroupDuplicate, g)
				return res
			case !errors.Is(lookupErr, ErrNotFound):
				return s.failGroup(res, g, lookupErr)
			}
			// The key outlived a failed commit; reclaim it once.
			if !s.releaseKey(ctx, key) {
				return s.failGroup(res, g, ErrKeyHeld)
			}
			err = s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.failGroup(res, g, ErrKeyHeld)
			}
		}
		if err != nil {
			return s.failGroup(res, g, err)
		}
		inserted = true
	}

	inv := Invoice{
		ID:                  id,
		Ref:                 res.Ref,
		RequirementID:       scope.requirement.ID,
		SchoolID:            scope.requirement.SchoolID,
		Session:             scope.requirement.Session,
		GroupMode:           scope.mode,
		GroupKey:            g.Key,
		InvoiceDate:         scope.date,
		Notes:               scope.notes,
		Totals:              g.Totals,
		OverrideFingerprint: scope.fingerprint,
		CreatedAt:           s.now().UTC(),
	}
	for _, l := range g.Lines {
		inv.Lines = append(inv.Lines, invoiceLine(l))
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		for i, line := range inv.Lines {
			if err := tx.InsertInvoiceLine(ctx, inv.ID, i+1, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			s.releaseKey(ctx, key)
		}
		return s.failGroup(res, g, err)
	}

	res.Status = GroupCommitted
	s.observeCommit(GroupCommitted, g)
	s.recordAudit(ctx, scope.actor, "INVOICE_COMMIT", inv.ID.String(), map[string]any{
		"ref":                  inv.Ref,
		"requirement_id":       inv.RequirementID,
		"group_mode":           string(inv.GroupMode),
		"group_key":            inv.GroupKey,
		"total":                billing.FormatAmount(inv.Totals.Total),
		"override_fingerprint": inv.OverrideFingerprint,
	})
	s.notify(ctx, inv)
	return res
}

// releaseKey drops an idempotency key even when the request context is gone.
func (s *Service) releaseKey(ctx context.Context, key string) bool {
	if err := s.idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Service) failGroup(res GroupResult, g billing.Group, err error) GroupResult {
	s.logger.Error("commit invoice group", slog.String("group_key", g.Key), slog.String("invoice_id", res.InvoiceID), slog.Any("error", err))
	s.observeCommit(GroupFailed, g)
	res.Status = GroupFailed
	res.Error = err.Error()
	return res
}

func (s *Service) observeCommit(outcome string, g billing.Group) {
	if s.metrics == nil {
		return
	}
	amount := 0.0
	if outcome == GroupCommitted {
		amount = g.Totals.Total.InexactFloat64()
	}
	s.metrics.ObserveCommit(flowRequirement, outcome, amount)
}

func (s *Service) notify(ctx context.Context, inv Invoice) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.EnqueueInvoiceNotify(ctx, jobs.InvoiceNotifyPayload{
		InvoiceID:     inv.ID.String(),
		Ref:           inv.Ref,
		RequirementID: inv.RequirementID,
		SchoolID:      inv.SchoolID,
		GroupKey:      inv.GroupKey,
		Total:         billing.FormatAmount(inv.Totals.Total),
	})
	if err != nil {
		s.logger.Warn("enqueue invoice notify", slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "invoice", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit invoice", slog.String("entity_id", entityID), slog.Any("error", err))
	}
}

func (s *Service) invoiceDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := s.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invoice_date", ErrInvalidRequest)
	}
	return t, nil
}

func invoiceRef(id uuid.UUID) string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
