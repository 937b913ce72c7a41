package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler exposes billing report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the report handler. Exports are limited per client address.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, service: service, rateLimit: limiter}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/billing", h.handleReport)
	r.With(h.rateLimit).Get("/reports/billing.csv", h.handleExportCSV)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, report); err != nil {
		h.logger.Error("export billing csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("billing_%s_%s.csv", sanitize(r.URL.Query().Get("school_id")), time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (billing.Report, bool) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return billing.Report{}, false
	}
	report, err := h.service.Report(r.Context(), filter)
	if err != nil {
		h.logger.Warn("billing report", slog.String("school_id", filter.SchoolID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return billing.Report{}, false
	}
	return report, true
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		SchoolID:   strings.TrimSpace(q.Get("school_id")),
		SupplierID: strings.TrimSpace(q.Get("supplier_id")),
		Session:    strings.TrimSpace(q.Get("session")),
	}
	var err error
	if filter.From, err = parseDay(q.Get("from")); err != nil {
		return Filter{}, fmt.Errorf("%w: from: %v", ErrInvalidFilter, err)
	}
	if filter.To, err = parseDay(q.Get("to")); err != nil {
		return Filter{}, fmt.Errorf("%w: to: %v", ErrInvalidFilter, err)
	}
	return filter, nil
}

func parseDay(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "all"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
