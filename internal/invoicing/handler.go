package invoicing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

// Handler exposes invoicing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoicing", func(r chi.Router) {
		r.Post("/preview", h.handlePreview)
		r.Post("/commit", h.handleCommit)
		r.Get("/invoices/{id}", h.handleGetInvoice)
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.logger.Warn("invoice preview", slog.String("requirement_id", req.RequirementID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.Commit(r.Context(), req)
	if err != nil {
		h.logger.Warn("invoice commit", slog.String("requirement_id", req.RequirementID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, commitStatusCode(outcome.Status), outcome)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func commitStatusCode(status CommitStatus) int {
	switch status {
	case CommitAll:
		return http.StatusCreated
	case CommitPartial:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}
