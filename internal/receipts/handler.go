package receipts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/schoolbooks/internal/platform/httpx"
)

// Handler exposes receipt endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts/preview", h.handlePreview)
	r.Post("/receipts", h.handlePost)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var input ReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	preview, err := h.service.Preview(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var input ReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipt, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.logger.Warn("post receipt", slog.String("order_id", input.OrderID), slog.String("reference", input.Reference), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}
