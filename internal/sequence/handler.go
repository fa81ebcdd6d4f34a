package sequence

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// Previewer is the read side of Generator used over HTTP.
type Previewer interface {
	Preview(ctx context.Context, kind Kind, at time.Time) (string, error)
}

// Handler exposes number previews.
type Handler struct {
	logger  *slog.Logger
	preview Previewer
	now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, preview Previewer) *Handler {
	return &Handler{logger: logger, preview: preview, now: time.Now}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}/preview", h.handlePreview)
}

type previewResponse struct {
	Kind   Kind   `json:"kind"`
	Number string `json:"number"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	number, err := h.preview.Preview(r.Context(), kind, h.now())
	if err != nil {
		h.logger.Error("preview document number", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewResponse{Kind: kind, Number: number})
}
