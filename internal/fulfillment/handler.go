package fulfillment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// IdempotencyHeader carries the optional client retry key.
const IdempotencyHeader = "Idempotency-Key"

// ServicePort is the part of Service used by the handler.
type ServicePort interface {
	FulfillBackorder(ctx context.Context, in FulfillInput) (Result, error)
}

// Handler exposes fulfillment under the backorder routes.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers POST /{id}/fulfill.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/fulfill", h.handleFulfill)
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in FulfillInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.BackorderID = id
	in.ActorID = actorID
	in.IdempotencyKey = r.Header.Get(IdempotencyHeader)

	res, err := h.service.FulfillBackorder(r.Context(), in)
	if err != nil {
		if shared.IsDomainError(err) {
			h.logger.Info("fulfill backorder rejected", slog.Int64("backorder_id", id), slog.Any("error", err))
		} else {
			h.logger.Error("fulfill backorder", slog.Int64("backorder_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
