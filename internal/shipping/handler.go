package shipping

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ServicePort is the part of Service used by the handler.
type ServicePort interface {
	Quote(ctx context.Context, input QuoteInput) (Quote, error)
	CreateShipment(ctx context.Context, input CreateShipmentInput) (Shipment, error)
	GetShipment(ctx context.Context, id int64) (Shipment, error)
}

// Handler wires HTTP endpoints for quoting and shipments.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountQuoteRoutes registers POST /quote.
func (h *Handler) MountQuoteRoutes(r chi.Router) {
	r.Post("/quote", h.handleQuote)
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var input QuoteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Quote(r.Context(), input)
	if err != nil {
		h.fail(w, "quote shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateShipmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actorID
	shipment, err := h.service.CreateShipment(r.Context(), input)
	if err != nil {
		h.fail(w, "create shipment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipment, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		h.fail(w, "get shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.IsDomainError(err) {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	} else {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
